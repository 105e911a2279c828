package brg

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/synapse-fi/bridge-hub/pkg/models"
)

// Behavioral Risk Graph (BRG)
//
// Bounded in-memory bipartite multigraph: entity nodes on one side, pattern
// nodes on the other, directed observation edges entity → pattern. This is
// the authoritative store for everything the correlator reasons about.
//
// PRIVACY GUARANTEE: the graph holds fingerprints, entity IDs, severities
// and timestamps. Nothing else. No transactions, no customer data.
//
// Memory is bounded by max_age × peak ingest rate: pruning removes edges
// past the retention horizon and drops pattern nodes whose degree hits
// zero. Entity nodes persist for the process lifetime (small cardinality).

// Rough per-record footprints for the memory estimate exposed in stats.
const (
	patternFootprintBytes = 240
	entityFootprintBytes  = 48
	edgeFootprintBytes    = 96
)

// patternNode carries per-fingerprint state, including the decay fields
// last computed by the correlator / decay engine.
type patternNode struct {
	fingerprint      string
	firstSeen        time.Time
	lastSeen         time.Time
	observationCount int
	decay            models.DecayState
}

// observationEdge is one entity → pattern observation. Immutable once
// inserted; removed only by pruning.
type observationEdge struct {
	entityID  string
	timestamp time.Time
	severity  models.Severity
}

// Graph is the BRG. Safe for concurrent use; all mutation funnels through
// the exported operations.
type Graph struct {
	mu       sync.RWMutex
	maxAge   time.Duration
	patterns map[string]*patternNode
	entities map[string]struct{}
	edges    map[string][]observationEdge // keyed by fingerprint

	totalObservations int64
}

// New creates an empty graph with the given retention horizon.
func New(maxAge time.Duration) *Graph {
	log.Printf("[BRG] Initialized graph with max_age=%s", maxAge)
	return &Graph{
		maxAge:   maxAge,
		patterns: make(map[string]*patternNode),
		entities: make(map[string]struct{}),
		edges:    make(map[string][]observationEdge),
	}
}

// AddObservation records one observation and overwrites the pattern's decay
// fields. The pattern node is created on first sight; the entity node is
// created if absent; an observation edge is always appended.
func (g *Graph) AddObservation(fingerprint, entityID string, severity models.Severity, ts time.Time, decay models.DecayState) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.patterns[fingerprint]
	if !ok {
		node = &patternNode{fingerprint: fingerprint, firstSeen: ts}
		g.patterns[fingerprint] = node
	}

	node.observationCount++
	node.decay = decay
	// last_seen is monotone even if an entity reports a slightly older
	// timestamp than one already recorded.
	if ts.After(node.lastSeen) {
		node.lastSeen = ts
	}
	if ts.Before(node.firstSeen) {
		node.firstSeen = ts
	}

	g.entities[entityID] = struct{}{}
	g.edges[fingerprint] = append(g.edges[fingerprint], observationEdge{
		entityID:  entityID,
		timestamp: ts,
		severity:  severity,
	})
	g.totalObservations++
}

// RecentObservations returns all observations of fingerprint newer than
// now − window, sorted by timestamp ascending. Empty if the pattern is
// absent.
func (g *Graph) RecentObservations(fingerprint string, window time.Duration, now time.Time) []models.Observation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.recentObservationsLocked(fingerprint, window, now)
}

func (g *Graph) recentObservationsLocked(fingerprint string, window time.Duration, now time.Time) []models.Observation {
	cutoff := now.Add(-window)
	var out []models.Observation
	for _, e := range g.edges[fingerprint] {
		if e.timestamp.After(cutoff) {
			out = append(out, models.Observation{
				EntityID:  e.entityID,
				Timestamp: e.timestamp,
				Severity:  e.severity,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// UniqueEntities counts distinct entities that observed fingerprint within
// the window.
func (g *Graph) UniqueEntities(fingerprint string, window time.Duration, now time.Time) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cutoff := now.Add(-window)
	seen := make(map[string]struct{})
	for _, e := range g.edges[fingerprint] {
		if e.timestamp.After(cutoff) {
			seen[e.entityID] = struct{}{}
		}
	}
	return len(seen)
}

// Prune removes every edge older than the retention horizon, then drops
// pattern nodes left with zero degree. Entity nodes are never pruned.
// Returns the number of removed edges.
func (g *Graph) Prune(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-g.maxAge)
	removed := 0
	orphaned := 0

	for fp, edges := range g.edges {
		kept := edges[:0]
		for _, e := range edges {
			if e.timestamp.Before(cutoff) {
				removed++
			} else {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(g.edges, fp)
			delete(g.patterns, fp)
			orphaned++
		} else {
			g.edges[fp] = kept
		}
	}

	if removed > 0 {
		log.Printf("[BRG] Pruned %d expired edges, %d orphaned patterns", removed, orphaned)
	}
	return removed
}

// RefreshDecay recomputes every pattern's decay fields through the supplied
// evaluator and stores them back, returning the lifecycle census. The hub
// passes the decay engine here; the graph itself knows nothing about decay
// tables.
func (g *Graph) RefreshDecay(eval func(base float64, lastSeen time.Time) models.DecayState) (active, cooling, dormant int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, node := range g.patterns {
		node.decay = eval(node.decay.BaseConfidence, node.lastSeen)
		switch node.decay.Status {
		case models.StatusActive:
			active++
		case models.StatusCooling:
			cooling++
		default:
			dormant++
		}
	}
	return active, cooling, dormant
}

// ActiveEntities lists entities with at least one observation within the
// window. O(#edges); intended for cadence-driven introspection, not the
// ingest path.
func (g *Graph) ActiveEntities(window time.Duration, now time.Time) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cutoff := now.Add(-window)
	seen := make(map[string]struct{})
	for _, edges := range g.edges {
		for _, e := range edges {
			if !e.timestamp.Before(cutoff) {
				seen[e.entityID] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EntityObservation pairs a fingerprint with one of its observations, for
// per-entity activity introspection.
type EntityObservation struct {
	Fingerprint string          `json:"fingerprint"`
	Timestamp   time.Time       `json:"timestamp"`
	Severity    models.Severity `json:"severity"`
}

// EntityActivity returns all observations a given entity contributed within
// the window, oldest first.
func (g *Graph) EntityActivity(entityID string, window time.Duration, now time.Time) []EntityObservation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cutoff := now.Add(-window)
	var out []EntityObservation
	for fp, edges := range g.edges {
		for _, e := range edges {
			if e.entityID == entityID && !e.timestamp.Before(cutoff) {
				out = append(out, EntityObservation{Fingerprint: fp, Timestamp: e.timestamp, Severity: e.severity})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Stats computes the aggregate graph view. Read-only.
func (g *Graph) Stats(now time.Time) models.GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var oldest, newest time.Time
	edgeCount := int64(0)
	for _, edges := range g.edges {
		for _, e := range edges {
			edgeCount++
			if oldest.IsZero() || e.timestamp.Before(oldest) {
				oldest = e.timestamp
			}
			if e.timestamp.After(newest) {
				newest = e.timestamp
			}
		}
	}

	coverage := int64(0)
	if !oldest.IsZero() {
		coverage = int64(newest.Sub(oldest).Seconds())
	}

	active := 0
	cutoff := now.Add(-time.Hour)
	activeSet := make(map[string]struct{})
	for _, edges := range g.edges {
		for _, e := range edges {
			if !e.timestamp.Before(cutoff) {
				activeSet[e.entityID] = struct{}{}
			}
		}
	}
	active = len(activeSet)

	return models.GraphStats{
		UniquePatterns:          len(g.patterns),
		UniqueEntities:          len(g.entities),
		TotalObservations:       g.totalObservations,
		ActiveEntities:          active,
		MemorySizeBytes:         int64(len(g.patterns))*patternFootprintBytes + int64(len(g.entities))*entityFootprintBytes + edgeCount*edgeFootprintBytes,
		TemporalCoverageSeconds: coverage,
	}
}

// PatternDetails returns the introspection view for one pattern, including
// its observations within the window. ok is false when the pattern is not
// in the graph.
func (g *Graph) PatternDetails(fingerprint string, window time.Duration, now time.Time) (models.PatternDetails, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.patterns[fingerprint]
	if !ok {
		return models.PatternDetails{}, false
	}

	obs := g.recentObservationsLocked(fingerprint, window, now)
	entities := make(map[string]struct{})
	for _, o := range obs {
		entities[o.EntityID] = struct{}{}
	}

	return models.PatternDetails{
		Fingerprint:      node.fingerprint,
		FirstSeen:        node.firstSeen,
		LastSeen:         node.lastSeen,
		ObservationCount: node.observationCount,
		EntityCount:      len(entities),
		DecayState:       node.decay,
		Observations:     obs,
	}, true
}

// NodeDump is one pattern row for the admin graph dump.
type NodeDump struct {
	Fingerprint      string            `json:"fingerprint"`
	FirstSeen        time.Time         `json:"first_seen"`
	LastSeen         time.Time         `json:"last_seen"`
	ObservationCount int               `json:"observation_count"`
	Decay            models.DecayState `json:"decay_state"`
}

// EdgeDump is one observation row for the admin graph dump.
type EdgeDump struct {
	Source    string          `json:"source"`
	Target    string          `json:"target"`
	Timestamp time.Time       `json:"timestamp"`
	Severity  models.Severity `json:"severity"`
}

// DumpNodes returns all pattern nodes, ordered by fingerprint.
func (g *Graph) DumpNodes() []NodeDump {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]NodeDump, 0, len(g.patterns))
	for _, n := range g.patterns {
		out = append(out, NodeDump{
			Fingerprint:      n.fingerprint,
			FirstSeen:        n.firstSeen,
			LastSeen:         n.lastSeen,
			ObservationCount: n.observationCount,
			Decay:            n.decay,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

// DumpEdges returns all observation edges, ordered by timestamp.
func (g *Graph) DumpEdges() []EdgeDump {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []EdgeDump
	for fp, edges := range g.edges {
		for _, e := range edges {
			out = append(out, EdgeDump{Source: e.entityID, Target: fp, Timestamp: e.timestamp, Severity: e.severity})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// MaxAge exposes the retention horizon.
func (g *Graph) MaxAge() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.maxAge
}

// SetMaxAge updates the retention horizon at runtime. The next prune pass
// applies the new horizon.
func (g *Graph) SetMaxAge(maxAge time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maxAge = maxAge
}
