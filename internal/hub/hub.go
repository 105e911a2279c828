package hub

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/synapse-fi/bridge-hub/internal/advisory"
	"github.com/synapse-fi/bridge-hub/internal/brg"
	"github.com/synapse-fi/bridge-hub/internal/config"
	"github.com/synapse-fi/bridge-hub/internal/correlation"
	"github.com/synapse-fi/bridge-hub/internal/decay"
	"github.com/synapse-fi/bridge-hub/internal/escalation"
	"github.com/synapse-fi/bridge-hub/internal/metrics"
	"github.com/synapse-fi/bridge-hub/pkg/models"
)

// Hub Orchestrator
//
// Runs the ingest pipeline end to end: validate, correlate against the
// graph plus the arriving observation, write the observation, escalate,
// build the advisory, record metrics. The whole pipeline executes inside
// one admission slot so the correlate-then-write sequence is atomic with
// respect to concurrent ingests.

// How long an ingest may wait for the pipeline slot before the hub sheds it.
const admissionBudget = time.Second

// How long after a shed ingest the hub reports itself DEGRADED.
const degradedWindow = 30 * time.Second

// IngestResult is the synchronous response to one accepted fingerprint.
type IngestResult struct {
	Status              string           `json:"status"`
	Fingerprint         string           `json:"fingerprint"`
	EntityID            string           `json:"entity_id"`
	CorrelationDetected bool             `json:"correlation_detected"`
	AlertGenerated      bool             `json:"alert_generated"`
	Advisory            *models.Advisory `json:"advisory,omitempty"`
}

// Hub wires the pipeline components together and owns the advisory ring.
type Hub struct {
	graph   *brg.Graph
	decay   *decay.Engine
	builder *advisory.Builder
	tracker *metrics.Tracker

	cfg atomic.Pointer[config.Config]

	// Pipeline admission slot. Correlator and escalator are rebuilt on
	// config updates and only touched while the slot is held.
	sem        chan struct{}
	correlator *correlation.Correlator
	escalator  *escalation.Engine

	advMu      sync.Mutex
	advisories []models.Advisory

	// onAdvisory, when set, receives every built advisory (websocket fanout).
	onAdvisory func(models.Advisory)

	lastShedNanos atomic.Int64
	startedAt     time.Time
	clock         func() time.Time
}

// New builds a hub from validated config. clock may be nil in production;
// tests inject a fake.
func New(cfg config.Config, clock func() time.Time) *Hub {
	if clock == nil {
		clock = time.Now
	}

	eng := decayEngineFor(cfg)
	h := &Hub{
		graph:      brg.New(time.Duration(cfg.MaxGraphAgeSeconds) * time.Second),
		decay:      eng,
		builder:    advisory.NewBuilder(),
		tracker:    metrics.NewTracker(time.Hour),
		sem:        make(chan struct{}, 1),
		correlator: correlation.New(cfg.EntityThreshold, time.Duration(cfg.TimeWindowSeconds)*time.Second, eng),
		escalator:  escalation.New(cfg.MediumThreshold, cfg.HighThreshold, cfg.CriticalThreshold, eng),
		startedAt:  clock(),
		clock:      clock,
	}
	h.cfg.Store(&cfg)

	log.Printf("[Hub] Initialized: entity_threshold=%d, time_window=%ds, gates=%d/%d/%d",
		cfg.EntityThreshold, cfg.TimeWindowSeconds,
		cfg.MediumThreshold, cfg.HighThreshold, cfg.CriticalThreshold)
	return h
}

// decayEngineFor builds a decay engine from the config's window table and
// lifecycle thresholds.
func decayEngineFor(cfg config.Config) *decay.Engine {
	windows := make([]decay.Window, len(cfg.DecayWindows))
	for i, w := range cfg.DecayWindows {
		windows[i] = decay.Window{
			Name:      w.Name,
			MaxAge:    time.Duration(w.MaxAgeSeconds) * time.Second,
			Score:     w.Score,
			Unbounded: w.Unbounded,
		}
	}
	return decay.NewEngine(windows, decay.Thresholds{
		ActiveMin:  cfg.StatusThresholds.ActiveMin,
		CoolingMin: cfg.StatusThresholds.CoolingMin,
	})
}

// SetAdvisoryHook registers a callback invoked for every built advisory.
// Must be set before the hub starts serving.
func (h *Hub) SetAdvisoryHook(fn func(models.Advisory)) {
	h.onAdvisory = fn
}

// Config returns the current tuning snapshot.
func (h *Hub) Config() config.Config {
	return *h.cfg.Load()
}

// Tracker exposes the metrics tracker for the API layer.
func (h *Hub) Tracker() *metrics.Tracker {
	return h.tracker
}

// Ingest runs one fingerprint through the full pipeline. Returns
// ErrValidation for malformed input and ErrCapacity when the admission
// budget expires.
func (h *Hub) Ingest(ctx context.Context, fp models.RiskFingerprint) (*IngestResult, error) {
	if err := validate(fp); err != nil {
		return nil, err
	}

	select {
	case h.sem <- struct{}{}:
	case <-time.After(admissionBudget):
		h.lastShedNanos.Store(h.clock().UnixNano())
		log.Printf("[Hub] Ingest shed for %s: pipeline busy past admission budget", fp.EntityID)
		return nil, ErrCapacity
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-h.sem }()

	now := h.clock()
	wallStart := time.Now()

	// Correlation sees the graph state plus the arriving observation; the
	// write below lands under the same admission slot.
	incoming := models.Observation{EntityID: fp.EntityID, Timestamp: fp.Timestamp, Severity: fp.Severity}

	corrStart := time.Now()
	corr, detected := h.correlator.Detect(fp.Fingerprint, incoming, h.graph, now)
	h.tracker.RecordCorrelation(float64(time.Since(corrStart).Microseconds())/1000, detected, now)

	state := models.DecayState{
		BaseConfidence:      0.5,
		DecayScore:          1.0,
		EffectiveConfidence: 0.5,
		Status:              models.StatusActive,
	}
	if detected {
		state = models.DecayState{
			BaseConfidence:      corr.BaseConfidence,
			DecayScore:          corr.DecayScore,
			EffectiveConfidence: corr.EffectiveConfidence,
			Status:              corr.PatternStatus,
		}
	}
	h.graph.AddObservation(fp.Fingerprint, fp.EntityID, fp.Severity, fp.Timestamp, state)

	result := &IngestResult{
		Status:              "accepted",
		Fingerprint:         echoFP(fp.Fingerprint),
		EntityID:            fp.EntityID,
		CorrelationDetected: detected,
	}

	if detected {
		if alert, ok := h.escalator.Evaluate(corr, now); ok {
			h.tracker.RecordEscalation(now)
			adv := h.builder.Build(alert)
			h.appendAdvisory(adv)
			h.tracker.RecordAdvisory(adv.Severity, float64(adv.FraudScore), now)
			if h.onAdvisory != nil {
				h.onAdvisory(adv)
			}
			result.AlertGenerated = true
			result.Advisory = &adv
		}
	}

	h.tracker.RecordIngestion(fp.EntityID, float64(time.Since(wallStart).Microseconds())/1000, now)
	return result, nil
}

// validate enforces the ingress contract: entity, fingerprint, a known
// severity and a timestamp.
func validate(fp models.RiskFingerprint) error {
	if fp.EntityID == "" {
		return fmt.Errorf("%w: entity_id is required", ErrValidation)
	}
	if len(fp.Fingerprint) < 8 {
		return fmt.Errorf("%w: fingerprint must be at least 8 characters", ErrValidation)
	}
	if _, err := models.ParseSeverity(string(fp.Severity)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if fp.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	return nil
}

// appendAdvisory pushes onto the bounded ring, dropping oldest first.
func (h *Hub) appendAdvisory(adv models.Advisory) {
	maxAdv := h.cfg.Load().MaxAdvisories

	h.advMu.Lock()
	defer h.advMu.Unlock()

	h.advisories = append(h.advisories, adv)
	if len(h.advisories) > maxAdv {
		h.advisories = h.advisories[len(h.advisories)-maxAdv:]
	}
}

// Advisories returns up to limit advisories, newest first, optionally
// filtered by severity. limit <= 0 means the default of 10.
func (h *Hub) Advisories(limit int, severity string) []models.Advisory {
	if limit <= 0 {
		limit = 10
	}

	h.advMu.Lock()
	defer h.advMu.Unlock()

	out := make([]models.Advisory, 0, limit)
	for i := len(h.advisories) - 1; i >= 0 && len(out) < limit; i-- {
		if severity != "" && h.advisories[i].Severity != severity {
			continue
		}
		out = append(out, h.advisories[i])
	}
	return out
}

// AdvisoryByID looks up one advisory in the ring.
func (h *Hub) AdvisoryByID(id string) (models.Advisory, error) {
	h.advMu.Lock()
	defer h.advMu.Unlock()

	for i := len(h.advisories) - 1; i >= 0; i-- {
		if h.advisories[i].AdvisoryID == id {
			return h.advisories[i], nil
		}
	}
	return models.Advisory{}, fmt.Errorf("%w: advisory %s", ErrNotFound, id)
}

// AdvisoryCount reports the current ring occupancy.
func (h *Hub) AdvisoryCount() int {
	h.advMu.Lock()
	defer h.advMu.Unlock()
	return len(h.advisories)
}

// PatternHistory returns the introspection view for one fingerprint over
// the last hours of observations.
func (h *Hub) PatternHistory(fingerprint string, hours int) (models.PatternDetails, error) {
	if hours <= 0 {
		hours = 1
	}
	details, ok := h.graph.PatternDetails(fingerprint, time.Duration(hours)*time.Hour, h.clock())
	if !ok {
		return models.PatternDetails{}, fmt.Errorf("%w: pattern %s", ErrNotFound, shortFP(fingerprint))
	}
	return details, nil
}

// EntityActivity returns observations an entity contributed over the last
// hours.
func (h *Hub) EntityActivity(entityID string, hours int) []brg.EntityObservation {
	if hours <= 0 {
		hours = 1
	}
	return h.graph.EntityActivity(entityID, time.Duration(hours)*time.Hour, h.clock())
}

// Stats returns the aggregate graph view.
func (h *Hub) Stats() models.GraphStats {
	return h.graph.Stats(h.clock())
}

// Graph exposes the risk graph for admin dumps.
func (h *Hub) Graph() *brg.Graph {
	return h.graph
}

// MetricsSummary snapshots the rolling operational metrics.
func (h *Hub) MetricsSummary() metrics.Summary {
	stats := h.graph.Stats(h.clock())
	return h.tracker.Snapshot(h.clock(), int64(stats.UniquePatterns), stats.TotalObservations)
}

// Health reports liveness. The hub degrades itself for a short window after
// shedding an ingest so load balancers can back off.
func (h *Hub) Health() models.HealthStatus {
	now := h.clock()
	status, msg := "HEALTHY", "All systems operational"

	if shed := h.lastShedNanos.Load(); shed > 0 && now.Sub(time.Unix(0, shed)) < degradedWindow {
		status, msg = "DEGRADED", "Recently shed ingest traffic; pipeline under pressure"
	}

	return models.HealthStatus{
		Status:        status,
		UptimeSeconds: now.Sub(h.startedAt).Seconds(),
		Message:       msg,
		Timestamp:     now,
		GraphStats:    h.graph.Stats(now),
	}
}

// UpdateConfig applies a runtime tuning patch. Components that bake config
// in are rebuilt while the pipeline slot is held, so no ingest observes a
// half-applied update.
func (h *Hub) UpdateConfig(patch map[string]any) (config.Config, error) {
	next, err := h.cfg.Load().Update(patch)
	if err != nil {
		return config.Config{}, err
	}

	h.sem <- struct{}{}
	defer func() { <-h.sem }()

	h.decay = decayEngineFor(next)
	h.correlator = correlation.New(next.EntityThreshold, time.Duration(next.TimeWindowSeconds)*time.Second, h.decay)
	h.escalator = escalation.New(next.MediumThreshold, next.HighThreshold, next.CriticalThreshold, h.decay)
	h.graph.SetMaxAge(time.Duration(next.MaxGraphAgeSeconds) * time.Second)
	h.cfg.Store(&next)

	log.Printf("[Hub] Config updated: entity_threshold=%d, time_window=%ds, gates=%d/%d/%d",
		next.EntityThreshold, next.TimeWindowSeconds,
		next.MediumThreshold, next.HighThreshold, next.CriticalThreshold)
	return next, nil
}

// RunPruner drives graph maintenance on the configured cadence: expired
// edges are removed, every surviving pattern's decay is recomputed, and the
// lifecycle census is pushed into the tracker. Blocks until ctx cancels.
func (h *Hub) RunPruner(ctx context.Context) {
	interval := time.Duration(h.cfg.Load().PruneIntervalSeconds) * time.Second
	log.Printf("[Hub] Pruner running every %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Hub] Pruner stopped")
			return
		case <-ticker.C:
			h.MaintainGraph()
		}
	}
}

// MaintainGraph runs one prune-and-refresh pass. Exposed separately so
// tests and admin tooling can trigger maintenance without the ticker.
// Maintenance takes the pipeline slot: a prune interleaved between an
// ingest's correlation read and its graph write could delete the edges the
// decay fields were just computed from.
func (h *Hub) MaintainGraph() {
	h.sem <- struct{}{}
	defer func() { <-h.sem }()

	now := h.clock()
	h.graph.Prune(now)

	active, cooling, dormant := h.graph.RefreshDecay(func(base float64, lastSeen time.Time) models.DecayState {
		r := h.decay.Apply("", base, lastSeen, now)
		return models.DecayState{
			BaseConfidence:      r.BaseConfidence,
			DecayScore:          r.DecayScore,
			EffectiveConfidence: r.EffectiveConfidence,
			Status:              r.Status,
		}
	})
	h.tracker.SetPatternStatusCounts(active, cooling, dormant)
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12] + "..."
	}
	return fp
}

// echoFP is the truncated form the ingest response echoes back: never the
// full fingerprint, only enough prefix for the submitter to match it.
func echoFP(fp string) string {
	if len(fp) > 16 {
		fp = fp[:16]
	}
	return fp + "..."
}
