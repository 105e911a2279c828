package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/synapse-fi/bridge-hub/pkg/models"
)

// Hub Metrics Tracker
//
// Rolling-window event recorder for the ingest pipeline: per event kind it
// keeps timestamps (pruned past the window) and, for ingestion and
// correlation, bounded latency sample deques for percentile computation.
// Per-entity ingest counts are monotone over the process lifetime, not
// windowed, so participation skew stays visible.
//
// Every counter is mirrored into a Prometheus registry so the same numbers
// scrape cleanly; the JSON summary remains the canonical introspection
// view.

const (
	maxLatencySamples = 10000
	maxFraudScores    = 1000
)

// Summary is the JSON snapshot of hub operational metrics.
type Summary struct {
	FingerprintsIngested int `json:"fingerprints_ingested"`
	CorrelationsDetected int `json:"correlations_detected"`
	AlertsEscalated      int `json:"alerts_escalated"`
	AdvisoriesGenerated  int `json:"advisories_generated"`

	AvgIngestionLatencyMs   float64 `json:"avg_ingestion_latency_ms"`
	AvgCorrelationLatencyMs float64 `json:"avg_correlation_latency_ms"`
	P95IngestionLatencyMs   float64 `json:"p95_ingestion_latency_ms"`
	P95CorrelationLatencyMs float64 `json:"p95_correlation_latency_ms"`

	ActiveEntities         int            `json:"active_entities"`
	EntitiesByFingerprints map[string]int `json:"entities_by_fingerprints"`

	AdvisoriesBySeverity map[string]int `json:"advisories_by_severity"`
	AvgFraudScore        float64        `json:"avg_fraud_score"`

	ActivePatterns  int `json:"active_patterns"`
	CoolingPatterns int `json:"cooling_patterns"`
	DormantPatterns int `json:"dormant_patterns"`

	GraphSizeNodes int64 `json:"graph_size_nodes"`
	GraphSizeEdges int64 `json:"graph_size_edges"`

	MeasurementWindowSeconds int       `json:"measurement_window_seconds"`
	Timestamp                time.Time `json:"timestamp"`
}

// Tracker records hub pipeline events. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration

	ingestionLatencies   []float64
	correlationLatencies []float64

	ingested    []time.Time
	correlated  []time.Time
	escalated   []time.Time
	advisoryTS  []time.Time
	fraudScores []float64

	entityCounts   map[string]int
	severityCounts map[string]int

	statusActive, statusCooling, statusDormant int

	registry *prometheus.Registry

	promIngested   *prometheus.CounterVec
	promCorrelated prometheus.Counter
	promEscalated  prometheus.Counter
	promAdvisories *prometheus.CounterVec
	promPatterns   *prometheus.GaugeVec
	promLatency    *prometheus.HistogramVec
}

// NewTracker creates a tracker with the given rolling window (1h default
// upstream).
func NewTracker(window time.Duration) *Tracker {
	t := &Tracker{
		window:         window,
		entityCounts:   make(map[string]int),
		severityCounts: make(map[string]int),
		registry:       prometheus.NewRegistry(),
	}

	t.promIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_fingerprints_ingested_total",
		Help: "Fingerprints accepted by the hub, by entity.",
	}, []string{"entity_id"})
	t.promCorrelated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_correlations_detected_total",
		Help: "Cross-entity correlations detected.",
	})
	t.promEscalated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_alerts_escalated_total",
		Help: "Correlations escalated to fraud intent alerts.",
	})
	t.promAdvisories = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_advisories_generated_total",
		Help: "Advisories generated, by severity.",
	}, []string{"severity"})
	t.promPatterns = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hub_patterns",
		Help: "Patterns in the risk graph, by lifecycle status.",
	}, []string{"status"})
	t.promLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hub_stage_latency_ms",
		Help:    "Pipeline stage latency in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
	}, []string{"stage"})

	t.registry.MustRegister(t.promIngested, t.promCorrelated, t.promEscalated,
		t.promAdvisories, t.promPatterns, t.promLatency)

	return t
}

// Registry exposes the Prometheus registry for the scrape endpoint.
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// RecordIngestion notes one accepted fingerprint and its total latency.
func (t *Tracker) RecordIngestion(entityID string, latencyMs float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ingested = append(t.ingested, now)
	t.ingestionLatencies = appendBounded(t.ingestionLatencies, latencyMs, maxLatencySamples)
	t.entityCounts[entityID]++
	t.pruneLocked(now)

	t.promIngested.WithLabelValues(entityID).Inc()
	t.promLatency.WithLabelValues("ingest").Observe(latencyMs)
}

// RecordCorrelation notes a correlation pass. Only detected correlations
// count toward the rolling total; the latency sample is kept either way.
func (t *Tracker) RecordCorrelation(latencyMs float64, detected bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.correlationLatencies = appendBounded(t.correlationLatencies, latencyMs, maxLatencySamples)
	if detected {
		t.correlated = append(t.correlated, now)
		t.promCorrelated.Inc()
	}
	t.pruneLocked(now)

	t.promLatency.WithLabelValues("correlate").Observe(latencyMs)
}

// RecordEscalation notes one alert escalation.
func (t *Tracker) RecordEscalation(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.escalated = append(t.escalated, now)
	t.pruneLocked(now)
	t.promEscalated.Inc()
}

// RecordAdvisory notes one generated advisory.
func (t *Tracker) RecordAdvisory(severity string, fraudScore float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.advisoryTS = append(t.advisoryTS, now)
	t.severityCounts[severity]++
	t.fraudScores = appendBounded(t.fraudScores, fraudScore, maxFraudScores)
	t.pruneLocked(now)
	t.promAdvisories.WithLabelValues(severity).Inc()
}

// SetPatternStatusCounts stores the lifecycle census supplied by a BRG
// scan; the tracker never reads the graph itself.
func (t *Tracker) SetPatternStatusCounts(active, cooling, dormant int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statusActive, t.statusCooling, t.statusDormant = active, cooling, dormant
	t.promPatterns.WithLabelValues(string(models.StatusActive)).Set(float64(active))
	t.promPatterns.WithLabelValues(string(models.StatusCooling)).Set(float64(cooling))
	t.promPatterns.WithLabelValues(string(models.StatusDormant)).Set(float64(dormant))
}

// Snapshot computes the summary over the rolling window. graphNodes and
// graphEdges come from the caller's BRG stats.
func (t *Tracker) Snapshot(now time.Time, graphNodes, graphEdges int64) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)

	entities := make(map[string]int, len(t.entityCounts))
	for k, v := range t.entityCounts {
		entities[k] = v
	}
	severities := make(map[string]int, len(t.severityCounts))
	for k, v := range t.severityCounts {
		severities[k] = v
	}

	return Summary{
		FingerprintsIngested:     len(t.ingested),
		CorrelationsDetected:     len(t.correlated),
		AlertsEscalated:          len(t.escalated),
		AdvisoriesGenerated:      len(t.advisoryTS),
		AvgIngestionLatencyMs:    round2(mean(t.ingestionLatencies)),
		AvgCorrelationLatencyMs:  round2(mean(t.correlationLatencies)),
		P95IngestionLatencyMs:    round2(Percentile(t.ingestionLatencies, 95)),
		P95CorrelationLatencyMs:  round2(Percentile(t.correlationLatencies, 95)),
		ActiveEntities:           len(entities),
		EntitiesByFingerprints:   entities,
		AdvisoriesBySeverity:     severities,
		AvgFraudScore:            round2(mean(t.fraudScores)),
		ActivePatterns:           t.statusActive,
		CoolingPatterns:          t.statusCooling,
		DormantPatterns:          t.statusDormant,
		GraphSizeNodes:           graphNodes,
		GraphSizeEdges:           graphEdges,
		MeasurementWindowSeconds: int(t.window.Seconds()),
		Timestamp:                now,
	}
}

// pruneLocked drops event timestamps that fell out of the rolling window.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	t.ingested = dropBefore(t.ingested, cutoff)
	t.correlated = dropBefore(t.correlated, cutoff)
	t.escalated = dropBefore(t.escalated, cutoff)
	t.advisoryTS = dropBefore(t.advisoryTS, cutoff)
}

// Percentile returns the element at sorted index min(n-1, floor(p/100 * n)).
func Percentile(values []float64, p int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := len(sorted) * p / 100
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

// appendBounded appends keeping at most max samples, dropping oldest first.
func appendBounded(s []float64, v float64, max int) []float64 {
	s = append(s, v)
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

// dropBefore removes leading timestamps older than cutoff; slices are
// append-only so timestamps are already ordered.
func dropBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
