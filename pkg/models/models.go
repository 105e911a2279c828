package models

import (
	"fmt"
	"time"
)

// Shared wire and domain types for the BRIDGE hub.
//
// PRIVACY CONTRACT: nothing in this package may carry customer data.
// The only identifying material on the wire is an opaque entity ID and a
// one-way behavioral fingerprint. A structural test enforces this.

// Severity is the ordered risk severity tag reported by entities.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities for filtering and comparison.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// ParseSeverity validates a severity string from the wire.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if _, ok := severityRank[sev]; !ok {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// Rank returns the ordering index of a severity (LOW=0 … CRITICAL=3).
// Unknown severities rank below LOW.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// PatternStatus is the lifecycle tag of a pattern under decay.
type PatternStatus string

const (
	StatusActive  PatternStatus = "ACTIVE"
	StatusCooling PatternStatus = "COOLING"
	StatusDormant PatternStatus = "DORMANT"
)

// ConfidenceLabel is the textual correlation confidence tier.
type ConfidenceLabel string

const (
	ConfidenceLow    ConfidenceLabel = "LOW"
	ConfidenceMedium ConfidenceLabel = "MEDIUM"
	ConfidenceHigh   ConfidenceLabel = "HIGH"
)

// RiskFingerprint is the ingress message an entity submits to the hub.
// It carries no PII by construction: the fingerprint is a one-way hash
// computed entity-side.
type RiskFingerprint struct {
	EntityID    string    `json:"entity_id"`
	Fingerprint string    `json:"fingerprint"`
	Severity    Severity  `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
}

// Observation is one entity reporting one fingerprint at one instant.
type Observation struct {
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
}

// DecayState is the decay triple attached to a pattern row in the graph.
type DecayState struct {
	BaseConfidence      float64       `json:"base_confidence"`
	DecayScore          float64       `json:"decay_score"`
	EffectiveConfidence float64       `json:"effective_confidence"`
	Status              PatternStatus `json:"pattern_status"`
}

// Correlation is the correlator's finding that a fingerprint surfaced at
// enough distinct entities within the correlation window.
type Correlation struct {
	Fingerprint     string          `json:"fingerprint"`
	EntityCount     int             `json:"entity_count"`
	TimeSpanSeconds float64         `json:"time_span_seconds"`
	Confidence      ConfidenceLabel `json:"confidence"`
	Observations    []Observation   `json:"observations"`

	BaseConfidence      float64       `json:"base_confidence"`
	DecayScore          float64       `json:"decay_score"`
	EffectiveConfidence float64       `json:"effective_confidence"`
	PatternStatus       PatternStatus `json:"pattern_status"`
	LastSeenTimestamp   time.Time     `json:"last_seen_timestamp"`
}

// Alert is the internal escalation of a correlation past a severity
// threshold. Alerts never leave the hub; advisories do.
type Alert struct {
	AlertID         string          `json:"alert_id"`
	IntentType      string          `json:"intent_type"`
	Fingerprint     string          `json:"fingerprint"`
	Severity        Severity        `json:"severity"`
	Confidence      ConfidenceLabel `json:"confidence"`
	EntityCount     int             `json:"entity_count"`
	TimeSpanSeconds float64         `json:"time_span_seconds"`
	Description     string          `json:"description"`
	Rationale       string          `json:"rationale"`
	Recommendation  string          `json:"recommendation"`
	FraudScore      int             `json:"fraud_score"`
	Timestamp       time.Time       `json:"timestamp"`

	BaseConfidence           float64       `json:"base_confidence"`
	DecayScore               float64       `json:"decay_score"`
	EffectiveConfidence      float64       `json:"effective_confidence"`
	LastSeenTimestamp        time.Time     `json:"last_seen_timestamp"`
	PatternStatus            PatternStatus `json:"pattern_status"`
	TimeSinceLastSeenSeconds float64       `json:"time_since_last_seen_seconds"`
	DecayExplanation         string        `json:"decay_explanation"`
}

// Advisory is the outward-facing recommendation entities poll for.
// It is a recommendation, not a command; entities keep decision sovereignty.
type Advisory struct {
	AdvisoryID         string    `json:"advisory_id"`
	Fingerprint        string    `json:"fingerprint"`
	Severity           string    `json:"severity"`
	Message            string    `json:"message"`
	RecommendedActions []string  `json:"recommended_actions"`
	EntityCount        int       `json:"entity_count"`
	Confidence         string    `json:"confidence"`
	FraudScore         int       `json:"fraud_score"`
	Timestamp          time.Time `json:"timestamp"`

	BaseConfidence           float64       `json:"base_confidence"`
	DecayScore               float64       `json:"decay_score"`
	EffectiveConfidence      float64       `json:"effective_confidence"`
	LastSeenTimestamp        time.Time     `json:"last_seen_timestamp"`
	PatternStatus            PatternStatus `json:"pattern_status"`
	TimeSinceLastSeenSeconds float64       `json:"time_since_last_seen_seconds"`
	DecayExplanation         string        `json:"decay_explanation"`
}

// GraphStats is the aggregate view of the Behavioral Risk Graph.
type GraphStats struct {
	UniquePatterns          int   `json:"unique_patterns"`
	UniqueEntities          int   `json:"unique_entities"`
	TotalObservations       int64 `json:"total_observations"`
	ActiveEntities          int   `json:"active_entities"`
	MemorySizeBytes         int64 `json:"memory_size_bytes"`
	TemporalCoverageSeconds int64 `json:"temporal_coverage_seconds"`
}

// PatternDetails is the per-pattern introspection view.
type PatternDetails struct {
	Fingerprint      string        `json:"fingerprint"`
	FirstSeen        time.Time     `json:"first_seen"`
	LastSeen         time.Time     `json:"last_seen"`
	ObservationCount int           `json:"observation_count"`
	EntityCount      int           `json:"entity_count"`
	DecayState       DecayState    `json:"decay_state"`
	Observations     []Observation `json:"observations,omitempty"`
}

// HealthStatus reports hub liveness and capacity headroom.
type HealthStatus struct {
	Status        string     `json:"status"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	Message       string     `json:"message"`
	Timestamp     time.Time  `json:"timestamp"`
	GraphStats    GraphStats `json:"graph_stats"`
}
