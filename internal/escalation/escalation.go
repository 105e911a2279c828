package escalation

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/synapse-fi/bridge-hub/internal/decay"
	"github.com/synapse-fi/bridge-hub/pkg/models"
)

// Escalation Engine
//
// Not every correlation is fraud. Threshold gating keeps the false-positive
// rate down; the fraud score folds the decayed confidence into a single
// 0-100 number entities can rank by. The engine never errors: below the
// gate it simply returns nothing.

// Recommendation strings by severity tier.
const (
	RecommendImmediateEscalation = "IMMEDIATE_ESCALATION"
	RecommendUrgentReview        = "URGENT_REVIEW"
	RecommendPriorityReview      = "PRIORITY_REVIEW"
)

// Span past which the fraud score takes a slow-spread penalty.
const slowSpreadSeconds = 600

// Engine gates correlations into alerts by distinct-entity count.
type Engine struct {
	mediumThreshold   int
	highThreshold     int
	criticalThreshold int
	decay             *decay.Engine
}

// New builds an escalation engine. Thresholds must be non-decreasing
// (validated by the config layer).
func New(mediumThreshold, highThreshold, criticalThreshold int, decayEngine *decay.Engine) *Engine {
	return &Engine{
		mediumThreshold:   mediumThreshold,
		highThreshold:     highThreshold,
		criticalThreshold: criticalThreshold,
		decay:             decayEngine,
	}
}

// Evaluate turns a correlation into an alert when the entity count clears a
// severity gate. Returns (nil, false) below the MEDIUM gate.
func (e *Engine) Evaluate(corr *models.Correlation, now time.Time) (*models.Alert, bool) {
	severity, ok := e.severityFor(corr.EntityCount)
	if !ok {
		return nil, false
	}

	score := FraudScore(corr.EntityCount, corr.EffectiveConfidence, corr.TimeSpanSeconds)
	age := now.Sub(corr.LastSeenTimestamp).Seconds()

	alert := &models.Alert{
		AlertID:         alertID(corr.Fingerprint, now),
		IntentType:      "COORDINATED_FRAUD",
		Fingerprint:     corr.Fingerprint,
		Severity:        severity,
		Confidence:      corr.Confidence,
		EntityCount:     corr.EntityCount,
		TimeSpanSeconds: corr.TimeSpanSeconds,
		Description:     description(corr, severity),
		Rationale:       rationale(corr, severity, score),
		Recommendation:  recommendation(severity),
		FraudScore:      score,
		Timestamp:       now,

		BaseConfidence:           corr.BaseConfidence,
		DecayScore:               corr.DecayScore,
		EffectiveConfidence:      corr.EffectiveConfidence,
		LastSeenTimestamp:        corr.LastSeenTimestamp,
		PatternStatus:            corr.PatternStatus,
		TimeSinceLastSeenSeconds: age,
		DecayExplanation: e.decay.Explain(decay.Result{
			PatternID:                corr.Fingerprint,
			BaseConfidence:           corr.BaseConfidence,
			DecayScore:               corr.DecayScore,
			EffectiveConfidence:      corr.EffectiveConfidence,
			Status:                   corr.PatternStatus,
			LastSeenTimestamp:        corr.LastSeenTimestamp,
			TimeSinceLastSeenSeconds: age,
		}),
	}

	log.Printf("[Escalation] FRAUD INTENT ESCALATED: %s %s (score=%d, entities=%d)",
		severity, shortFP(corr.Fingerprint), score, corr.EntityCount)

	return alert, true
}

// severityFor maps the distinct-entity count to an alert severity.
func (e *Engine) severityFor(entityCount int) (models.Severity, bool) {
	switch {
	case entityCount >= e.criticalThreshold:
		return models.SeverityCritical, true
	case entityCount >= e.highThreshold:
		return models.SeverityHigh, true
	case entityCount >= e.mediumThreshold:
		return models.SeverityMedium, true
	default:
		return "", false
	}
}

// FraudScore computes the 0-100 decay-aware risk number:
// an entity-count component capped at 60, plus up to 30 points of decayed
// confidence, minus a 10-point penalty for slow spreads.
func FraudScore(entityCount int, effectiveConfidence, timeSpanSeconds float64) int {
	score := entityCount * 20
	if score > 60 {
		score = 60
	}
	score += int(math.RoundToEven(effectiveConfidence * 30))
	if timeSpanSeconds > slowSpreadSeconds {
		score -= 10
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func alertID(fingerprint string, now time.Time) string {
	return fmt.Sprintf("ALT-%s-%s", now.UTC().Format("20060102150405"), head(fingerprint, 8))
}

func description(corr *models.Correlation, severity models.Severity) string {
	return fmt.Sprintf(
		"%s fraud intent detected: Pattern %s observed across %d entities within %.0fs. "+
			"Confidence: %s. Recommend immediate investigation and potential coordinated response.",
		severity, shortFP(corr.Fingerprint), corr.EntityCount, corr.TimeSpanSeconds, corr.Confidence)
}

func rationale(corr *models.Correlation, severity models.Severity, score int) string {
	return fmt.Sprintf(
		"Pattern %s observed across %d entities within %.0fs. Fraud score: %d/100. "+
			"Severity: %s. Confidence: %s. Effective confidence after decay: %.4f.",
		shortFP(corr.Fingerprint), corr.EntityCount, corr.TimeSpanSeconds, score, severity, corr.Confidence, corr.EffectiveConfidence)
}

func recommendation(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return RecommendImmediateEscalation
	case models.SeverityHigh:
		return RecommendUrgentReview
	default:
		return RecommendPriorityReview
	}
}

func head(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12] + "..."
	}
	return fp
}
