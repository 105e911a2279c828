package advisory

import (
	"fmt"
	"log"
	"time"

	"github.com/synapse-fi/bridge-hub/pkg/models"
)

// Advisory Builder
//
// Alerts are internal; advisories are what entities actually see. The
// builder renders an alert into a human-readable message, a playbook of
// recommended actions, and a decay-transparency block, and nothing more.
// It has no view of the graph: everything it needs rides on the alert.

// Advisory severities (distinct from ingress severities: advisories can
// also be INFO, for all-clear notices).
const (
	SeverityInfo     = "INFO"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Builder converts alerts into outward-facing advisories.
type Builder struct{}

// NewBuilder returns an advisory builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build renders an alert into an advisory. The advisory severity is mapped
// from the correlation confidence (HIGH→CRITICAL, MEDIUM→HIGH, LOW→MEDIUM):
// what the hub is sure about, entities should treat as urgent.
func (b *Builder) Build(alert *models.Alert) models.Advisory {
	severity := confidenceToSeverity(alert.Confidence)
	actions := playbook(severity, alert.PatternStatus)

	adv := models.Advisory{
		AdvisoryID:         advisoryID(alert.Fingerprint, alert.Timestamp),
		Fingerprint:        alert.Fingerprint,
		Severity:           severity,
		Message:            message(alert, severity),
		RecommendedActions: actions,
		EntityCount:        alert.EntityCount,
		Confidence:         string(alert.Confidence),
		FraudScore:         alert.FraudScore,
		Timestamp:          alert.Timestamp,

		BaseConfidence:           alert.BaseConfidence,
		DecayScore:               alert.DecayScore,
		EffectiveConfidence:      alert.EffectiveConfidence,
		LastSeenTimestamp:        alert.LastSeenTimestamp,
		PatternStatus:            alert.PatternStatus,
		TimeSinceLastSeenSeconds: alert.TimeSinceLastSeenSeconds,
		DecayExplanation:         decayExplanation(alert),
	}

	log.Printf("[Advisory] Built %s: %s severity, %d actions", adv.AdvisoryID, severity, len(actions))
	return adv
}

// BuildAllClear produces a severity-INFO advisory for a pattern that no
// longer correlates. Not wired into the ingest pipeline; callable by
// operators and future resolution logic.
func (b *Builder) BuildAllClear(fingerprint string, now time.Time) models.Advisory {
	adv := models.Advisory{
		AdvisoryID:  fmt.Sprintf("ADV-CLEAR-%s", head(fingerprint, 8)),
		Fingerprint: fingerprint,
		Severity:    SeverityInfo,
		Message: fmt.Sprintf(
			"SYNAPSE-FI Pattern Update\n\n"+
				"The previously flagged pattern (ID: %s) has not shown coordinated activity "+
				"across entities in recent monitoring. Standard fraud detection protocols can resume.\n\n"+
				"This does not indicate the pattern is safe - only that multi-entity coordination "+
				"has ceased. Continue monitoring individual transactions.",
			shortFP(fingerprint)),
		RecommendedActions: []string{
			"INFORMATIONAL: Pattern no longer shows cross-entity correlation",
			"RECOMMENDED: Continue standard fraud monitoring",
			"OPTIONAL: Review outcome of previous advisory actions",
		},
		Confidence:    SeverityInfo,
		Timestamp:     now,
		DecayScore:    1.0,
		PatternStatus: models.StatusActive,
	}

	log.Printf("[Advisory] Built all-clear advisory for %s", shortFP(fingerprint))
	return adv
}

// confidenceToSeverity remaps the correlation confidence tier onto the
// advisory severity scale.
func confidenceToSeverity(confidence models.ConfidenceLabel) string {
	switch confidence {
	case models.ConfidenceHigh:
		return SeverityCritical
	case models.ConfidenceMedium:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// playbook selects the fixed action list for a severity and prefixes each
// action with a lifecycle tag when the pattern is no longer ACTIVE. A
// trailing note is appended for non-ACTIVE patterns so entities understand
// the advisory rests on decayed evidence.
func playbook(severity string, status models.PatternStatus) []string {
	var actions []string

	switch severity {
	case SeverityCritical:
		actions = []string{
			"IMMEDIATE: Flag all matching transactions for manual review",
			"IMMEDIATE: Implement temporary transaction limits on affected accounts",
			"URGENT: Notify fraud investigation team for coordinated response",
			"URGENT: Check for additional correlated patterns in recent history",
			"RECOMMENDED: Share findings with peer institutions via secure channel",
			"RECOMMENDED: Review and update fraud detection rules based on pattern",
		}
	case SeverityHigh:
		actions = []string{
			"URGENT: Flag matching transactions for priority review",
			"URGENT: Monitor affected accounts for additional suspicious activity",
			"RECOMMENDED: Notify fraud team for investigation",
			"RECOMMENDED: Check transaction history for similar patterns",
			"OPTIONAL: Consider enhanced authentication for affected accounts",
		}
	case SeverityMedium:
		actions = []string{
			"RECOMMENDED: Add matching transactions to review queue",
			"RECOMMENDED: Monitor accounts for pattern recurrence",
			"OPTIONAL: Alert fraud analysts for manual inspection",
			"OPTIONAL: Document pattern for future rule refinement",
		}
	default:
		actions = []string{"INFORMATIONAL: Pattern noted, no immediate action required"}
	}

	tag := lifecycleTag(status)
	if tag == "" {
		return actions
	}

	tagged := make([]string, 0, len(actions)+1)
	for _, a := range actions {
		tagged = append(tagged, tag+" "+a)
	}
	switch status {
	case models.StatusCooling:
		tagged = append(tagged, "NOTE: Pattern influence is cooling; weigh actions against reduced effective confidence")
	case models.StatusDormant:
		tagged = append(tagged, "NOTE: Pattern is dormant; actions reflect historical coordination, not live activity")
	}
	return tagged
}

func lifecycleTag(status models.PatternStatus) string {
	switch status {
	case models.StatusCooling:
		return "[COOLING PATTERN]"
	case models.StatusDormant:
		return "[DORMANT PATTERN]"
	default:
		return ""
	}
}

// message renders the human-readable advisory body.
func message(alert *models.Alert, severity string) string {
	return fmt.Sprintf(
		"SYNAPSE-FI Fraud Advisory\n\n"+
			"Severity: %s\n"+
			"Fraud Score: %d/100\n"+
			"Confidence: %s\n"+
			"Pattern Status: %s\n\n"+
			"A coordinated fraud pattern has been detected across %d financial institutions "+
			"within a %.0fs window. This behavioral signature (Pattern ID: %s) suggests an "+
			"organized fraud operation.\n\n"+
			"PATTERN CHARACTERISTICS:\n"+
			"- Multi-entity coordination detected\n"+
			"- Rapid succession execution\n"+
			"- Behavioral anomaly correlation confirmed\n\n"+
			"PRIVACY NOTE: This advisory is based on behavioral fingerprints only. "+
			"No customer PII or transaction data has been shared between institutions.\n\n"+
			"Timestamp: %s",
		severity, alert.FraudScore, alert.Confidence, alert.PatternStatus,
		alert.EntityCount, alert.TimeSpanSeconds, shortFP(alert.Fingerprint),
		alert.Timestamp.UTC().Format(time.RFC3339))
}

// decayExplanation writes the structured decay-transparency block. Each
// lifecycle variant names the minutes since last sighting, the base versus
// effective confidence, and the decay factor.
func decayExplanation(alert *models.Alert) string {
	minutes := alert.TimeSinceLastSeenSeconds / 60

	switch alert.PatternStatus {
	case models.StatusActive:
		return fmt.Sprintf(
			"Pattern last observed %.1f minutes ago and remains ACTIVE at full influence. "+
				"Base confidence %.2f, decay factor %.2f, effective confidence %.2f.",
			minutes, alert.BaseConfidence, alert.DecayScore, alert.EffectiveConfidence)
	case models.StatusCooling:
		return fmt.Sprintf(
			"Pattern is COOLING: last observed %.1f minutes ago. Confidence reduced from base %.2f "+
				"to effective %.2f by decay factor %.2f. Treat recommended actions with reduced urgency "+
				"unless local signals corroborate.",
			minutes, alert.BaseConfidence, alert.EffectiveConfidence, alert.DecayScore)
	default:
		return fmt.Sprintf(
			"Pattern is DORMANT: last observed %.1f minutes ago. Residual confidence %.2f "+
				"(from base %.2f, decay factor %.2f). Coordination evidence is historical; the pattern "+
				"will regain full influence immediately if it reappears.",
			minutes, alert.EffectiveConfidence, alert.BaseConfidence, alert.DecayScore)
	}
}

func advisoryID(fingerprint string, ts time.Time) string {
	return fmt.Sprintf("ADV-%s-%s", ts.UTC().Format("20060102-150405"), head(fingerprint, 8))
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
