package correlation

import (
	"log"
	"sort"
	"time"

	"github.com/synapse-fi/bridge-hub/internal/brg"
	"github.com/synapse-fi/bridge-hub/internal/decay"
	"github.com/synapse-fi/bridge-hub/pkg/models"
)

// Temporal Correlation Engine
//
// A pattern appearing once is noise. The same pattern surfacing at several
// distinct entities inside a short window is intelligence. The correlator
// turns the BRG's recent observations for one fingerprint into either a
// Correlation or nothing; it never errors.
//
// The incoming observation that triggered the pass is evaluated alongside
// the graph's pre-insertion state: the arriving entity counts toward the
// threshold, and the arriving timestamp anchors the decay computation, but
// nothing is written here. The orchestrator writes afterwards, under the
// same critical section.

// Correlator decides cross-entity correlation for a single fingerprint.
type Correlator struct {
	entityThreshold int
	timeWindow      time.Duration
	decay           *decay.Engine
}

// New builds a correlator. entityThreshold is the minimum count of distinct
// entities; timeWindow bounds how far back observations count.
func New(entityThreshold int, timeWindow time.Duration, decayEngine *decay.Engine) *Correlator {
	return &Correlator{
		entityThreshold: entityThreshold,
		timeWindow:      timeWindow,
		decay:           decayEngine,
	}
}

// Detect evaluates whether fingerprint correlates across entities, given
// the graph state plus the not-yet-inserted incoming observation. Returns
// (nil, false) when there is no correlation.
func (c *Correlator) Detect(fingerprint string, incoming models.Observation, g *brg.Graph, now time.Time) (*models.Correlation, bool) {
	obs := g.RecentObservations(fingerprint, c.timeWindow, now)
	obs = append(obs, incoming)
	sort.Slice(obs, func(i, j int) bool { return obs[i].Timestamp.Before(obs[j].Timestamp) })

	if len(obs) == 0 {
		return nil, false
	}

	entities := make(map[string]struct{}, len(obs))
	for _, o := range obs {
		entities[o.EntityID] = struct{}{}
	}
	entityCount := len(entities)
	if entityCount < c.entityThreshold {
		return nil, false
	}

	span := 0.0
	if len(obs) > 1 {
		span = obs[len(obs)-1].Timestamp.Sub(obs[0].Timestamp).Seconds()
	}
	lastSeen := obs[len(obs)-1].Timestamp

	label, base := confidence(entityCount, span)
	d := c.decay.Apply(fingerprint, base, lastSeen, now)

	log.Printf("[Correlator] Correlation detected for %s: %d entities, %.1fs span, confidence=%s, effective=%.3f",
		shortFP(fingerprint), entityCount, span, label, d.EffectiveConfidence)

	return &models.Correlation{
		Fingerprint:         fingerprint,
		EntityCount:         entityCount,
		TimeSpanSeconds:     span,
		Confidence:          label,
		Observations:        obs,
		BaseConfidence:      d.BaseConfidence,
		DecayScore:          d.DecayScore,
		EffectiveConfidence: d.EffectiveConfidence,
		PatternStatus:       d.Status,
		LastSeenTimestamp:   lastSeen,
	}, true
}

// confidence maps (entity count, span) to a textual tier and numeric base.
// More entities inside a tighter span means higher confidence.
func confidence(entityCount int, spanSeconds float64) (models.ConfidenceLabel, float64) {
	switch {
	case entityCount >= 3 && spanSeconds < 180:
		return models.ConfidenceHigh, 0.9
	case entityCount >= 2 && spanSeconds < 300:
		return models.ConfidenceMedium, 0.75
	default:
		return models.ConfidenceLow, 0.5
	}
}

// EntityThreshold exposes the configured minimum entity count.
func (c *Correlator) EntityThreshold() int { return c.entityThreshold }

// TimeWindow exposes the configured correlation window.
func (c *Correlator) TimeWindow() time.Duration { return c.timeWindow }

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12] + "..."
	}
	return fp
}
