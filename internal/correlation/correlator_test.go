package correlation

import (
	"testing"
	"time"

	"github.com/synapse-fi/bridge-hub/internal/brg"
	"github.com/synapse-fi/bridge-hub/internal/decay"
	"github.com/synapse-fi/bridge-hub/pkg/models"
)

var t0 = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func newTestCorrelator() *Correlator {
	return New(2, 300*time.Second, decay.NewEngine(decay.DefaultWindows(), decay.DefaultThresholds()))
}

func seeded(observations ...models.Observation) *brg.Graph {
	g := brg.New(time.Hour)
	for _, o := range observations {
		g.AddObservation("fp_test", o.EntityID, o.Severity, o.Timestamp,
			models.DecayState{BaseConfidence: 0.5, DecayScore: 1.0, EffectiveConfidence: 0.5, Status: models.StatusActive})
	}
	return g
}

func obs(entity string, ts time.Time) models.Observation {
	return models.Observation{EntityID: entity, Timestamp: ts, Severity: models.SeverityHigh}
}

func TestDetect_SingleEntityNoCorrelation(t *testing.T) {
	c := newTestCorrelator()
	g := brg.New(time.Hour)

	if _, ok := c.Detect("fp_test", obs("entity_a", t0), g, t0); ok {
		t.Fatal("Expected no correlation for a first-ever observation")
	}
}

func TestDetect_SameEntityRepeatsNoCorrelation(t *testing.T) {
	c := newTestCorrelator()
	g := seeded(obs("entity_a", t0), obs("entity_a", t0.Add(30*time.Second)))

	if _, ok := c.Detect("fp_test", obs("entity_a", t0.Add(60*time.Second)), g, t0.Add(60*time.Second)); ok {
		t.Fatal("Expected no correlation when all observations come from one entity")
	}
}

func TestDetect_TwoEntitiesMediumConfidence(t *testing.T) {
	c := newTestCorrelator()
	g := seeded(obs("entity_a", t0))

	now := t0.Add(60 * time.Second)
	corr, ok := c.Detect("fp_test", obs("entity_b", now), g, now)
	if !ok {
		t.Fatal("Expected correlation across two entities")
	}

	if corr.EntityCount != 2 {
		t.Errorf("Expected entity_count 2, got %d", corr.EntityCount)
	}
	if corr.TimeSpanSeconds != 60 {
		t.Errorf("Expected span 60s, got %v", corr.TimeSpanSeconds)
	}
	if corr.Confidence != models.ConfidenceMedium {
		t.Errorf("Expected MEDIUM confidence, got %v", corr.Confidence)
	}
	if corr.BaseConfidence != 0.75 {
		t.Errorf("Expected base 0.75, got %v", corr.BaseConfidence)
	}
	// Last observation is the incoming one, so decay is full strength.
	if corr.DecayScore != 1.0 || corr.EffectiveConfidence != 0.75 {
		t.Errorf("Expected decay 1.0 / effective 0.75, got %v / %v", corr.DecayScore, corr.EffectiveConfidence)
	}
	if corr.PatternStatus != models.StatusActive {
		t.Errorf("Expected ACTIVE, got %v", corr.PatternStatus)
	}
}

func TestDetect_ThreeEntitiesHighConfidence(t *testing.T) {
	c := newTestCorrelator()
	g := seeded(obs("entity_a", t0), obs("entity_b", t0.Add(90*time.Second)))

	now := t0.Add(170 * time.Second)
	corr, ok := c.Detect("fp_test", obs("entity_c", now), g, now)
	if !ok {
		t.Fatal("Expected correlation across three entities")
	}

	if corr.Confidence != models.ConfidenceHigh {
		t.Errorf("Expected HIGH confidence for 3 entities in 170s, got %v", corr.Confidence)
	}
	if corr.BaseConfidence != 0.9 || corr.EffectiveConfidence != 0.9 {
		t.Errorf("Expected base/effective 0.9, got %v / %v", corr.BaseConfidence, corr.EffectiveConfidence)
	}
	if corr.EntityCount != 3 {
		t.Errorf("Expected entity_count 3, got %d", corr.EntityCount)
	}
}

func TestDetect_WideSpanLowConfidence(t *testing.T) {
	// A 600s window correlator so a slow spread still correlates, just at
	// LOW confidence.
	c := New(2, 600*time.Second, decay.NewEngine(decay.DefaultWindows(), decay.DefaultThresholds()))
	g := seeded(obs("entity_a", t0))

	now := t0.Add(400 * time.Second)
	corr, ok := c.Detect("fp_test", obs("entity_b", now), g, now)
	if !ok {
		t.Fatal("Expected correlation")
	}
	if corr.Confidence != models.ConfidenceLow {
		t.Errorf("Expected LOW confidence at 400s span, got %v", corr.Confidence)
	}
	if corr.BaseConfidence != 0.5 {
		t.Errorf("Expected base 0.5, got %v", corr.BaseConfidence)
	}
}

func TestDetect_ExpiredObservationsIgnored(t *testing.T) {
	c := newTestCorrelator()
	// Observation well outside the 300s correlation window.
	g := seeded(obs("entity_a", t0))

	now := t0.Add(900 * time.Second)
	if _, ok := c.Detect("fp_test", obs("entity_b", now), g, now); ok {
		t.Fatal("Expected no correlation when prior observations fell out of the window")
	}
}

func TestDetect_ObservationsSortedWithIncoming(t *testing.T) {
	c := newTestCorrelator()
	g := seeded(obs("entity_a", t0.Add(50*time.Second)))

	// Incoming observation carries an older timestamp than the stored one.
	now := t0.Add(60 * time.Second)
	corr, ok := c.Detect("fp_test", obs("entity_b", t0), g, now)
	if !ok {
		t.Fatal("Expected correlation")
	}
	if corr.Observations[0].EntityID != "entity_b" {
		t.Errorf("Expected observations sorted by timestamp, got %v first", corr.Observations[0].EntityID)
	}
	if corr.TimeSpanSeconds != 50 {
		t.Errorf("Expected span 50s, got %v", corr.TimeSpanSeconds)
	}
}

func TestConfidenceTiers(t *testing.T) {
	tests := []struct {
		name     string
		entities int
		span     float64
		label    models.ConfidenceLabel
		base     float64
	}{
		{"Three fast", 3, 179, models.ConfidenceHigh, 0.9},
		{"Three at boundary falls to medium", 3, 180, models.ConfidenceMedium, 0.75},
		{"Two inside window", 2, 299, models.ConfidenceMedium, 0.75},
		{"Two at boundary falls to low", 2, 300, models.ConfidenceLow, 0.5},
		{"Many but slow", 5, 500, models.ConfidenceLow, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, base := confidence(tt.entities, tt.span)
			if label != tt.label || base != tt.base {
				t.Errorf("confidence(%d, %v) = (%v, %v), want (%v, %v)",
					tt.entities, tt.span, label, base, tt.label, tt.base)
			}
		})
	}
}
