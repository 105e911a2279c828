package metrics

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func TestSnapshot_CountsEvents(t *testing.T) {
	tr := NewTracker(time.Hour)

	tr.RecordIngestion("bank_001", 1.5, t0)
	tr.RecordIngestion("bank_002", 2.5, t0.Add(time.Second))
	tr.RecordIngestion("bank_001", 3.5, t0.Add(2*time.Second))
	tr.RecordCorrelation(0.5, true, t0.Add(2*time.Second))
	tr.RecordCorrelation(0.7, false, t0.Add(3*time.Second))
	tr.RecordEscalation(t0.Add(2 * time.Second))
	tr.RecordAdvisory("CRITICAL", 87, t0.Add(2*time.Second))

	s := tr.Snapshot(t0.Add(5*time.Second), 4, 10)

	if s.FingerprintsIngested != 3 {
		t.Errorf("Expected 3 ingested, got %d", s.FingerprintsIngested)
	}
	if s.CorrelationsDetected != 1 {
		t.Errorf("Expected 1 correlation (undetected passes excluded), got %d", s.CorrelationsDetected)
	}
	if s.AlertsEscalated != 1 || s.AdvisoriesGenerated != 1 {
		t.Errorf("Expected 1 escalation and 1 advisory, got %d/%d", s.AlertsEscalated, s.AdvisoriesGenerated)
	}
	if s.ActiveEntities != 2 {
		t.Errorf("Expected 2 active entities, got %d", s.ActiveEntities)
	}
	if s.EntitiesByFingerprints["bank_001"] != 2 {
		t.Errorf("Expected bank_001 count 2, got %d", s.EntitiesByFingerprints["bank_001"])
	}
	if s.AdvisoriesBySeverity["CRITICAL"] != 1 {
		t.Errorf("Expected 1 CRITICAL advisory, got %d", s.AdvisoriesBySeverity["CRITICAL"])
	}
	if s.GraphSizeNodes != 4 || s.GraphSizeEdges != 10 {
		t.Errorf("Expected graph sizes forwarded, got %d/%d", s.GraphSizeNodes, s.GraphSizeEdges)
	}
	if s.MeasurementWindowSeconds != 3600 {
		t.Errorf("Expected 3600s window, got %d", s.MeasurementWindowSeconds)
	}
}

func TestSnapshot_RollingWindowExpiry(t *testing.T) {
	tr := NewTracker(time.Hour)

	tr.RecordIngestion("bank_001", 1.0, t0)
	tr.RecordIngestion("bank_002", 1.0, t0.Add(30*time.Minute))

	s := tr.Snapshot(t0.Add(61*time.Minute), 0, 0)
	if s.FingerprintsIngested != 1 {
		t.Errorf("Expected only the in-window ingest counted, got %d", s.FingerprintsIngested)
	}
	// Entity counts are lifetime totals and must survive window expiry.
	if s.EntitiesByFingerprints["bank_001"] != 1 {
		t.Errorf("Expected lifetime entity count retained, got %v", s.EntitiesByFingerprints)
	}
}

func TestPercentile_SortedIndexRule(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		p        int
		expected float64
	}{
		{"Empty", nil, 95, 0},
		{"Single sample", []float64{7}, 95, 7},
		{"Twenty samples p95", seq(1, 20), 95, 20},  // idx 19
		{"Ten samples p95", seq(1, 10), 95, 10},     // idx 9
		{"Hundred samples p95", seq(1, 100), 95, 96}, // idx 95
		{"Unsorted input", []float64{9, 1, 5, 3, 7}, 50, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Percentile(tt.values, tt.p); got != tt.expected {
				t.Errorf("Percentile(%v, %d) = %v, want %v", tt.values, tt.p, got, tt.expected)
			}
		})
	}
}

func TestSnapshot_LatencyAverages(t *testing.T) {
	tr := NewTracker(time.Hour)

	tr.RecordIngestion("bank_001", 1.0, t0)
	tr.RecordIngestion("bank_001", 3.0, t0)

	s := tr.Snapshot(t0, 0, 0)
	if s.AvgIngestionLatencyMs != 2.0 {
		t.Errorf("Expected avg 2.0ms, got %v", s.AvgIngestionLatencyMs)
	}
	if s.P95IngestionLatencyMs != 3.0 {
		t.Errorf("Expected p95 3.0ms, got %v", s.P95IngestionLatencyMs)
	}
}

func TestLatencySamples_Bounded(t *testing.T) {
	tr := NewTracker(time.Hour)

	for i := 0; i < maxLatencySamples+500; i++ {
		tr.RecordIngestion("bank_001", float64(i), t0)
	}

	tr.mu.Lock()
	n := len(tr.ingestionLatencies)
	oldest := tr.ingestionLatencies[0]
	tr.mu.Unlock()

	if n != maxLatencySamples {
		t.Errorf("Expected bounded sample deque of %d, got %d", maxLatencySamples, n)
	}
	if oldest != 500 {
		t.Errorf("Expected oldest samples dropped first, oldest=%v", oldest)
	}
}

func TestSetPatternStatusCounts(t *testing.T) {
	tr := NewTracker(time.Hour)
	tr.SetPatternStatusCounts(3, 2, 1)

	s := tr.Snapshot(t0, 0, 0)
	if s.ActivePatterns != 3 || s.CoolingPatterns != 2 || s.DormantPatterns != 1 {
		t.Errorf("Expected census 3/2/1, got %d/%d/%d", s.ActivePatterns, s.CoolingPatterns, s.DormantPatterns)
	}
}

func TestRegistry_Exposed(t *testing.T) {
	tr := NewTracker(time.Hour)
	tr.RecordIngestion("bank_001", 1.0, t0)
	tr.RecordAdvisory("HIGH", 75, t0)

	families, err := tr.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, want := range []string{
		"hub_fingerprints_ingested_total",
		"hub_advisories_generated_total",
		"hub_stage_latency_ms",
	} {
		if !found[want] {
			t.Errorf("Expected metric family %q in registry", want)
		}
	}
}

func seq(from, to int) []float64 {
	out := make([]float64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, float64(i))
	}
	return out
}
