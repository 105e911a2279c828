package config

import (
	"errors"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("Default config must validate, got %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Zero entity threshold", func(c *Config) { c.EntityThreshold = 0 }},
		{"Zero time window", func(c *Config) { c.TimeWindowSeconds = 0 }},
		{"Gates out of order", func(c *Config) { c.HighThreshold = 5; c.CriticalThreshold = 4 }},
		{"Medium above high", func(c *Config) { c.MediumThreshold = 4; c.HighThreshold = 3 }},
		{"Graph age too small", func(c *Config) { c.MaxGraphAgeSeconds = 59 }},
		{"Prune interval too small", func(c *Config) { c.PruneIntervalSeconds = 9 }},
		{"Zero advisory capacity", func(c *Config) { c.MaxAdvisories = 0 }},
		{"Empty decay table", func(c *Config) { c.DecayWindows = nil }},
		{"Decay score above one", func(c *Config) { c.DecayWindows[0].Score = 1.5 }},
		{"Non-increasing window bounds", func(c *Config) { c.DecayWindows[1].MaxAgeSeconds = 120 }},
		{"No terminal unbounded window", func(c *Config) { c.DecayWindows = c.DecayWindows[:2] }},
		{"Unbounded window not terminal", func(c *Config) { c.DecayWindows[0].Unbounded = true }},
		{"Cooling above active", func(c *Config) { c.StatusThresholds = StatusThresholds{ActiveMin: 0.4, CoolingMin: 0.7} }},
		{"Zero cooling floor", func(c *Config) { c.StatusThresholds.CoolingMin = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrConfig) {
				t.Errorf("Expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestUpdate_AppliesKnownKeys(t *testing.T) {
	cfg := Defaults()

	next, err := cfg.Update(map[string]any{
		"entity_threshold":    float64(3),
		"time_window_seconds": float64(600),
		"critical_threshold":  float64(6),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if next.EntityThreshold != 3 || next.TimeWindowSeconds != 600 || next.CriticalThreshold != 6 {
		t.Errorf("Patch not applied: %+v", next)
	}
	// Original is untouched.
	if cfg.EntityThreshold != 2 {
		t.Errorf("Update mutated the receiver: %+v", cfg)
	}
}

func TestUpdate_RejectsUnknownKey(t *testing.T) {
	_, err := Defaults().Update(map[string]any{"entity_treshold": float64(3)})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Expected ErrConfig for unknown key, got %v", err)
	}
}

func TestUpdate_RejectsNonInteger(t *testing.T) {
	for _, raw := range []any{"3", 2.5, true} {
		if _, err := Defaults().Update(map[string]any{"entity_threshold": raw}); !errors.Is(err, ErrConfig) {
			t.Errorf("Expected ErrConfig for value %v (%T), got %v", raw, raw, err)
		}
	}
}

func TestUpdate_DecayWindows(t *testing.T) {
	next, err := Defaults().Update(map[string]any{
		"decay_windows": []any{
			map[string]any{"name": "fresh", "max_age_seconds": float64(60), "decay_score": 1.0},
			map[string]any{"name": "stale", "unbounded": true, "decay_score": 0.1},
		},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if len(next.DecayWindows) != 2 {
		t.Fatalf("Expected 2 windows, got %d", len(next.DecayWindows))
	}
	if next.DecayWindows[0].MaxAgeSeconds != 60 || next.DecayWindows[1].Score != 0.1 {
		t.Errorf("Window table not applied: %+v", next.DecayWindows)
	}
}

func TestUpdate_DecayWindowsRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"Not a list", map[string]any{"name": "fresh"}},
		{"Unknown window key", []any{map[string]any{"name": "fresh", "half_life": float64(60), "decay_score": 1.0}}},
		{"Non-numeric score", []any{map[string]any{"name": "fresh", "max_age_seconds": float64(60), "decay_score": "high"}}},
		{"No terminal window", []any{map[string]any{"name": "fresh", "max_age_seconds": float64(60), "decay_score": 1.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Defaults().Update(map[string]any{"decay_windows": tt.raw}); !errors.Is(err, ErrConfig) {
				t.Errorf("Expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestUpdate_StatusThresholds(t *testing.T) {
	next, err := Defaults().Update(map[string]any{
		"status_thresholds": map[string]any{"active_min": 0.8, "cooling_min": 0.5},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if next.StatusThresholds.ActiveMin != 0.8 || next.StatusThresholds.CoolingMin != 0.5 {
		t.Errorf("Thresholds not applied: %+v", next.StatusThresholds)
	}

	_, err = Defaults().Update(map[string]any{
		"status_thresholds": map[string]any{"active_min": 0.8, "dormant_min": 0.1},
	})
	if !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for unknown threshold key, got %v", err)
	}
}

func TestUpdate_ValidatesResult(t *testing.T) {
	_, err := Defaults().Update(map[string]any{"high_threshold": float64(10)})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Expected ErrConfig when gates fall out of order, got %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ENTITY_THRESHOLD", "4")
	t.Setenv("TIME_WINDOW_SECONDS", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.EntityThreshold != 4 || cfg.TimeWindowSeconds != 120 {
		t.Errorf("Env override not applied: %+v", cfg)
	}
	if cfg.MaxAdvisories != 100 {
		t.Errorf("Expected default max_advisories, got %d", cfg.MaxAdvisories)
	}
}

func TestLoad_RejectsInvalidEnvCombination(t *testing.T) {
	t.Setenv("CRITICAL_THRESHOLD", "2")
	t.Setenv("HIGH_THRESHOLD", "5")

	if _, err := Load(); !errors.Is(err, ErrConfig) {
		t.Fatalf("Expected ErrConfig, got %v", err)
	}
}
