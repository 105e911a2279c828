package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
)

// ErrConfig marks configuration that fails validation or an update naming an
// unknown key. Callers test with errors.Is.
var ErrConfig = errors.New("invalid configuration")

// DecayWindow is one discrete decay bucket in the config representation.
// The terminal bucket has Unbounded set and no age bound.
type DecayWindow struct {
	Name          string  `json:"name"`
	MaxAgeSeconds int     `json:"max_age_seconds,omitempty"`
	Score         float64 `json:"decay_score"`
	Unbounded     bool    `json:"unbounded,omitempty"`
}

// StatusThresholds are the effective-confidence boundaries for the pattern
// lifecycle tags.
type StatusThresholds struct {
	ActiveMin  float64 `json:"active_min"`
	CoolingMin float64 `json:"cooling_min"`
}

// Config holds the hub tuning knobs. Loaded once from the environment at
// startup; a copy can be mutated through Update and swapped in atomically by
// the hub.
type Config struct {
	// Correlation.
	EntityThreshold   int `json:"entity_threshold"`
	TimeWindowSeconds int `json:"time_window_seconds"`

	// Escalation gates, by distinct-entity count.
	MediumThreshold   int `json:"medium_threshold"`
	HighThreshold     int `json:"high_threshold"`
	CriticalThreshold int `json:"critical_threshold"`

	// Graph retention and maintenance.
	MaxGraphAgeSeconds   int `json:"max_graph_age_seconds"`
	PruneIntervalSeconds int `json:"prune_interval_seconds"`

	// Advisory ring capacity.
	MaxAdvisories int `json:"max_advisories"`

	// Decay tuning.
	DecayWindows     []DecayWindow    `json:"decay_windows"`
	StatusThresholds StatusThresholds `json:"status_thresholds"`
}

// Defaults returns the stock tuning used when the environment is silent.
func Defaults() Config {
	return Config{
		EntityThreshold:      2,
		TimeWindowSeconds:    300,
		MediumThreshold:      2,
		HighThreshold:        3,
		CriticalThreshold:    4,
		MaxGraphAgeSeconds:   3600,
		PruneIntervalSeconds: 60,
		MaxAdvisories:        100,
		DecayWindows: []DecayWindow{
			{Name: "fresh", MaxAgeSeconds: 120, Score: 1.0},
			{Name: "recent", MaxAgeSeconds: 300, Score: 0.8},
			{Name: "aging", MaxAgeSeconds: 600, Score: 0.5},
			{Name: "stale", Unbounded: true, Score: 0.2},
		},
		StatusThresholds: StatusThresholds{ActiveMin: 0.7, CoolingMin: 0.4},
	}
}

// Load reads tuning from the environment on top of Defaults and validates
// the result. Malformed integers are fatal: a hub running with half-applied
// tuning is worse than one that refuses to start. The decay table and
// status thresholds start at the defaults and are adjusted at runtime
// through Update.
func Load() (Config, error) {
	cfg := Defaults()

	cfg.EntityThreshold = getEnvInt("ENTITY_THRESHOLD", cfg.EntityThreshold)
	cfg.TimeWindowSeconds = getEnvInt("TIME_WINDOW_SECONDS", cfg.TimeWindowSeconds)
	cfg.MediumThreshold = getEnvInt("MEDIUM_THRESHOLD", cfg.MediumThreshold)
	cfg.HighThreshold = getEnvInt("HIGH_THRESHOLD", cfg.HighThreshold)
	cfg.CriticalThreshold = getEnvInt("CRITICAL_THRESHOLD", cfg.CriticalThreshold)
	cfg.MaxGraphAgeSeconds = getEnvInt("MAX_GRAPH_AGE_SECONDS", cfg.MaxGraphAgeSeconds)
	cfg.PruneIntervalSeconds = getEnvInt("PRUNE_INTERVAL_SECONDS", cfg.PruneIntervalSeconds)
	cfg.MaxAdvisories = getEnvInt("MAX_ADVISORIES", cfg.MaxAdvisories)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks internal consistency of the tuning.
func (c Config) Validate() error {
	if c.EntityThreshold < 1 {
		return fmt.Errorf("%w: entity_threshold must be >= 1, got %d", ErrConfig, c.EntityThreshold)
	}
	if c.TimeWindowSeconds < 1 {
		return fmt.Errorf("%w: time_window_seconds must be >= 1, got %d", ErrConfig, c.TimeWindowSeconds)
	}
	if c.MediumThreshold < 1 {
		return fmt.Errorf("%w: medium_threshold must be >= 1, got %d", ErrConfig, c.MediumThreshold)
	}
	if !(c.MediumThreshold <= c.HighThreshold && c.HighThreshold <= c.CriticalThreshold) {
		return fmt.Errorf("%w: escalation gates must be ordered medium <= high <= critical, got %d/%d/%d",
			ErrConfig, c.MediumThreshold, c.HighThreshold, c.CriticalThreshold)
	}
	if c.MaxGraphAgeSeconds < 60 {
		return fmt.Errorf("%w: max_graph_age_seconds must be >= 60, got %d", ErrConfig, c.MaxGraphAgeSeconds)
	}
	if c.PruneIntervalSeconds < 10 {
		return fmt.Errorf("%w: prune_interval_seconds must be >= 10, got %d", ErrConfig, c.PruneIntervalSeconds)
	}
	if c.MaxAdvisories < 1 {
		return fmt.Errorf("%w: max_advisories must be >= 1, got %d", ErrConfig, c.MaxAdvisories)
	}
	if err := validateWindows(c.DecayWindows); err != nil {
		return err
	}
	th := c.StatusThresholds
	if !(0 < th.CoolingMin && th.CoolingMin <= th.ActiveMin && th.ActiveMin <= 1) {
		return fmt.Errorf("%w: status thresholds must satisfy 0 < cooling_min <= active_min <= 1, got %v/%v",
			ErrConfig, th.CoolingMin, th.ActiveMin)
	}
	return nil
}

func validateWindows(windows []DecayWindow) error {
	if len(windows) == 0 {
		return fmt.Errorf("%w: decay_windows must not be empty", ErrConfig)
	}
	prevAge := 0
	for i, w := range windows {
		if w.Score < 0 || w.Score > 1 {
			return fmt.Errorf("%w: decay window %q score must be in [0,1], got %v", ErrConfig, w.Name, w.Score)
		}
		if w.Unbounded {
			if i != len(windows)-1 {
				return fmt.Errorf("%w: only the terminal decay window may be unbounded", ErrConfig)
			}
			continue
		}
		if w.MaxAgeSeconds <= prevAge {
			return fmt.Errorf("%w: decay window bounds must be strictly increasing, %q at %ds", ErrConfig, w.Name, w.MaxAgeSeconds)
		}
		prevAge = w.MaxAgeSeconds
	}
	if !windows[len(windows)-1].Unbounded {
		return fmt.Errorf("%w: the terminal decay window must be unbounded", ErrConfig)
	}
	return nil
}

// Update applies a key/value patch (JSON-decoded, so numbers arrive as
// float64) to a copy of the config and validates it. Unknown keys are
// rejected outright rather than silently ignored: a typoed knob that
// "succeeds" is how tuning drifts unnoticed.
func (c Config) Update(patch map[string]any) (Config, error) {
	next := c

	for key, raw := range patch {
		switch key {
		case "decay_windows":
			ws, err := asWindows(raw)
			if err != nil {
				return Config{}, fmt.Errorf("%w: key %q: %v", ErrConfig, key, err)
			}
			next.DecayWindows = ws
		case "status_thresholds":
			th, err := asThresholds(raw)
			if err != nil {
				return Config{}, fmt.Errorf("%w: key %q: %v", ErrConfig, key, err)
			}
			next.StatusThresholds = th
		default:
			val, err := asInt(raw)
			if err != nil {
				return Config{}, fmt.Errorf("%w: key %q: %v", ErrConfig, key, err)
			}
			switch key {
			case "entity_threshold":
				next.EntityThreshold = val
			case "time_window_seconds":
				next.TimeWindowSeconds = val
			case "medium_threshold":
				next.MediumThreshold = val
			case "high_threshold":
				next.HighThreshold = val
			case "critical_threshold":
				next.CriticalThreshold = val
			case "max_graph_age_seconds":
				next.MaxGraphAgeSeconds = val
			case "prune_interval_seconds":
				next.PruneIntervalSeconds = val
			case "max_advisories":
				next.MaxAdvisories = val
			default:
				return Config{}, fmt.Errorf("%w: unknown key %q", ErrConfig, key)
			}
		}
	}

	if err := next.Validate(); err != nil {
		return Config{}, err
	}
	return next, nil
}

func asInt(raw any) (int, error) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

func asFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
}

// asWindows decodes a decay window table from a JSON-decoded list. Unknown
// keys inside a window entry are rejected the same way unknown top-level
// keys are.
func asWindows(raw any) ([]DecayWindow, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list of windows, got %T", raw)
	}

	out := make([]DecayWindow, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("window %d: expected an object, got %T", i, item)
		}

		var w DecayWindow
		for k, v := range entry {
			switch k {
			case "name":
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("window %d: name must be a string", i)
				}
				w.Name = s
			case "max_age_seconds":
				n, err := asInt(v)
				if err != nil {
					return nil, fmt.Errorf("window %d: max_age_seconds: %v", i, err)
				}
				w.MaxAgeSeconds = n
			case "decay_score":
				f, err := asFloat(v)
				if err != nil {
					return nil, fmt.Errorf("window %d: decay_score: %v", i, err)
				}
				w.Score = f
			case "unbounded":
				b, ok := v.(bool)
				if !ok {
					return nil, fmt.Errorf("window %d: unbounded must be a bool", i)
				}
				w.Unbounded = b
			default:
				return nil, fmt.Errorf("window %d: unknown key %q", i, k)
			}
		}
		out = append(out, w)
	}
	return out, nil
}

// asThresholds decodes the lifecycle thresholds from a JSON-decoded object.
func asThresholds(raw any) (StatusThresholds, error) {
	entry, ok := raw.(map[string]any)
	if !ok {
		return StatusThresholds{}, fmt.Errorf("expected an object, got %T", raw)
	}

	var th StatusThresholds
	for k, v := range entry {
		f, err := asFloat(v)
		if err != nil {
			return StatusThresholds{}, fmt.Errorf("%s: %v", k, err)
		}
		switch k {
		case "active_min":
			th.ActiveMin = f
		case "cooling_min":
			th.CoolingMin = f
		default:
			return StatusThresholds{}, fmt.Errorf("unknown key %q", k)
		}
	}
	return th, nil
}

// getEnvInt returns the env var parsed as int or the fallback. A set but
// unparsable value is fatal.
func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("FATAL: Environment variable %s must be an integer, got %q", key, val)
	}
	return n
}
