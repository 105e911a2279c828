package decay

import (
	"fmt"
	"math"
	"time"

	"github.com/synapse-fi/bridge-hub/pkg/models"
)

// Pattern Decay Engine
//
// Maps pattern age to a confidence multiplier through a small discrete
// lookup table. Discrete windows, never continuous exponentials: every
// decayed value must be reproducible by hand from the table, which is what
// makes the hub's decisions auditable.
//
// Decay reduces influence, not memory. Patterns are downgraded through
// ACTIVE → COOLING → DORMANT but never deleted here; removal is the graph
// pruner's job.

// Window is one discrete decay bucket. Windows are evaluated in order and
// the first whose MaxAge bound holds wins. The terminal window has
// Unbounded set and catches everything older.
type Window struct {
	Name      string        `json:"name"`
	MaxAge    time.Duration `json:"max_age_seconds"`
	Score     float64       `json:"decay_score"`
	Unbounded bool          `json:"unbounded,omitempty"`
}

// DefaultWindows is the stock decay table: fresh ≤2min, recent ≤5min,
// aging ≤10min, stale beyond.
func DefaultWindows() []Window {
	return []Window{
		{Name: "fresh", MaxAge: 120 * time.Second, Score: 1.0},
		{Name: "recent", MaxAge: 300 * time.Second, Score: 0.8},
		{Name: "aging", MaxAge: 600 * time.Second, Score: 0.5},
		{Name: "stale", Unbounded: true, Score: 0.2},
	}
}

// Thresholds are the effective-confidence boundaries for lifecycle status.
type Thresholds struct {
	ActiveMin  float64 `json:"active_min"`
	CoolingMin float64 `json:"cooling_min"`
}

// DefaultThresholds returns the stock ACTIVE/COOLING boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{ActiveMin: 0.7, CoolingMin: 0.4}
}

// Engine is the stateless decay calculator. All methods are pure: identical
// inputs against the same window table produce bit-identical results.
type Engine struct {
	windows    []Window
	thresholds Thresholds
}

// NewEngine builds a decay engine from a window table and status thresholds.
// Empty windows fall back to the defaults.
func NewEngine(windows []Window, thresholds Thresholds) *Engine {
	if len(windows) == 0 {
		windows = DefaultWindows()
	}
	return &Engine{windows: windows, thresholds: thresholds}
}

// Result bundles one full decay evaluation for a pattern.
type Result struct {
	PatternID                string               `json:"pattern_id"`
	BaseConfidence           float64              `json:"base_confidence"`
	DecayScore               float64              `json:"decay_score"`
	EffectiveConfidence      float64              `json:"effective_confidence"`
	Status                   models.PatternStatus `json:"status"`
	LastSeenTimestamp        time.Time            `json:"last_seen_timestamp"`
	TimeSinceLastSeenSeconds float64              `json:"time_since_last_seen_seconds"`
}

// Score looks up the decay multiplier for a pattern last seen at lastSeen,
// evaluated at now. Window bounds are inclusive on the low side: an age of
// exactly 120s is still "fresh".
func (e *Engine) Score(lastSeen, now time.Time) float64 {
	_, w := e.windowFor(now.Sub(lastSeen))
	return w.Score
}

// windowFor returns the index and definition of the bucket covering age.
func (e *Engine) windowFor(age time.Duration) (int, Window) {
	for i, w := range e.windows {
		if w.Unbounded || age <= w.MaxAge {
			return i, w
		}
	}
	// Table without a terminal window: treat the last entry as the catch-all.
	last := len(e.windows) - 1
	return last, e.windows[last]
}

// EffectiveConfidence multiplies base by decay, clamps to [0,1] and rounds
// to 4 decimals so downstream comparisons are stable.
func (e *Engine) EffectiveConfidence(base, decayScore float64) float64 {
	eff := base * decayScore
	if eff < 0 {
		eff = 0
	}
	if eff > 1 {
		eff = 1
	}
	return math.Round(eff*10000) / 10000
}

// Status derives the lifecycle tag from an effective confidence.
func (e *Engine) Status(effective float64) models.PatternStatus {
	switch {
	case effective >= e.thresholds.ActiveMin:
		return models.StatusActive
	case effective >= e.thresholds.CoolingMin:
		return models.StatusCooling
	default:
		return models.StatusDormant
	}
}

// Apply runs the full decay evaluation for one pattern.
func (e *Engine) Apply(patternID string, baseConfidence float64, lastSeen, now time.Time) Result {
	score := e.Score(lastSeen, now)
	eff := e.EffectiveConfidence(baseConfidence, score)
	return Result{
		PatternID:                patternID,
		BaseConfidence:           math.Round(baseConfidence*10000) / 10000,
		DecayScore:               score,
		EffectiveConfidence:      eff,
		Status:                   e.Status(eff),
		LastSeenTimestamp:        lastSeen,
		TimeSinceLastSeenSeconds: now.Sub(lastSeen).Seconds(),
	}
}

// Reactivate resets a pattern to full strength upon reappearance:
// last seen becomes now, decay snaps back to 1.0, status is recomputed from
// the new base. Reactivation is immediate; spike, decay, spike again is
// the intended lifecycle shape.
func (e *Engine) Reactivate(patternID string, newBaseConfidence float64, now time.Time) Result {
	eff := e.EffectiveConfidence(newBaseConfidence, 1.0)
	return Result{
		PatternID:                patternID,
		BaseConfidence:           math.Round(newBaseConfidence*10000) / 10000,
		DecayScore:               1.0,
		EffectiveConfidence:      eff,
		Status:                   e.Status(eff),
		LastSeenTimestamp:        now,
		TimeSinceLastSeenSeconds: 0,
	}
}

// Explain renders a decay result as an audit-trail sentence. It always
// names the status, the age bucket, the base confidence, the decay factor
// and the effective value.
func (e *Engine) Explain(r Result) string {
	age := time.Duration(r.TimeSinceLastSeenSeconds * float64(time.Second))
	_, w := e.windowFor(age)
	ageStr := formatAge(r.TimeSinceLastSeenSeconds)

	switch r.Status {
	case models.StatusActive:
		return fmt.Sprintf(
			"Pattern %s is ACTIVE with full influence. Last observed %s ago (%s window). "+
				"Effective confidence: %.2f (from base %.2f, decay %.2f).",
			r.PatternID, ageStr, w.Name, r.EffectiveConfidence, r.BaseConfidence, r.DecayScore)
	case models.StatusCooling:
		reduction := int((1.0 - r.DecayScore) * 100)
		return fmt.Sprintf(
			"Pattern %s is COOLING: influence reduced by %d%% after %s of inactivity (%s window). "+
				"Effective confidence: %.2f (from base %.2f, decay %.2f).",
			r.PatternID, reduction, ageStr, w.Name, r.EffectiveConfidence, r.BaseConfidence, r.DecayScore)
	default:
		return fmt.Sprintf(
			"Pattern %s is DORMANT. Last observed %s ago (%s window). "+
				"Minimal influence remaining: %.2f (from base %.2f, decay %.2f). "+
				"Will reactivate immediately if the pattern reappears.",
			r.PatternID, ageStr, w.Name, r.EffectiveConfidence, r.BaseConfidence, r.DecayScore)
	}
}

// formatAge renders seconds in the most readable unit.
func formatAge(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", int(seconds))
	case seconds < 3600:
		return fmt.Sprintf("%d minutes", int(seconds/60))
	default:
		return fmt.Sprintf("%.1f hours", seconds/3600)
	}
}

// Windows returns a copy of the active window table.
func (e *Engine) Windows() []Window {
	out := make([]Window, len(e.windows))
	copy(out, e.windows)
	return out
}

// StatusThresholds returns the active lifecycle thresholds.
func (e *Engine) StatusThresholds() Thresholds {
	return e.thresholds
}
