// Package stability measures how stable the winning backtest parameters are
// from week to week.
package stability

import (
	"fmt"

	"longentry/helpers"
	"longentry/market"
)

// Config controls the stability measure.
type Config struct {
	Window              int     `yaml:"window"`
	UnreliableThreshold float64 `yaml:"unreliable_threshold"`
	ReliableThreshold   float64 `yaml:"reliable_threshold"`
	NeutralDefault      float64 `yaml:"neutral_default"`
}

// DefaultConfig returns the production stability settings.
func DefaultConfig() Config {
	return Config{
		Window:              8,
		UnreliableThreshold: 50,
		ReliableThreshold:   80,
		NeutralDefault:      100,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.Window < 1 {
		return fmt.Errorf("stability.window must be >= 1, got %d", c.Window)
	}
	if c.UnreliableThreshold < 0 || c.ReliableThreshold > 100 || c.UnreliableThreshold > c.ReliableThreshold {
		return fmt.Errorf("stability thresholds must satisfy 0 <= unreliable <= reliable <= 100")
	}
	if c.NeutralDefault < 0 || c.NeutralDefault > 100 {
		return fmt.Errorf("stability.neutral_default must be within [0,100]")
	}
	return nil
}

// Bounds are the axis extents used to normalize the stop-loss and take-profit
// dispersion, normally the grid bounds.
type Bounds struct {
	StopLossMin, StopLossMax     float64
	TakeProfitMin, TakeProfitMax float64
}

// Result is the stability of one symbol for one week.
type Result struct {
	Score      float64
	HasHistory bool
	Unreliable bool
	Reliable   bool
	Weeks      int
	Matches    int
}

// Tracker computes parameter stability. It is stateless; history is passed in.
type Tracker struct {
	cfg    Config
	bounds Bounds
}

// NewTracker creates a tracker.
func NewTracker(cfg Config, bounds Bounds) *Tracker {
	return &Tracker{cfg: cfg, bounds: bounds}
}

// Config returns the tracker settings.
func (t *Tracker) Config() Config {
	return t.cfg
}

// Compute scores the current winner against the previous winners, most recent
// first. Only the configured window of history is used.
//
// The score is half exact-match share and half inverse dispersion, so
// identical winners give 100 and a winner that differs from every previous
// one stays below 50.
func (t *Tracker) Compute(current market.ParameterPoint, history []market.ParameterPoint) Result {
	if len(history) > t.cfg.Window {
		history = history[:t.cfg.Window]
	}
	if len(history) == 0 {
		return t.classify(Result{Score: t.cfg.NeutralDefault})
	}

	matches := 0
	for _, p := range history {
		if p == current {
			matches++
		}
	}
	matchShare := float64(matches) / float64(len(history))

	points := append([]market.ParameterPoint{current}, history...)
	hours := make([]float64, len(points))
	sls := make([]float64, len(points))
	tps := make([]float64, len(points))
	for i, p := range points {
		hours[i] = float64(p.EntryHour) + float64(p.EntryMinute)/60
		sls[i] = p.StopLossPercent
		tps[i] = p.TakeProfitPercent
	}
	dispersion := (normalized(hours, 0, 23) +
		normalized(sls, t.bounds.StopLossMin, t.bounds.StopLossMax) +
		normalized(tps, t.bounds.TakeProfitMin, t.bounds.TakeProfitMax)) / 3

	score := helpers.Clamp100(50*matchShare + 50*(1-dispersion))
	return t.classify(Result{
		Score:      score,
		HasHistory: true,
		Weeks:      len(history),
		Matches:    matches,
	})
}

func (t *Tracker) classify(r Result) Result {
	r.Unreliable = r.Score < t.cfg.UnreliableThreshold
	r.Reliable = r.Score >= t.cfg.ReliableThreshold
	return r
}

// normalized is the population standard deviation divided by the largest
// possible one on [lo, hi], clamped to [0, 1].
func normalized(values []float64, lo, hi float64) float64 {
	sd := helpers.StdDev(values)
	if sd == 0 {
		return 0
	}
	half := (hi - lo) / 2
	if half <= 0 {
		return 1
	}
	return helpers.Clamp(sd/half, 0, 1)
}
