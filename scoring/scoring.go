// Package scoring blends the technical, backtest and fundamental sub-scores
// into the final score, and normalizes backtest metrics into a backtest score.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"longentry/helpers"
	"longentry/market"
)

// Status tells whether a sub-score was computed or why it is missing.
type Status string

const (
	StatusComputed            Status = "computed"
	StatusInsufficientData    Status = "insufficient_data"
	StatusTimeout             Status = "computation_timeout"
	StatusExternalUnavailable Status = "external_score_unavailable"
)

// StatusFromError maps a symbol-level error onto a status.
func StatusFromError(err error) Status {
	switch {
	case err == nil:
		return StatusComputed
	case errors.Is(err, market.ErrComputationTimeout):
		return StatusTimeout
	case errors.Is(err, market.ErrExternalScoreUnavailable):
		return StatusExternalUnavailable
	default:
		return StatusInsufficientData
	}
}

// SubScore is a score in [0, 100] with its status. A missing sub-score has
// value 0 and a non-computed status, so it is distinguishable from a computed 0.
type SubScore struct {
	Value  float64
	Status Status
}

// Computed returns a computed sub-score clamped to [0, 100].
func Computed(v float64) SubScore {
	return SubScore{Value: helpers.Clamp100(v), Status: StatusComputed}
}

// Missing returns a degraded sub-score.
func Missing(status Status) SubScore {
	return SubScore{Status: status}
}

// OK reports whether the sub-score was computed.
func (s SubScore) OK() bool {
	return s.Status == StatusComputed
}

// Weights are the final score weights. They must sum to 1.
type Weights struct {
	Technical   float64 `yaml:"technical" json:"technical"`
	Backtest    float64 `yaml:"backtest" json:"backtest"`
	Fundamental float64 `yaml:"fundamental" json:"fundamental"`
}

// BacktestWeights blend the normalized backtest metrics.
type BacktestWeights struct {
	Return       float64 `yaml:"return"`
	ProfitFactor float64 `yaml:"profit_factor"`
	WinRate      float64 `yaml:"win_rate"`
	Drawdown     float64 `yaml:"drawdown"`
}

// Config holds both weight tables.
type Config struct {
	Weights         Weights         `yaml:"weights"`
	BacktestWeights BacktestWeights `yaml:"backtest_weights"`
}

// DefaultConfig returns the production weights.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{Technical: 0.50, Backtest: 0.35, Fundamental: 0.15},
		BacktestWeights: BacktestWeights{
			Return:       0.35,
			ProfitFactor: 0.30,
			WinRate:      0.15,
			Drawdown:     0.20,
		},
	}
}

// Validate checks that each table is non-negative and sums to 1.
func (c Config) Validate() error {
	w := c.Weights
	if err := checkTable("scoring.weights", w.Technical, w.Backtest, w.Fundamental); err != nil {
		return err
	}
	b := c.BacktestWeights
	return checkTable("scoring.backtest_weights", b.Return, b.ProfitFactor, b.WinRate, b.Drawdown)
}

func checkTable(name string, values ...float64) error {
	sum := 0.0
	for _, v := range values {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%s must sum to 1, got %.4f", name, sum)
	}
	return nil
}

// Inputs are the three sub-scores of one symbol.
type Inputs struct {
	Technical   SubScore
	Backtest    SubScore
	Fundamental SubScore
}

// Degraded reports whether any sub-score is missing.
func (in Inputs) Degraded() bool {
	return !in.Technical.OK() || !in.Backtest.OK() || !in.Fundamental.OK()
}

// PriceDataMissing reports whether neither price-based sub-score was computed.
func (in Inputs) PriceDataMissing() bool {
	return !in.Technical.OK() && !in.Backtest.OK()
}

// Scorer computes final and backtest scores.
type Scorer struct {
	cfg                 Config
	unreliableThreshold float64
}

// NewScorer creates a scorer. Backtest scores of symbols whose stability is
// below unreliableThreshold are discounted by stability/100.
func NewScorer(cfg Config, unreliableThreshold float64) *Scorer {
	return &Scorer{cfg: cfg, unreliableThreshold: unreliableThreshold}
}

// Final blends the sub-scores. Missing inputs contribute 0.
func (s *Scorer) Final(in Inputs) float64 {
	w := s.cfg.Weights
	total := contribution(in.Technical)*w.Technical +
		contribution(in.Backtest)*w.Backtest +
		contribution(in.Fundamental)*w.Fundamental
	return helpers.Clamp100(total)
}

func contribution(s SubScore) float64 {
	if !s.OK() {
		return 0
	}
	return helpers.Clamp100(s.Value)
}

// BacktestMetrics are the figures the backtest score is built from.
type BacktestMetrics struct {
	TotalReturnPercent float64
	ProfitFactor       float64
	WinRatePercent     float64
	MaxDrawdownPercent float64
}

// Backtest normalizes the winning metrics into [0, 100] and discounts the
// result when parameter stability is low.
func (s *Scorer) Backtest(m BacktestMetrics, stability float64) float64 {
	b := s.cfg.BacktestWeights
	normReturn := helpers.Clamp100(m.TotalReturnPercent)
	normPF := math.Min(math.Max(m.ProfitFactor, 0)/3, 1) * 100
	normWR := helpers.Clamp100(m.WinRatePercent)
	normDD := math.Max(0, 100-m.MaxDrawdownPercent*5)

	raw := normReturn*b.Return + normPF*b.ProfitFactor + normWR*b.WinRate + normDD*b.Drawdown
	if stability < s.unreliableThreshold {
		raw *= helpers.Clamp100(stability) / 100
	}
	return helpers.Clamp100(raw)
}
