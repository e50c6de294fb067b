package indicators

import (
	"fmt"
	"math"
)

// TechnicalWeights is the tunable blend table of the technical score.
// The weights must be non-negative and sum to 1.
type TechnicalWeights struct {
	WinRate    float64 `yaml:"win_rate" json:"win_rate"`
	GrowthLoss float64 `yaml:"growth_loss" json:"growth_loss"`
	Trend      float64 `yaml:"trend" json:"trend"`
	Oscillator float64 `yaml:"oscillator" json:"oscillator"`
	Momentum   float64 `yaml:"momentum" json:"momentum"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
}

// Sum returns the total weight.
func (w TechnicalWeights) Sum() float64 {
	return w.WinRate + w.GrowthLoss + w.Trend + w.Oscillator + w.Momentum + w.Volatility
}

// Day return definitions for the daily analytics.
const (
	ReturnCloseToClose = "close_to_close"
	ReturnOpenToClose  = "open_to_close"
)

// Config controls the indicator calculator.
type Config struct {
	MinDailyBars int              `yaml:"min_daily_bars"`
	SMAShort     int              `yaml:"sma_short"`
	SMAMedium    int              `yaml:"sma_medium"`
	SMALong      int              `yaml:"sma_long"`
	RSIPeriod    int              `yaml:"rsi_period"`
	ATRPeriod    int              `yaml:"atr_period"`
	Weights      TechnicalWeights `yaml:"weights"`

	// DailyReturn selects how a day's return is measured for growth, loss,
	// best/worst day and up-day win rate. Close-to-close has no return on
	// the first day.
	DailyReturn string `yaml:"daily_return"`
}

// DefaultConfig returns the production indicator settings.
func DefaultConfig() Config {
	return Config{
		MinDailyBars: 20,
		DailyReturn:  ReturnCloseToClose,
		SMAShort:     20,
		SMAMedium:    50,
		SMALong:      200,
		RSIPeriod:    14,
		ATRPeriod:    14,
		Weights: TechnicalWeights{
			WinRate:    0.20,
			GrowthLoss: 0.15,
			Trend:      0.25,
			Oscillator: 0.15,
			Momentum:   0.15,
			Volatility: 0.10,
		},
	}
}

// Validate checks periods and the weight table.
func (c Config) Validate() error {
	if c.MinDailyBars < 1 {
		return fmt.Errorf("indicators.min_daily_bars must be >= 1, got %d", c.MinDailyBars)
	}
	switch c.DailyReturn {
	case ReturnCloseToClose, ReturnOpenToClose:
	default:
		return fmt.Errorf("indicators.daily_return must be %s or %s, got %q", ReturnCloseToClose, ReturnOpenToClose, c.DailyReturn)
	}
	for name, p := range map[string]int{
		"sma_short": c.SMAShort, "sma_medium": c.SMAMedium, "sma_long": c.SMALong,
		"rsi_period": c.RSIPeriod, "atr_period": c.ATRPeriod,
	} {
		if p < 1 {
			return fmt.Errorf("indicators.%s must be >= 1, got %d", name, p)
		}
	}
	w := c.Weights
	for _, v := range []float64{w.WinRate, w.GrowthLoss, w.Trend, w.Oscillator, w.Momentum, w.Volatility} {
		if v < 0 {
			return fmt.Errorf("indicators.weights must be non-negative")
		}
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		return fmt.Errorf("indicators.weights must sum to 1, got %.4f", w.Sum())
	}
	return nil
}
