package backtest

import (
	"fmt"
	"math"
	"sort"
)

// ProfitFactorSentinel is reported when a parameter point has trades but no
// losing trade. Regular profit factors are capped at the same value.
const ProfitFactorSentinel = 99.0

// Range describes one percent axis of the grid. Values, when set, wins over
// Min/Max/Step.
type Range struct {
	Min    float64   `yaml:"min"`
	Max    float64   `yaml:"max"`
	Step   float64   `yaml:"step"`
	Values []float64 `yaml:"values"`
}

// Expand returns the sorted, de-duplicated axis values.
func (r Range) Expand() []float64 {
	var out []float64
	if len(r.Values) > 0 {
		out = append(out, r.Values...)
	} else if r.Step > 0 {
		n := int(math.Floor((r.Max-r.Min)/r.Step + 1e-9))
		for i := 0; i <= n; i++ {
			out = append(out, math.Round((r.Min+float64(i)*r.Step)*1e4)/1e4)
		}
	}
	sort.Float64s(out)
	uniq := out[:0]
	for i, v := range out {
		if i == 0 || v != out[i-1] {
			uniq = append(uniq, v)
		}
	}
	return uniq
}

// HourWindow is an inclusive range of session hours.
type HourWindow struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Contains reports whether hour h lies inside the window.
func (w HourWindow) Contains(h int) bool {
	return h >= w.From && h <= w.To
}

// Config controls the parameter sweep.
type Config struct {
	LookbackDays int   `yaml:"lookback_days"`
	EntryHours   []int `yaml:"entry_hours"`
	EntryMinute  int   `yaml:"entry_minute"`
	StopLoss     Range `yaml:"stop_loss"`
	TakeProfit   Range `yaml:"take_profit"`
	MinTrades    int   `yaml:"min_trades"`

	// MinHourCoverage drops entry hours that appear on fewer than this share
	// of session days. Zero keeps every configured hour.
	MinHourCoverage float64 `yaml:"min_hour_coverage"`

	// EntryWindows narrows the entry hours per symbol.
	EntryWindows map[string]HourWindow `yaml:"entry_windows"`

	// Spreads holds the typical spread per symbol in price units. Half of it
	// is added to every entry price.
	Spreads map[string]float64 `yaml:"spreads"`
}

// DefaultConfig returns the production sweep settings.
func DefaultConfig() Config {
	hours := make([]int, 24)
	for h := range hours {
		hours[h] = h
	}
	return Config{
		LookbackDays:    730,
		EntryHours:      hours,
		StopLoss:        Range{Values: []float64{0.3, 0.5, 0.75, 1.0, 1.25, 1.5, 2.0}},
		TakeProfit:      Range{Values: []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0, 4.0}},
		MinTrades:       20,
		MinHourCoverage: 0.5,
	}
}

// Validate checks the grid bounds.
func (c Config) Validate() error {
	if len(c.EntryHours) == 0 {
		return fmt.Errorf("backtest.entry_hours must not be empty")
	}
	for _, h := range c.EntryHours {
		if h < 0 || h > 23 {
			return fmt.Errorf("backtest.entry_hours: %d out of range 0-23", h)
		}
	}
	if c.EntryMinute < 0 || c.EntryMinute > 59 {
		return fmt.Errorf("backtest.entry_minute: %d out of range 0-59", c.EntryMinute)
	}
	for name, r := range map[string]Range{"stop_loss": c.StopLoss, "take_profit": c.TakeProfit} {
		vals := r.Expand()
		if len(vals) == 0 {
			return fmt.Errorf("backtest.%s expands to no values", name)
		}
		if vals[0] <= 0 {
			return fmt.Errorf("backtest.%s values must be positive", name)
		}
	}
	if c.StopLoss.Expand()[len(c.StopLoss.Expand())-1] >= 100 {
		return fmt.Errorf("backtest.stop_loss must be below 100%%")
	}
	if c.MinTrades < 1 {
		return fmt.Errorf("backtest.min_trades must be >= 1, got %d", c.MinTrades)
	}
	if c.MinHourCoverage < 0 || c.MinHourCoverage > 1 {
		return fmt.Errorf("backtest.min_hour_coverage must be within [0,1]")
	}
	for sym, w := range c.EntryWindows {
		if w.From < 0 || w.To > 23 || w.From > w.To {
			return fmt.Errorf("backtest.entry_windows[%s]: invalid window %d-%d", sym, w.From, w.To)
		}
	}
	return nil
}

// GridSize returns the number of points before hour filtering.
func (c Config) GridSize() int {
	return len(c.EntryHours) * len(c.StopLoss.Expand()) * len(c.TakeProfit.Expand())
}
