package engine

import (
	"fmt"
	"time"

	"longentry/backtest"
	"longentry/indicators"
	"longentry/ranking"
	"longentry/scoring"
	"longentry/stability"
)

// Config is the complete decision engine configuration.
type Config struct {
	// SessionOffsetHours shifts UTC open times onto the session clock used for
	// daily bars and entry hours.
	SessionOffsetHours int           `yaml:"session_offset_hours"`
	SymbolTimeout      time.Duration `yaml:"symbol_timeout"`
	// Workers bounds concurrent symbol evaluations. Zero means one per CPU.
	Workers int `yaml:"workers"`

	Indicators indicators.Config `yaml:"indicators"`
	Backtest   backtest.Config   `yaml:"backtest"`
	Stability  stability.Config  `yaml:"stability"`
	Scoring    scoring.Config    `yaml:"scoring"`
	Pools      []ranking.Pool    `yaml:"pools"`
}

// DefaultConfig returns the production engine configuration.
func DefaultConfig() Config {
	return Config{
		SymbolTimeout: 2 * time.Minute,
		Indicators:    indicators.DefaultConfig(),
		Backtest:      backtest.DefaultConfig(),
		Stability:     stability.DefaultConfig(),
		Scoring:       scoring.DefaultConfig(),
		Pools:         ranking.DefaultPools(),
	}
}

// SessionOffset returns the session offset as a duration.
func (c Config) SessionOffset() time.Duration {
	return time.Duration(c.SessionOffsetHours) * time.Hour
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.SessionOffsetHours < -12 || c.SessionOffsetHours > 14 {
		return fmt.Errorf("session_offset_hours %d out of range -12..14", c.SessionOffsetHours)
	}
	if c.SymbolTimeout <= 0 {
		return fmt.Errorf("symbol_timeout must be positive")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	for _, v := range []interface{ Validate() error }{c.Indicators, c.Backtest, c.Stability, c.Scoring} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return ranking.ValidatePools(c.Pools)
}

// StabilityBounds returns the grid extents used to normalize dispersion.
func (c Config) StabilityBounds() stability.Bounds {
	sls := c.Backtest.StopLoss.Expand()
	tps := c.Backtest.TakeProfit.Expand()
	var b stability.Bounds
	if len(sls) > 0 {
		b.StopLossMin, b.StopLossMax = sls[0], sls[len(sls)-1]
	}
	if len(tps) > 0 {
		b.TakeProfitMin, b.TakeProfitMax = tps[0], tps[len(tps)-1]
	}
	return b
}
