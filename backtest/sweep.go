package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"longentry/market"
)

// Result is the outcome of a full sweep for one symbol.
type Result struct {
	Best         Metrics
	CombosTested int
	Eligible     int
	EntryHours   []int
	All          []Metrics
}

// Simulator runs parameter sweeps. It holds no mutable state and is safe for
// concurrent use.
type Simulator struct {
	cfg    Config
	offset time.Duration
}

// NewSimulator creates a simulator using sessionOffset for entry hours.
func NewSimulator(cfg Config, sessionOffset time.Duration) *Simulator {
	return &Simulator{cfg: cfg, offset: sessionOffset}
}

// Config returns the sweep configuration.
func (s *Simulator) Config() Config {
	return s.cfg
}

// ValidHours returns the configured entry hours that survive the per-symbol
// window and the coverage filter, ascending.
func (s *Simulator) ValidHours(series market.Series) []int {
	days := map[time.Time]struct{}{}
	hourDays := map[int]map[time.Time]struct{}{}
	for i := 0; i < series.Len(); i++ {
		ot := series.At(i).OpenTime
		day := market.SessionDay(ot, s.offset)
		h := market.SessionHour(ot, s.offset)
		days[day] = struct{}{}
		if hourDays[h] == nil {
			hourDays[h] = map[time.Time]struct{}{}
		}
		hourDays[h][day] = struct{}{}
	}

	window, hasWindow := s.cfg.EntryWindows[series.Symbol()]
	var hours []int
	for _, h := range s.cfg.EntryHours {
		if hasWindow && !window.Contains(h) {
			continue
		}
		if s.cfg.MinHourCoverage > 0 && len(days) > 0 {
			if float64(len(hourDays[h]))/float64(len(days)) < s.cfg.MinHourCoverage {
				continue
			}
		}
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return uniqueInts(hours)
}

// Grid simulates every grid point of the valid entry hours. Best is the
// winner among the points with at least MinTrades trades and is left zero
// when Eligible is 0. It returns market.ErrComputationTimeout when ctx is
// done before the grid completes.
func (s *Simulator) Grid(ctx context.Context, series market.Series) (*Result, error) {
	if last, ok := series.Last(); ok && s.cfg.LookbackDays > 0 {
		series = series.Since(last.OpenTime.AddDate(0, 0, -s.cfg.LookbackDays))
	}

	sls := s.cfg.StopLoss.Expand()
	tps := s.cfg.TakeProfit.Expand()
	hours := s.ValidHours(series)
	halfSpread := s.cfg.Spreads[series.Symbol()] / 2

	res := &Result{EntryHours: hours}
	var best *Metrics
	for _, h := range hours {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: sweep stopped at hour %d: %w", series.Symbol(), h, market.ErrComputationTimeout)
		}
		acc := simulateHour(series, entryIndexes(series, h, s.offset), halfSpread, sls, tps)
		for si, sl := range sls {
			for ti, tp := range tps {
				p := market.ParameterPoint{
					EntryHour:         h,
					EntryMinute:       s.cfg.EntryMinute,
					StopLossPercent:   sl,
					TakeProfitPercent: tp,
				}
				m := acc[si][ti].metrics(p)
				res.All = append(res.All, m)
				res.CombosTested++
				if m.TotalTrades < s.cfg.MinTrades {
					continue
				}
				res.Eligible++
				if best == nil || Better(m, *best) {
					mm := m
					best = &mm
				}
			}
		}
	}
	if best != nil {
		res.Best = *best
	}
	return res, nil
}

// Sweep runs Grid and selects the winner: highest total return, then higher
// profit factor, then lower drawdown, then the smallest point. Points with
// fewer than MinTrades trades cannot win.
//
// It returns market.ErrInsufficientData when no point reaches MinTrades and
// market.ErrComputationTimeout when ctx is done before the sweep completes.
func (s *Simulator) Sweep(ctx context.Context, series market.Series) (*Result, error) {
	res, err := s.Grid(ctx, series)
	if err != nil {
		return nil, err
	}
	if res.Eligible == 0 {
		return nil, fmt.Errorf("%s: no grid point reached %d trades out of %d tested: %w",
			series.Symbol(), s.cfg.MinTrades, res.CombosTested, market.ErrInsufficientData)
	}
	return res, nil
}

// Cell returns the metrics of one point of the grid.
func (r *Result) Cell(p market.ParameterPoint) (Metrics, bool) {
	for _, m := range r.All {
		if m.Point == p {
			return m, true
		}
	}
	return Metrics{}, false
}

// Better reports whether a ranks ahead of b in winner selection.
func Better(a, b Metrics) bool {
	if a.TotalReturnPercent != b.TotalReturnPercent {
		return a.TotalReturnPercent > b.TotalReturnPercent
	}
	if a.ProfitFactor != b.ProfitFactor {
		return a.ProfitFactor > b.ProfitFactor
	}
	if a.MaxDrawdownPercent != b.MaxDrawdownPercent {
		return a.MaxDrawdownPercent < b.MaxDrawdownPercent
	}
	return a.Point.Less(b.Point)
}

func uniqueInts(in []int) []int {
	out := in[:0]
	for i, v := range in {
		if i == 0 || v != in[i-1] {
			out = append(out, v)
		}
	}
	return out
}
