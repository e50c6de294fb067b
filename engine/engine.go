// Package engine runs the weekly evaluation: per-symbol indicators, backtest
// sweep and stability on a bounded worker pool, then scoring and per-pool
// ranking. It performs no I/O; callers load inputs and persist the outcome.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"longentry/backtest"
	"longentry/indicators"
	"longentry/market"
	"longentry/ranking"
	"longentry/scoring"
	"longentry/stability"
)

// FundamentalScore is the externally supplied macro score of one symbol.
type FundamentalScore struct {
	Score float64
	Label string
}

// Input holds everything one weekly evaluation reads.
type Input struct {
	WeekStart      time.Time
	Universe       []market.Market
	Candles        map[string]market.Series
	Fundamentals   map[string]FundamentalScore
	PriorOverrides map[string]ranking.Override
	// History holds the previous winning points per symbol, most recent first.
	History map[string][]market.ParameterPoint
}

// Snapshot is the weekly result of one symbol.
type Snapshot struct {
	Symbol    string
	Category  market.Category
	Pool      string
	WeekStart time.Time

	Technical        scoring.SubScore
	Backtest         scoring.SubScore
	Fundamental      scoring.SubScore
	FundamentalLabel string
	FinalScore       float64

	Rank       int
	Active     bool
	Overridden bool

	Analysis     *indicators.Report
	Best         *backtest.Metrics
	CombosTested int
	Stability    *stability.Result

	// Notes carries the reasons of degraded sub-scores.
	Notes []string
}

// Override returns the override state carried by the snapshot.
func (s Snapshot) Override() ranking.Override {
	return ranking.FromFlags(s.Overridden, s.Active)
}

func (s Snapshot) inputs() scoring.Inputs {
	return scoring.Inputs{Technical: s.Technical, Backtest: s.Backtest, Fundamental: s.Fundamental}
}

// PoolOutcome is the ranked snapshots of one pool.
type PoolOutcome struct {
	Pool      ranking.Pool
	Snapshots []Snapshot
}

// Outcome is the full result of one weekly evaluation.
type Outcome struct {
	WeekStart time.Time
	Pools     []PoolOutcome
	// Unassigned lists universe symbols whose category has no pool.
	Unassigned []string
}

// Engine evaluates weeks. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	calc    *indicators.Calculator
	sim     *backtest.Simulator
	tracker *stability.Tracker
	scorer  *scoring.Scorer
}

// New creates an engine. The configuration must have been validated.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		calc:    indicators.NewCalculator(cfg.Indicators, cfg.SessionOffset()),
		sim:     backtest.NewSimulator(cfg.Backtest, cfg.SessionOffset()),
		tracker: stability.NewTracker(cfg.Stability, cfg.StabilityBounds()),
		scorer:  scoring.NewScorer(cfg.Scoring, cfg.Stability.UnreliableThreshold),
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// EvaluateWeek evaluates the universe with the given configuration.
func EvaluateWeek(ctx context.Context, in Input, cfg Config) (*Outcome, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("EvaluateWeek: %w", err)
	}
	return New(cfg).EvaluateWeek(ctx, in)
}

// EvaluateWeek scores and ranks every symbol of the universe. A symbol that
// fails degrades its own sub-scores; only a cancelled ctx fails the call.
// The same input always yields the same outcome.
func (e *Engine) EvaluateWeek(ctx context.Context, in Input) (*Outcome, error) {
	universe := uniqueMarkets(in.Universe)

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	snaps := make([]Snapshot, len(universe))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, m := range universe {
		g.Go(func() error {
			snaps[i] = e.evaluateSymbol(ctx, m, in)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("EvaluateWeek %s: %w", in.WeekStart.Format(time.DateOnly), err)
	}

	out := &Outcome{WeekStart: in.WeekStart}
	byPool := map[string][]Snapshot{}
	for _, s := range snaps {
		if s.Pool == "" {
			out.Unassigned = append(out.Unassigned, s.Symbol)
			continue
		}
		byPool[s.Pool] = append(byPool[s.Pool], s)
	}
	for _, p := range e.cfg.Pools {
		out.Pools = append(out.Pools, PoolOutcome{Pool: p, Snapshots: Rerank(p, byPool[p.Name])})
	}
	return out, nil
}

func (e *Engine) evaluateSymbol(ctx context.Context, m market.Market, in Input) Snapshot {
	s := Snapshot{
		Symbol:    m.Symbol,
		Category:  m.Category,
		WeekStart: in.WeekStart,
	}
	if p, ok := ranking.PoolFor(e.cfg.Pools, m.Category); ok {
		s.Pool = p.Name
	}
	override := in.PriorOverrides[m.Symbol]
	s.Overridden = override.IsForced()
	s.Active = override.Active()

	sctx, cancel := context.WithTimeout(ctx, e.cfg.SymbolTimeout)
	defer cancel()

	series, ok := in.Candles[m.Symbol]
	if !ok {
		series = market.NewSeries(m.Symbol, nil)
	}

	if err := sctx.Err(); err != nil {
		s.Technical = scoring.Missing(scoring.StatusTimeout)
		s.Notes = append(s.Notes, "technical: "+market.ErrComputationTimeout.Error())
	} else if report, err := e.calc.Compute(series); err != nil {
		s.Technical = scoring.Missing(scoring.StatusFromError(err))
		s.Notes = append(s.Notes, "technical: "+err.Error())
	} else {
		s.Technical = scoring.Computed(report.Score)
		s.Analysis = report
	}

	if res, err := e.sim.Sweep(sctx, series); err != nil {
		s.Backtest = scoring.Missing(scoring.StatusFromError(err))
		s.Notes = append(s.Notes, "backtest: "+err.Error())
	} else {
		best := res.Best
		stab := e.tracker.Compute(best.Point, in.History[m.Symbol])
		s.Best = &best
		s.CombosTested = res.CombosTested
		s.Stability = &stab
		s.Backtest = scoring.Computed(e.scorer.Backtest(scoring.BacktestMetrics{
			TotalReturnPercent: best.TotalReturnPercent,
			ProfitFactor:       best.ProfitFactor,
			WinRatePercent:     best.WinRatePercent,
			MaxDrawdownPercent: best.MaxDrawdownPercent,
		}, stab.Score))
	}

	if f, ok := in.Fundamentals[m.Symbol]; ok {
		s.Fundamental = scoring.Computed(f.Score)
		s.FundamentalLabel = f.Label
	} else {
		s.Fundamental = scoring.Missing(scoring.StatusExternalUnavailable)
		s.Notes = append(s.Notes, "fundamental: "+market.ErrExternalScoreUnavailable.Error())
	}

	s.FinalScore = e.scorer.Final(s.inputs())
	return s
}

// Rerank re-runs ranking and activation over already scored snapshots of one
// pool, for instance after the pool's cap changed. Scores are not recomputed
// and overridden snapshots keep their activation. The result is sorted by rank.
func Rerank(pool ranking.Pool, snapshots []Snapshot) []Snapshot {
	entries := make([]ranking.Entry, len(snapshots))
	bySymbol := make(map[string]Snapshot, len(snapshots))
	for i, s := range snapshots {
		entries[i] = ranking.Entry{
			Symbol:           s.Symbol,
			FinalScore:       s.FinalScore,
			PriceDataMissing: s.inputs().PriceDataMissing(),
			Override:         s.Override(),
		}
		bySymbol[s.Symbol] = s
	}

	decisions := ranking.Rank(pool, entries)
	out := make([]Snapshot, len(decisions))
	for i, d := range decisions {
		s := bySymbol[d.Symbol]
		s.Pool = pool.Name
		s.Rank = d.Rank
		s.Active = d.Active
		s.Overridden = d.Overridden
		out[i] = s
	}
	return out
}

func uniqueMarkets(in []market.Market) []market.Market {
	seen := make(map[string]bool, len(in))
	out := make([]market.Market, 0, len(in))
	for _, m := range in {
		if m.Symbol == "" || seen[m.Symbol] {
			continue
		}
		seen[m.Symbol] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
