package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/database/snapshots"
	"longentry/engine"
	"longentry/market"
	"longentry/metrics"
	"longentry/notifications"
	"longentry/ranking"
)

const (
	runLockKey = "longentry:lock:weekly-run"

	// ActivationsChannel carries one ActivationEvent per written pool.
	ActivationsChannel = "longentry:activations"
)

// ErrRunInProgress is returned when another weekly run holds the run lock.
var ErrRunInProgress = errors.New("weekly run already in progress")

// ActivationEvent is published after a pool write, a re-rank or an
// override. Symbol and Override are set for overrides only.
type ActivationEvent struct {
	WeekStart string   `json:"week_start"`
	Pool      string   `json:"pool"`
	RunID     string   `json:"run_id,omitempty"`
	Symbol    string   `json:"symbol,omitempty"`
	Override  string   `json:"override,omitempty"`
	Active    []string `json:"active"`
}

// PoolReport is the outcome of one pool write.
type PoolReport struct {
	Pool       string
	Symbols    int
	Active     int
	Overridden int
	Unreliable []string
	Retried    bool
	Written    bool
	Err        error
}

// RunReport summarizes a weekly run.
type RunReport struct {
	RunID      string
	WeekStart  time.Time
	Pools      []PoolReport
	Unassigned []string
	Duration   time.Duration
}

// Result classifies the run for metrics: ok, partial or failed.
func (r *RunReport) Result() string {
	written := 0
	for _, p := range r.Pools {
		if p.Written {
			written++
		}
	}
	switch {
	case written == len(r.Pools):
		return "ok"
	case written == 0:
		return "failed"
	default:
		return "partial"
	}
}

// RunnerDeps are the collaborators of a Runner. Settings, Notifier,
// Publisher, Lock and Metrics are optional.
type RunnerDeps struct {
	Universe     UniverseSource
	Candles      CandleSource
	Store        SnapshotStore
	Fundamentals FundamentalSource
	Settings     PoolSettings
	Notifier     Notifier
	Publisher    Publisher
	Lock         RunLock
	LockTTL      time.Duration
	Metrics      *metrics.Metrics
}

// Runner executes the weekly evaluation: load inputs, evaluate, write each
// pool atomically.
type Runner struct {
	cfg  engine.Config
	deps RunnerDeps

	newRunID func() string
	now      func() time.Time
}

// NewRunner creates a weekly runner. cfg must have been validated.
func NewRunner(cfg engine.Config, deps RunnerDeps) *Runner {
	if deps.LockTTL <= 0 {
		deps.LockTTL = 2 * time.Hour
	}
	return &Runner{
		cfg:      cfg,
		deps:     deps,
		newRunID: func() string { return uuid.NewString() },
		now:      time.Now,
	}
}

// RunWeek evaluates the week starting at weekStart and stores every pool.
// A pool that cannot be written is reported and alerted; the other pools are
// still written. The returned error joins the pool failures.
func (r *Runner) RunWeek(ctx context.Context, weekStart time.Time) (*RunReport, error) {
	started := r.now()
	runID := r.newRunID()
	logger := log.With().Str("run_id", runID).Str("week_start", weekStart.Format(time.DateOnly)).Logger()

	if r.deps.Lock != nil {
		ok, err := r.deps.Lock.TryLock(ctx, runLockKey, runID, r.deps.LockTTL)
		if err != nil {
			logger.Warn().Err(err).Msg("run lock unavailable, continuing without it")
		} else if !ok {
			return nil, ErrRunInProgress
		} else {
			defer func() {
				if err := r.deps.Lock.Unlock(context.WithoutCancel(ctx), runLockKey, runID); err != nil {
					logger.Warn().Err(err).Msg("failed to release run lock")
				}
			}()
		}
	}

	logger.Info().Msg("🚀 Starting weekly run")

	report, err := r.run(ctx, weekStart, runID)
	if err != nil {
		r.deps.Metrics.ObserveRun(r.now().Sub(started), "failed")
		r.notify(ctx, notifications.Alert{
			Type:      notifications.AlertRunFailed,
			WeekStart: weekStart,
			RunID:     runID,
			Message:   fmt.Sprintf("🚨 Weekly run %s failed: %v", weekStart.Format(time.DateOnly), err),
		})
		return nil, err
	}
	report.Duration = r.now().Sub(started)
	r.deps.Metrics.ObserveRun(report.Duration, report.Result())

	var poolErrs []error
	var unreliable []string
	for _, p := range report.Pools {
		if p.Err != nil {
			poolErrs = append(poolErrs, fmt.Errorf("pool %s: %w", p.Pool, p.Err))
		}
		unreliable = append(unreliable, p.Unreliable...)
	}
	if len(unreliable) > 0 {
		r.notify(ctx, notifications.Alert{
			Type:      notifications.AlertUnreliableParams,
			WeekStart: weekStart,
			RunID:     runID,
			Symbols:   unreliable,
		})
	}
	r.notify(ctx, summaryAlert(report))

	logger.Info().
		Dur("duration", report.Duration).
		Str("result", report.Result()).
		Strs("unassigned", report.Unassigned).
		Msg("✅ Weekly run finished")
	return report, errors.Join(poolErrs...)
}

func (r *Runner) run(ctx context.Context, weekStart time.Time, runID string) (*RunReport, error) {
	cfg := r.cfg
	if r.deps.Settings != nil {
		pools, err := r.deps.Settings.Apply(ctx, cfg.Pools)
		if err != nil {
			return nil, fmt.Errorf("load pool settings: %w", err)
		}
		cfg.Pools = pools
	}

	universe, err := r.deps.Universe.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	symbols := make([]string, len(universe))
	for i, m := range universe {
		symbols[i] = m.Symbol
	}

	until := dataCutoff(weekStart, cfg.SessionOffset())
	since := until.AddDate(0, 0, -cfg.Backtest.LookbackDays)
	series, err := r.deps.Candles.LoadSeries(ctx, symbols, database.TimeframeH1, since, until)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}

	fundamentals, err := r.deps.Fundamentals.Scores(ctx, symbols)
	if err != nil {
		log.Warn().Err(err).Msg("fundamental feed unavailable, fundamental scores degraded")
		fundamentals = map[string]engine.FundamentalScore{}
	}

	history, err := r.deps.Store.History(ctx, symbols, weekStart, cfg.Stability.Window)
	if err != nil {
		return nil, fmt.Errorf("load parameter history: %w", err)
	}

	states, err := r.deps.Store.Overrides(ctx, symbols, weekStart)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	outcome, err := engine.New(cfg).EvaluateWeek(ctx, engine.Input{
		WeekStart:      weekStart,
		Universe:       universe,
		Candles:        series,
		Fundamentals:   fundamentals,
		PriorOverrides: overridesOf(states),
		History:        history,
	})
	if err != nil {
		return nil, err
	}

	report := &RunReport{RunID: runID, WeekStart: weekStart, Unassigned: outcome.Unassigned}
	for _, sym := range outcome.Unassigned {
		log.Warn().Str("symbol", sym).Msg("symbol category has no pool, skipped")
	}
	for _, po := range outcome.Pools {
		r.countSubScores(po.Snapshots)
		report.Pools = append(report.Pools, r.writePool(ctx, runID, weekStart, po, states))
	}
	return report, nil
}

// writePool stores one pool. On a persistence conflict it re-reads the
// overrides, re-ranks and retries once; a second conflict leaves the stored
// state untouched and raises an alert.
func (r *Runner) writePool(ctx context.Context, runID string, weekStart time.Time, po engine.PoolOutcome, states map[string]snapshots.OverrideState) PoolReport {
	rep := PoolReport{Pool: po.Pool.Name, Symbols: len(po.Snapshots)}
	logger := log.With().Str("run_id", runID).Str("pool", po.Pool.Name).Logger()
	if len(po.Snapshots) == 0 {
		rep.Written = true
		return rep
	}

	snaps := po.Snapshots
	expected := statesFor(snaps, states)
	err := r.deps.Store.SavePool(ctx, weekStart, rowsOf(snaps, runID), expected)
	if database.IsConflict(err) {
		r.deps.Metrics.PoolConflict(po.Pool.Name)
		logger.Warn().Err(err).Msg("pool write conflict, re-reading overrides and retrying")
		rep.Retried = true

		var fresh map[string]snapshots.OverrideState
		fresh, err = r.deps.Store.Overrides(ctx, symbolsOf(snaps), weekStart)
		if err == nil {
			snaps = rerankWith(po.Pool, snaps, fresh)
			err = r.deps.Store.SavePool(ctx, weekStart, rowsOf(snaps, runID), statesFor(snaps, fresh))
			if database.IsConflict(err) {
				r.deps.Metrics.PoolConflict(po.Pool.Name)
			}
		}
	}
	if err != nil {
		rep.Err = err
		alertType := notifications.AlertRunFailed
		if database.IsConflict(err) {
			alertType = notifications.AlertPoolConflict
		}
		logger.Error().Err(err).Msg("❌ pool not written, previous state kept")
		r.notify(ctx, notifications.Alert{
			Type:      alertType,
			WeekStart: weekStart,
			RunID:     runID,
			Pool:      po.Pool.Name,
			Metadata:  map[string]interface{}{"error": err.Error()},
		})
		return rep
	}

	rep.Written = true
	var active []string
	for _, s := range snaps {
		if s.Active {
			active = append(active, s.Symbol)
			if s.Overridden {
				rep.Overridden++
			}
		}
		if s.Stability != nil && s.Stability.Unreliable {
			rep.Unreliable = append(rep.Unreliable, s.Symbol)
		}
	}
	rep.Active = len(active)
	r.deps.Metrics.SetPoolState(po.Pool.Name, rep.Active, len(rep.Unreliable))
	r.publish(ctx, ActivationEvent{
		WeekStart: weekStart.Format(time.DateOnly),
		Pool:      po.Pool.Name,
		RunID:     runID,
		Active:    active,
	})

	logger.Info().Int("symbols", rep.Symbols).Int("active", rep.Active).Int("overridden", rep.Overridden).Msg("💾 pool written")
	return rep
}

func (r *Runner) countSubScores(snaps []engine.Snapshot) {
	for _, s := range snaps {
		r.deps.Metrics.SubScore("technical", string(s.Technical.Status))
		r.deps.Metrics.SubScore("backtest", string(s.Backtest.Status))
		r.deps.Metrics.SubScore("fundamental", string(s.Fundamental.Status))
	}
}

func (r *Runner) notify(ctx context.Context, alert notifications.Alert) {
	if r.deps.Notifier == nil {
		return
	}
	if err := r.deps.Notifier.Notify(ctx, alert); err != nil {
		log.Warn().Err(err).Str("alert_type", alert.Type).Msg("alert delivery failed")
	}
}

func (r *Runner) publish(ctx context.Context, ev ActivationEvent) {
	if r.deps.Publisher == nil {
		return
	}
	if err := r.deps.Publisher.Publish(ctx, ActivationsChannel, ev); err != nil {
		log.Debug().Err(err).Str("pool", ev.Pool).Msg("activation publish failed")
	}
}

func summaryAlert(rep *RunReport) notifications.Alert {
	pools := make(map[string]interface{}, len(rep.Pools))
	for _, p := range rep.Pools {
		pools[p.Pool] = map[string]interface{}{
			"symbols":    p.Symbols,
			"active":     p.Active,
			"overridden": p.Overridden,
			"written":    p.Written,
		}
	}
	return notifications.Alert{
		Type:      notifications.AlertRunSummary,
		WeekStart: rep.WeekStart,
		RunID:     rep.RunID,
		Metadata: map[string]interface{}{
			"result":     rep.Result(),
			"pools":      pools,
			"unassigned": rep.Unassigned,
		},
	}
}

func rerankWith(pool ranking.Pool, snaps []engine.Snapshot, states map[string]snapshots.OverrideState) []engine.Snapshot {
	updated := make([]engine.Snapshot, len(snaps))
	for i, s := range snaps {
		updated[i] = withOverride(s, states[s.Symbol].Override)
	}
	return engine.Rerank(pool, updated)
}

func overridesOf(states map[string]snapshots.OverrideState) map[string]ranking.Override {
	out := make(map[string]ranking.Override, len(states))
	for sym, st := range states {
		out[sym] = st.Override
	}
	return out
}

func statesFor(snaps []engine.Snapshot, states map[string]snapshots.OverrideState) map[string]snapshots.OverrideState {
	out := make(map[string]snapshots.OverrideState, len(snaps))
	for _, s := range snaps {
		if st, ok := states[s.Symbol]; ok {
			out[s.Symbol] = st
		}
	}
	return out
}

func rowsOf(snaps []engine.Snapshot, runID string) []models.WeeklyAnalysis {
	rows := make([]models.WeeklyAnalysis, len(snaps))
	for i, s := range snaps {
		rows[i] = toRow(s, runID)
	}
	return rows
}

func symbolsOf(snaps []engine.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Symbol
	}
	return out
}

// categories maps symbols to their market category.
func categories(universe []market.Market) map[string]market.Category {
	out := make(map[string]market.Category, len(universe))
	for _, m := range universe {
		out[m.Symbol] = m.Category
	}
	return out
}
