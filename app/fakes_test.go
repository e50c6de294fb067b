package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/database/snapshots"
	"longentry/engine"
	"longentry/market"
	"longentry/notifications"
	"longentry/ranking"
)

type fakeUniverse struct {
	markets []market.Market
}

func (f *fakeUniverse) Universe(ctx context.Context) ([]market.Market, error) {
	return f.markets, nil
}

func (f *fakeUniverse) Get(ctx context.Context, symbol string) (*market.Market, error) {
	for _, m := range f.markets {
		if m.Symbol == symbol {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

type fakeCandles struct {
	since, until time.Time
}

func (f *fakeCandles) LoadSeries(ctx context.Context, symbols []string, timeframe string, since, until time.Time) (map[string]market.Series, error) {
	f.since, f.until = since, until
	out := make(map[string]market.Series, len(symbols))
	for _, s := range symbols {
		out[s] = market.NewSeries(s, nil)
	}
	return out, nil
}

// seriesCandles serves fixed series and ignores the requested range.
type seriesCandles struct {
	series map[string]market.Series
}

func (f *seriesCandles) LoadSeries(ctx context.Context, symbols []string, timeframe string, since, until time.Time) (map[string]market.Series, error) {
	out := map[string]market.Series{}
	for _, s := range symbols {
		if series, ok := f.series[s]; ok {
			out[s] = series
		}
	}
	return out, nil
}

type fakeFundamentals struct {
	scores map[string]engine.FundamentalScore
	err    error
}

func (f *fakeFundamentals) Scores(ctx context.Context, symbols []string) (map[string]engine.FundamentalScore, error) {
	return f.scores, f.err
}

type rowKey struct {
	symbol string
	week   string
}

type fakeStore struct {
	mu sync.Mutex

	rows      map[rowKey]models.WeeklyAnalysis
	overrides map[string]snapshots.OverrideState
	latest    time.Time

	// saveErrs are returned by successive SavePool calls, nil once drained.
	saveErrs []error
	// onConflict runs when SavePool returns a conflict, to mimic a concurrent writer.
	onConflict func(f *fakeStore)

	updateErrs []error
	updates    [][]models.WeeklyAnalysis

	saved         map[string][]models.WeeklyAnalysis
	savedExpected []map[string]snapshots.OverrideState
	overrideReads int
	writes        []snapshots.OverrideWrite
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:      map[rowKey]models.WeeklyAnalysis{},
		overrides: map[string]snapshots.OverrideState{},
		saved:     map[string][]models.WeeklyAnalysis{},
	}
}

func (f *fakeStore) put(row models.WeeklyAnalysis) {
	f.rows[rowKey{row.Symbol, row.WeekStart.Format(time.DateOnly)}] = row
	if row.WeekStart.After(f.latest) {
		f.latest = row.WeekStart
	}
}

func (f *fakeStore) ListWeek(ctx context.Context, weekStart time.Time, pool string) ([]models.WeeklyAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WeeklyAnalysis
	for k, row := range f.rows {
		if k.week == weekStart.Format(time.DateOnly) && (pool == "" || row.Pool == pool) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, symbol string, weekStart time.Time) (*models.WeeklyAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[rowKey{symbol, weekStart.Format(time.DateOnly)}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeStore) LatestWeek(ctx context.Context) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, !f.latest.IsZero(), nil
}

func (f *fakeStore) Latest(ctx context.Context, symbol string) (*models.WeeklyAnalysis, error) {
	rows, _ := f.SymbolHistory(ctx, symbol, 1)
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (f *fakeStore) SymbolHistory(ctx context.Context, symbol string, limit int) ([]models.WeeklyAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WeeklyAnalysis
	for _, row := range f.rows {
		if row.Symbol == symbol {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.After(out[j].WeekStart) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Recent(ctx context.Context, since time.Time) ([]models.WeeklyAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WeeklyAnalysis
	for _, row := range f.rows {
		if !row.WeekStart.Before(since) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].WeekStart.Equal(out[j].WeekStart) {
			return out[i].WeekStart.After(out[j].WeekStart)
		}
		return out[i].FinalScore > out[j].FinalScore
	})
	return out, nil
}

func (f *fakeStore) History(ctx context.Context, symbols []string, before time.Time, window int) (map[string][]market.ParameterPoint, error) {
	return map[string][]market.ParameterPoint{}, nil
}

func (f *fakeStore) Overrides(ctx context.Context, symbols []string, weekStart time.Time) (map[string]snapshots.OverrideState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrideReads++
	out := map[string]snapshots.OverrideState{}
	for _, s := range symbols {
		if st, ok := f.overrides[s]; ok {
			out[s] = st
		}
	}
	return out, nil
}

func (f *fakeStore) SavePool(ctx context.Context, weekStart time.Time, rows []models.WeeklyAnalysis, expected map[string]snapshots.OverrideState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedExpected = append(f.savedExpected, expected)
	if len(f.saveErrs) > 0 {
		err := f.saveErrs[0]
		f.saveErrs = f.saveErrs[1:]
		if err != nil {
			if database.IsConflict(err) && f.onConflict != nil {
				f.onConflict(f)
			}
			return err
		}
	}
	if len(rows) > 0 {
		f.saved[rows[0].Pool] = rows
	}
	for _, row := range rows {
		f.put(row)
	}
	return nil
}

func (f *fakeStore) UpdateActivations(ctx context.Context, weekStart time.Time, rows []models.WeeklyAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return err
		}
	}
	f.updates = append(f.updates, rows)
	return nil
}

func (f *fakeStore) SetOverride(ctx context.Context, w snapshots.OverrideWrite) (*models.WeeklyAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, w)
	row, ok := f.rows[rowKey{w.Symbol, w.Week.Format(time.DateOnly)}]
	if ok {
		row.IsManuallyOverridden = w.Override.IsForced()
		if w.Override.IsForced() {
			row.IsActive = w.Override.Active()
		}
		row.Version++
	} else {
		row = models.WeeklyAnalysis{
			Symbol:               w.Symbol,
			WeekStart:            w.Week,
			Pool:                 w.PlaceholderPool,
			IsManuallyOverridden: w.Override.IsForced(),
			IsActive:             w.Override.Active(),
			Version:              1,
		}
	}
	if w.ExpectedVersion != nil {
		row.Version = *w.ExpectedVersion + 1
	}
	f.put(row)
	return &row, nil
}

type fakeSettings struct {
	overrides map[string]ranking.Pool
	saved     []ranking.Pool
}

func (f *fakeSettings) Apply(ctx context.Context, pools []ranking.Pool) ([]ranking.Pool, error) {
	out := make([]ranking.Pool, len(pools))
	for i, p := range pools {
		if o, ok := f.overrides[p.Name]; ok {
			p.MaxActive, p.MinScore = o.MaxActive, o.MinScore
		}
		out[i] = p
	}
	return out, nil
}

func (f *fakeSettings) Save(ctx context.Context, pool string, maxActive int, minScore float64) error {
	f.saved = append(f.saved, ranking.Pool{Name: pool, MaxActive: maxActive, MinScore: minScore})
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []notifications.Alert
}

func (f *fakeNotifier) Notify(ctx context.Context, alert notifications.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeNotifier) types() []string {
	var out []string
	for _, a := range f.alerts {
		out = append(out, a.Type)
	}
	return out
}

type fakePublisher struct {
	events []interface{}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	f.events = append(f.events, message)
	return nil
}

type fakeLock struct {
	held     bool
	err      error
	released bool
}

func (f *fakeLock) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Unlock(ctx context.Context, key, owner string) error {
	f.held = false
	f.released = true
	return nil
}
