package app

import (
	"context"
	"time"

	models "longentry/database/models_pkg"
)

// EAConfig is what a trading client needs for the current week.
type EAConfig struct {
	Symbol      string  `json:"symbol"`
	Active      bool    `json:"active"`
	EntryHour   int     `json:"entryHour"`
	EntryMinute int     `json:"entryMinute"`
	SLPercent   float64 `json:"slPercent"`
	TPPercent   float64 `json:"tpPercent"`
	WeekStart   string  `json:"weekStart"`
}

// QueryService answers read requests from clients and operators.
type QueryService struct {
	store         SnapshotStore
	sessionOffset time.Duration
	now           func() time.Time
}

// NewQueryService creates a query service.
func NewQueryService(store SnapshotStore, sessionOffset time.Duration) *QueryService {
	return &QueryService{store: store, sessionOffset: sessionOffset, now: time.Now}
}

// CurrentWeek returns the Monday of the running session week.
func (q *QueryService) CurrentWeek() time.Time {
	return WeekStart(q.now(), q.sessionOffset)
}

// EAConfig returns the trading parameters of a symbol for the current week.
// A symbol without a snapshot is inactive with zero parameters.
func (q *QueryService) EAConfig(ctx context.Context, symbol string) (EAConfig, error) {
	week := q.CurrentWeek()
	cfg := EAConfig{Symbol: symbol, WeekStart: week.Format(time.DateOnly)}

	row, err := q.store.Get(ctx, symbol, week)
	if err != nil {
		return cfg, err
	}
	if row == nil {
		return cfg, nil
	}
	cfg.Active = row.IsActive
	if row.OptEntryHour != nil {
		cfg.EntryHour = *row.OptEntryHour
	}
	if row.OptEntryMinute != nil {
		cfg.EntryMinute = *row.OptEntryMinute
	}
	if row.OptSLPercent != nil {
		cfg.SLPercent = *row.OptSLPercent
	}
	if row.OptTPPercent != nil {
		cfg.TPPercent = *row.OptTPPercent
	}
	return cfg, nil
}

// Analysis lists the stored snapshots of a week, optionally for one pool. A
// zero week means the latest evaluated week.
func (q *QueryService) Analysis(ctx context.Context, week time.Time, pool string) (time.Time, []models.WeeklyAnalysis, error) {
	if week.IsZero() {
		latest, ok, err := q.store.LatestWeek(ctx)
		if err != nil {
			return week, nil, err
		}
		if !ok {
			return week, []models.WeeklyAnalysis{}, nil
		}
		week = latest
	}
	rows, err := q.store.ListWeek(ctx, week, pool)
	return week, rows, err
}
