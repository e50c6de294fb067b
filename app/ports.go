package app

import (
	"context"
	"errors"
	"time"

	models "longentry/database/models_pkg"
	"longentry/database/snapshots"
	"longentry/engine"
	"longentry/market"
	"longentry/notifications"
	"longentry/ranking"
)

// UniverseSource lists the markets to evaluate.
type UniverseSource interface {
	Universe(ctx context.Context) ([]market.Market, error)
	Get(ctx context.Context, symbol string) (*market.Market, error)
}

// CandleSource loads hourly series.
type CandleSource interface {
	LoadSeries(ctx context.Context, symbols []string, timeframe string, since, until time.Time) (map[string]market.Series, error)
}

// SnapshotStore persists weekly snapshots and overrides.
type SnapshotStore interface {
	ListWeek(ctx context.Context, weekStart time.Time, pool string) ([]models.WeeklyAnalysis, error)
	Get(ctx context.Context, symbol string, weekStart time.Time) (*models.WeeklyAnalysis, error)
	LatestWeek(ctx context.Context) (time.Time, bool, error)
	History(ctx context.Context, symbols []string, before time.Time, window int) (map[string][]market.ParameterPoint, error)
	Overrides(ctx context.Context, symbols []string, weekStart time.Time) (map[string]snapshots.OverrideState, error)
	SavePool(ctx context.Context, weekStart time.Time, rows []models.WeeklyAnalysis, expected map[string]snapshots.OverrideState) error
	UpdateActivations(ctx context.Context, weekStart time.Time, rows []models.WeeklyAnalysis) error
	SetOverride(ctx context.Context, w snapshots.OverrideWrite) (*models.WeeklyAnalysis, error)
}

// HistoryStore reads stored snapshots across weeks.
type HistoryStore interface {
	Latest(ctx context.Context, symbol string) (*models.WeeklyAnalysis, error)
	SymbolHistory(ctx context.Context, symbol string, limit int) ([]models.WeeklyAnalysis, error)
	Recent(ctx context.Context, since time.Time) ([]models.WeeklyAnalysis, error)
}

// FundamentalSource serves symbol → fundamental score.
type FundamentalSource interface {
	Scores(ctx context.Context, symbols []string) (map[string]engine.FundamentalScore, error)
}

// PoolSettings stores operator pool caps.
type PoolSettings interface {
	Apply(ctx context.Context, pools []ranking.Pool) ([]ranking.Pool, error)
	Save(ctx context.Context, pool string, maxActive int, minScore float64) error
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, alert notifications.Alert) error
}

// Publisher broadcasts activation changes.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// RunLock keeps two weekly runs from overlapping.
type RunLock interface {
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) error
}

// publishers fans one message out to several publishers and joins their
// errors.
type publishers []Publisher

func (p publishers) Publish(ctx context.Context, channel string, message interface{}) error {
	var errs []error
	for _, pub := range p {
		if err := pub.Publish(ctx, channel, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
