package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/database/snapshots"
	"longentry/ranking"
)

// OverrideService records operator overrides on the snapshot the trading
// clients read next: the current week's, or the already evaluated upcoming
// week's when the weekly run has written it ahead of time.
type OverrideService struct {
	pools         []ranking.Pool
	universe      UniverseSource
	store         SnapshotStore
	pub           Publisher
	sessionOffset time.Duration
	now           func() time.Time
}

// NewOverrideService creates an override service. pub may be nil.
func NewOverrideService(pools []ranking.Pool, universe UniverseSource, store SnapshotStore, pub Publisher, sessionOffset time.Duration) *OverrideService {
	return &OverrideService{
		pools:         pools,
		universe:      universe,
		store:         store,
		pub:           pub,
		sessionOffset: sessionOffset,
		now:           time.Now,
	}
}

// Set forces a symbol active or inactive, or clears the override with
// ranking.Auto(). With expectedVersion set the write fails with a persistence
// conflict when the row changed in between.
func (s *OverrideService) Set(ctx context.Context, symbol string, o ranking.Override, expectedVersion *int64) (*models.WeeklyAnalysis, error) {
	m, err := s.universe.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, database.NewNotFoundErrorWithID("market", symbol)
	}

	var poolName string
	if p, ok := ranking.PoolFor(s.pools, m.Category); ok {
		poolName = p.Name
	}

	week, err := s.targetWeek(ctx)
	if err != nil {
		return nil, err
	}
	row, err := s.store.SetOverride(ctx, snapshots.OverrideWrite{
		Symbol:          m.Symbol,
		Week:            week,
		Override:        o,
		ExpectedVersion: expectedVersion,
		PlaceholderPool: poolName,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("symbol", m.Symbol).
		Str("week_start", week.Format(time.DateOnly)).
		Str("override", o.String()).
		Int64("version", row.Version).
		Msg("✋ override stored")

	s.publish(ctx, row, o)
	return row, nil
}

// targetWeek is the current session week, or the latest evaluated week when
// that one lies ahead. A weekend run writes the coming week before it starts;
// the override must land on that row so the clients and the next run see it.
func (s *OverrideService) targetWeek(ctx context.Context) (time.Time, error) {
	week := WeekStart(s.now(), s.sessionOffset)
	latest, ok, err := s.store.LatestWeek(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if ok && latest.After(week) {
		return latest, nil
	}
	return week, nil
}

func (s *OverrideService) publish(ctx context.Context, row *models.WeeklyAnalysis, o ranking.Override) {
	if s.pub == nil {
		return
	}
	ev := ActivationEvent{
		WeekStart: row.WeekStart.Format(time.DateOnly),
		Pool:      row.Pool,
		Symbol:    row.Symbol,
		Override:  o.String(),
	}
	rows, err := s.store.ListWeek(ctx, row.WeekStart, row.Pool)
	if err != nil {
		log.Debug().Err(err).Str("symbol", row.Symbol).Msg("pool listing for activation event failed")
	}
	for _, r := range rows {
		if r.IsActive {
			ev.Active = append(ev.Active, r.Symbol)
		}
	}
	if err := s.pub.Publish(ctx, ActivationsChannel, ev); err != nil {
		log.Debug().Err(err).Str("symbol", row.Symbol).Msg("activation publish failed")
	}
}
