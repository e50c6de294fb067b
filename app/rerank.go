package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/engine"
	"longentry/market"
	"longentry/ranking"
)

// RerankResult is the new activation state of a pool. WeekStart is zero when
// no week was evaluated yet; the settings are stored all the same.
type RerankResult struct {
	Pool      ranking.Pool
	WeekStart time.Time
	Active    []string
	Retried   bool
}

// RerankService changes a pool's cap or threshold and re-applies ranking to
// the latest stored week without recomputing scores.
type RerankService struct {
	pools    []ranking.Pool
	universe UniverseSource
	store    SnapshotStore
	settings PoolSettings
	pub      Publisher
}

// NewRerankService creates a re-rank service. settings and pub may be nil.
func NewRerankService(pools []ranking.Pool, universe UniverseSource, store SnapshotStore, settings PoolSettings, pub Publisher) *RerankService {
	return &RerankService{pools: pools, universe: universe, store: store, settings: settings, pub: pub}
}

// Pool returns the effective settings of a pool.
func (s *RerankService) Pool(ctx context.Context, name string) (ranking.Pool, error) {
	pools := s.pools
	if s.settings != nil {
		applied, err := s.settings.Apply(ctx, pools)
		if err != nil {
			return ranking.Pool{}, err
		}
		pools = applied
	}
	p, ok := ranking.FindPool(pools, name)
	if !ok {
		return ranking.Pool{}, database.NewNotFoundErrorWithID("pool", name)
	}
	return p, nil
}

// Rerank stores the new cap and threshold of the pool and re-ranks its
// snapshots of the latest week. A nil minScore keeps the current threshold.
func (s *RerankService) Rerank(ctx context.Context, name string, maxActive int, minScore *float64) (*RerankResult, error) {
	if maxActive < 0 {
		return nil, database.NewValidationErrorWithValue("max_active", "must not be negative", maxActive)
	}
	if minScore != nil && (*minScore < 0 || *minScore > 100) {
		return nil, database.NewValidationErrorWithValue("min_score", "must be within [0, 100]", *minScore)
	}
	pool, err := s.Pool(ctx, name)
	if err != nil {
		return nil, err
	}
	pool.MaxActive = maxActive
	if minScore != nil {
		pool.MinScore = *minScore
	}
	if s.settings != nil {
		if err := s.settings.Save(ctx, pool.Name, pool.MaxActive, pool.MinScore); err != nil {
			return nil, err
		}
	}

	week, ok, err := s.store.LatestWeek(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info().Str("pool", pool.Name).Msg("no evaluated week yet, pool settings stored only")
		return &RerankResult{Pool: pool}, nil
	}

	universe, err := s.universe.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	cats := categories(universe)

	result := &RerankResult{Pool: pool, WeekStart: week}
	active, err := s.apply(ctx, pool, week, cats)
	if database.IsConflict(err) {
		log.Warn().Err(err).Str("pool", pool.Name).Msg("re-rank conflict, retrying with fresh rows")
		result.Retried = true
		active, err = s.apply(ctx, pool, week, cats)
	}
	if err != nil {
		return nil, err
	}
	result.Active = active

	if s.pub != nil {
		ev := ActivationEvent{WeekStart: week.Format(time.DateOnly), Pool: pool.Name, Active: active}
		if err := s.pub.Publish(ctx, ActivationsChannel, ev); err != nil {
			log.Debug().Err(err).Str("pool", pool.Name).Msg("activation publish failed")
		}
	}
	log.Info().Str("pool", pool.Name).Int("max_active", pool.MaxActive).Strs("active", active).Msg("🔁 pool re-ranked")
	return result, nil
}

func (s *RerankService) apply(ctx context.Context, pool ranking.Pool, week time.Time, cats map[string]market.Category) ([]string, error) {
	rows, err := s.store.ListWeek(ctx, week, pool.Name)
	if err != nil {
		return nil, err
	}
	versions := make(map[string]int64, len(rows))
	snaps := make([]engine.Snapshot, len(rows))
	for i, row := range rows {
		snaps[i] = fromRow(row, cats[row.Symbol])
		versions[row.Symbol] = row.Version
	}

	ranked := engine.Rerank(pool, snaps)
	updates := make([]models.WeeklyAnalysis, len(ranked))
	var active []string
	for i, sn := range ranked {
		updates[i] = models.WeeklyAnalysis{
			Symbol:    sn.Symbol,
			WeekStart: week,
			Rank:      sn.Rank,
			IsActive:  sn.Active,
			Version:   versions[sn.Symbol],
		}
		if sn.Active {
			active = append(active, sn.Symbol)
		}
	}
	if err := s.store.UpdateActivations(ctx, week, updates); err != nil {
		return nil, err
	}
	return active, nil
}
