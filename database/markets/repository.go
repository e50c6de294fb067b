// Package markets stores the tradable universe.
package markets

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "longentry/database/models_pkg"
	"longentry/market"
)

// Repository handles database operations for markets
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new markets repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Universe returns the markets evaluated by the weekly run, sorted by
// symbol. Rows with an unknown category are skipped with a warning.
func (r *Repository) Universe(ctx context.Context) ([]market.Market, error) {
	var rows []models.Market
	err := r.db.WithContext(ctx).
		Where("is_in_universe = ?", true).
		Order("symbol ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("Universe: %w", err)
	}

	out := make([]market.Market, 0, len(rows))
	for _, row := range rows {
		m, ok := toMarket(row)
		if !ok {
			log.Warn().Str("symbol", row.Symbol).Str("category", row.Category).Msg("skipping market with unknown category")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Get returns one market, or nil when the symbol is unknown.
func (r *Repository) Get(ctx context.Context, symbol string) (*market.Market, error) {
	var row models.Market
	err := r.db.WithContext(ctx).Where("symbol = ?", symbol).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	m, ok := toMarket(row)
	if !ok {
		return nil, fmt.Errorf("Get %s: unknown category %q", symbol, row.Category)
	}
	return &m, nil
}

// Upsert creates or updates a market and adds it to the universe.
func (r *Repository) Upsert(ctx context.Context, m market.Market) error {
	row := models.Market{
		Symbol:       m.Symbol,
		Name:         m.Name,
		Category:     string(m.Category),
		Region:       m.Region,
		IsInUniverse: true,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "category", "region", "is_in_universe"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func toMarket(row models.Market) (market.Market, bool) {
	c, ok := market.ParseCategory(row.Category)
	if !ok {
		return market.Market{}, false
	}
	return market.Market{
		Symbol:   row.Symbol,
		Name:     row.Name,
		Category: c,
		Region:   row.Region,
	}, true
}
