// Package results stores the realized weekly performance reported by the
// trading clients.
package results

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "longentry/database/models_pkg"
)

// Repository handles database operations for weekly results
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new results repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Save records or replaces the result of a symbol for a week.
func (r *Repository) Save(ctx context.Context, res *models.WeeklyResult) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "week_start"}},
		DoUpdates: clause.AssignmentColumns([]string{"was_active", "trades_taken", "wins", "losses", "total_pnl_percent"}),
	}).Create(res).Error
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// ListWeek returns the results of a week ordered by symbol.
func (r *Repository) ListWeek(ctx context.Context, weekStart time.Time) ([]models.WeeklyResult, error) {
	var rows []models.WeeklyResult
	err := r.db.WithContext(ctx).
		Where("week_start = ?", weekStart).
		Order("symbol ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListWeek: %w", err)
	}
	return rows, nil
}
