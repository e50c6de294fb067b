// Package settings stores operator pool settings. A stored row overrides
// the configured cap and threshold of its pool.
package settings

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/ranking"
)

// Repository handles database operations for pool settings
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new settings repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Apply returns pools with stored settings laid over the configured values.
func (r *Repository) Apply(ctx context.Context, pools []ranking.Pool) ([]ranking.Pool, error) {
	var rows []models.PoolSetting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}
	return merge(pools, rows), nil
}

// Save stores the cap and threshold of a pool.
func (r *Repository) Save(ctx context.Context, pool string, maxActive int, minScore float64) error {
	if maxActive < 0 {
		return database.NewValidationErrorWithValue("max_active", "must be >= 0", maxActive)
	}
	if minScore < 0 || minScore > 100 {
		return database.NewValidationErrorWithValue("min_score", "must be within [0,100]", minScore)
	}
	row := models.PoolSetting{Pool: pool, MaxActive: maxActive, MinScore: minScore}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pool"}},
		DoUpdates: clause.AssignmentColumns([]string{"max_active", "min_score", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

func merge(pools []ranking.Pool, rows []models.PoolSetting) []ranking.Pool {
	byName := make(map[string]models.PoolSetting, len(rows))
	for _, row := range rows {
		byName[row.Pool] = row
	}
	out := make([]ranking.Pool, len(pools))
	for i, p := range pools {
		if s, ok := byName[p.Name]; ok {
			p.MaxActive = s.MaxActive
			p.MinScore = s.MinScore
		}
		out[i] = p
	}
	return out
}
