// Package fundamentals stores fundamental scores, regional outlooks and the
// economic calendar. Repository implements fundamental.Store.
package fundamentals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/fundamental"
)

// Repository handles database operations for fundamental data
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new fundamentals repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ fundamental.Store = (*Repository)(nil)

// LatestScores returns the stored score of each symbol that has one.
func (r *Repository) LatestScores(ctx context.Context, symbols []string) (map[string]fundamental.SymbolScore, error) {
	out := make(map[string]fundamental.SymbolScore, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	var rows []models.FundamentalScore
	if err := r.db.WithContext(ctx).Where("symbol IN ?", symbols).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("LatestScores: %w", err)
	}
	for _, row := range rows {
		out[row.Symbol] = fundamental.SymbolScore{
			Symbol:    row.Symbol,
			Score:     row.Score,
			Label:     row.Label,
			Source:    row.Source,
			UpdatedAt: row.UpdatedAt,
		}
	}
	return out, nil
}

// SaveScores replaces the scores of the given symbols.
func (r *Repository) SaveScores(ctx context.Context, scores []fundamental.SymbolScore) error {
	if len(scores) == 0 {
		return nil
	}
	rows := make([]models.FundamentalScore, len(scores))
	for i, s := range scores {
		rows[i] = models.FundamentalScore{
			Symbol:    s.Symbol,
			Score:     s.Score,
			Label:     s.Label,
			Source:    s.Source,
			UpdatedAt: s.UpdatedAt,
		}
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "label", "source", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("SaveScores: %w", err)
	}
	return nil
}

// Outlook returns the outlook of a region, or nil when none is stored.
func (r *Repository) Outlook(ctx context.Context, region string) (*fundamental.Outlook, error) {
	var row models.RegionOutlook
	err := r.db.WithContext(ctx).Where("region = ?", region).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("Outlook: %w", err)
	}
	return &fundamental.Outlook{
		Region:    row.Region,
		CBStance:  row.CBStance,
		Growth:    row.GrowthOutlook,
		Inflation: row.InflationTrend,
		Risk:      row.RiskSentiment,
		Notes:     row.Notes,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// SaveOutlook creates or replaces a region outlook after validating it.
func (r *Repository) SaveOutlook(ctx context.Context, o fundamental.Outlook) error {
	if o.Region == "" {
		return database.NewValidationError("region", "must not be empty")
	}
	if err := o.Validate(); err != nil {
		return database.NewValidationErrorWithValue("outlook", err.Error(), o.Region)
	}
	row := models.RegionOutlook{
		Region:         o.Region,
		CBStance:       o.CBStance,
		GrowthOutlook:  o.Growth,
		InflationTrend: o.Inflation,
		RiskSentiment:  o.Risk,
		Notes:          o.Notes,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "region"}},
		DoUpdates: clause.AssignmentColumns([]string{"cb_stance", "growth_outlook", "inflation_trend", "risk_sentiment", "notes", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("SaveOutlook: %w", err)
	}
	return nil
}

// HighImpactEvents counts the high-impact events of a region dated within
// [from, to].
func (r *Repository) HighImpactEvents(ctx context.Context, region string, from, to time.Time) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.EconomicEvent{}).
		Where("region = ? AND impact = ? AND event_date BETWEEN ? AND ?", region, database.ImpactHigh, from, to).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("HighImpactEvents: %w", err)
	}
	return int(n), nil
}

// CreateEvent adds an economic calendar entry.
func (r *Repository) CreateEvent(ctx context.Context, e *models.EconomicEvent) error {
	switch e.Impact {
	case database.ImpactHigh, database.ImpactMedium, database.ImpactLow:
	default:
		return database.NewValidationErrorWithValue("impact", "must be high, medium or low", e.Impact)
	}
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("CreateEvent: %w", err)
	}
	return nil
}
