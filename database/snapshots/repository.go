// Package snapshots stores the weekly_analysis rows: one scored, ranked
// snapshot per symbol and week, plus the manual-override flags that
// carry from week to week.
package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/market"
	"longentry/ranking"
)

const resource = "weekly_analysis"

// OverrideState is the override in force for a symbol together with the row
// it was read from. A pool write is rejected when that row changed since.
type OverrideState struct {
	Override  ranking.Override
	WeekStart time.Time
	Version   int64
}

// OverrideWrite is an operator request to change a symbol's override for
// a week. The override carries into later weeks until cleared.
type OverrideWrite struct {
	Symbol   string
	Week     time.Time
	Override ranking.Override
	// ExpectedVersion makes the write optimistic. When nil the write is an
	// explicit last-writer-wins.
	ExpectedVersion *int64
	// PlaceholderPool is stored when the week has no snapshot yet and a
	// placeholder row is created.
	PlaceholderPool string
}

// Repository handles database operations for weekly snapshots
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new snapshots repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListWeek returns the snapshots of a week ordered by pool and rank. An
// empty pool lists every pool.
func (r *Repository) ListWeek(ctx context.Context, weekStart time.Time, pool string) ([]models.WeeklyAnalysis, error) {
	var rows []models.WeeklyAnalysis
	q := r.db.WithContext(ctx).Where("week_start = ?", weekStart)
	if pool != "" {
		q = q.Where("pool = ?", pool)
	}
	if err := q.Order("pool ASC, rank ASC, symbol ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListWeek: %w", err)
	}
	return rows, nil
}

// Get returns the snapshot of a symbol for a week, or nil when none exists.
func (r *Repository) Get(ctx context.Context, symbol string, weekStart time.Time) (*models.WeeklyAnalysis, error) {
	var row models.WeeklyAnalysis
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND week_start = ?", symbol, weekStart).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &row, nil
}

// Latest returns the most recent snapshot of a symbol, or nil when none exists.
func (r *Repository) Latest(ctx context.Context, symbol string) (*models.WeeklyAnalysis, error) {
	var row models.WeeklyAnalysis
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("week_start DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("Latest: %w", err)
	}
	return &row, nil
}

// LatestWeek returns the most recent week with at least one snapshot.
func (r *Repository) LatestWeek(ctx context.Context) (time.Time, bool, error) {
	var week sql.NullTime
	err := r.db.WithContext(ctx).
		Model(&models.WeeklyAnalysis{}).
		Select("MAX(week_start)").
		Scan(&week).Error
	if err != nil {
		return time.Time{}, false, fmt.Errorf("LatestWeek: %w", err)
	}
	return week.Time, week.Valid, nil
}

// SymbolHistory returns the last limit snapshots of a symbol, newest first.
func (r *Repository) SymbolHistory(ctx context.Context, symbol string, limit int) ([]models.WeeklyAnalysis, error) {
	var rows []models.WeeklyAnalysis
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("week_start DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("SymbolHistory: %w", err)
	}
	return rows, nil
}

// Recent returns every snapshot from weeks at or after since, newest week
// first and by descending final score within a week.
func (r *Repository) Recent(ctx context.Context, since time.Time) ([]models.WeeklyAnalysis, error) {
	var rows []models.WeeklyAnalysis
	err := r.db.WithContext(ctx).
		Where("week_start >= ?", since).
		Order("week_start DESC, final_score DESC, symbol ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	return rows, nil
}

// History returns up to window previous winning parameter points per symbol,
// most recent first, from weeks strictly before the given week.
func (r *Repository) History(ctx context.Context, symbols []string, before time.Time, window int) (map[string][]market.ParameterPoint, error) {
	out := make(map[string][]market.ParameterPoint, len(symbols))
	if len(symbols) == 0 || window <= 0 {
		return out, nil
	}

	var rows []models.WeeklyAnalysis
	err := r.db.WithContext(ctx).
		Select("symbol, week_start, opt_entry_hour, opt_entry_minute, opt_sl_percent, opt_tp_percent").
		Where("symbol IN ? AND week_start < ?", symbols, before).
		Where("opt_entry_hour IS NOT NULL AND opt_sl_percent IS NOT NULL AND opt_tp_percent IS NOT NULL").
		Where("week_start >= ?", before.AddDate(0, 0, -7*window)).
		Order("symbol ASC, week_start DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}

	for _, row := range rows {
		if len(out[row.Symbol]) >= window {
			continue
		}
		p := market.ParameterPoint{
			EntryHour:         *row.OptEntryHour,
			StopLossPercent:   *row.OptSLPercent,
			TakeProfitPercent: *row.OptTPPercent,
		}
		if row.OptEntryMinute != nil {
			p.EntryMinute = *row.OptEntryMinute
		}
		out[row.Symbol] = append(out[row.Symbol], p)
	}
	return out, nil
}

// Overrides returns the override in force at weekStart for each symbol: the
// flags of the latest row at or before that week. Symbols without any row
// are absent.
func (r *Repository) Overrides(ctx context.Context, symbols []string, weekStart time.Time) (map[string]OverrideState, error) {
	out := make(map[string]OverrideState, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	var rows []models.WeeklyAnalysis
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (symbol) symbol, week_start, is_active, is_manually_overridden, version
			FROM weekly_analysis
			WHERE symbol IN ? AND week_start <= ?
			ORDER BY symbol, week_start DESC`, symbols, weekStart).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("Overrides: %w", err)
	}
	for _, row := range rows {
		out[row.Symbol] = stateOf(row)
	}
	return out, nil
}

// SavePool writes the snapshots of one pool and week in a single
// SERIALIZABLE transaction. Before writing, the rows the overrides were read
// from are locked and compared against expected; any difference aborts the
// whole write with a ConflictError and nothing is stored.
func (r *Repository) SavePool(ctx context.Context, weekStart time.Time, rows []models.WeeklyAnalysis, expected map[string]OverrideState) error {
	if len(rows) == 0 {
		return nil
	}
	symbols := make([]string, len(rows))
	for i := range rows {
		symbols[i] = rows[i].Symbol
		rows[i].WeekStart = weekStart
		rows[i].Version = 1
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockLatest(tx, symbols, weekStart, expected)
		if err != nil {
			return err
		}
		for _, sym := range symbols {
			if err := checkUnchanged(sym, expected[sym], current[sym]); err != nil {
				return err
			}
		}

		result := tx.Clauses(upsertClause()).Create(&rows)
		if result.Error != nil {
			return fmt.Errorf("SavePool upsert: %w", result.Error)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return database.MapConflict(resource, err)
}

// UpdateActivations rewrites rank and activation of already stored snapshots,
// as done by a re-rank. Versions are checked like in SavePool.
func (r *Repository) UpdateActivations(ctx context.Context, weekStart time.Time, rows []models.WeeklyAnalysis) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			res := tx.Model(&models.WeeklyAnalysis{}).
				Where("symbol = ? AND week_start = ? AND version = ?", row.Symbol, weekStart, row.Version).
				Updates(map[string]interface{}{
					"rank":      row.Rank,
					"is_active": row.IsActive,
					"version":   gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return fmt.Errorf("UpdateActivations %s: %w", row.Symbol, res.Error)
			}
			if res.RowsAffected == 0 {
				return database.NewConflictError(resource, row.Symbol, "row changed since it was read")
			}
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return database.MapConflict(resource, err)
}

// SetOverride applies an operator override to the snapshot of a symbol for
// the requested week, creating a placeholder row when the week has not been
// evaluated yet, and returns the stored row. Clearing an override leaves the
// activation flag untouched; the next ranking decides it.
func (r *Repository) SetOverride(ctx context.Context, w OverrideWrite) (*models.WeeklyAnalysis, error) {
	var saved models.WeeklyAnalysis
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.WeeklyAnalysis
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("symbol = ? AND week_start = ?", w.Symbol, w.Week).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if w.ExpectedVersion != nil {
				return database.NewConflictError(resource, w.Symbol, "row does not exist")
			}
			saved = placeholder(w)
			if err := tx.Create(&saved).Error; err != nil {
				return fmt.Errorf("SetOverride create: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("SetOverride lock: %w", err)
		}
		if w.ExpectedVersion != nil && *w.ExpectedVersion != row.Version {
			return database.NewConflictError(resource, w.Symbol,
				fmt.Sprintf("expected version %d, found %d", *w.ExpectedVersion, row.Version))
		}

		updates := map[string]interface{}{
			"is_manually_overridden": w.Override.IsForced(),
			"version":                gorm.Expr("version + 1"),
		}
		if w.Override.IsForced() {
			updates["is_active"] = w.Override.Active()
		}
		res := tx.Model(&models.WeeklyAnalysis{}).
			Where("symbol = ? AND week_start = ? AND version = ?", row.Symbol, row.WeekStart, row.Version).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("SetOverride update: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return database.NewConflictError(resource, w.Symbol, "row changed since it was read")
		}

		row.IsManuallyOverridden = w.Override.IsForced()
		if w.Override.IsForced() {
			row.IsActive = w.Override.Active()
		}
		row.Version++
		saved = row
		return nil
	})
	if err != nil {
		return nil, database.MapConflict(resource, err)
	}
	return &saved, nil
}

func placeholder(w OverrideWrite) models.WeeklyAnalysis {
	return models.WeeklyAnalysis{
		Symbol:               w.Symbol,
		WeekStart:            w.Week,
		Pool:                 w.PlaceholderPool,
		IsManuallyOverridden: w.Override.IsForced(),
		IsActive:             w.Override.Active(),
		Notes:                "placeholder created by manual override",
		Version:              1,
	}
}

// lockLatest locks every row that can be the latest at or before weekStart
// for the symbols and returns the latest per symbol. PostgreSQL rejects
// FOR UPDATE together with DISTINCT ON, so the reduction happens here.
func lockLatest(tx *gorm.DB, symbols []string, weekStart time.Time, expected map[string]OverrideState) (map[string]OverrideState, error) {
	from := weekStart
	for _, st := range expected {
		if st.WeekStart.Before(from) {
			from = st.WeekStart
		}
	}

	var rows []models.WeeklyAnalysis
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("symbol, week_start, is_active, is_manually_overridden, version").
		Where("symbol IN ? AND week_start >= ? AND week_start <= ?", symbols, from, weekStart).
		Order("symbol ASC, week_start DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("SavePool lock: %w", err)
	}

	current := make(map[string]OverrideState, len(rows))
	for _, row := range rows {
		if _, seen := current[row.Symbol]; !seen {
			current[row.Symbol] = stateOf(row)
		}
	}
	return current, nil
}

func checkUnchanged(symbol string, want, got OverrideState) error {
	if want.WeekStart.Equal(got.WeekStart) && want.Version == got.Version {
		return nil
	}
	return database.NewConflictError(resource, symbol,
		fmt.Sprintf("override row moved from %s v%d to %s v%d",
			want.WeekStart.Format(time.DateOnly), want.Version,
			got.WeekStart.Format(time.DateOnly), got.Version))
}

func stateOf(row models.WeeklyAnalysis) OverrideState {
	return OverrideState{
		Override:  ranking.FromFlags(row.IsManuallyOverridden, row.IsActive),
		WeekStart: row.WeekStart,
		Version:   row.Version,
	}
}

// upsertClause replaces every computed column of an existing row of the same
// week and bumps its version. created_at is preserved.
func upsertClause() clause.OnConflict {
	set := clause.AssignmentColumns(upsertColumns)
	set = append(set, clause.Assignment{
		Column: clause.Column{Name: "version"},
		Value:  gorm.Expr("weekly_analysis.version + 1"),
	})
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "week_start"}},
		DoUpdates: set,
	}
}

var upsertColumns = sortedColumns([]string{
	"pool", "run_id",
	"avg_daily_growth", "avg_daily_loss", "most_bullish_day", "most_bearish_day", "up_day_win_rate",
	"sma_short", "sma_medium", "sma_long", "rsi", "atr", "daily_range_pct",
	"change_1w", "change_2w", "change_1m", "change_3m", "candle_count", "daily_bar_count",
	"opt_entry_hour", "opt_entry_minute", "opt_sl_percent", "opt_tp_percent",
	"bt_total_return", "bt_win_rate", "bt_profit_factor", "bt_total_trades", "bt_max_drawdown",
	"bt_combos_tested", "bt_param_stability", "param_unreliable",
	"technical_score", "technical_status", "backtest_score", "backtest_status",
	"fundamental_score", "fundamental_status", "fundamental_label", "final_score",
	"score_breakdown", "notes",
	"rank", "is_active", "is_manually_overridden", "updated_at",
})

func sortedColumns(cols []string) []string {
	out := append([]string(nil), cols...)
	sort.Strings(out)
	return out
}
