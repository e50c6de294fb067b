package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// InitSchema performs auto-migration and creates the secondary indexes
func (d *Database) InitSchema(ctx context.Context) error {
	log.Info().Msg("🔄 Starting database schema initialization...")

	ctx, cancel := context.WithTimeout(ctx, SchemaInitTimeout)
	defer cancel()
	db := d.db.WithContext(ctx)

	if err := db.AutoMigrate(
		&Market{},
		&Candle{},
		&WeeklyAnalysis{},
		&WeeklyResult{},
		&FundamentalScore{},
		&RegionOutlook{},
		&EconomicEvent{},
		&PoolSetting{},
	); err != nil {
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	indexes := []struct {
		name string
		sql  string
	}{
		{
			// Candle range scans per symbol
			name: "idx_candles_symbol_tf_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf_time
				ON candles (symbol, timeframe, open_time DESC)`,
		},
		{
			// Latest row per symbol at or before a week (override carry, EA config)
			name: "idx_weekly_analysis_symbol_week",
			sql: `CREATE INDEX IF NOT EXISTS idx_weekly_analysis_symbol_week
				ON weekly_analysis (symbol, week_start DESC)`,
		},
		{
			// Ranked listing of one pool and week
			name: "idx_weekly_analysis_week_pool_rank",
			sql: `CREATE INDEX IF NOT EXISTS idx_weekly_analysis_week_pool_rank
				ON weekly_analysis (week_start, pool, rank)`,
		},
	}
	for _, idx := range indexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			log.Warn().Err(err).Str("index", idx.name).Msg("⚠️ Failed to create index")
		}
	}

	log.Info().Msg("✅ Database schema initialized")
	return nil
}
