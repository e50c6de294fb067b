// Package candles stores the OHLCV bars uploaded by the trading clients
// and loads them as engine series.
package candles

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/market"
)

// Repository handles database operations for candles
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new candles repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertCandles stores bars, skipping those already present. Candles are
// append-only, so an existing (symbol, timeframe, open_time) is never rewritten.
// It returns the number of new rows.
func (r *Repository) UpsertCandles(ctx context.Context, symbol, timeframe string, bars []market.Candle) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	rows := make([]models.Candle, len(bars))
	for i, b := range bars {
		rows[i] = models.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  b.OpenTime.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, database.CandleBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("UpsertCandles: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// LoadSeries returns the series of the given timeframe for each symbol,
// restricted to bars opened in [since, until). Symbols without bars map to
// an empty series.
func (r *Repository) LoadSeries(ctx context.Context, symbols []string, timeframe string, since, until time.Time) (map[string]market.Series, error) {
	out := make(map[string]market.Series, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	var rows []models.Candle
	err := r.db.WithContext(ctx).
		Where("symbol IN ? AND timeframe = ? AND open_time >= ? AND open_time < ?", symbols, timeframe, since, until).
		Order("symbol ASC, open_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("LoadSeries: %w", err)
	}

	grouped := make(map[string][]market.Candle, len(symbols))
	for _, c := range rows {
		grouped[c.Symbol] = append(grouped[c.Symbol], market.Candle{
			OpenTime: c.OpenTime,
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			Volume:   c.Volume,
		})
	}
	for _, sym := range symbols {
		out[sym] = market.NewSeries(sym, grouped[sym])
	}
	return out, nil
}

// LastOpenTime returns the open time of the newest bar of a symbol.
func (r *Repository) LastOpenTime(ctx context.Context, symbol, timeframe string) (time.Time, bool, error) {
	var row models.Candle
	res := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("open_time DESC").
		Limit(1).
		Find(&row)
	if res.Error != nil {
		return time.Time{}, false, fmt.Errorf("LastOpenTime: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return time.Time{}, false, nil
	}
	return row.OpenTime, true, nil
}
