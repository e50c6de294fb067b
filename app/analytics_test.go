package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"longentry/backtest"
	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/market"
)

var analyticsNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

// wave builds days of hourly candles ending at analyticsNow.
func wave(symbol string, days int) market.Series {
	start := analyticsNow.Add(-time.Duration(days*24) * time.Hour)
	price := 2000.0
	var candles []market.Candle
	for h := 0; h < days*24; h++ {
		open := price
		price = 2000 * (1 + 0.02*math.Sin(float64(h)/13) + 0.01*math.Sin(float64(h)/5) + 0.00001*float64(h))
		candles = append(candles, market.Candle{
			OpenTime: start.Add(time.Duration(h) * time.Hour),
			Open:     open,
			High:     math.Max(open, price) * 1.001,
			Low:      math.Min(open, price) * 0.999,
			Close:    price,
			Volume:   1,
		})
	}
	return market.NewSeries(symbol, candles)
}

func analyticsConfig() backtest.Config {
	cfg := backtest.DefaultConfig()
	cfg.LookbackDays = 90
	cfg.EntryHours = []int{0, 8, 16}
	cfg.StopLoss = backtest.Range{Values: []float64{0.5, 1.0, 2.0}}
	cfg.TakeProfit = backtest.Range{Values: []float64{1.0, 2.0, 4.0}}
	cfg.Spreads = map[string]float64{"XAUUSD": 0.3}
	return cfg
}

func newAnalytics(store *fakeStore) (*AnalyticsService, market.Series) {
	series := wave("XAUUSD", 60)
	svc := NewAnalyticsService(indexUniverse(), store, &seriesCandles{series: map[string]market.Series{"XAUUSD": series}}, analyticsConfig(), 0)
	svc.now = func() time.Time { return analyticsNow }
	return svc, series
}

func hourRow(symbol string, week time.Time, hour int) models.WeeklyAnalysis {
	h := hour
	return models.WeeklyAnalysis{Symbol: symbol, WeekStart: week, OptEntryHour: &h}
}

func TestAnalyticsHistory(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 3; i++ {
		store.put(hourRow("XAUUSD", testWeek.AddDate(0, 0, -7*i), 8))
	}
	svc, _ := newAnalytics(store)

	t.Run("newest first with limit", func(t *testing.T) {
		rows, err := svc.History(context.Background(), "XAUUSD", 2)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, testWeek, rows[0].WeekStart)
		assert.Equal(t, testWeek.AddDate(0, 0, -7), rows[1].WeekStart)
	})

	t.Run("default weeks", func(t *testing.T) {
		rows, err := svc.History(context.Background(), "XAUUSD", 0)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		_, err := svc.History(context.Background(), "NOPE", 0)
		var nf *database.NotFoundError
		assert.True(t, errors.As(err, &nf))
	})

	for _, weeks := range []int{-1, 201} {
		_, err := svc.History(context.Background(), "XAUUSD", weeks)
		var ve *database.ValidationError
		assert.True(t, errors.As(err, &ve), "weeks %d", weeks)
	}
}

func TestAnalyticsRecentHistory(t *testing.T) {
	current := WeekStart(analyticsNow, 0)
	store := newFakeStore()
	for i := 0; i < 4; i++ {
		row := hourRow("XAUUSD", current.AddDate(0, 0, -7*i), 8)
		row.FinalScore = 50
		store.put(row)
	}
	top := hourRow("US500", current, 16)
	top.FinalScore = 80
	store.put(top)
	svc, _ := newAnalytics(store)

	rows, err := svc.RecentHistory(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "US500", rows[0].Symbol)
	assert.Equal(t, current, rows[1].WeekStart)
	assert.Equal(t, current.AddDate(0, 0, -7), rows[2].WeekStart)

	_, err = svc.RecentHistory(context.Background(), 53)
	var ve *database.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestAnalyticsHeatmap(t *testing.T) {
	tests := []struct {
		name       string
		storedHour *int
		wantHour   int
	}{
		{name: "stored optimum", storedHour: intPtr(16), wantHour: 16},
		{name: "stored hour no longer valid", storedHour: intPtr(5), wantHour: 8},
		{name: "no snapshot", wantHour: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			if tt.storedHour != nil {
				store.put(hourRow("XAUUSD", testWeek, *tt.storedHour))
			}
			svc, series := newAnalytics(store)

			hm, err := svc.Heatmap(context.Background(), "XAUUSD")
			require.NoError(t, err)
			assert.Equal(t, tt.wantHour, hm.EntryHour)
			require.Len(t, hm.Grid, 9)
			require.Len(t, hm.Hours, 3)

			first, _ := backtest.Simulate(series, market.ParameterPoint{EntryHour: tt.wantHour, StopLossPercent: 0.5, TakeProfitPercent: 1.0}, 0, 0.3)
			assert.Equal(t, 0.5, hm.Grid[0].SLPercent)
			assert.Equal(t, 1.0, hm.Grid[0].TPPercent)
			assert.Equal(t, first.TotalReturnPercent, hm.Grid[0].TotalReturn)
			assert.Equal(t, first.TotalTrades, hm.Grid[0].TotalTrades)

			for i, h := range []int{0, 8, 16} {
				mid, _ := backtest.Simulate(series, market.ParameterPoint{EntryHour: h, StopLossPercent: 1.0, TakeProfitPercent: 2.0}, 0, 0.3)
				assert.Equal(t, h, hm.Hours[i].Hour)
				assert.Equal(t, mid.TotalReturnPercent, hm.Hours[i].TotalReturn)
				assert.Equal(t, mid.WinRatePercent, hm.Hours[i].WinRate)
			}
		})
	}

	t.Run("no candles", func(t *testing.T) {
		svc := NewAnalyticsService(indexUniverse(), newFakeStore(), &seriesCandles{}, analyticsConfig(), 0)
		_, err := svc.Heatmap(context.Background(), "US500")
		var nf *database.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "candles", nf.Resource)
	})

	t.Run("no valid entry hours", func(t *testing.T) {
		store := newFakeStore()
		svc, _ := newAnalytics(store)
		svc.cfg.EntryWindows = map[string]backtest.HourWindow{"XAUUSD": {From: 20, To: 22}}
		_, err := svc.Heatmap(context.Background(), "XAUUSD")
		var nf *database.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "entry hours", nf.Resource)
	})
}

func TestAnalyticsTrades(t *testing.T) {
	svc, series := newAnalytics(newFakeStore())
	p := market.ParameterPoint{EntryHour: 8, StopLossPercent: 1.0, TakeProfitPercent: 2.0}

	rep, err := svc.Trades(context.Background(), "XAUUSD", p)
	require.NoError(t, err)

	want, trades := backtest.Simulate(series, p, 0, 0.3)
	assert.Equal(t, want, rep.Metrics)
	assert.Equal(t, trades, rep.Trades)
	assert.Len(t, rep.Trades, rep.Metrics.TotalTrades)

	bad := []market.ParameterPoint{
		{EntryHour: 24, StopLossPercent: 1, TakeProfitPercent: 2},
		{EntryHour: 8, StopLossPercent: 0, TakeProfitPercent: 2},
		{EntryHour: 8, StopLossPercent: 1, TakeProfitPercent: -1},
	}
	for _, b := range bad {
		_, err := svc.Trades(context.Background(), "XAUUSD", b)
		var ve *database.ValidationError
		assert.True(t, errors.As(err, &ve), b.String())
	}
}

func intPtr(v int) *int { return &v }
