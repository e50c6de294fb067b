package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"longentry/app"
	"longentry/backtest"
	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/market"
	"longentry/metrics"
	"longentry/ranking"
)

const testKey = "s3cret"

var week = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

type stubQuery struct {
	lastWeek time.Time
	lastPool string
}

func (s *stubQuery) EAConfig(ctx context.Context, symbol string) (app.EAConfig, error) {
	if symbol == "BROKEN" {
		return app.EAConfig{}, errors.New("db down")
	}
	return app.EAConfig{Symbol: symbol, Active: true, EntryHour: 9, SLPercent: 1.5, TPPercent: 3, WeekStart: "2026-10-19"}, nil
}

func (s *stubQuery) Analysis(ctx context.Context, w time.Time, pool string) (time.Time, []models.WeeklyAnalysis, error) {
	s.lastWeek, s.lastPool = w, pool
	if w.IsZero() {
		w = week
	}
	return w, []models.WeeklyAnalysis{{Symbol: "XAUUSD", WeekStart: w, Pool: "indices_commodities", Rank: 1}}, nil
}

type stubOverrides struct {
	got      ranking.Override
	expected *int64
	err      error
}

func (s *stubOverrides) Set(ctx context.Context, symbol string, o ranking.Override, expectedVersion *int64) (*models.WeeklyAnalysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.got, s.expected = o, expectedVersion
	return &models.WeeklyAnalysis{Symbol: symbol, WeekStart: week, IsActive: o.Active(), IsManuallyOverridden: o.IsForced(), Version: 2}, nil
}

type stubPools struct {
	maxActive int
	minScore  *float64
}

func (s *stubPools) Pool(ctx context.Context, name string) (ranking.Pool, error) {
	if name != "stocks" {
		return ranking.Pool{}, database.NewNotFoundErrorWithID("pool", name)
	}
	return ranking.Pool{Name: name, MaxActive: 6, MinScore: 40}, nil
}

func (s *stubPools) Rerank(ctx context.Context, name string, maxActive int, minScore *float64) (*app.RerankResult, error) {
	if maxActive < 0 {
		return nil, database.NewValidationErrorWithValue("max_active", "must not be negative", maxActive)
	}
	s.maxActive, s.minScore = maxActive, minScore
	return &app.RerankResult{Pool: ranking.Pool{Name: name, MaxActive: maxActive, MinScore: 40}, WeekStart: week, Active: []string{"AAPL"}}, nil
}

type stubResults struct {
	saved []*models.WeeklyResult
}

func (s *stubResults) Save(ctx context.Context, res *models.WeeklyResult) error {
	s.saved = append(s.saved, res)
	return nil
}

func (s *stubResults) ListWeek(ctx context.Context, w time.Time) ([]models.WeeklyResult, error) {
	return []models.WeeklyResult{{Symbol: "AAPL", WeekStart: w, Wins: 2}}, nil
}

type stubCandles struct {
	symbol, timeframe string
	bars              []market.Candle
}

func (s *stubCandles) UpsertCandles(ctx context.Context, symbol, timeframe string, bars []market.Candle) (int64, error) {
	s.symbol, s.timeframe, s.bars = symbol, timeframe, bars
	return int64(len(bars)), nil
}

type stubAnalytics struct {
	weeks int
	point market.ParameterPoint
}

func (s *stubAnalytics) History(ctx context.Context, symbol string, weeks int) ([]models.WeeklyAnalysis, error) {
	if symbol != "XAUUSD" {
		return nil, database.NewNotFoundErrorWithID("market", symbol)
	}
	if weeks > 200 {
		return nil, database.NewValidationErrorWithValue("weeks", "out of range", weeks)
	}
	s.weeks = weeks
	hour := 9
	return []models.WeeklyAnalysis{{Symbol: symbol, WeekStart: week, FinalScore: 72.5, Rank: 1, IsActive: true, OptEntryHour: &hour}}, nil
}

func (s *stubAnalytics) RecentHistory(ctx context.Context, weeks int) ([]models.WeeklyAnalysis, error) {
	s.weeks = weeks
	return []models.WeeklyAnalysis{{Symbol: "AAPL", WeekStart: week}, {Symbol: "MSFT", WeekStart: week}}, nil
}

func (s *stubAnalytics) Heatmap(ctx context.Context, symbol string) (*app.Heatmap, error) {
	if symbol != "XAUUSD" {
		return nil, database.NewNotFoundErrorWithID("candles", symbol)
	}
	return &app.Heatmap{
		Symbol:    symbol,
		EntryHour: 8,
		Grid:      []app.HeatmapCell{{SLPercent: 1, TPPercent: 2, TotalReturn: 4.5, WinRate: 55, ProfitFactor: 1.4, TotalTrades: 30}},
		Hours:     []app.HourReturn{{Hour: 8, TotalReturn: 4.5, WinRate: 55, TotalTrades: 30}},
	}, nil
}

func (s *stubAnalytics) Trades(ctx context.Context, symbol string, p market.ParameterPoint) (*app.TradeReport, error) {
	if p.StopLossPercent <= 0 {
		return nil, database.NewValidationErrorWithValue("sl", "must be positive", p.StopLossPercent)
	}
	s.point = p
	entry := time.Date(2026, 10, 13, 8, 0, 0, 0, time.UTC)
	return &app.TradeReport{
		Symbol:  symbol,
		Metrics: backtest.Metrics{Point: p, TotalReturnPercent: 2, WinRatePercent: 100, TotalTrades: 1, Wins: 1},
		Trades: []backtest.Trade{{
			EntryTime: entry, ExitTime: entry.Add(3 * time.Hour),
			EntryPrice: 100, ExitPrice: 102, ReturnPercent: 2, Exit: backtest.ExitTakeProfit,
		}},
	}, nil
}

type fixture struct {
	handler   http.Handler
	query     *stubQuery
	overrides *stubOverrides
	pools     *stubPools
	results   *stubResults
	candles   *stubCandles
	analytics *stubAnalytics
}

func newFixture(keyHash string) *fixture {
	f := &fixture{
		query:     &stubQuery{},
		overrides: &stubOverrides{},
		pools:     &stubPools{},
		results:   &stubResults{},
		candles:   &stubCandles{},
		analytics: &stubAnalytics{},
	}
	f.handler = NewServer(Deps{
		Query:      f.query,
		Overrides:  f.overrides,
		Pools:      f.pools,
		Results:    f.results,
		Candles:    f.candles,
		Analytics:  f.analytics,
		Metrics:    metrics.New(),
		APIKeyHash: keyHash,
	}).Handler()
	return f
}

func hashKey(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:])
}

func (f *fixture) do(method, path, body, key string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture("")
	rec := f.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := NewServer(Deps{Health: func(ctx context.Context) error { return errors.New("no db") }}).Handler()
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture("")
	f.do(http.MethodGet, "/health", "", "")
	rec := f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "longentry_http_requests_total")
}

func TestGetEAConfig(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodGet, "/api/config/xauusd", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "XAUUSD", cfg["symbol"])
	assert.Equal(t, true, cfg["active"])
	assert.Equal(t, 9.0, cfg["entryHour"])
	assert.Equal(t, 1.5, cfg["slPercent"])
	assert.Equal(t, "2026-10-19", cfg["weekStart"])

	rec = f.do(http.MethodGet, "/api/config/BROKEN", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestAPIKeyRequired(t *testing.T) {
	tests := []struct {
		name    string
		keyHash string
		key     string
		want    int
	}{
		{"no key configured", "", testKey, http.StatusServiceUnavailable},
		{"missing key", hashKey(testKey), "", http.StatusUnauthorized},
		{"wrong key", hashKey(testKey), "guess", http.StatusUnauthorized},
		{"valid key", hashKey(testKey), testKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.keyHash)
			rec := f.do(http.MethodPost, "/api/override/US500", `{"active":true}`, tt.key)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSetOverride(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     ranking.Override
		expected *int64
	}{
		{"force active", `{"active":true}`, ranking.Forced(true), nil},
		{"force inactive with version", `{"active":false,"version":4}`, ranking.Forced(false), int64Ptr(4)},
		{"null clears", `{"active":null}`, ranking.Auto(), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(hashKey(testKey))
			rec := f.do(http.MethodPost, "/api/override/us500", tt.body, testKey)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, f.overrides.got)
			assert.Equal(t, tt.expected, f.overrides.expected)

			var resp overrideResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "US500", resp.Symbol)
			assert.Equal(t, tt.want.String(), resp.Override)
			assert.Equal(t, "2026-10-19", resp.WeekStart)
		})
	}
}

func TestSetOverrideErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad body", `{"active":"yes"}`, nil, http.StatusBadRequest},
		{"unknown field", `{"enabled":true}`, nil, http.StatusBadRequest},
		{"unknown symbol", `{"active":true}`, database.NewNotFoundErrorWithID("market", "NOPE"), http.StatusNotFound},
		{"stale version", `{"active":true,"version":1}`, database.NewConflictError("weekly_analysis", "US500", "expected version 1, found 2"), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(hashKey(testKey))
			f.overrides.err = tt.err
			rec := f.do(http.MethodPost, "/api/override/US500", tt.body, testKey)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMaxActiveRoutes(t *testing.T) {
	f := newFixture(hashKey(testKey))

	rec := f.do(http.MethodGet, "/api/pools/stocks/max-active", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pool":"stocks","max_active":6,"min_score":40}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/pools/crypto/max-active", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPut, "/api/pools/stocks/max-active", `{"max_active":3,"min_score":45}`, testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.pools.maxActive)
	require.NotNil(t, f.pools.minScore)
	assert.Equal(t, 45.0, *f.pools.minScore)
	assert.JSONEq(t, `{"pool":"stocks","max_active":3,"min_score":40,"week_start":"2026-10-19","active":["AAPL"]}`, rec.Body.String())

	rec = f.do(http.MethodPut, "/api/pools/stocks/max-active", `{}`, testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/api/pools/stocks/max-active", `{"max_active":-1}`, testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAnalysis(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodGet, "/api/analysis?week=2026-10-21&pool=stocks", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, week, f.query.lastWeek, "any date selects its Monday")
	assert.Equal(t, "stocks", f.query.lastPool)

	var resp analysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026-10-19", resp.WeekStart)
	assert.Equal(t, 1, resp.Count)

	rec = f.do(http.MethodGet, "/api/analysis", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.query.lastWeek.IsZero())

	rec = f.do(http.MethodGet, "/api/analysis?week=yesterday", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResults(t *testing.T) {
	f := newFixture(hashKey(testKey))

	body := `{"symbol":"aapl","week_start":"2026-10-12","was_active":true,"trades_taken":3,"wins":2,"losses":1,"total_pnl_percent":1.8}`
	rec := f.do(http.MethodPost, "/api/results", body, testKey)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.results.saved, 1)
	assert.Equal(t, "AAPL", f.results.saved[0].Symbol)
	assert.Equal(t, week.AddDate(0, 0, -7), f.results.saved[0].WeekStart)

	rec = f.do(http.MethodPost, "/api/results", `{"symbol":"AAPL","week_start":"2026-10-12","trades_taken":1,"wins":2}`, testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/results?week=2026-10-12", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = f.do(http.MethodGet, "/api/results", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadCandles(t *testing.T) {
	f := newFixture(hashKey(testKey))

	body := `{"timeframe":"h1","candles":[
		{"time":"2026-10-16T08:00:00Z","open":100,"high":101,"low":99.5,"close":100.5,"volume":10},
		{"time":"2026-10-16T09:00:00Z","open":100.5,"high":102,"low":100,"close":101.5,"volume":12}]}`
	rec := f.do(http.MethodPost, "/api/candles/XAUUSD", body, testKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "H1", f.candles.timeframe)
	assert.Equal(t, "XAUUSD", f.candles.symbol)
	require.Len(t, f.candles.bars, 2)
	assert.Equal(t, 101.5, f.candles.bars[1].Close)
	assert.JSONEq(t, `{"symbol":"XAUUSD","received":2,"inserted":2}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/candles/XAUUSD",
		`{"candles":[{"time":"2026-10-16T08:00:00Z","open":100,"high":99,"low":99.5,"close":100.5}]}`, testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/candles/XAUUSD", `{"timeframe":"M5","candles":[]}`, testKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture("")
	rec := f.do(http.MethodOptions, "/api/config/XAUUSD", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestEventsRoute(t *testing.T) {
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, isFlusher := w.(http.Flusher)
		assert.True(t, isFlusher, "middleware keeps the writer flushable")
		w.Write([]byte("stream"))
	})
	h := NewServer(Deps{Events: events}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, "stream", rec.Body.String())

	rec = httptest.NewRecorder()
	NewServer(Deps{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryRoutes(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodGet, "/api/history/xauusd?weeks=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, f.analytics.weeks)
	var rows []historyRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-10-19", rows[0].WeekStart)
	assert.Equal(t, 72.5, rows[0].FinalScore)
	require.NotNil(t, rows[0].OptEntryHour)
	assert.Equal(t, 9, *rows[0].OptEntryHour)

	rec = f.do(http.MethodGet, "/api/history/XAUUSD", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.analytics.weeks, "absent weeks leaves the default to the service")

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown symbol", "/api/history/NOPE", http.StatusNotFound},
		{"weeks not a number", "/api/history/XAUUSD?weeks=many", http.StatusBadRequest},
		{"weeks out of range", "/api/history/XAUUSD?weeks=500", http.StatusBadRequest},
		{"recent weeks not a number", "/api/history?weeks=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.do(http.MethodGet, tt.path, "", "").Code)
		})
	}

	rec = f.do(http.MethodGet, "/api/history?weeks=4", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, f.analytics.weeks)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 2)
}

func TestHeatmapRoute(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodGet, "/api/backtest/xauusd/heatmap", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"symbol":"XAUUSD","entry_hour":8,
		"grid":[{"sl_pct":1,"tp_pct":2,"total_return":4.5,"win_rate":55,"profit_factor":1.4,"total_trades":30}],
		"entry_hour_returns":[{"hour":8,"total_return":4.5,"win_rate":55,"total_trades":30}]
	}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/backtest/US500/heatmap", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTradesRoute(t *testing.T) {
	f := newFixture("")

	rec := f.do(http.MethodGet, "/api/backtest/XAUUSD/trades?hour=8&sl=1&tp=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, market.ParameterPoint{EntryHour: 8, StopLossPercent: 1, TakeProfitPercent: 2}, f.analytics.point)

	var resp tradesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalTrades)
	require.Len(t, resp.Trades, 1)
	assert.Equal(t, "take_profit", resp.Trades[0].Exit)
	assert.Equal(t, 102.0, resp.Trades[0].ExitPrice)

	for _, path := range []string{
		"/api/backtest/XAUUSD/trades?sl=1&tp=2",
		"/api/backtest/XAUUSD/trades?hour=8&tp=2",
		"/api/backtest/XAUUSD/trades?hour=8&sl=1",
		"/api/backtest/XAUUSD/trades?hour=8&sl=0&tp=2",
		"/api/backtest/XAUUSD/trades?hour=8&minute=x&sl=1&tp=2",
	} {
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, path, "", "").Code, path)
	}
}

func TestAnalyticsRoutesNeedService(t *testing.T) {
	h := NewServer(Deps{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
