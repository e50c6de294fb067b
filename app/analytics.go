package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"longentry/backtest"
	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/market"
)

const (
	defaultSymbolWeeks = 52
	maxSymbolWeeks     = 200
	defaultRecentWeeks = 12
	maxRecentWeeks     = 52
)

// HeatmapCell is one SL x TP point at the heatmap entry hour.
type HeatmapCell struct {
	SLPercent    float64 `json:"sl_pct"`
	TPPercent    float64 `json:"tp_pct"`
	TotalReturn  float64 `json:"total_return"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	TotalTrades  int     `json:"total_trades"`
}

// HourReturn is the result of one entry hour at the middle of the grid.
type HourReturn struct {
	Hour        int     `json:"hour"`
	TotalReturn float64 `json:"total_return"`
	WinRate     float64 `json:"win_rate"`
	TotalTrades int     `json:"total_trades"`
}

// Heatmap is the grid of a symbol over its current lookback.
type Heatmap struct {
	Symbol    string        `json:"symbol"`
	EntryHour int           `json:"entry_hour"`
	Grid      []HeatmapCell `json:"grid"`
	Hours     []HourReturn  `json:"entry_hour_returns"`
}

// TradeReport is the replay of one parameter point.
type TradeReport struct {
	Symbol  string           `json:"symbol"`
	Metrics backtest.Metrics `json:"metrics"`
	Trades  []backtest.Trade `json:"trades"`
}

// AnalyticsService serves score history and on-demand backtests.
type AnalyticsService struct {
	universe      UniverseSource
	store         HistoryStore
	candles       CandleSource
	cfg           backtest.Config
	sessionOffset time.Duration
	now           func() time.Time
}

// NewAnalyticsService creates an analytics service.
func NewAnalyticsService(universe UniverseSource, store HistoryStore, candles CandleSource, cfg backtest.Config, sessionOffset time.Duration) *AnalyticsService {
	return &AnalyticsService{
		universe:      universe,
		store:         store,
		candles:       candles,
		cfg:           cfg,
		sessionOffset: sessionOffset,
		now:           time.Now,
	}
}

// History returns the last weeks snapshots of a symbol, newest first. Zero
// weeks means 52.
func (s *AnalyticsService) History(ctx context.Context, symbol string, weeks int) ([]models.WeeklyAnalysis, error) {
	weeks, err := weeksParam(weeks, defaultSymbolWeeks, maxSymbolWeeks)
	if err != nil {
		return nil, err
	}
	if _, err := s.market(ctx, symbol); err != nil {
		return nil, err
	}
	return s.store.SymbolHistory(ctx, symbol, weeks)
}

// RecentHistory returns every snapshot of the last weeks weeks, the current
// one included. Zero weeks means 12.
func (s *AnalyticsService) RecentHistory(ctx context.Context, weeks int) ([]models.WeeklyAnalysis, error) {
	weeks, err := weeksParam(weeks, defaultRecentWeeks, maxRecentWeeks)
	if err != nil {
		return nil, err
	}
	since := WeekStart(s.now(), s.sessionOffset).AddDate(0, 0, -7*(weeks-1))
	return s.store.Recent(ctx, since)
}

// Heatmap sweeps the grid of a symbol. The entry hour is the latest stored
// optimum when it is still valid, otherwise the middle valid hour. Hour
// returns use the middle stop loss and take profit of the grid.
func (s *AnalyticsService) Heatmap(ctx context.Context, symbol string) (*Heatmap, error) {
	m, err := s.market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	series, err := s.series(ctx, m.Symbol)
	if err != nil {
		return nil, err
	}

	res, err := backtest.NewSimulator(s.cfg, s.sessionOffset).Grid(ctx, series)
	if err != nil {
		return nil, err
	}
	if len(res.EntryHours) == 0 {
		return nil, database.NewNotFoundErrorWithID("entry hours", m.Symbol)
	}

	latest, err := s.store.Latest(ctx, m.Symbol)
	if err != nil {
		return nil, err
	}
	hour := res.EntryHours[len(res.EntryHours)/2]
	if latest != nil && latest.OptEntryHour != nil && containsInt(res.EntryHours, *latest.OptEntryHour) {
		hour = *latest.OptEntryHour
	}

	out := &Heatmap{Symbol: m.Symbol, EntryHour: hour}
	for _, c := range res.All {
		if c.Point.EntryHour != hour {
			continue
		}
		out.Grid = append(out.Grid, HeatmapCell{
			SLPercent:    c.Point.StopLossPercent,
			TPPercent:    c.Point.TakeProfitPercent,
			TotalReturn:  c.TotalReturnPercent,
			WinRate:      c.WinRatePercent,
			ProfitFactor: c.ProfitFactor,
			TotalTrades:  c.TotalTrades,
		})
	}

	sls, tps := s.cfg.StopLoss.Expand(), s.cfg.TakeProfit.Expand()
	for _, h := range res.EntryHours {
		c, ok := res.Cell(market.ParameterPoint{
			EntryHour:         h,
			EntryMinute:       s.cfg.EntryMinute,
			StopLossPercent:   sls[len(sls)/2],
			TakeProfitPercent: tps[len(tps)/2],
		})
		if !ok {
			continue
		}
		out.Hours = append(out.Hours, HourReturn{
			Hour:        h,
			TotalReturn: c.TotalReturnPercent,
			WinRate:     c.WinRatePercent,
			TotalTrades: c.TotalTrades,
		})
	}

	log.Debug().
		Str("symbol", m.Symbol).
		Int("entry_hour", hour).
		Int("points", res.CombosTested).
		Msg("heatmap computed")
	return out, nil
}

// Trades replays one parameter point over the lookback of a symbol with its
// configured spread.
func (s *AnalyticsService) Trades(ctx context.Context, symbol string, p market.ParameterPoint) (*TradeReport, error) {
	if p.EntryHour < 0 || p.EntryHour > 23 {
		return nil, database.NewValidationErrorWithValue("hour", "must be within [0, 23]", p.EntryHour)
	}
	if p.EntryMinute < 0 || p.EntryMinute > 59 {
		return nil, database.NewValidationErrorWithValue("minute", "must be within [0, 59]", p.EntryMinute)
	}
	if p.StopLossPercent <= 0 {
		return nil, database.NewValidationErrorWithValue("sl", "must be positive", p.StopLossPercent)
	}
	if p.TakeProfitPercent <= 0 {
		return nil, database.NewValidationErrorWithValue("tp", "must be positive", p.TakeProfitPercent)
	}

	m, err := s.market(ctx, symbol)
	if err != nil {
		return nil, err
	}
	series, err := s.series(ctx, m.Symbol)
	if err != nil {
		return nil, err
	}

	metrics, trades := backtest.Simulate(series, p, s.sessionOffset, s.cfg.Spreads[m.Symbol])
	if trades == nil {
		trades = []backtest.Trade{}
	}
	return &TradeReport{Symbol: m.Symbol, Metrics: metrics, Trades: trades}, nil
}

func (s *AnalyticsService) market(ctx context.Context, symbol string) (*market.Market, error) {
	m, err := s.universe.Get(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, database.NewNotFoundErrorWithID("market", symbol)
	}
	return m, nil
}

func (s *AnalyticsService) series(ctx context.Context, symbol string) (market.Series, error) {
	until := s.now().UTC()
	since := until.AddDate(0, 0, -s.cfg.LookbackDays)
	all, err := s.candles.LoadSeries(ctx, []string{symbol}, database.TimeframeH1, since, until)
	if err != nil {
		return market.Series{}, err
	}
	series, ok := all[symbol]
	if !ok || series.Len() == 0 {
		return market.Series{}, database.NewNotFoundErrorWithID("candles", symbol)
	}
	return series, nil
}

func weeksParam(weeks, def, limit int) (int, error) {
	if weeks == 0 {
		return def, nil
	}
	if weeks < 1 || weeks > limit {
		return 0, database.NewValidationErrorWithValue("weeks", "out of range", weeks)
	}
	return weeks, nil
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
