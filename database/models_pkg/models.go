package models

import (
	"time"

	"gorm.io/datatypes"
)

// Market is one tradable symbol of the universe.
//
// Key Fields:
//   - Symbol: broker symbol, primary key
//   - Category: commodity, index or stock; decides the activation pool
//   - Region: macro region used by the fundamental scorer
//   - IsInUniverse: only universe members are evaluated by the weekly run
type Market struct {
	Symbol       string    `gorm:"size:20;primaryKey" json:"symbol"`
	Name         string    `gorm:"size:100" json:"name"`
	Category     string    `gorm:"size:20;not null;index" json:"category"`
	Region       string    `gorm:"size:20" json:"region"`
	IsInUniverse bool      `gorm:"not null;default:true" json:"is_in_universe"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for Market
func (Market) TableName() string {
	return "markets"
}

// Candle is one OHLCV bar uploaded by the trading clients. Candles are
// append-only; the composite primary key rejects duplicates.
type Candle struct {
	Symbol    string    `gorm:"size:20;primaryKey" json:"symbol"`
	Timeframe string    `gorm:"size:5;primaryKey" json:"timeframe"`
	OpenTime  time.Time `gorm:"primaryKey" json:"open_time"`
	Open      float64   `gorm:"type:double precision;not null" json:"open"`
	High      float64   `gorm:"type:double precision;not null" json:"high"`
	Low       float64   `gorm:"type:double precision;not null" json:"low"`
	Close     float64   `gorm:"type:double precision;not null" json:"close"`
	Volume    float64   `gorm:"type:double precision" json:"volume"`
}

// TableName specifies the table name for Candle
func (Candle) TableName() string {
	return "candles"
}

// WeeklyAnalysis is the weekly snapshot of one symbol: analytics, winning
// backtest parameters, the three sub-scores, rank and activation.
//
// Key Fields:
//   - Symbol, WeekStart: composite primary key, one row per symbol and week
//   - *Status: computed, insufficient_data, computation_timeout or
//     external_score_unavailable; a degraded score is stored as 0 with its status
//   - IsManuallyOverridden: freezes IsActive against the ranking controller
//   - Version: incremented on every write, used for optimistic concurrency
type WeeklyAnalysis struct {
	Symbol    string    `gorm:"size:20;primaryKey" json:"symbol"`
	WeekStart time.Time `gorm:"type:date;primaryKey" json:"week_start"`
	Pool      string    `gorm:"size:40;index" json:"pool"`
	RunID     string    `gorm:"size:36" json:"run_id,omitempty"`

	// Technical analytics
	AvgDailyGrowth *float64 `gorm:"type:decimal(10,4)" json:"avg_daily_growth"`
	AvgDailyLoss   *float64 `gorm:"type:decimal(10,4)" json:"avg_daily_loss"`
	MostBullishDay *float64 `gorm:"type:decimal(10,2)" json:"most_bullish_day"`
	MostBearishDay *float64 `gorm:"type:decimal(10,2)" json:"most_bearish_day"`
	UpDayWinRate   *float64 `gorm:"type:decimal(5,1)" json:"up_day_win_rate"`
	SMAShort       *float64 `gorm:"column:sma_short" json:"sma_short"`
	SMAMedium      *float64 `gorm:"column:sma_medium" json:"sma_medium"`
	SMALong        *float64 `gorm:"column:sma_long" json:"sma_long"`
	RSI            *float64 `gorm:"column:rsi" json:"rsi"`
	ATR            *float64 `gorm:"column:atr" json:"atr"`
	DailyRangePct  *float64 `json:"daily_range_pct"`
	Change1W       *float64 `gorm:"column:change_1w" json:"change_1w"`
	Change2W       *float64 `gorm:"column:change_2w" json:"change_2w"`
	Change1M       *float64 `gorm:"column:change_1m" json:"change_1m"`
	Change3M       *float64 `gorm:"column:change_3m" json:"change_3m"`
	CandleCount    int      `json:"candle_count"`
	DailyBarCount  int      `json:"daily_bar_count"`

	// Winning backtest parameters and metrics
	OptEntryHour     *int     `json:"opt_entry_hour"`
	OptEntryMinute   *int     `json:"opt_entry_minute"`
	OptSLPercent     *float64 `gorm:"column:opt_sl_percent" json:"opt_sl_percent"`
	OptTPPercent     *float64 `gorm:"column:opt_tp_percent" json:"opt_tp_percent"`
	BtTotalReturn    *float64 `json:"bt_total_return"`
	BtWinRate        *float64 `json:"bt_win_rate"`
	BtProfitFactor   *float64 `json:"bt_profit_factor"`
	BtTotalTrades    *int     `json:"bt_total_trades"`
	BtMaxDrawdown    *float64 `json:"bt_max_drawdown"`
	BtCombosTested   int      `json:"bt_combos_tested"`
	BtParamStability *float64 `json:"bt_param_stability"`
	ParamUnreliable  bool     `gorm:"not null;default:false" json:"param_unreliable"`

	// Scores
	TechnicalScore    float64        `gorm:"type:decimal(5,2);not null;default:0" json:"technical_score"`
	TechnicalStatus   string         `gorm:"size:32" json:"technical_status"`
	BacktestScore     float64        `gorm:"type:decimal(5,2);not null;default:0" json:"backtest_score"`
	BacktestStatus    string         `gorm:"size:32" json:"backtest_status"`
	FundamentalScore  float64        `gorm:"type:decimal(5,2);not null;default:0" json:"fundamental_score"`
	FundamentalStatus string         `gorm:"size:32" json:"fundamental_status"`
	FundamentalLabel  string         `gorm:"size:10" json:"fundamental_label,omitempty"`
	FinalScore        float64        `gorm:"type:decimal(5,2);not null;default:0;index" json:"final_score"`
	ScoreBreakdown    datatypes.JSON `json:"score_breakdown,omitempty"`
	Notes             string         `gorm:"type:text" json:"notes,omitempty"`

	// Activation
	Rank                 int  `gorm:"not null;default:0" json:"rank"`
	IsActive             bool `gorm:"not null;default:false" json:"is_active"`
	IsManuallyOverridden bool `gorm:"not null;default:false" json:"is_manually_overridden"`

	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for WeeklyAnalysis
func (WeeklyAnalysis) TableName() string {
	return "weekly_analysis"
}

// WeeklyResult is the realized performance of a symbol in a past week,
// reported by the trading clients.
type WeeklyResult struct {
	Symbol          string    `gorm:"size:20;primaryKey" json:"symbol"`
	WeekStart       time.Time `gorm:"type:date;primaryKey" json:"week_start"`
	WasActive       bool      `json:"was_active"`
	TradesTaken     int       `json:"trades_taken"`
	Wins            int       `json:"wins"`
	Losses          int       `json:"losses"`
	TotalPnlPercent float64   `gorm:"type:decimal(10,4)" json:"total_pnl_percent"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for WeeklyResult
func (WeeklyResult) TableName() string {
	return "weekly_results"
}

// FundamentalScore is the latest macro score of a symbol.
type FundamentalScore struct {
	Symbol    string    `gorm:"size:20;primaryKey" json:"symbol"`
	Score     float64   `gorm:"type:decimal(5,1);not null" json:"score"`
	Label     string    `gorm:"size:10;not null" json:"label"`
	Source    string    `gorm:"size:20" json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for FundamentalScore
func (FundamentalScore) TableName() string {
	return "fundamental_scores"
}

// RegionOutlook is the operator-maintained macro view of a region.
// Every stance column holds -1, 0 or 1.
type RegionOutlook struct {
	Region         string    `gorm:"size:20;primaryKey" json:"region"`
	CBStance       int       `gorm:"column:cb_stance;not null;default:0" json:"cb_stance"`
	GrowthOutlook  int       `gorm:"not null;default:0" json:"growth_outlook"`
	InflationTrend int       `gorm:"not null;default:0" json:"inflation_trend"`
	RiskSentiment  int       `gorm:"not null;default:0" json:"risk_sentiment"`
	Notes          string    `gorm:"type:text" json:"notes,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for RegionOutlook
func (RegionOutlook) TableName() string {
	return "fundamental_outlook"
}

// EconomicEvent is one calendar entry. High-impact events lower the
// fundamental score of their region for the week.
type EconomicEvent struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Region      string    `gorm:"size:20;not null;index:idx_event_region_date" json:"region"`
	EventDate   time.Time `gorm:"type:date;not null;index:idx_event_region_date" json:"event_date"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Impact      string    `gorm:"size:10;not null;default:medium" json:"impact"` // high, medium, low
	Description string    `gorm:"type:text" json:"description,omitempty"`
}

// TableName specifies the table name for EconomicEvent
func (EconomicEvent) TableName() string {
	return "economic_events"
}

// PoolSetting stores the operator's cap and threshold for a pool. A row
// here wins over the configured pool values.
type PoolSetting struct {
	Pool      string    `gorm:"size:40;primaryKey" json:"pool"`
	MaxActive int       `gorm:"not null" json:"max_active"`
	MinScore  float64   `gorm:"type:decimal(5,2);not null" json:"min_score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for PoolSetting
func (PoolSetting) TableName() string {
	return "pool_settings"
}
