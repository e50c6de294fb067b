package app

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	models "longentry/database/models_pkg"
	"longentry/engine"
	"longentry/helpers"
	"longentry/market"
	"longentry/ranking"
	"longentry/scoring"
)

// scoreBreakdown is stored in the score_breakdown JSON column.
type scoreBreakdown struct {
	Technical *techBreakdown `json:"technical,omitempty"`
	Stability *stabilityInfo `json:"stability,omitempty"`
	Override  string         `json:"override"`
}

type techBreakdown struct {
	WinRate    float64 `json:"win_rate"`
	GrowthLoss float64 `json:"growth_loss"`
	Trend      float64 `json:"trend"`
	Oscillator float64 `json:"oscillator"`
	Momentum   float64 `json:"momentum"`
	Volatility float64 `json:"volatility"`
}

type stabilityInfo struct {
	HasHistory bool `json:"has_history"`
	Weeks      int  `json:"weeks"`
	Matches    int  `json:"matches"`
}

// toRow converts a snapshot into its weekly_analysis row. Persisted figures
// are rounded with decimal arithmetic so reruns store identical values.
func toRow(s engine.Snapshot, runID string) models.WeeklyAnalysis {
	row := models.WeeklyAnalysis{
		Symbol:    s.Symbol,
		WeekStart: s.WeekStart,
		Pool:      s.Pool,
		RunID:     runID,

		TechnicalScore:    helpers.Round(s.Technical.Value, 2),
		TechnicalStatus:   string(s.Technical.Status),
		BacktestScore:     helpers.Round(s.Backtest.Value, 2),
		BacktestStatus:    string(s.Backtest.Status),
		FundamentalScore:  helpers.Round(s.Fundamental.Value, 2),
		FundamentalStatus: string(s.Fundamental.Status),
		FundamentalLabel:  s.FundamentalLabel,
		FinalScore:        helpers.Round(s.FinalScore, 2),
		Notes:             strings.Join(s.Notes, "; "),

		Rank:                 s.Rank,
		IsActive:             s.Active,
		IsManuallyOverridden: s.Overridden,
	}

	breakdown := scoreBreakdown{Override: s.Override().String()}

	if a := s.Analysis; a != nil {
		row.CandleCount = a.CandleCount
		row.DailyBarCount = a.DailyBarCount
		row.AvgDailyGrowth = helpers.Float64Ptr(helpers.Round(a.AvgDailyGrowth, 4))
		row.AvgDailyLoss = helpers.Float64Ptr(helpers.Round(a.AvgDailyLoss, 4))
		row.MostBullishDay = helpers.Float64Ptr(helpers.Round(a.MostBullishDay, 2))
		row.MostBearishDay = helpers.Float64Ptr(helpers.Round(a.MostBearishDay, 2))
		row.UpDayWinRate = helpers.Float64Ptr(helpers.Round(a.UpDayWinRate, 1))
		row.DailyRangePct = helpers.Float64Ptr(helpers.Round(a.DailyRangePct, 4))
		row.SMAShort = helpers.RoundPtr(a.SMAShort, 6)
		row.SMAMedium = helpers.RoundPtr(a.SMAMedium, 6)
		row.SMALong = helpers.RoundPtr(a.SMALong, 6)
		row.RSI = helpers.RoundPtr(a.RSI, 2)
		row.ATR = helpers.RoundPtr(a.ATR, 6)
		row.Change1W = helpers.RoundPtr(a.Change1W, 2)
		row.Change2W = helpers.RoundPtr(a.Change2W, 2)
		row.Change1M = helpers.RoundPtr(a.Change1M, 2)
		row.Change3M = helpers.RoundPtr(a.Change3M, 2)

		b := a.Breakdown
		breakdown.Technical = &techBreakdown{
			WinRate:    helpers.Round(b.WinRate, 2),
			GrowthLoss: helpers.Round(b.GrowthLoss, 2),
			Trend:      helpers.Round(b.Trend, 2),
			Oscillator: helpers.Round(b.Oscillator, 2),
			Momentum:   helpers.Round(b.Momentum, 2),
			Volatility: helpers.Round(b.Volatility, 2),
		}
	}

	if best := s.Best; best != nil {
		hour, minute, trades := best.Point.EntryHour, best.Point.EntryMinute, best.TotalTrades
		row.OptEntryHour = &hour
		row.OptEntryMinute = &minute
		row.OptSLPercent = helpers.Float64Ptr(best.Point.StopLossPercent)
		row.OptTPPercent = helpers.Float64Ptr(best.Point.TakeProfitPercent)
		row.BtTotalReturn = helpers.Float64Ptr(helpers.Round(best.TotalReturnPercent, 4))
		row.BtWinRate = helpers.Float64Ptr(helpers.Round(best.WinRatePercent, 2))
		row.BtProfitFactor = helpers.Float64Ptr(helpers.Round(best.ProfitFactor, 4))
		row.BtTotalTrades = &trades
		row.BtMaxDrawdown = helpers.Float64Ptr(helpers.Round(best.MaxDrawdownPercent, 4))
		row.BtCombosTested = s.CombosTested
	}

	if st := s.Stability; st != nil {
		row.BtParamStability = helpers.Float64Ptr(helpers.Round(st.Score, 2))
		row.ParamUnreliable = st.Unreliable
		breakdown.Stability = &stabilityInfo{HasHistory: st.HasHistory, Weeks: st.Weeks, Matches: st.Matches}
	}

	if raw, err := json.Marshal(breakdown); err == nil {
		row.ScoreBreakdown = datatypes.JSON(raw)
	}
	return row
}

// fromRow rebuilds the scored part of a snapshot from its row, enough for
// re-ranking. Analytics are not restored.
func fromRow(row models.WeeklyAnalysis, category market.Category) engine.Snapshot {
	s := engine.Snapshot{
		Symbol:           row.Symbol,
		Category:         category,
		Pool:             row.Pool,
		WeekStart:        row.WeekStart,
		Technical:        subScore(row.TechnicalScore, row.TechnicalStatus),
		Backtest:         subScore(row.BacktestScore, row.BacktestStatus),
		Fundamental:      subScore(row.FundamentalScore, row.FundamentalStatus),
		FundamentalLabel: row.FundamentalLabel,
		FinalScore:       row.FinalScore,
		Rank:             row.Rank,
	}
	o := ranking.FromFlags(row.IsManuallyOverridden, row.IsActive)
	s.Overridden = o.IsForced()
	s.Active = row.IsActive
	return s
}

// subScore restores a stored sub-score. Rows written before any run, such as
// override placeholders, have no status and count as missing price data.
func subScore(value float64, status string) scoring.SubScore {
	st := scoring.Status(status)
	if st == "" {
		st = scoring.StatusInsufficientData
	}
	if st != scoring.StatusComputed {
		return scoring.Missing(st)
	}
	return scoring.Computed(value)
}

// withOverride applies an override state to a snapshot before ranking.
func withOverride(s engine.Snapshot, o ranking.Override) engine.Snapshot {
	s.Overridden = o.IsForced()
	if o.IsForced() {
		s.Active = o.Active()
	}
	return s
}
