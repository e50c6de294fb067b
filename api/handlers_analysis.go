package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"longentry/app"
	"longentry/backtest"
	models "longentry/database/models_pkg"
	"longentry/market"
)

type analysisResponse struct {
	WeekStart string                  `json:"week_start,omitempty"`
	Count     int                     `json:"count"`
	Rows      []models.WeeklyAnalysis `json:"rows"`
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	week, err := getWeekParam(r, "week")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "week must be YYYY-MM-DD", err)
		return
	}
	week, rows, err := s.deps.Query.Analysis(r.Context(), week, r.URL.Query().Get("pool"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	resp := analysisResponse{Count: len(rows), Rows: rows}
	if !week.IsZero() {
		resp.WeekStart = week.Format(time.DateOnly)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

type resultRequest struct {
	Symbol          string  `json:"symbol"`
	WeekStart       string  `json:"week_start"`
	WasActive       bool    `json:"was_active"`
	TradesTaken     int     `json:"trades_taken"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	TotalPnlPercent float64 `json:"total_pnl_percent"`
}

// handleSaveResult records the realized outcome of a week, reported by a
// trading client.
func (s *Server) handleSaveResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if !decodeBody(w, r, &req) {
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		respondWithError(w, http.StatusBadRequest, "symbol is required", nil)
		return
	}
	week, err := app.ParseWeek(req.WeekStart)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "week_start must be YYYY-MM-DD", err)
		return
	}
	if req.TradesTaken < 0 || req.Wins < 0 || req.Losses < 0 || req.Wins+req.Losses > req.TradesTaken {
		respondWithError(w, http.StatusBadRequest, "inconsistent trade counts", nil)
		return
	}

	res := &models.WeeklyResult{
		Symbol:          symbol,
		WeekStart:       week,
		WasActive:       req.WasActive,
		TradesTaken:     req.TradesTaken,
		Wins:            req.Wins,
		Losses:          req.Losses,
		TotalPnlPercent: req.TotalPnlPercent,
	}
	if err := s.deps.Results.Save(r.Context(), res); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	week, err := getWeekParam(r, "week")
	if err != nil || week.IsZero() {
		respondWithError(w, http.StatusBadRequest, "week must be YYYY-MM-DD", err)
		return
	}
	rows, err := s.deps.Results.ListWeek(r.Context(), week)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"week_start": week.Format(time.DateOnly),
		"count":      len(rows),
		"results":    rows,
	})
}

// historyRecord is one stored week of a symbol as charted by operators.
type historyRecord struct {
	Symbol           string   `json:"symbol"`
	WeekStart        string   `json:"week_start"`
	Pool             string   `json:"pool"`
	TechnicalScore   float64  `json:"technical_score"`
	BacktestScore    float64  `json:"backtest_score"`
	FundamentalScore float64  `json:"fundamental_score"`
	FinalScore       float64  `json:"final_score"`
	Rank             int      `json:"rank"`
	IsActive         bool     `json:"is_active"`
	OptEntryHour     *int     `json:"opt_entry_hour"`
	OptSLPercent     *float64 `json:"opt_sl_percent"`
	OptTPPercent     *float64 `json:"opt_tp_percent"`
	BtTotalReturn    *float64 `json:"bt_total_return"`
	BtWinRate        *float64 `json:"bt_win_rate"`
	BtMaxDrawdown    *float64 `json:"bt_max_drawdown"`
}

func toHistory(rows []models.WeeklyAnalysis) []historyRecord {
	out := make([]historyRecord, len(rows))
	for i, r := range rows {
		out[i] = historyRecord{
			Symbol:           r.Symbol,
			WeekStart:        r.WeekStart.Format(time.DateOnly),
			Pool:             r.Pool,
			TechnicalScore:   r.TechnicalScore,
			BacktestScore:    r.BacktestScore,
			FundamentalScore: r.FundamentalScore,
			FinalScore:       r.FinalScore,
			Rank:             r.Rank,
			IsActive:         r.IsActive,
			OptEntryHour:     r.OptEntryHour,
			OptSLPercent:     r.OptSLPercent,
			OptTPPercent:     r.OptTPPercent,
			BtTotalReturn:    r.BtTotalReturn,
			BtWinRate:        r.BtWinRate,
			BtMaxDrawdown:    r.BtMaxDrawdown,
		}
	}
	return out
}

func (s *Server) handleGetSymbolHistory(w http.ResponseWriter, r *http.Request) {
	weeks, ok := intParam(w, r, "weeks")
	if !ok {
		return
	}
	rows, err := s.deps.Analytics.History(r.Context(), symbolParam(r), weeks)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toHistory(rows))
}

func (s *Server) handleGetRecentHistory(w http.ResponseWriter, r *http.Request) {
	weeks, ok := intParam(w, r, "weeks")
	if !ok {
		return
	}
	rows, err := s.deps.Analytics.RecentHistory(r.Context(), weeks)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toHistory(rows))
}

// handleGetHeatmap sweeps the SL x TP grid of a symbol on demand.
func (s *Server) handleGetHeatmap(w http.ResponseWriter, r *http.Request) {
	hm, err := s.deps.Analytics.Heatmap(r.Context(), symbolParam(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, hm)
}

type tradeRecord struct {
	EntryTime     time.Time `json:"entry_time"`
	ExitTime      time.Time `json:"exit_time"`
	EntryPrice    float64   `json:"entry_price"`
	ExitPrice     float64   `json:"exit_price"`
	ReturnPercent float64   `json:"return_percent"`
	Exit          string    `json:"exit"`
}

type tradesResponse struct {
	Symbol       string                `json:"symbol"`
	Point        market.ParameterPoint `json:"point"`
	TotalReturn  float64               `json:"total_return"`
	WinRate      float64               `json:"win_rate"`
	ProfitFactor float64               `json:"profit_factor"`
	MaxDrawdown  float64               `json:"max_drawdown"`
	TotalTrades  int                   `json:"total_trades"`
	Trades       []tradeRecord         `json:"trades"`
}

// handleGetTrades replays one parameter point and lists its simulated trades.
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hour, err := strconv.Atoi(q.Get("hour"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "hour must be an integer", err)
		return
	}
	minute, ok := intParam(w, r, "minute")
	if !ok {
		return
	}
	sl, err := strconv.ParseFloat(q.Get("sl"), 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "sl must be a number", err)
		return
	}
	tp, err := strconv.ParseFloat(q.Get("tp"), 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "tp must be a number", err)
		return
	}

	rep, err := s.deps.Analytics.Trades(r.Context(), symbolParam(r), market.ParameterPoint{
		EntryHour:         hour,
		EntryMinute:       minute,
		StopLossPercent:   sl,
		TakeProfitPercent: tp,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, toTradesResponse(rep))
}

func toTradesResponse(rep *app.TradeReport) tradesResponse {
	m := rep.Metrics
	resp := tradesResponse{
		Symbol:       rep.Symbol,
		Point:        m.Point,
		TotalReturn:  m.TotalReturnPercent,
		WinRate:      m.WinRatePercent,
		ProfitFactor: m.ProfitFactor,
		MaxDrawdown:  m.MaxDrawdownPercent,
		TotalTrades:  m.TotalTrades,
		Trades:       make([]tradeRecord, len(rep.Trades)),
	}
	for i, t := range rep.Trades {
		resp.Trades[i] = toTradeRecord(t)
	}
	return resp
}

func toTradeRecord(t backtest.Trade) tradeRecord {
	return tradeRecord{
		EntryTime:     t.EntryTime,
		ExitTime:      t.ExitTime,
		EntryPrice:    t.EntryPrice,
		ExitPrice:     t.ExitPrice,
		ReturnPercent: t.ReturnPercent,
		Exit:          string(t.Exit),
	}
}
