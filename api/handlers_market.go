package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"longentry/database"
	"longentry/market"
)

type candleUpload struct {
	Timeframe string      `json:"timeframe"`
	Candles   []candleDTO `json:"candles"`
}

type candleDTO struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

func (c candleDTO) valid() bool {
	return !c.Time.IsZero() && c.Low > 0 && c.High >= c.Low &&
		c.Open >= c.Low && c.Open <= c.High && c.Close >= c.Low && c.Close <= c.High
}

// handleUploadCandles stores bars pushed by a trading client. Bars already
// stored are ignored.
func (s *Server) handleUploadCandles(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	var req candleUpload
	if !decodeBody(w, r, &req) {
		return
	}
	tf := strings.ToUpper(strings.TrimSpace(req.Timeframe))
	if tf == "" {
		tf = database.TimeframeH1
	}
	if tf != database.TimeframeH1 && tf != database.TimeframeD1 {
		respondWithError(w, http.StatusBadRequest, "timeframe must be H1 or D1", nil)
		return
	}

	bars := make([]market.Candle, 0, len(req.Candles))
	for i, c := range req.Candles {
		if !c.valid() {
			respondWithError(w, http.StatusBadRequest, "invalid candle at index "+strconv.Itoa(i), nil)
			return
		}
		bars = append(bars, market.Candle{
			OpenTime: c.Time.UTC(),
			Open:     c.Open,
			High:     c.High,
			Low:      c.Low,
			Close:    c.Close,
			Volume:   c.Volume,
		})
	}

	inserted, err := s.deps.Candles.UpsertCandles(r.Context(), symbol, tf, bars)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"received": len(bars),
		"inserted": inserted,
	})
}
