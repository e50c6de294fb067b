// Package indicators computes per-symbol technical analytics and the
// composite technical score from hourly candles rolled into session days.
package indicators

import (
	"fmt"
	"math"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"

	"longentry/helpers"
	"longentry/market"
)

// Trading-day lookbacks for the price change analytics.
const (
	daysOneWeek    = 5
	daysTwoWeeks   = 10
	daysOneMonth   = 22
	daysThreeMonth = 66
)

// Report is the full technical analysis of one symbol.
// Nullable fields are nil when the history is too short for them.
type Report struct {
	CandleCount   int
	DailyBarCount int
	LastClose     float64

	AvgDailyGrowth float64
	AvgDailyLoss   float64
	MostBullishDay float64
	MostBearishDay float64
	UpDayWinRate   float64
	DailyRangePct  float64

	SMAShort  *float64
	SMAMedium *float64
	SMALong   *float64
	RSI       *float64
	ATR       *float64

	Change1W *float64
	Change2W *float64
	Change1M *float64
	Change3M *float64

	Breakdown Breakdown
	Score     float64
}

// Calculator computes technical reports. It holds no mutable state and is
// safe for concurrent use.
type Calculator struct {
	cfg    Config
	offset time.Duration
}

// NewCalculator creates a calculator using sessionOffset as the day boundary shift.
func NewCalculator(cfg Config, sessionOffset time.Duration) *Calculator {
	return &Calculator{cfg: cfg, offset: sessionOffset}
}

// Compute analyzes the series. It returns market.ErrInsufficientData when the
// series has fewer than the configured number of daily bars.
func (c *Calculator) Compute(series market.Series) (*Report, error) {
	daily := series.DailyBars(c.offset)
	if len(daily) < c.cfg.MinDailyBars {
		return nil, fmt.Errorf("%s: %d daily bars, need %d: %w",
			series.Symbol(), len(daily), c.cfg.MinDailyBars, market.ErrInsufficientData)
	}

	last, _ := series.Last()
	r := &Report{
		CandleCount:   series.Len(),
		DailyBarCount: len(daily),
		LastClose:     last.Close,
	}

	dailyStats(r, daily, dayReturns(daily, c.cfg.DailyReturn))

	ts := toTimeSeries(daily)
	closes := techan.NewClosePriceIndicator(ts)
	lastIdx := len(daily) - 1

	r.SMAShort = sma(closes, lastIdx, c.cfg.SMAShort)
	r.SMAMedium = sma(closes, lastIdx, c.cfg.SMAMedium)
	r.SMALong = sma(closes, lastIdx, c.cfg.SMALong)
	r.RSI = rsi(closes, daily, lastIdx, c.cfg.RSIPeriod)
	r.ATR = atr(ts, lastIdx, c.cfg.ATRPeriod)

	r.Change1W = priceChange(daily, daysOneWeek)
	r.Change2W = priceChange(daily, daysTwoWeeks)
	r.Change1M = priceChange(daily, daysOneMonth)
	r.Change3M = priceChange(daily, daysThreeMonth)

	r.Breakdown = breakdown(r)
	r.Score = r.Breakdown.Blend(c.cfg.Weights)
	return r, nil
}

// dayReturns lists the day returns in percent. Close-to-close skips the
// first day, which has no previous close.
func dayReturns(daily []market.DailyBar, mode string) []float64 {
	if mode == ReturnOpenToClose {
		out := make([]float64, len(daily))
		for i, d := range daily {
			out[i] = d.IntradayReturn()
		}
		return out
	}
	if len(daily) < 2 {
		return nil
	}
	out := make([]float64, 0, len(daily)-1)
	for i := 1; i < len(daily); i++ {
		out = append(out, daily[i].Return(daily[i-1]))
	}
	return out
}

func dailyStats(r *Report, daily []market.DailyBar, returns []float64) {
	var gains, losses, ranges []float64
	for i, ret := range returns {
		switch {
		case ret > 0:
			gains = append(gains, ret)
		case ret < 0:
			losses = append(losses, ret)
		}
		if i == 0 || ret > r.MostBullishDay {
			r.MostBullishDay = ret
		}
		if i == 0 || ret < r.MostBearishDay {
			r.MostBearishDay = ret
		}
	}
	for _, d := range daily {
		ranges = append(ranges, d.RangePercent())
	}

	r.AvgDailyGrowth = helpers.Mean(gains)
	r.AvgDailyLoss = helpers.Mean(losses)
	if len(returns) > 0 {
		r.UpDayWinRate = float64(len(gains)) / float64(len(returns)) * 100
	}
	r.DailyRangePct = helpers.Mean(ranges)
}

func toTimeSeries(daily []market.DailyBar) *techan.TimeSeries {
	ts := techan.NewTimeSeries()
	for _, d := range daily {
		candle := techan.NewCandle(techan.NewTimePeriod(d.Day, 24*time.Hour))
		candle.OpenPrice = big.NewDecimal(d.Open)
		candle.ClosePrice = big.NewDecimal(d.Close)
		candle.MaxPrice = big.NewDecimal(d.High)
		candle.MinPrice = big.NewDecimal(d.Low)
		candle.Volume = big.NewDecimal(d.Volume)
		ts.AddCandle(candle)
	}
	return ts
}

func sma(closes techan.Indicator, lastIdx, window int) *float64 {
	if lastIdx+1 < window {
		return nil
	}
	v := techan.NewSimpleMovingAverage(closes, window).Calculate(lastIdx).Float()
	return &v
}

// rsi needs period+1 closes. A one-sided history has no average loss (or gain)
// and is resolved to the bounds directly.
func rsi(closes techan.Indicator, daily []market.DailyBar, lastIdx, period int) *float64 {
	if lastIdx < period {
		return nil
	}
	var up, down bool
	for i := 1; i < len(daily); i++ {
		switch {
		case daily[i].Close > daily[i-1].Close:
			up = true
		case daily[i].Close < daily[i-1].Close:
			down = true
		}
	}
	var v float64
	switch {
	case !up && !down:
		v = 50
	case !down:
		v = 100
	case !up:
		v = 0
	default:
		v = techan.NewRelativeStrengthIndexIndicator(closes, period).Calculate(lastIdx).Float()
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func atr(ts *techan.TimeSeries, lastIdx, period int) *float64 {
	if lastIdx < period {
		return nil
	}
	v := techan.NewAverageTrueRangeIndicator(ts, period).Calculate(lastIdx).Float()
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func priceChange(daily []market.DailyBar, days int) *float64 {
	if len(daily) < days+1 {
		return nil
	}
	current := daily[len(daily)-1].Close
	past := daily[len(daily)-1-days].Close
	if past == 0 {
		return nil
	}
	v := (current - past) / past * 100
	return &v
}
