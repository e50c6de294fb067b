package indicators

import (
	"math"

	"longentry/helpers"
)

const neutralSubScore = 50.0

// Breakdown holds the normalized sub-scores of the technical score, each in [0, 100].
type Breakdown struct {
	WinRate    float64 `json:"win_rate"`
	GrowthLoss float64 `json:"growth_loss"`
	Trend      float64 `json:"trend"`
	Oscillator float64 `json:"oscillator"`
	Momentum   float64 `json:"momentum"`
	Volatility float64 `json:"volatility"`
}

// Blend combines the sub-scores with the weight table. The result is
// non-decreasing in every sub-score because all weights are non-negative.
func (b Breakdown) Blend(w TechnicalWeights) float64 {
	total := b.WinRate*w.WinRate +
		b.GrowthLoss*w.GrowthLoss +
		b.Trend*w.Trend +
		b.Oscillator*w.Oscillator +
		b.Momentum*w.Momentum +
		b.Volatility*w.Volatility
	return helpers.Clamp100(total)
}

// breakdown normalizes the raw analytics of a report into sub-scores.
func breakdown(r *Report) Breakdown {
	var b Breakdown

	// Up-day win rate: 45% maps to 0, 65% maps to 100.
	b.WinRate = helpers.Clamp100((r.UpDayWinRate - 45) / 20 * 100)

	// Growth/loss ratio: 0.5 maps to 0, 2.0 maps to 100.
	if r.AvgDailyLoss != 0 {
		ratio := math.Abs(r.AvgDailyGrowth / r.AvgDailyLoss)
		b.GrowthLoss = helpers.Clamp100((ratio - 0.5) / 1.5 * 100)
	} else {
		b.GrowthLoss = neutralSubScore
	}

	price := r.LastClose
	if r.SMAShort != nil && price > *r.SMAShort {
		b.Trend += 33
	}
	if r.SMAMedium != nil && price > *r.SMAMedium {
		b.Trend += 33
	}
	if r.SMALong != nil && price > *r.SMALong {
		b.Trend += 34
	}

	b.Oscillator = oscillatorBand(r.RSI)

	// Momentum: 1w and 1m changes, roughly -5%..+5% mapped onto 0..100.
	m1w, m1m := 0.0, 0.0
	if r.Change1W != nil {
		m1w = *r.Change1W
	}
	if r.Change1M != nil {
		m1m = *r.Change1M
	}
	b.Momentum = helpers.Clamp100(50 + (m1w*0.4+m1m*0.6)*10)

	b.Volatility = volatilityBand(r.ATR, price)
	return b
}

// oscillatorBand rewards a moderate RSI, peaking at 52.5 inside 40..65.
func oscillatorBand(rsi *float64) float64 {
	if rsi == nil {
		return neutralSubScore
	}
	v := *rsi
	switch {
	case v >= 40 && v <= 65:
		return 100 - math.Abs(v-52.5)/12.5*30
	case v < 40:
		return helpers.Clamp100(v / 40 * 70)
	default:
		return helpers.Clamp100(100 - (v-65)*3)
	}
}

// volatilityBand rewards a daily ATR between 0.5% and 2.0% of price.
func volatilityBand(atr *float64, price float64) float64 {
	if atr == nil || price <= 0 {
		return neutralSubScore
	}
	pct := *atr / price * 100
	switch {
	case pct >= 0.5 && pct <= 2.0:
		return 100 - math.Abs(pct-1.25)/0.75*30
	case pct < 0.5:
		return helpers.Clamp100(pct / 0.5 * 70)
	default:
		return helpers.Clamp100(100 - (pct-2.0)*25)
	}
}
