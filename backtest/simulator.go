// Package backtest simulates a fixed-hour long entry with percent stop-loss and
// take-profit exits across a parameter grid and selects the winning point.
package backtest

import (
	"time"

	"longentry/market"
)

// ExitReason tells how a simulated trade was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitEndOfData  ExitReason = "end_of_data"
)

// Trade is one simulated position.
type Trade struct {
	EntryTime     time.Time
	ExitTime      time.Time
	EntryPrice    float64
	ExitPrice     float64
	ReturnPercent float64
	Exit          ExitReason
}

// Metrics aggregates the trades of one grid point.
type Metrics struct {
	Point              market.ParameterPoint
	TotalReturnPercent float64
	WinRatePercent     float64
	ProfitFactor       float64
	TotalTrades        int
	Wins               int
	Losses             int
	MaxDrawdownPercent float64
}

// accumulator folds trades, in entry order, into Metrics.
type accumulator struct {
	trades    int
	wins      int
	losses    int
	grossWin  float64
	grossLoss float64
	cum       float64
	peak      float64
	maxDD     float64
}

func (a *accumulator) add(ret float64) {
	a.trades++
	switch {
	case ret > 0:
		a.wins++
		a.grossWin += ret
	case ret < 0:
		a.losses++
		a.grossLoss -= ret
	}
	a.cum += ret
	if a.cum > a.peak {
		a.peak = a.cum
	}
	if dd := a.peak - a.cum; dd > a.maxDD {
		a.maxDD = dd
	}
}

func (a *accumulator) metrics(p market.ParameterPoint) Metrics {
	m := Metrics{
		Point:              p,
		TotalReturnPercent: a.cum,
		TotalTrades:        a.trades,
		Wins:               a.wins,
		Losses:             a.losses,
		MaxDrawdownPercent: a.maxDD,
	}
	if a.trades > 0 {
		m.WinRatePercent = float64(a.wins) / float64(a.trades) * 100
	}
	switch {
	case a.trades == 0:
		m.ProfitFactor = 0
	case a.grossLoss == 0:
		m.ProfitFactor = ProfitFactorSentinel
	default:
		m.ProfitFactor = a.grossWin / a.grossLoss
		if m.ProfitFactor > ProfitFactorSentinel {
			m.ProfitFactor = ProfitFactorSentinel
		}
	}
	return m
}

// entryIndexes returns, per session day, the index of the first bar whose
// session hour equals hour.
func entryIndexes(series market.Series, hour int, offset time.Duration) []int {
	var idx []int
	var lastDay time.Time
	for i := 0; i < series.Len(); i++ {
		c := series.At(i)
		if market.SessionHour(c.OpenTime, offset) != hour {
			continue
		}
		day := market.SessionDay(c.OpenTime, offset)
		if len(idx) > 0 && day.Equal(lastDay) {
			continue
		}
		idx = append(idx, i)
		lastDay = day
	}
	return idx
}

// outcome is the exit of one entry for one (stop loss, take profit) pair.
type outcome struct {
	ret   float64
	exit  ExitReason
	at    int
	price float64
}

// resolveEntry scans forward from the bar after entry once, recording for every
// stop-loss and take-profit level the first bar that touches it. The scan ends
// as soon as every stop level or every profit level has been touched, because
// then every pair is decided.
func resolveEntry(series market.Series, entry int, price float64, sls, tps []float64) (slHit, tpHit []int) {
	slHit = make([]int, len(sls))
	tpHit = make([]int, len(tps))
	for i := range slHit {
		slHit[i] = -1
	}
	for i := range tpHit {
		tpHit[i] = -1
	}

	// sls and tps are ascending, so levels are touched from the nearest outward.
	nextSL, nextTP := 0, 0
	for j := entry + 1; j < series.Len(); j++ {
		bar := series.At(j)
		for nextSL < len(sls) && bar.Low <= price*(1-sls[nextSL]/100) {
			slHit[nextSL] = j
			nextSL++
		}
		for nextTP < len(tps) && bar.High >= price*(1+tps[nextTP]/100) {
			tpHit[nextTP] = j
			nextTP++
		}
		if nextSL == len(sls) || nextTP == len(tps) {
			break
		}
	}
	return slHit, tpHit
}

// decide picks the exit of one pair. A bar touching both levels counts as a
// stop-loss exit.
func decide(series market.Series, price, sl, tp float64, slAt, tpAt int) outcome {
	switch {
	case slAt >= 0 && (tpAt < 0 || slAt <= tpAt):
		return outcome{ret: -sl, exit: ExitStopLoss, at: slAt, price: price * (1 - sl/100)}
	case tpAt >= 0:
		return outcome{ret: tp, exit: ExitTakeProfit, at: tpAt, price: price * (1 + tp/100)}
	}
	last, _ := series.Last()
	return outcome{
		ret:   (last.Close - price) / price * 100,
		exit:  ExitEndOfData,
		at:    series.Len() - 1,
		price: last.Close,
	}
}

// simulateHour evaluates every (sl, tp) pair for one entry hour in a single
// pass over the entries. The result is indexed [sl][tp].
func simulateHour(series market.Series, entries []int, halfSpread float64, sls, tps []float64) [][]accumulator {
	acc := make([][]accumulator, len(sls))
	for i := range acc {
		acc[i] = make([]accumulator, len(tps))
	}
	for _, e := range entries {
		price := series.At(e).Close + halfSpread
		if price <= 0 {
			continue
		}
		slHit, tpHit := resolveEntry(series, e, price, sls, tps)
		for si, sl := range sls {
			for ti, tp := range tps {
				acc[si][ti].add(decide(series, price, sl, tp, slHit[si], tpHit[ti]).ret)
			}
		}
	}
	return acc
}

// Simulate runs a single parameter point and returns its metrics and trades.
// spread is the full spread in price units.
func Simulate(series market.Series, p market.ParameterPoint, sessionOffset time.Duration, spread float64) (Metrics, []Trade) {
	var acc accumulator
	var trades []Trade
	sls, tps := []float64{p.StopLossPercent}, []float64{p.TakeProfitPercent}
	for _, e := range entryIndexes(series, p.EntryHour, sessionOffset) {
		price := series.At(e).Close + spread/2
		if price <= 0 {
			continue
		}
		slHit, tpHit := resolveEntry(series, e, price, sls, tps)
		o := decide(series, price, p.StopLossPercent, p.TakeProfitPercent, slHit[0], tpHit[0])
		acc.add(o.ret)
		trades = append(trades, Trade{
			EntryTime:     series.At(e).OpenTime,
			ExitTime:      series.At(o.at).OpenTime,
			EntryPrice:    price,
			ExitPrice:     o.price,
			ReturnPercent: o.ret,
			Exit:          o.exit,
		})
	}
	return acc.metrics(p), trades
}
