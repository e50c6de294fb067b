package market

import (
	"sort"
	"time"
)

// Candle is one hourly OHLCV bar. OpenTime is stored in UTC.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Series is an open-time ordered, read-only candle history for one symbol.
type Series struct {
	symbol  string
	candles []Candle
}

// NewSeries copies the candles, sorts them by open time and drops duplicate
// open times, keeping the last occurrence. Gaps are kept as they are.
func NewSeries(symbol string, candles []Candle) Series {
	cp := make([]Candle, len(candles))
	copy(cp, candles)
	for i := range cp {
		cp[i].OpenTime = cp[i].OpenTime.UTC()
	}
	sort.SliceStable(cp, func(i, j int) bool {
		return cp[i].OpenTime.Before(cp[j].OpenTime)
	})

	out := cp[:0]
	for _, c := range cp {
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(c.OpenTime) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return Series{symbol: symbol, candles: out}
}

// Symbol returns the market symbol of the series.
func (s Series) Symbol() string { return s.symbol }

// Len returns the number of candles.
func (s Series) Len() int { return len(s.candles) }

// At returns the i-th candle.
func (s Series) At(i int) Candle { return s.candles[i] }

// Candles returns a copy of the underlying candles.
func (s Series) Candles() []Candle {
	cp := make([]Candle, len(s.candles))
	copy(cp, s.candles)
	return cp
}

// Last returns the most recent candle and false when the series is empty.
func (s Series) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Since returns the sub-series starting at the first candle opening at or after t.
func (s Series) Since(t time.Time) Series {
	idx := sort.Search(len(s.candles), func(i int) bool {
		return !s.candles[i].OpenTime.Before(t)
	})
	return Series{symbol: s.symbol, candles: s.candles[idx:]}
}

// SessionHour returns the hour of the candle on the session clock.
func SessionHour(openTime time.Time, offset time.Duration) int {
	return openTime.UTC().Add(offset).Hour()
}

// SessionDay returns midnight UTC of the session day the candle belongs to.
func SessionDay(openTime time.Time, offset time.Duration) time.Time {
	t := openTime.UTC().Add(offset)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
