package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourly(start time.Time, closes ...float64) []Candle {
	out := make([]Candle, len(closes))
	for i, c := range closes {
		out[i] = Candle{OpenTime: start.Add(time.Duration(i) * time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

func TestNewSeriesSortsAndDeduplicates(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		{OpenTime: t0.Add(2 * time.Hour), Close: 3},
		{OpenTime: t0, Close: 1},
		{OpenTime: t0.Add(time.Hour), Close: 2},
		{OpenTime: t0.Add(time.Hour), Close: 20},
	}

	s := NewSeries("XAUUSD", candles)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, 1.0, s.At(0).Close)
	assert.Equal(t, 20.0, s.At(1).Close, "last duplicate wins")
	assert.Equal(t, 3.0, s.At(2).Close)

	candles[1].Close = 99
	assert.Equal(t, 1.0, s.At(0).Close, "series must not alias input")
}

func TestSeriesSince(t *testing.T) {
	t0 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	s := NewSeries("US500", hourly(t0, 1, 2, 3, 4))

	sub := s.Since(t0.Add(2 * time.Hour))
	require.Equal(t, 2, sub.Len())
	assert.Equal(t, 3.0, sub.At(0).Close)
	assert.Equal(t, 0, s.Since(t0.Add(10*time.Hour)).Len())
}

func TestDailyBarsSessionOffset(t *testing.T) {
	// 22:00 UTC to 01:00 UTC: two days in UTC, one day at UTC+2.
	t0 := time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC)
	s := NewSeries("GER40", hourly(t0, 10, 11, 12, 13))

	tests := []struct {
		name   string
		offset time.Duration
		days   int
	}{
		{"utc", 0, 2},
		{"utc+2", 2 * time.Hour, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := s.DailyBars(tt.offset)
			require.Len(t, bars, tt.days)
		})
	}

	bars := s.DailyBars(2 * time.Hour)
	assert.Equal(t, 10.0, bars[0].Open)
	assert.Equal(t, 13.0, bars[0].Close)
	assert.Equal(t, 14.0, bars[0].High)
	assert.Equal(t, 9.0, bars[0].Low)
	assert.Equal(t, 4, bars[0].Bars)
	assert.Equal(t, 40.0, bars[0].Volume)
	assert.InDelta(t, 30.0, bars[0].IntradayReturn(), 1e-9)
	assert.InDelta(t, 30.0, bars[0].Return(DailyBar{Close: 10}), 1e-9)
	assert.Zero(t, bars[0].Return(DailyBar{}))
	assert.Equal(t, 0, SessionHour(t0, 2*time.Hour))
}

func TestParameterPointCompare(t *testing.T) {
	a := ParameterPoint{EntryHour: 8, StopLossPercent: 0.5, TakeProfitPercent: 1}
	b := ParameterPoint{EntryHour: 8, StopLossPercent: 0.5, TakeProfitPercent: 2}
	c := ParameterPoint{EntryHour: 9, StopLossPercent: 0.3, TakeProfitPercent: 0.5}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, 1, c.Compare(a))
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory(" Index ")
	assert.True(t, ok)
	assert.Equal(t, CategoryIndex, c)

	_, ok = ParseCategory("crypto")
	assert.False(t, ok)
}
