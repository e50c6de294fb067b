package market

import "time"

// DailyBar aggregates the hourly bars of one session day.
type DailyBar struct {
	Day    time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Bars   int
}

// Return is the close-to-close return of the day in percent: against the
// close of prev, the previous session day.
func (d DailyBar) Return(prev DailyBar) float64 {
	if prev.Close == 0 {
		return 0
	}
	return (d.Close/prev.Close - 1) * 100
}

// IntradayReturn is the simple open-to-close return of the day in percent.
func (d DailyBar) IntradayReturn() float64 {
	if d.Open == 0 {
		return 0
	}
	return (d.Close - d.Open) / d.Open * 100
}

// RangePercent is (high-low)/open in percent.
func (d DailyBar) RangePercent() float64 {
	if d.Open == 0 {
		return 0
	}
	return (d.High - d.Low) / d.Open * 100
}

// DailyBars rolls the series into session days. The day boundary is midnight on
// the session clock, i.e. open time plus offset.
func (s Series) DailyBars(offset time.Duration) []DailyBar {
	var bars []DailyBar
	for _, c := range s.candles {
		day := SessionDay(c.OpenTime, offset)
		n := len(bars)
		if n == 0 || !bars[n-1].Day.Equal(day) {
			bars = append(bars, DailyBar{
				Day:    day,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
				Bars:   1,
			})
			continue
		}
		b := &bars[n-1]
		if c.High > b.High {
			b.High = c.High
		}
		if c.Low < b.Low {
			b.Low = c.Low
		}
		b.Close = c.Close
		b.Volume += c.Volume
		b.Bars++
	}
	return bars
}
