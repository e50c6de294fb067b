package market

import "fmt"

// ParameterPoint is one combination of the backtest grid. It is a value type:
// two points are the same point when all fields are equal.
type ParameterPoint struct {
	EntryHour         int     `json:"entry_hour" yaml:"entry_hour"`
	EntryMinute       int     `json:"entry_minute" yaml:"entry_minute"`
	StopLossPercent   float64 `json:"stop_loss_percent" yaml:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent" yaml:"take_profit_percent"`
}

// Compare orders points lexicographically by hour, minute, stop loss, take profit.
// It returns -1, 0 or 1.
func (p ParameterPoint) Compare(o ParameterPoint) int {
	switch {
	case p.EntryHour != o.EntryHour:
		return cmpInt(p.EntryHour, o.EntryHour)
	case p.EntryMinute != o.EntryMinute:
		return cmpInt(p.EntryMinute, o.EntryMinute)
	case p.StopLossPercent != o.StopLossPercent:
		return cmpFloat(p.StopLossPercent, o.StopLossPercent)
	case p.TakeProfitPercent != o.TakeProfitPercent:
		return cmpFloat(p.TakeProfitPercent, o.TakeProfitPercent)
	}
	return 0
}

// Less reports whether p sorts before o.
func (p ParameterPoint) Less(o ParameterPoint) bool {
	return p.Compare(o) < 0
}

func (p ParameterPoint) String() string {
	return fmt.Sprintf("%02d:%02d SL %.2f%% TP %.2f%%", p.EntryHour, p.EntryMinute, p.StopLossPercent, p.TakeProfitPercent)
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}

func cmpFloat(a, b float64) int {
	if a < b {
		return -1
	}
	return 1
}
