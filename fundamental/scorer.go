// Package fundamental produces the macro fundamental score per symbol from
// regional outlooks and the economic calendar, and serves the latest scores
// to the weekly run with a last-known-value fallback.
package fundamental

import (
	"fmt"
	"math"
	"time"

	"longentry/helpers"
)

// Labels derived from a score.
const (
	LabelBullish = "bullish"
	LabelNeutral = "neutral"
	LabelBearish = "bearish"
)

const (
	neutralScore      = 50.0
	eventPenalty      = 5.0
	maxPenalizedEvent = 3
)

// Outlook is the macro view of one region. Every field is -1, 0 or 1.
//   - CBStance: -1 hawkish, 1 dovish
//   - Growth: -1 contracting, 1 expanding
//   - Inflation: -1 falling, 1 rising
//   - Risk: -1 risk-off, 1 risk-on
type Outlook struct {
	Region    string
	CBStance  int
	Growth    int
	Inflation int
	Risk      int
	Notes     string
	UpdatedAt time.Time
}

// Validate checks the outlook fields.
func (o Outlook) Validate() error {
	for name, v := range map[string]int{
		"cb_stance": o.CBStance, "growth_outlook": o.Growth,
		"inflation_trend": o.Inflation, "risk_sentiment": o.Risk,
	} {
		if v < -1 || v > 1 {
			return fmt.Errorf("%s must be -1, 0 or 1, got %d", name, v)
		}
	}
	return nil
}

// Score computes the fundamental score in [0, 100], baseline 50.
// Equities like dovish banks, growth and risk-on, and dislike inflation.
// Commodities like dovish banks, inflation and risk-off, and dislike growth.
// Each high-impact event of the week costs 5 points, at most 3 events.
func Score(o Outlook, highImpactEvents int, commodity bool) float64 {
	score := neutralScore
	if commodity {
		score += float64(o.CBStance) * 15
		score += float64(o.Inflation) * 10
		score -= float64(o.Risk) * 10
		score -= float64(o.Growth) * 5
	} else {
		score += float64(o.CBStance) * 15
		score += float64(o.Growth) * 15
		score += float64(o.Risk) * 10
		score -= float64(o.Inflation) * 5
	}
	events := int(math.Max(0, float64(highImpactEvents)))
	if events > maxPenalizedEvent {
		events = maxPenalizedEvent
	}
	score -= float64(events) * eventPenalty
	return helpers.Clamp100(helpers.Round(score, 1))
}

// Label maps a score onto bullish, neutral or bearish.
func Label(score float64) string {
	switch {
	case score >= 60:
		return LabelBullish
	case score <= 40:
		return LabelBearish
	default:
		return LabelNeutral
	}
}

// DefaultRegions maps the standard universe onto outlook regions. A market's
// own region column wins over this table.
var DefaultRegions = map[string]string{
	"XAUUSD": "commodities",
	"XAGUSD": "commodities",
	"US500":  "US",
	"US100":  "US",
	"US30":   "US",
	"GER40":  "EU",
	"EU50":   "EU",
	"FRA40":  "EU",
	"SPN35":  "EU",
	"N25":    "EU",
	"UK100":  "UK",
	"JP225":  "JP",
	"AUS200": "AU",
	"HK50":   "HK",
}
