package app

import (
	"fmt"
	"time"

	"longentry/market"
)

// WeekStart returns the Monday of the session-clock week containing t, as
// midnight UTC.
func WeekStart(t time.Time, sessionOffset time.Duration) time.Time {
	day := market.SessionDay(t, sessionOffset)
	back := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -back)
}

// ParseWeek parses a YYYY-MM-DD date and returns the Monday of its week.
func ParseWeek(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid week %q, want YYYY-MM-DD: %w", s, err)
	}
	return WeekStart(d, 0), nil
}

// dataCutoff is the UTC instant where the session week starts. Candles at or
// after it belong to the evaluated week and are not used.
func dataCutoff(weekStart time.Time, sessionOffset time.Duration) time.Time {
	return weekStart.Add(-sessionOffset)
}

// UpcomingWeek is the week a run started at t prepares: the next Monday on
// weekends, the current week otherwise.
func UpcomingWeek(t time.Time, sessionOffset time.Duration) time.Time {
	day := market.SessionDay(t, sessionOffset)
	week := WeekStart(t, sessionOffset)
	if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		return week.AddDate(0, 0, 7)
	}
	return week
}
