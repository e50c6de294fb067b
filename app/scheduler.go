package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// WeekRunner is the part of Runner the scheduler needs.
type WeekRunner interface {
	RunWeek(ctx context.Context, weekStart time.Time) (*RunReport, error)
}

// Scheduler triggers the weekly run once a week at a fixed session-clock
// weekday and hour.
type Scheduler struct {
	runner        WeekRunner
	weekday       time.Weekday
	hour          int
	sessionOffset time.Duration
	done          chan struct{}
	now           func() time.Time
}

// NewScheduler creates a weekly scheduler
func NewScheduler(runner WeekRunner, weekday time.Weekday, hour int, sessionOffset time.Duration) *Scheduler {
	return &Scheduler{
		runner:        runner,
		weekday:       weekday,
		hour:          hour,
		sessionOffset: sessionOffset,
		done:          make(chan struct{}),
		now:           time.Now,
	}
}

// Start blocks until Stop is called or ctx ends
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Str("weekday", s.weekday.String()).Int("hour", s.hour).Msg("⏰ Weekly scheduler started")

	for {
		next := s.nextRun(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.trigger(ctx)
		case <-s.done:
			timer.Stop()
			log.Info().Msg("⏰ Weekly scheduler stopped")
			return
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("⏰ Weekly scheduler stopped")
			return
		}
	}
}

// Stop stops the schedule loop
func (s *Scheduler) Stop() {
	close(s.done)
}

func (s *Scheduler) trigger(ctx context.Context) {
	week := UpcomingWeek(s.now(), s.sessionOffset)
	if _, err := s.runner.RunWeek(ctx, week); err != nil {
		log.Error().Err(err).Str("week_start", week.Format(time.DateOnly)).Msg("scheduled weekly run failed")
	}
}

// nextRun returns the first UTC instant strictly after now that falls on the
// configured session weekday and hour.
func (s *Scheduler) nextRun(now time.Time) time.Time {
	session := now.UTC().Add(s.sessionOffset)
	day := time.Date(session.Year(), session.Month(), session.Day(), s.hour, 0, 0, 0, time.UTC)
	ahead := (int(s.weekday) - int(day.Weekday()) + 7) % 7
	candidate := day.AddDate(0, 0, ahead)
	if !candidate.After(session) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate.Add(-s.sessionOffset)
}
