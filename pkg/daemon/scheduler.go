package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule measures once an hour.
const DefaultSchedule = "@every 1h"

// Scheduler tracks when the next measurement is due. It does not run
// anything itself; the control loop arms a timer from Next.
type Scheduler struct {
	parser cron.Parser

	mu       sync.Mutex
	expr     string
	schedule cron.Schedule
	nextRun  time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Schedule replaces the schedule. The next run is recomputed from now.
func (s *Scheduler) Schedule(cronExpr string, now time.Time) error {
	sh, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cronExpr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.expr = cronExpr
	s.schedule = sh
	s.nextRun = sh.Next(now)
	return nil
}

// Next returns the time of the next run, zero when nothing is scheduled.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Expr returns the active cron expression.
func (s *Scheduler) Expr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expr
}

// Advance moves to the first run after now. Runs missed while the device
// was busy are not replayed.
func (s *Scheduler) Advance(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil {
		return time.Time{}
	}
	next := s.schedule.Next(s.nextRun)
	if !next.After(now) {
		next = s.schedule.Next(now)
	}
	s.nextRun = next
	return next
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil || s.nextRun.IsZero() {
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	return nil
}

// Wait returns how long until the next run, never negative.
func (s *Scheduler) Wait(now time.Time) time.Duration {
	next := s.Next()
	if next.IsZero() {
		return time.Hour * 10000
	}
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}
