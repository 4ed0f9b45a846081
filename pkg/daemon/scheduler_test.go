package daemon

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestCronParse(t *testing.T) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse("@every 1h")
	if err != nil {
		t.Fatalf("failed to parse cron expression: %v", err)
	}

	now := time.Now()
	next1 := schedule.Next(now)
	next2 := schedule.Next(next1)

	if next2.Sub(next1) != time.Hour {
		t.Fatalf("expected one hour between runs, got next1=%v next2=%v", next1, next2)
	}
}

func TestSchedulerInvalidExpression(t *testing.T) {
	s := NewScheduler()
	if err := s.Schedule("every hour please", time.Now()); err == nil {
		t.Fatalf("expected error for invalid expression")
	}
	if !s.Next().IsZero() {
		t.Fatalf("invalid expression should not schedule anything")
	}
}

func TestSchedulerAdvance(t *testing.T) {
	s := NewScheduler()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if err := s.Schedule("@every 1h", start); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	first := s.Next()
	if first != start.Add(time.Hour) {
		t.Fatalf("first run = %v", first)
	}

	if got := s.Advance(first); got != first.Add(time.Hour) {
		t.Fatalf("advance = %v", got)
	}

	// Missed runs are not replayed.
	late := first.Add(5*time.Hour + time.Minute)
	if got := s.Advance(late); !got.After(late) {
		t.Fatalf("advance after a long stall should be in the future, got %v", got)
	}
}

func TestSchedulerSkip(t *testing.T) {
	s := NewScheduler()
	if err := s.Skip(); err == nil {
		t.Fatalf("expected error when nothing is scheduled")
	}

	now := time.Now()
	if err := s.Schedule("@every 10m", now); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	orig := s.Next()
	if err := s.Skip(); err != nil {
		t.Fatalf("Skip returned error: %v", err)
	}
	if got := s.Next(); got.Sub(orig) != 10*time.Minute {
		t.Fatalf("expected next run to move by one interval, got %v -> %v", orig, got)
	}
}

func TestSchedulerWait(t *testing.T) {
	s := NewScheduler()
	now := time.Now()
	_ = s.Schedule("@every 1m", now)
	if w := s.Wait(now); w <= 0 || w > time.Minute {
		t.Fatalf("unexpected wait %v", w)
	}
	if w := s.Wait(now.Add(time.Hour)); w != 0 {
		t.Fatalf("overdue run should wait 0, got %v", w)
	}
}
