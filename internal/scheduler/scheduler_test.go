package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"cafeops/backend/internal/cache"
	"cafeops/backend/internal/clock"
	"cafeops/backend/internal/domain"
)

func TestDailyNext(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	trigger := Daily(domain.TimeOfDay{Hour: 23, Minute: 55}, loc)

	before := time.Date(2026, 9, 1, 10, 0, 0, 0, loc)
	if got, want := trigger.Next(before), time.Date(2026, 9, 1, 23, 55, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}

	exact := time.Date(2026, 9, 1, 23, 55, 0, 0, loc)
	if got, want := trigger.Next(exact), time.Date(2026, 9, 2, 23, 55, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("expected next day %s, got %s", want, got)
	}

	utcEvening := time.Date(2026, 9, 1, 20, 0, 0, 0, time.UTC)
	if got, want := trigger.Next(utcEvening), time.Date(2026, 9, 2, 23, 55, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("expected local next day %s, got %s", want, got)
	}
}

func TestEveryNextAlignsToInterval(t *testing.T) {
	trigger := Every(time.Minute)
	now := time.Date(2026, 9, 1, 9, 0, 20, 0, time.UTC)
	if got, want := trigger.Next(now), time.Date(2026, 9, 1, 9, 1, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestRunOnceDedupesSlot(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 9, 1, 23, 55, 0, 0, time.UTC))
	s := New(clk, cache.NewMemoryJobLock())
	calls := 0
	s.Register("attendance.mark-absent", Daily(domain.TimeOfDay{Hour: 23, Minute: 55}, time.UTC), func(_ context.Context, now time.Time) (domain.JobResult, error) {
		calls++
		return domain.JobResult{Job: "attendance.mark-absent", RanAt: now}, nil
	})
	ctx := context.Background()

	if _, err := s.RunOnce(ctx, "attendance.mark-absent", clk.Now()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := s.Trigger(ctx, "attendance.mark-absent"); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected manual trigger in the same slot to be refused, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}

	if _, err := s.Trigger(ctx, "payroll.unknown"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected unknown job error, got %v", err)
	}
}

func TestStartRunsJobWhenClockReachesTrigger(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 9, 1, 23, 50, 0, 0, time.UTC))
	s := New(clk, nil)
	ran := make(chan time.Time, 1)
	s.Register("attendance.auto-checkout", Daily(domain.TimeOfDay{Hour: 23, Minute: 59}, time.UTC), func(_ context.Context, now time.Time) (domain.JobResult, error) {
		ran <- now
		return domain.JobResult{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for clk.Waiters() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduler never waited on the clock")
		}
		time.Sleep(time.Millisecond)
	}
	clk.Advance(9 * time.Minute)

	select {
	case at := <-ran:
		if !at.Equal(time.Date(2026, 9, 1, 23, 59, 0, 0, time.UTC)) {
			t.Fatalf("expected run at 23:59, got %s", at)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not run")
	}

	cancel()
	s.Wait()
}
