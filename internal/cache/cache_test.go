package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryJobLockExpires(t *testing.T) {
	lock := NewMemoryJobLock()
	now := time.Date(2026, 9, 1, 23, 55, 0, 0, time.UTC)
	lock.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "attendance.mark-absent@2026-09-01T23:55", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got %t %v", ok, err)
	}
	ok, _ = lock.Acquire(ctx, "attendance.mark-absent@2026-09-01T23:55", time.Minute)
	if ok {
		t.Fatalf("expected second acquire to be refused")
	}
	ok, _ = lock.Acquire(ctx, "orders.auto-cancel@2026-09-01T23:55", time.Minute)
	if !ok {
		t.Fatalf("expected other key to be free")
	}

	now = now.Add(2 * time.Minute)
	ok, _ = lock.Acquire(ctx, "attendance.mark-absent@2026-09-01T23:55", time.Minute)
	if !ok {
		t.Fatalf("expected key to be free after ttl")
	}
}
