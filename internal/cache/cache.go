package cache

import (
	"context"
	"sync"
	"time"
)

// JobLock claims a key for a while so a scheduled run happens once even when
// several triggers or processes race for the same slot.
type JobLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type MemoryJobLock struct {
	mu   sync.Mutex
	now  func() time.Time
	held map[string]time.Time
}

func NewMemoryJobLock() *MemoryJobLock {
	return &MemoryJobLock{now: time.Now, held: make(map[string]time.Time)}
}

func (l *MemoryJobLock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, expires := range l.held {
		if !expires.After(now) {
			delete(l.held, k)
		}
	}
	if _, taken := l.held[key]; taken {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}
