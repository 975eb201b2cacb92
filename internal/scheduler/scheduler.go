package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"cafeops/backend/internal/cache"
	"cafeops/backend/internal/clock"
	"cafeops/backend/internal/domain"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrSlotTaken  = errors.New("job already ran for this slot")
)

const defaultLockTTL = time.Hour

type JobFunc func(ctx context.Context, now time.Time) (domain.JobResult, error)

// Trigger yields fire times. Next returns the first fire time strictly
// after t.
type Trigger interface {
	Next(t time.Time) time.Time
}

type daily struct {
	at  domain.TimeOfDay
	loc *time.Location
}

// Daily fires once a day at the given wall-clock time in loc.
func Daily(at domain.TimeOfDay, loc *time.Location) Trigger {
	if loc == nil {
		loc = time.UTC
	}
	return daily{at: at, loc: loc}
}

func (d daily) Next(t time.Time) time.Time {
	date := domain.CalendarDate(t, d.loc)
	candidate := d.at.On(date, d.loc)
	if !candidate.After(t) {
		candidate = d.at.On(date.AddDate(0, 0, 1), d.loc)
	}
	return candidate
}

type every struct {
	interval time.Duration
}

// Every fires on multiples of interval since the zero time, so separate
// processes agree on slot boundaries.
func Every(interval time.Duration) Trigger {
	if interval < time.Second {
		interval = time.Second
	}
	return every{interval: interval}
}

func (e every) Next(t time.Time) time.Time {
	return t.Truncate(e.interval).Add(e.interval)
}

type job struct {
	name    string
	trigger Trigger
	run     JobFunc
}

type Scheduler struct {
	clock clock.Clock
	lock  cache.JobLock

	mu   sync.Mutex
	jobs map[string]job
	wg   sync.WaitGroup
}

func New(clk clock.Clock, lock cache.JobLock) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	if lock == nil {
		lock = cache.NewMemoryJobLock()
	}
	return &Scheduler{clock: clk, lock: lock, jobs: make(map[string]job)}
}

func (s *Scheduler) Register(name string, trigger Trigger, run JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = job{name: name, trigger: trigger, run: run}
}

func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) lookup(name string) (job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return job{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return j, nil
}

// Start runs every registered job on its trigger until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	log.Printf("[scheduler] started %d jobs", len(jobs))
}

// Wait blocks until every job loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()
	for {
		now := s.clock.Now()
		next := j.trigger.Next(now)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
		}
		if _, err := s.RunOnce(ctx, j.name, next); err != nil && !errors.Is(err, ErrSlotTaken) {
			log.Printf("[scheduler] WARN: job %s at %s: %v", j.name, next.Format(time.RFC3339), err)
		}
	}
}

func slotKey(name string, slot time.Time) string {
	return name + "@" + slot.UTC().Truncate(time.Minute).Format("2006-01-02T15:04")
}

// RunOnce runs the job for the given slot unless the slot was already
// claimed. The job sees slot as its current time.
func (s *Scheduler) RunOnce(ctx context.Context, name string, slot time.Time) (domain.JobResult, error) {
	j, err := s.lookup(name)
	if err != nil {
		return domain.JobResult{}, err
	}

	acquired, err := s.lock.Acquire(ctx, slotKey(name, slot), defaultLockTTL)
	if err != nil {
		log.Printf("[scheduler] WARN: job lock unavailable for %s, running anyway: %v", name, err)
		acquired = true
	}
	if !acquired {
		return domain.JobResult{}, ErrSlotTaken
	}
	return j.run(ctx, slot)
}

// Trigger runs a job immediately, sharing the dedupe slot of the current
// minute with the scheduled runs.
func (s *Scheduler) Trigger(ctx context.Context, name string) (domain.JobResult, error) {
	return s.RunOnce(ctx, name, s.clock.Now())
}
