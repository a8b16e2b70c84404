package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests: Sleep returns as soon as either
// the context is cancelled or the fake has been Advanced past the requested
// duration. Cron registrations are invoked synchronously by Fire.
type Fake struct {
	mu       sync.Mutex
	now      time.Time
	waiters  []fakeWaiter
	cronJobs map[CronSpec][]func(context.Context)
}

type fakeWaiter struct {
	deadline time.Time
	done     chan struct{}
}

// NewFake builds a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, cronJobs: make(map[CronSpec][]func(context.Context))}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	done := make(chan struct{})
	f.waiters = append(f.waiters, fakeWaiter{deadline: f.now.Add(d), done: done})
	f.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Advance moves the fake clock forward by d, waking any Sleep calls whose
// deadline has passed.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.deadline.After(f.now) {
			close(w.done)
		} else {
			remaining = append(remaining, w)
		}
	}
	f.waiters = remaining
	f.mu.Unlock()
}

func (f *Fake) Cron(spec CronSpec, fn func(context.Context)) (func(), error) {
	if _, err := spec.toCronExpr(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.cronJobs[spec] = append(f.cronJobs[spec], fn)
	idx := len(f.cronJobs[spec]) - 1
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		jobs := f.cronJobs[spec]
		if idx < len(jobs) {
			jobs[idx] = nil
		}
	}, nil
}

// Fire invokes every job registered under spec, as if the schedule matched.
func (f *Fake) Fire(ctx context.Context, spec CronSpec) {
	f.mu.Lock()
	jobs := append([]func(context.Context){}, f.cronJobs[spec]...)
	f.mu.Unlock()
	for _, job := range jobs {
		if job != nil {
			job(ctx)
		}
	}
}
