package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"browserq/internal/infra/memstore"
	"browserq/internal/ports"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestJobs() (*Jobs, *memstore.Store, *clock) {
	store := memstore.New()
	c := newClock()
	jobs := NewJobs(store)
	jobs.Now = c.Now
	return jobs, store, c
}

type runFunc func(ctx context.Context, task string, timeout time.Duration) (string, error)

type stubAgent struct {
	run          runFunc
	configureErr error
	configured   atomic.Int32
	closed       atomic.Int32
}

func (a *stubAgent) Configure(ctx context.Context) (ports.Session, error) {
	a.configured.Add(1)
	if a.configureErr != nil {
		return nil, a.configureErr
	}
	return stubSession{a: a}, nil
}

type stubSession struct{ a *stubAgent }

func (s stubSession) Execute(ctx context.Context, task string, timeout time.Duration) (string, error) {
	return s.a.run(ctx, task, timeout)
}

func (s stubSession) Close() error {
	s.a.closed.Add(1)
	return nil
}

func returns(result string) runFunc {
	return func(context.Context, string, time.Duration) (string, error) { return result, nil }
}
