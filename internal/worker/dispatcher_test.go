package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"browserq/internal/domain"
	"browserq/internal/infra/memstore"
	"browserq/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu    sync.Mutex
	ran   []string
	block chan struct{}
	calls atomic.Int32
}

func (r *recordingRunner) Run(ctx context.Context, job domain.Job) error {
	r.calls.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.ran = append(r.ran, job.ID)
	r.mu.Unlock()
	return nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

func TestDispatcherRunsSubmittedJobs(t *testing.T) {
	r := &recordingRunner{}
	d := NewDispatcher(r, 2, 10)
	d.Start(context.Background())
	defer d.Stop()

	for _, task := range []string{"a", "b", "c"} {
		require.NoError(t, d.Submit(domain.NewJob(task, 10, time.Now())))
	}
	require.Eventually(t, func() bool { return r.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherQueueFull(t *testing.T) {
	r := &recordingRunner{block: make(chan struct{})}
	d := NewDispatcher(r, 1, 1)
	d.Start(context.Background())
	defer d.Stop()

	require.NoError(t, d.Submit(domain.NewJob("first", 10, time.Now())))
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, d.Submit(domain.NewJob("second", 10, time.Now())))
	assert.ErrorIs(t, d.Submit(domain.NewJob("third", 10, time.Now())), ErrQueueFull)

	close(r.block)
	require.Eventually(t, func() bool { return r.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherStopCancelsRunningJobs(t *testing.T) {
	r := &recordingRunner{block: make(chan struct{})}
	d := NewDispatcher(r, 1, 1)
	d.Start(context.Background())

	require.NoError(t, d.Submit(domain.NewJob("blocked", 10, time.Now())))
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.ErrorIs(t, d.Submit(domain.NewJob("late", 10, time.Now())), ErrStopped)
	d.Stop()
}

type panickingRunner struct{ calls atomic.Int32 }

func (p *panickingRunner) Run(context.Context, domain.Job) error {
	p.calls.Add(1)
	panic("boom")
}

func TestDispatcherSurvivesRunnerPanic(t *testing.T) {
	r := &panickingRunner{}
	d := NewDispatcher(r, 1, 4)
	d.Start(context.Background())
	defer d.Stop()

	require.NoError(t, d.Submit(domain.NewJob("a", 10, time.Now())))
	require.NoError(t, d.Submit(domain.NewJob("b", 10, time.Now())))
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRecover(t *testing.T) {
	store := memstore.New()
	jobs := usecase.NewJobs(store)
	ctx := context.Background()

	pending := domain.NewJob("pending", 60, time.Now())
	running := domain.NewJob("running", 60, time.Now())
	require.NoError(t, running.Start())
	done := domain.NewJob("done", 60, time.Now())
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete("ok"))
	for _, j := range []domain.Job{pending, running, done} {
		require.NoError(t, store.Put(ctx, j))
	}

	r := &recordingRunner{}
	d := NewDispatcher(r, 1, 10)

	requeued, failed, err := Recover(ctx, jobs, d)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Equal(t, 1, failed)

	got, err := store.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, interruptedByRestart, *got.Error)

	d.Start(ctx)
	defer d.Stop()
	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	r.mu.Lock()
	assert.Equal(t, pending.ID, r.ran[0])
	r.mu.Unlock()
}
