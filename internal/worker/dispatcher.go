package worker

import (
	"context"
	"errors"
	"sync"

	"browserq/internal/domain"
	"browserq/internal/metrics"

	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull = errors.New("job queue is full")
	ErrStopped   = errors.New("dispatcher is stopped")
)

// JobRunner is satisfied by usecase.Runner.
type JobRunner interface {
	Run(ctx context.Context, job domain.Job) error
}

// Dispatcher runs submitted jobs on a fixed number of goroutines, off the
// request path.
type Dispatcher struct {
	runner  JobRunner
	workers int
	queue   chan domain.Job

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(runner JobRunner, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Dispatcher{
		runner:  runner,
		workers: workers,
		queue:   make(chan domain.Job, queueSize),
	}
}

// Start launches the workers. Jobs run with a context derived from ctx, so
// cancelling ctx or calling Stop interrupts in-flight agent calls.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	log.Ctx(ctx).Info().Int("workers", d.workers).Int("queue_size", cap(d.queue)).Msg("starting dispatcher")
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx, i)
	}
}

// Submit enqueues job without blocking.
func (d *Dispatcher) Submit(job domain.Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	metrics.QueuedJobs.Inc()
	select {
	case d.queue <- job:
		return nil
	default:
		metrics.QueuedJobs.Dec()
		return ErrQueueFull
	}
}

// Stop cancels running jobs and waits for the workers to exit. Jobs still
// queued are left pending in the store.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	d.wg.Wait()
	log.Info().Msg("dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	defer d.wg.Done()
	l := log.Ctx(ctx).With().Int("worker_id", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.queue:
			metrics.QueuedJobs.Dec()
			d.run(l.WithContext(ctx), job)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, job domain.Job) {
	defer func() {
		if p := recover(); p != nil {
			log.Ctx(ctx).Error().Str("job_id", job.ID).Interface("panic", p).Msg("job runner panicked")
		}
	}()
	if err := d.runner.Run(ctx, job); err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("job_id", job.ID).Msg("job run returned error")
	}
}
