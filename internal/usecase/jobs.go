package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"browserq/internal/domain"
	"browserq/internal/metrics"
	"browserq/internal/ports"
	"browserq/pkg/keylock"

	"github.com/rs/zerolog/log"
)

type SubmitInput struct {
	Task      string
	Overwrite bool
	Timeout   int
}

// Jobs owns every mutation of job records. All read-modify-write cycles for
// one ID run under that ID's lock.
type Jobs struct {
	Store ports.JobStore
	Now   func() time.Time
	locks *keylock.Locker
}

func NewJobs(store ports.JobStore) *Jobs {
	return &Jobs{Store: store, Now: time.Now, locks: keylock.New()}
}

// Submit returns the existing job for task unless overwrite is set. Otherwise
// a fresh pending record is saved over any old one and scheduled is true: the
// caller must start an execution. A zero Timeout means the default.
func (s *Jobs) Submit(ctx context.Context, in SubmitInput) (job domain.Job, scheduled bool, err error) {
	if in.Timeout == 0 {
		in.Timeout = domain.DefaultTimeout
	}
	if err := domain.ValidateTimeout(in.Timeout); err != nil {
		return domain.Job{}, false, err
	}

	id := domain.JobID(in.Task)
	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.Store.Get(ctx, id)
	switch {
	case err == nil && !in.Overwrite:
		metrics.JobsReusedTotal.Inc()
		job, err = s.promote(ctx, existing)
		return job, false, err
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.Job{}, false, fmt.Errorf("load job: %w", err)
	}

	job = domain.NewJob(in.Task, in.Timeout, s.Now())
	if err := s.Store.Put(ctx, job); err != nil {
		return domain.Job{}, false, fmt.Errorf("save job: %w", err)
	}

	metrics.JobsSubmittedTotal.Inc()
	log.Ctx(ctx).Info().Str("job_id", id).Bool("overwrite", in.Overwrite).Int("timeout", in.Timeout).Msg("job submitted")
	return job, true, nil
}

// Get loads a job and, if it is running past its timeout, persists the
// timedOut status before returning it.
func (s *Jobs) Get(ctx context.Context, id string) (domain.Job, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	j, err := s.Store.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	return s.promote(ctx, j)
}

// List returns every job, applying the same timeout promotion as Get.
func (s *Jobs) List(ctx context.Context) ([]domain.Job, error) {
	all, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	for i, j := range all {
		if !j.ShouldTimeOut(now) {
			continue
		}
		// re-read under the lock, the snapshot may be stale
		got, err := s.Get(ctx, j.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		all[i] = got
	}
	return all, nil
}

// Update applies fn to the stored record and writes the full snapshot with a
// fresh updatedAt. A non-nil error from fn, ErrUnchanged included, aborts
// without writing.
func (s *Jobs) Update(ctx context.Context, id string, fn func(j *domain.Job) error) (domain.Job, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	j, err := s.Store.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if err := fn(&j); err != nil {
		return j, err
	}
	return j, s.save(ctx, &j)
}

func (s *Jobs) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("job_id", id).Msg("job deleted")
	return nil
}

// Reconcile promotes every running job past its timeout and reports how many
// records changed.
func (s *Jobs) Reconcile(ctx context.Context) (int, error) {
	all, err := s.Store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, j := range all {
		if !j.ShouldTimeOut(s.Now()) {
			continue
		}
		_, err := s.Update(ctx, j.ID, func(cur *domain.Job) error {
			if !cur.ShouldTimeOut(s.Now()) {
				return ErrUnchanged
			}
			return cur.TimeOut()
		})
		switch {
		case err == nil:
			n++
			metrics.JobsFinishedTotal.WithLabelValues(string(domain.StatusTimedOut)).Inc()
		case errors.Is(err, ErrUnchanged), errors.Is(err, domain.ErrNotFound):
		default:
			return n, err
		}
	}
	return n, nil
}

// ErrUnchanged is returned from an Update callback to skip the write. Update
// passes it back to the caller.
var ErrUnchanged = errors.New("unchanged")

// promote must be called with the job's lock held.
func (s *Jobs) promote(ctx context.Context, j domain.Job) (domain.Job, error) {
	if !j.ShouldTimeOut(s.Now()) {
		return j, nil
	}
	if err := j.TimeOut(); err != nil {
		return j, err
	}
	if err := s.save(ctx, &j); err != nil {
		return domain.Job{}, err
	}
	metrics.JobsFinishedTotal.WithLabelValues(string(domain.StatusTimedOut)).Inc()
	log.Ctx(ctx).Info().Str("job_id", j.ID).Msg("job timed out")
	return j, nil
}

func (s *Jobs) save(ctx context.Context, j *domain.Job) error {
	j.Touch(s.Now())
	if err := j.Validate(); err != nil {
		return err
	}
	if err := s.Store.Put(ctx, *j); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}
