package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"browserq/internal/domain"
	"browserq/internal/logger"
	"browserq/internal/metrics"
	"browserq/internal/ports"

	"github.com/rs/zerolog/log"
)

// Runner executes one job against the agent and records the outcome.
type Runner struct {
	Jobs  *Jobs
	Agent ports.Agent
}

// Run takes a job that was saved as pending. The agent call is bounded by
// the job's deadline (createdAt + timeout); hitting it records timedOut.
// Cancelling ctx interrupts the call and records failed.
func (r Runner) Run(ctx context.Context, job domain.Job) error {
	ctx = logger.WithJobID(ctx, job.ID)
	l := log.Ctx(ctx)

	started, err := r.Jobs.Update(ctx, job.ID, func(cur *domain.Job) error {
		if !sameGeneration(*cur, job) {
			return domain.ErrSuperseded
		}
		return cur.Start()
	})
	if err != nil {
		l.Warn().Err(err).Msg("job not started")
		return err
	}
	l.Info().Msg("job running")

	metrics.RunningJobs.Inc()
	defer metrics.RunningJobs.Dec()

	runCtx, cancel := context.WithDeadline(ctx, started.Deadline())
	defer cancel()

	begin := time.Now()
	result, runErr := r.execute(runCtx, started)
	metrics.JobRunDuration.Observe(time.Since(begin).Seconds())

	final, err := r.Jobs.Update(context.WithoutCancel(ctx), job.ID, func(cur *domain.Job) error {
		if !sameGeneration(*cur, job) {
			return domain.ErrSuperseded
		}
		switch {
		case runErr == nil:
			return cur.Complete(result)
		case ctx.Err() != nil:
			return cur.Fail(fmt.Sprintf("interrupted: %v", ctx.Err()))
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return cur.TimeOut()
		default:
			return cur.Fail(runErr.Error())
		}
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			// the record reached a terminal state while the agent was busy,
			// typically timedOut through a read
			l.Warn().Str("status", string(final.Status)).AnErr("agent_err", runErr).Msg("dropping late agent outcome")
			return nil
		}
		if errors.Is(err, domain.ErrSuperseded) {
			l.Warn().AnErr("agent_err", runErr).Msg("job was resubmitted while running, dropping outcome")
			return nil
		}
		l.Error().Err(err).Msg("failed to record job outcome")
		return err
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(final.Status)).Inc()
	ev := l.Info()
	if runErr != nil {
		ev = l.Warn().Err(runErr)
	}
	ev.Str("status", string(final.Status)).Dur("took", time.Since(begin)).Msg("job finished")
	return nil
}

func (r Runner) execute(ctx context.Context, job domain.Job) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("agent panic: %v", p)
		}
	}()

	session, err := r.Agent.Configure(ctx)
	if err != nil {
		return "", fmt.Errorf("configure agent: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Ctx(ctx).Warn().Err(cerr).Msg("failed to close agent session")
		}
	}()

	return session.Execute(ctx, job.Task, job.TimeoutDuration())
}

// sameGeneration guards against an overwrite that happened after job was
// dispatched: the ID is unchanged but the record is a different submission.
func sameGeneration(cur, dispatched domain.Job) bool {
	return cur.CreatedAt.Equal(dispatched.CreatedAt)
}
