package worker

import (
	"context"
	"errors"

	"browserq/internal/domain"
	"browserq/internal/usecase"

	"github.com/rs/zerolog/log"
)

const interruptedByRestart = "interrupted by restart"

// Recover resumes work left behind by a previous process. Pending jobs are
// queued again. Running jobs lost their agent call with that process and
// are marked failed.
func Recover(ctx context.Context, jobs *usecase.Jobs, d *Dispatcher) (requeued, failed int, err error) {
	all, err := jobs.List(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, j := range all {
		switch j.Status {
		case domain.StatusPending:
			if err := d.Submit(j); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("job_id", j.ID).Msg("could not requeue pending job")
				continue
			}
			requeued++
		case domain.StatusRunning:
			_, err := jobs.Update(ctx, j.ID, func(cur *domain.Job) error {
				if !cur.CreatedAt.Equal(j.CreatedAt) {
					return domain.ErrSuperseded
				}
				return cur.Fail(interruptedByRestart)
			})
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrSuperseded) || errors.Is(err, domain.ErrInvalidTransition) {
					continue
				}
				return requeued, failed, err
			}
			failed++
		}
	}

	if requeued > 0 || failed > 0 {
		log.Ctx(ctx).Info().Int("requeued", requeued).Int("failed", failed).Msg("recovered jobs from previous run")
	}
	return requeued, failed, nil
}
