package usecase

import (
	"context"
	"time"

	"browserq/internal/metrics"
	"browserq/pkg/backoff"

	"github.com/rs/zerolog/log"
)

// Sweeper periodically promotes running jobs past their timeout so that
// stale records are corrected even when nobody reads them.
type Sweeper struct {
	Jobs     *Jobs
	Interval time.Duration
}

func NewSweeper(jobs *Jobs, interval time.Duration) *Sweeper {
	return &Sweeper{Jobs: jobs, Interval: interval}
}

// Run sweeps until ctx is done. A non-positive interval disables sweeping.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		return nil
	}
	failures := 0
	for {
		wait := s.Interval
		n, err := s.Jobs.Reconcile(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			failures++
			wait = backoff.ExponentialJitter(s.Interval, 10*s.Interval, failures)
			metrics.SweepsTotal.WithLabelValues("error").Inc()
			log.Ctx(ctx).Error().Err(err).Int("failures", failures).Dur("retry_in", wait).Msg("timeout sweep failed")
		default:
			failures = 0
			metrics.SweepsTotal.WithLabelValues("ok").Inc()
			if n > 0 {
				log.Ctx(ctx).Info().Int("timed_out", n).Msg("timeout sweep promoted jobs")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
