package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"browserq/internal/usecase"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func sweepCmd(opts *options) *cobra.Command {
	var loop bool
	var command = &cobra.Command{
		Use:   "sweep",
		Short: "Mark running jobs past their timeout as timedOut",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			jobs := usecase.NewJobs(store)

			if !loop {
				n, err := jobs.Reconcile(ctx)
				if err != nil {
					return err
				}
				log.Info().Int("timed_out", n).Msg("sweep done")
				return nil
			}

			err = usecase.NewSweeper(jobs, opts.cfg.Worker.SweepInterval).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	command.Flags().BoolVar(&loop, "loop", false, "Keep sweeping every SWEEP_INTERVAL until interrupted")
	return command
}
