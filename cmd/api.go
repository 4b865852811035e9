package cmd

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"browserq/internal/api"
	"browserq/internal/config"
	"browserq/internal/infra/agent"
	"browserq/internal/usecase"
	"browserq/internal/worker"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func apiCmd(opts *options) *cobra.Command {
	var port int
	var command = &cobra.Command{
		Use:     "api",
		Aliases: []string{"serve"},
		Short:   "Start API server and job workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("port") {
				cfg.HTTP.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAPI(ctx, cfg)
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 7777, "Port to run the server on, overrides PORT")
	return command
}

func runAPI(ctx context.Context, cfg *config.Config) error {
	if cfg.HTTP.APIKey == "" {
		key, err := generateAPIKey()
		if err != nil {
			return fmt.Errorf("generate api key: %w", err)
		}
		cfg.HTTP.APIKey = key
		fmt.Fprintf(os.Stderr, "API_KEY is not set, generated one for this run:\n  %s\n", key)
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("failed to close job store")
		}
	}()

	ag, err := agent.New(cfg.Agent)
	if err != nil {
		return err
	}

	jobs := usecase.NewJobs(store)
	dispatcher := worker.NewDispatcher(usecase.Runner{Jobs: jobs, Agent: ag}, cfg.Worker.Concurrency, cfg.Worker.QueueSize)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	if _, _, err := worker.Recover(ctx, jobs, dispatcher); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	server := api.NewServer(jobs, dispatcher, cfg.HTTP.APIKey)
	sweeper := usecase.NewSweeper(jobs, cfg.Worker.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, cfg.HTTP.Port) })
	g.Go(func() error { return api.RunMetrics(gctx, cfg.HTTP.MetricsAddr) })
	g.Go(func() error {
		if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
