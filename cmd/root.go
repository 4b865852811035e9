package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"browserq/internal/config"
	"browserq/internal/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// options is filled in by the root command before any subcommand runs.
type options struct {
	cfg *config.Config
}

func Run() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Msgf("failed to execute command, err: %v", err.Error())
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	var command = &cobra.Command{
		Use:           "browserq",
		Short:         "Queue and track browser automation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Setup(cfg.Log.Level, cfg.Log.Format)
			opts.cfg = cfg
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	command.AddCommand(apiCmd(opts))
	command.AddCommand(sweepCmd(opts))
	command.AddCommand(jobsCmd(opts))
	return command
}
