package cmd

import (
	"context"
	"fmt"

	"browserq/internal/config"
	"browserq/internal/infra/filestore"
	"browserq/internal/infra/memstore"
	"browserq/internal/infra/redisstore"
	"browserq/internal/infra/sqlitestore"
	"browserq/internal/ports"

	"github.com/rs/zerolog/log"
)

// openStore returns the job store selected by STORE_BACKEND and a func that
// releases it.
func openStore(ctx context.Context, cfg *config.Config) (ports.JobStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store.Backend {
	case "", "file":
		s, err := filestore.Open(cfg.Store.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open jobs directory: %w", err)
		}
		log.Ctx(ctx).Info().Str("dir", s.Dir).Msg("using file job store")
		return s, noop, nil
	case "memory":
		log.Ctx(ctx).Warn().Msg("using in-memory job store, jobs are lost on exit")
		return memstore.New(), noop, nil
	case "redis":
		c := redisstore.New(cfg.Redis)
		if err := c.Connect(ctx); err != nil {
			c.Close()
			return nil, nil, err
		}
		return c, c.Close, nil
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Ctx(ctx).Info().Str("path", cfg.Store.SQLitePath).Msg("using sqlite job store")
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
