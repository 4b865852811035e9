// Package agent holds the adapters to the external browser automation agent.
package agent

import (
	"fmt"

	"browserq/internal/config"
	"browserq/internal/ports"
)

// New builds the agent selected by cfg.Backend.
func New(cfg config.Agent) (ports.Agent, error) {
	switch cfg.Backend {
	case "", "http":
		return NewHTTP(cfg), nil
	case "exec":
		return NewExec(cfg)
	default:
		return nil, fmt.Errorf("unknown agent backend %q", cfg.Backend)
	}
}
