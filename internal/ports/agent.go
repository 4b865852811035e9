package ports

import (
	"context"
	"time"
)

// Agent produces a fresh execution context (browser plus model) for each job.
type Agent interface {
	Configure(ctx context.Context) (Session, error)
}

// Session runs a single task to completion. Sessions are not reused.
type Session interface {
	Execute(ctx context.Context, task string, timeout time.Duration) (string, error)
	Close() error
}
