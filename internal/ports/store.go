package ports

import (
	"context"

	"browserq/internal/domain"
)

// JobStore is a key-value mapping from job ID to the full job record.
// Get and Delete return domain.ErrNotFound for unknown IDs.
type JobStore interface {
	Get(ctx context.Context, id string) (domain.Job, error)
	Put(ctx context.Context, job domain.Job) error
	List(ctx context.Context) ([]domain.Job, error)
	Delete(ctx context.Context, id string) error
}
