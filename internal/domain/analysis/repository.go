package analysis

import (
	"context"
	"time"
)

// Repository persists jobs.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Save writes j's status, cause, result and timestamps only if the stored
	// status still equals from. A mismatch yields ErrCodeJobInvalidTransition;
	// a missing job yields ErrCodeJobNotFound.
	Save(ctx context.Context, j *Job, from Status) error
	// DeleteExpired removes terminal jobs completed before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
