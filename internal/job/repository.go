package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no render job exists under an ID.
var ErrJobNotFound = errors.New("job not found")

// Repository persists render job records through the stage pipeline.
// The render service saves on every state transition, so a poll of
// GET /jobs/{id} observes the current stage even mid-render.
type Repository interface {
	// Save persists a render job, overwriting any record under the
	// same ID. Called once on admission and again per transition.
	Save(ctx context.Context, job *Job) error

	// FindByID retrieves a render job by its ID.
	// Returns ErrJobNotFound when the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns every known render job, terminal ones included.
	List(ctx context.Context) ([]*Job, error)

	// Delete removes a render job record.
	// Returns ErrJobNotFound when the job does not exist.
	Delete(ctx context.Context, id string) error
}
