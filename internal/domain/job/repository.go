package job

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Queue is the at-least-once job store. Enqueue joins the caller's transaction when the
// queue is bound to one, so the job becomes visible exactly when the caller commits.
type Queue interface {
	Enqueue(ctx context.Context, j *Job) error
	// Claim leases up to limit due jobs; a lease that expires makes the job claimable again.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]*Job, error)
	// Touch extends the lease of a running job so it is not redelivered while its handler
	// is still working.
	Touch(ctx context.Context, jobID uuid.UUID, lease time.Duration) error
	Complete(ctx context.Context, jobID uuid.UUID) error
	// Fail records the error; a nil retryAt marks the job dead.
	Fail(ctx context.Context, jobID uuid.UUID, errMsg string, retryAt *time.Time) error
}
