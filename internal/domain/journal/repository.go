package journal

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"
)

// Repository is the counter store behind every journal kind. Rows are only ever reached
// through FindOrCreate; counts only change through the atomic Increment/Decrement.
type Repository interface {
	// FindOrCreate returns the unique row for key, creating it with a zero count. A
	// concurrent creator winning the unique index is resolved by re-reading its row.
	FindOrCreate(ctx context.Context, key Key) (*Journal, error)
	Get(ctx context.Context, key Key) (*Journal, error)
	Increment(ctx context.Context, kind Kind, id int64, now time.Time) error
	// Decrement floors at zero.
	Decrement(ctx context.Context, kind Kind, id int64, now time.Time) error
	// Reset truncates every row of kind and rebuilds them from validated signatures.
	Reset(ctx context.Context, kind Kind, now time.Time) (int64, error)
	ListByPetition(ctx context.Context, kind Kind, petitionID int64) ([]*Journal, error)
}
