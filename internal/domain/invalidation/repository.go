package invalidation

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
)

// Repository defines invalidation persistence and the matching-signature queries.
type Repository interface {
	Create(ctx context.Context, inv *Invalidation) error
	GetByID(ctx context.Context, id int64) (*Invalidation, error)
	// Lock reads the row FOR UPDATE; lifecycle writes go through it inside a transaction.
	Lock(ctx context.Context, id int64) (*Invalidation, error)
	List(ctx context.Context, limit, offset int) ([]*Invalidation, error)
	Update(ctx context.Context, inv *Invalidation) error
	Delete(ctx context.Context, id int64) error
	IncrementInvalidatedCount(ctx context.Context, id int64) error

	// CountMatching counts signatures that match f and can still be invalidated.
	CountMatching(ctx context.Context, f Filter) (int, error)
	// ListMatchingIDs returns up to limit matching signature ids greater than afterID in
	// ascending order.
	ListMatchingIDs(ctx context.Context, f Filter, afterID int64, limit int) ([]int64, error)
}
