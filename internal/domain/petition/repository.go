package petition

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"
)

// Filter controls petition listing.
type Filter struct {
	State    *State
	Archived *bool
}

// Repository defines petition persistence. Counter methods are single atomic statements;
// callers never read-modify-write signature_count.
type Repository interface {
	Create(ctx context.Context, p *Petition) error
	GetByID(ctx context.Context, id int64) (*Petition, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Petition, error)

	// UpdateModeration persists the moderation fields of p when the stored state still equals
	// from; otherwise it returns ErrInvalidTransition.
	UpdateModeration(ctx context.Context, p *Petition, from State) error
	// UpdateDebate persists the debate fields of p when the stored debate state still
	// equals from; otherwise it returns ErrInvalidTransition.
	UpdateDebate(ctx context.Context, p *Petition, from DebateState) error

	IncrementSignatureCount(ctx context.Context, id int64, now time.Time, thresholds Thresholds) (*CountUpdate, error)
	DecrementSignatureCount(ctx context.Context, id int64, now time.Time) (*CountUpdate, error)
	ResetSignatureCount(ctx context.Context, id int64, now time.Time) (*CountUpdate, error)
	MarkSignatureCountResetting(ctx context.Context, id int64, now time.Time) error
	IDsWithInvalidSignatureCounts(ctx context.Context, limit int) ([]int64, error)

	ListDueForClosing(ctx context.Context, now time.Time, limit int) ([]*Petition, error)
	ListDueForReferral(ctx context.Context, closedBefore time.Time, limit int) ([]*Petition, error)
}
