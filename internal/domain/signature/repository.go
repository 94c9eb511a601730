package signature

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository,Gate,ConstituencyResolver

import (
	"context"
)

// Repository defines signature persistence. Lock and LockCreator take a row-level lock and
// are only meaningful inside a transaction.
type Repository interface {
	Create(ctx context.Context, s *Signature) error
	GetByID(ctx context.Context, id int64) (*Signature, error)
	Lock(ctx context.Context, id int64) (*Signature, error)
	LockCreator(ctx context.Context, petitionID int64) (*Signature, error)
	UpdateState(ctx context.Context, s *Signature) error
	UpdateConstituency(ctx context.Context, id int64, constituencyID string) error
	UpdatePersonalData(ctx context.Context, s *Signature) error
	Delete(ctx context.Context, id int64) error
	ListForAnonymizing(ctx context.Context, petitionID, afterID int64, limit int) ([]*Signature, error)
}

// Gate is the admission control check consulted when a signature is submitted.
type Gate interface {
	Exceeded(ctx context.Context, s *Signature) (bool, error)
}

// Constituency is a resolved parliamentary constituency.
type Constituency struct {
	ID       string `json:"id" yaml:"id"`
	RegionID string `json:"regionId" yaml:"region"`
	Name     string `json:"name" yaml:"name"`
}

// ConstituencyResolver maps a postcode to its constituency; nil when unknown.
type ConstituencyResolver interface {
	Resolve(ctx context.Context, postcode string) (*Constituency, error)
}
