package unitofwork

import (
	"context"
	"errors"
	"time"

	"github.com/petition-hub/petition-hub/internal/domain/invalidation"
	"github.com/petition-hub/petition-hub/internal/domain/job"
	"github.com/petition-hub/petition-hub/internal/domain/journal"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
)

// ErrTransactionAborted is returned when the connection's transaction was left in an
// aborted state by an earlier failed statement. Retrying the block once on a clean
// connection is expected to succeed.
var ErrTransactionAborted = errors.New("transaction aborted")

// Repositories are bound to one transaction.
type Repositories struct {
	Petitions     petition.Repository
	Signatures    signature.Repository
	Journals      journal.Repository
	Invalidations invalidation.Repository
	Jobs          job.Queue
}

// Transactor runs fn inside a transaction, committing when fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Now returns the current UTC time at the precision timestamps are stored with, so a
// value written and read back compares equal.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
