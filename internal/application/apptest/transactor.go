// Package apptest holds test doubles shared by the application services.
package apptest

import (
	"context"
	"time"

	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
)

// Transactor runs every block directly against Repos. Errors queued in Fail are
// returned, one per call, instead of running the block.
type Transactor struct {
	Repos unitofwork.Repositories
	Fail  []error
	Calls int
}

func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context, repos unitofwork.Repositories) error) error {
	t.Calls++
	if len(t.Fail) > 0 {
		err := t.Fail[0]
		t.Fail = t.Fail[1:]
		if err != nil {
			return err
		}
	}
	return fn(ctx, t.Repos)
}

// Clock returns a fixed time.
func Clock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
