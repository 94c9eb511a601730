//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appInvalidation "github.com/petition-hub/petition-hub/internal/application/invalidation"
	appPetition "github.com/petition-hub/petition-hub/internal/application/petition"
	appSignature "github.com/petition-hub/petition-hub/internal/application/signature"
	"github.com/petition-hub/petition-hub/internal/domain/invalidation"
	"github.com/petition-hub/petition-hub/internal/domain/journal"
	"github.com/petition-hub/petition-hub/internal/domain/notification"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
)

// seedPetition creates a pending petition and returns it with its creator's signature.
func seedPetition(t *testing.T, env *testEnv) (*petition.Petition, *signature.Signature) {
	t.Helper()
	p, creator, err := env.petitions.Create(context.Background(), map[string]petition.Text{
		"en-GB": {Action: "Plant more trees", Background: "Shade."},
		"cy-GB": {Action: "Plannu mwy o goed", Background: "Cysgod."},
	}, appPetition.Creator{
		Name: "Jo Bloggs", Email: "jo@example.com", Postcode: "CF10 1AA", LocationCode: "GB", IPAddress: "192.0.2.10",
	})
	require.NoError(t, err)
	return p, creator
}

// sign adds n validated signatures from domain and returns their ids in creation order.
func sign(t *testing.T, env *testEnv, petitionID int64, domain string, n int) []int64 {
	t.Helper()
	ctx := context.Background()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		sig, err := env.signatures.Create(ctx, appSignature.CreateParams{
			PetitionID:   petitionID,
			Name:         "Signer",
			Email:        fmt.Sprintf("signer%d@%s", i, domain),
			Postcode:     "CF24 3AA",
			LocationCode: "GB",
			IPAddress:    "192.0.2.10",
		})
		require.NoError(t, err)
		require.Equal(t, signature.StatePending, sig.State)
		_, err = env.signatures.Validate(ctx, sig.ID)
		require.NoError(t, err)
		ids = append(ids, sig.ID)
	}
	return ids
}

func signatureCount(t *testing.T, env *testEnv, petitionID int64) int {
	t.Helper()
	p, err := env.petitions.Get(context.Background(), petitionID)
	require.NoError(t, err)
	return p.SignatureCount
}

func constituencyCount(t *testing.T, env *testEnv, petitionID int64) int {
	t.Helper()
	js, err := env.counter.Journals(context.Background(), journal.KindConstituency, petitionID)
	require.NoError(t, err)
	require.Len(t, js, 1)
	return js[0].SignatureCount
}

func stampedWith(t *testing.T, env *testEnv, invalidationID int64) int {
	t.Helper()
	var n int
	require.NoError(t, env.pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM signatures WHERE invalidation_id = $1`, invalidationID).Scan(&n))
	return n
}

func TestInvalidationCancelLeavesPrefixIntegration(t *testing.T) {
	ctx := context.Background()
	var (
		env        *testEnv
		invID      int64
		cancelOnce sync.Once
	)
	env = newTestEnvWith(t, envOptions{
		batchSize: 1,
		progress: func(ctx context.Context, event notification.Event) {
			if event.InvalidationID != invID {
				return
			}
			cancelOnce.Do(func() {
				_, err := env.invalidations.Cancel(ctx, invID, "admin")
				assert.NoError(t, err)
			})
		},
	})

	p, _ := seedPetition(t, env)
	bulk := sign(t, env, p.ID, "bulk.test", 5)
	env.drain(t)
	require.Equal(t, 6, signatureCount(t, env, p.ID))

	domain := "bulk.test"
	inv, err := env.invalidations.Create(ctx, appInvalidation.CreateParams{
		Summary: "Bulk domain",
		Filter:  invalidation.Filter{PetitionID: &p.ID, Domain: &domain},
	}, "admin")
	require.NoError(t, err)
	invID = inv.ID
	_, err = env.invalidations.Start(ctx, inv.ID, "admin")
	require.NoError(t, err)
	env.drain(t)

	inv, err = env.invalidations.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invalidation.StatusCancelled, inv.Status())

	// Invalidated signatures form a prefix of the matching ids in ascending order.
	prefix := 0
	for i, id := range bulk {
		sig, err := env.signatures.Get(ctx, id)
		require.NoError(t, err)
		if sig.State == signature.StateInvalidated {
			assert.Equal(t, i, prefix, "signature %d invalidated after a gap", id)
			prefix++
			continue
		}
		assert.Equal(t, signature.StateValidated, sig.State)
	}
	assert.Greater(t, prefix, 0)
	assert.Less(t, prefix, len(bulk))

	assert.Equal(t, prefix, inv.InvalidatedCount)
	assert.Equal(t, inv.InvalidatedCount, stampedWith(t, env, inv.ID))
	assert.Equal(t, 6-prefix, signatureCount(t, env, p.ID))
}

func TestInvalidationRerunIsIdempotentIntegration(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	p, _ := seedPetition(t, env)
	sign(t, env, p.ID, "example.org", 1)
	bulk := sign(t, env, p.ID, "bulk.test", 3)
	env.drain(t)
	require.Equal(t, 5, signatureCount(t, env, p.ID))
	require.Equal(t, 5, constituencyCount(t, env, p.ID))

	domain := "bulk.test"
	params := appInvalidation.CreateParams{
		Summary: "Bulk domain",
		Filter:  invalidation.Filter{PetitionID: &p.ID, Domain: &domain},
	}
	inv, err := env.invalidations.Create(ctx, params, "admin")
	require.NoError(t, err)
	_, err = env.invalidations.Start(ctx, inv.ID, "admin")
	require.NoError(t, err)
	env.drain(t)

	inv, err = env.invalidations.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, inv.Completed())
	assert.Equal(t, 3, inv.InvalidatedCount)
	assert.Equal(t, 2, signatureCount(t, env, p.ID))
	assert.Equal(t, 2, constituencyCount(t, env, p.ID))

	// A completed invalidation run again is left alone.
	require.NoError(t, env.invalidations.Run(ctx, inv.ID))
	again, err := env.invalidations.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, again.InvalidatedCount)
	assert.Equal(t, inv.CompletedAt, again.CompletedAt)

	// A second invalidation over the same signatures finds nothing left to do.
	second, err := env.invalidations.Create(ctx, params, "admin")
	require.NoError(t, err)
	require.NoError(t, env.invalidations.Run(ctx, second.ID))
	second, err = env.invalidations.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, second.Completed())
	assert.Equal(t, 0, second.InvalidatedCount)
	assert.Equal(t, 0, stampedWith(t, env, second.ID))

	// Invalidating one of them by hand changes nothing either.
	require.NoError(t, env.signatures.Invalidate(ctx, bulk[0], "admin"))
	sig, err := env.signatures.Get(ctx, bulk[0])
	require.NoError(t, err)
	require.NotNil(t, sig.InvalidationID)
	assert.Equal(t, inv.ID, *sig.InvalidationID)

	assert.Equal(t, 3, stampedWith(t, env, inv.ID))
	assert.Equal(t, 2, signatureCount(t, env, p.ID))
	assert.Equal(t, 2, constituencyCount(t, env, p.ID))
}

func TestValidateTwiceConflictsIntegration(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	p, _ := seedPetition(t, env)
	ids := sign(t, env, p.ID, "example.org", 1)
	env.drain(t)
	require.Equal(t, 2, signatureCount(t, env, p.ID))

	_, err := env.signatures.Validate(ctx, ids[0])
	assert.ErrorIs(t, err, signature.ErrInvalidTransition)
	env.drain(t)
	assert.Equal(t, 2, signatureCount(t, env, p.ID))
}

func TestReconcileRestoresSignatureRemovedBeforeCountingIntegration(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	p, _ := seedPetition(t, env)
	sign(t, env, p.ID, "example.org", 2)
	env.drain(t)
	require.Equal(t, 3, signatureCount(t, env, p.ID))
	require.Equal(t, 3, constituencyCount(t, env, p.ID))

	// Validated and invalidated before its counter job runs.
	late := sign(t, env, p.ID, "example.net", 1)[0]
	require.NoError(t, env.signatures.Invalidate(ctx, late, "admin"))
	env.drain(t)

	assert.Equal(t, 2, signatureCount(t, env, p.ID))
	assert.Equal(t, 2, constituencyCount(t, env, p.ID))

	reset, err := env.counter.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)
	assert.Equal(t, 3, signatureCount(t, env, p.ID))

	_, err = env.counter.ResetJournals(ctx, journal.KindConstituency, "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, constituencyCount(t, env, p.ID))

	reset, err = env.counter.Reconcile(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, reset)
}
