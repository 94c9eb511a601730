package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/petition-hub/petition-hub/internal/domain/audit"
	auditmocks "github.com/petition-hub/petition-hub/internal/domain/audit/mocks"
)

var key = []byte("0123456789abcdef0123456789abcdef")

func newService(t *testing.T, signKey []byte) (*Service, *auditmocks.MockRepository) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	repo := auditmocks.NewMockRepository(ctrl)
	return NewService(repo, zerolog.Nop(), signKey), repo
}

func TestService_LogSync(t *testing.T) {
	ctx := context.Background()

	t.Run("signed entry", func(t *testing.T) {
		svc, repo := newService(t, key)
		var saved *audit.AuditLog
		repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, l *audit.AuditLog) error {
			saved = l
			return nil
		})

		err := svc.LogSync(ctx, &audit.AuditEntry{
			EntityType: audit.EntityTypeInvalidation,
			EntityID:   "7",
			Action:     audit.ActionStart,
			Actor:      "admin",
			NewValues:  map[string]int{"matchingCount": 12},
		})
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, audit.RiskLevelHigh, saved.RiskLevel)
		assert.JSONEq(t, `{"matchingCount":12}`, string(saved.NewValues))
		ok, err := audit.VerifyAuditLog(saved, key)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unsigned without key", func(t *testing.T) {
		svc, repo := newService(t, nil)
		repo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, l *audit.AuditLog) error {
			assert.Empty(t, l.Signature)
			return nil
		})

		require.NoError(t, svc.LogSync(ctx, &audit.AuditEntry{EntityType: audit.EntityTypePetition, EntityID: "1", Action: audit.ActionFlag}))
	})

	t.Run("repository failure", func(t *testing.T) {
		svc, repo := newService(t, nil)
		repo.EXPECT().Create(ctx, gomock.Any()).Return(errors.New("disk full"))

		err := svc.LogSync(ctx, &audit.AuditEntry{EntityType: audit.EntityTypePetition, EntityID: "1", Action: audit.ActionFlag})
		assert.ErrorContains(t, err, "disk full")
	})
}

func TestService_Log(t *testing.T) {
	svc, repo := newService(t, nil)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	svc.Log(&audit.AuditEntry{EntityType: audit.EntityTypeSignature, EntityID: "1", Action: audit.ActionInvalidate})
	svc.Log(&audit.AuditEntry{EntityType: audit.EntityTypeSignature, EntityID: "2", Action: audit.ActionInvalidate})
	svc.Wait()
}

func TestService_History(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, nil)
	repo.EXPECT().GetByEntityID(ctx, audit.EntityTypePetition, "1", 50).Return([]*audit.AuditLog{{EntityID: "1"}}, nil)
	repo.EXPECT().GetByEntityID(ctx, audit.EntityTypePetition, "1", 10).Return(nil, nil)

	logs, err := svc.History(ctx, audit.EntityTypePetition, "1", 1000)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = svc.History(ctx, audit.EntityTypePetition, "1", 10)
	require.NoError(t, err)
}

func TestService_Verify(t *testing.T) {
	ctx := context.Background()

	signed, err := audit.NewAuditLog(&audit.AuditEntry{EntityType: audit.EntityTypePetition, EntityID: "1", Action: audit.ActionPublish, Actor: "mod"})
	require.NoError(t, err)
	signed.Signature, err = audit.SignAuditLog(signed, key)
	require.NoError(t, err)

	tampered := *signed
	tampered.Actor = "someone-else"

	unsigned, err := audit.NewAuditLog(&audit.AuditEntry{EntityType: audit.EntityTypePetition, EntityID: "1", Action: audit.ActionFlag})
	require.NoError(t, err)

	t.Run("with key", func(t *testing.T) {
		svc, repo := newService(t, key)
		repo.EXPECT().GetByEntityID(ctx, audit.EntityTypePetition, "1", 200).
			Return([]*audit.AuditLog{signed, &tampered, unsigned}, nil)

		results, err := svc.Verify(ctx, audit.EntityTypePetition, "1")
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.True(t, results[0].Verified)
		assert.False(t, results[1].Verified)
		assert.Equal(t, "Audit log signature mismatch", results[1].Message)
		assert.False(t, results[2].Verified)
		assert.Equal(t, "Audit log is unsigned", results[2].Message)

		raw, err := json.Marshal(results[0])
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"verified":true`)
	})

	t.Run("signing disabled", func(t *testing.T) {
		svc, repo := newService(t, nil)
		repo.EXPECT().GetByEntityID(ctx, audit.EntityTypePetition, "1", 200).Return([]*audit.AuditLog{signed}, nil)

		results, err := svc.Verify(ctx, audit.EntityTypePetition, "1")
		require.NoError(t, err)
		assert.False(t, results[0].Verified)
		assert.Equal(t, "Audit signing is disabled", results[0].Message)
	})
}
