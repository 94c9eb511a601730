package counter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/petition-hub/petition-hub/internal/application/apptest"
	appAudit "github.com/petition-hub/petition-hub/internal/application/audit"
	"github.com/petition-hub/petition-hub/internal/domain/audit"
	"github.com/petition-hub/petition-hub/internal/domain/job"
	"github.com/petition-hub/petition-hub/internal/domain/journal"
	"github.com/petition-hub/petition-hub/internal/domain/notification"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
)

var now = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newEngine(t *testing.T) (*Engine, *apptest.Mocks, *appAudit.Service) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	m := apptest.NewMocks(ctrl)
	auditSvc := appAudit.NewService(m.Audit, zerolog.Nop(), []byte("key"))
	e := NewEngine(m.Transactor(), m.Petitions, m.Journals, auditSvc, petition.Thresholds{Moderation: 5}, nil, zerolog.Nop())
	e.now = apptest.Clock(now)
	return e, m, auditSvc
}

func notifyEvent(t *testing.T, j *job.Job) job.PetitionNotifyArgs {
	t.Helper()
	require.Equal(t, job.NamePetitionNotify, j.Name)
	var args job.PetitionNotifyArgs
	require.NoError(t, j.Decode(&args))
	return args
}

func TestEngine_IncrementSignatureCount(t *testing.T) {
	ctx := context.Background()

	t.Run("moderation crossing queues a notification", func(t *testing.T) {
		e, m, _ := newEngine(t)
		m.Petitions.EXPECT().IncrementSignatureCount(ctx, int64(1), now, petition.Thresholds{Moderation: 5}).
			Return(&petition.CountUpdate{
				PetitionID:                   1,
				Delta:                        1,
				SignatureCount:               5,
				State:                        petition.StateSponsored,
				ModerationThresholdReachedAt: &now,
			}, nil)
		var queued []*job.Job
		m.Jobs.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, j *job.Job) error {
			queued = append(queued, j)
			return nil
		})

		u, err := e.IncrementSignatureCount(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 5, u.SignatureCount)
		require.Len(t, queued, 1)
		args := notifyEvent(t, queued[0])
		assert.Equal(t, string(notification.EventModerationThresholdReached), args.Event)
		assert.Equal(t, "5", args.Detail)
	})

	t.Run("earlier crossing is not renotified", func(t *testing.T) {
		e, m, _ := newEngine(t)
		earlier := now.Add(-time.Hour)
		m.Petitions.EXPECT().IncrementSignatureCount(ctx, int64(1), now, gomock.Any()).
			Return(&petition.CountUpdate{
				PetitionID:                   1,
				Delta:                        3,
				SignatureCount:               10,
				ModerationThresholdReachedAt: &earlier,
				ReferralThresholdReachedAt:   &now,
			}, nil)
		var queued []*job.Job
		m.Jobs.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, j *job.Job) error {
			queued = append(queued, j)
			return nil
		})

		_, err := e.IncrementSignatureCount(ctx, 1)
		require.NoError(t, err)
		require.Len(t, queued, 1)
		assert.Equal(t, string(notification.EventReferralThresholdReached), notifyEvent(t, queued[0]).Event)
	})

	t.Run("nothing new to count", func(t *testing.T) {
		e, m, _ := newEngine(t)
		m.Petitions.EXPECT().IncrementSignatureCount(ctx, int64(1), now, gomock.Any()).
			Return(&petition.CountUpdate{PetitionID: 1}, nil)

		u, err := e.IncrementSignatureCount(ctx, 1)
		require.NoError(t, err)
		assert.False(t, u.Changed())
	})

	t.Run("repository error", func(t *testing.T) {
		e, m, _ := newEngine(t)
		m.Petitions.EXPECT().IncrementSignatureCount(ctx, int64(1), now, gomock.Any()).
			Return(nil, errors.New("connection reset"))

		_, err := e.IncrementSignatureCount(ctx, 1)
		assert.ErrorContains(t, err, "increment petition 1")
	})
}

func TestEngine_DecrementSignatureCount(t *testing.T) {
	ctx := context.Background()
	e, m, _ := newEngine(t)
	m.Petitions.EXPECT().DecrementSignatureCount(ctx, int64(2), now).
		Return(&petition.CountUpdate{PetitionID: 2}, nil)

	u, err := e.DecrementSignatureCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Delta)
}

func validatedSignature(constituency *string) *signature.Signature {
	validatedAt := now.Add(-10 * time.Minute)
	return &signature.Signature{
		ID:             9,
		PetitionID:     1,
		LocationCode:   "GB",
		ConstituencyID: constituency,
		State:          signature.StateValidated,
		ValidatedAt:    &validatedAt,
	}
}

func TestEngine_ApplyValidated(t *testing.T) {
	ctx := context.Background()
	e, m, _ := newEngine(t)
	constituency := "E14000639"
	s := validatedSignature(&constituency)

	m.Petitions.EXPECT().IncrementSignatureCount(ctx, int64(1), now, gomock.Any()).
		Return(&petition.CountUpdate{PetitionID: 1, Delta: 1, SignatureCount: 2}, nil)
	keys := []journal.Key{
		journal.ConstituencyKey(1, constituency),
		journal.CountryKey(1, "GB"),
		journal.TrendingKey(1, *s.ValidatedAt),
	}
	for i, key := range keys {
		id := int64(i + 1)
		m.Journals.EXPECT().FindOrCreate(ctx, key).Return(&journal.Journal{ID: id, Kind: key.Kind}, nil)
		m.Journals.EXPECT().Increment(ctx, key.Kind, id, now).Return(nil)
	}

	require.NoError(t, e.ApplyValidated(ctx, m.Repositories(), s, now))
	assert.Equal(t, "2026-05-04T10", keys[2].Value)
}

func TestEngine_ApplyRemoved(t *testing.T) {
	ctx := context.Background()

	t.Run("decrements petition and existing journals", func(t *testing.T) {
		e, m, _ := newEngine(t)
		constituency := "E14000639"
		s := validatedSignature(&constituency)

		m.Petitions.EXPECT().DecrementSignatureCount(ctx, int64(1), now).
			Return(&petition.CountUpdate{PetitionID: 1, Delta: -1, SignatureCount: 4}, nil)
		m.Journals.EXPECT().Get(ctx, journal.ConstituencyKey(1, constituency)).Return(nil, nil)
		m.Journals.EXPECT().Get(ctx, journal.CountryKey(1, "GB")).
			Return(&journal.Journal{ID: 3, Kind: journal.KindCountry}, nil)
		m.Journals.EXPECT().Decrement(ctx, journal.KindCountry, int64(3), now).Return(nil)

		require.NoError(t, e.ApplyRemoved(ctx, m.Repositories(), s, now))
	})

	t.Run("journal failure aborts", func(t *testing.T) {
		e, m, _ := newEngine(t)
		s := validatedSignature(nil)

		m.Petitions.EXPECT().DecrementSignatureCount(ctx, int64(1), now).
			Return(&petition.CountUpdate{PetitionID: 1, Delta: -1, SignatureCount: 4}, nil)
		m.Journals.EXPECT().Get(ctx, journal.CountryKey(1, "GB")).Return(nil, errors.New("boom"))

		assert.Error(t, e.ApplyRemoved(ctx, m.Repositories(), s, now))
	})
}

func TestEngine_HandleSignatureValidated(t *testing.T) {
	ctx := context.Background()
	j, err := job.New(job.NameSignatureValidated, job.SignatureValidatedArgs{SignatureID: 9, PetitionID: 1}, now)
	require.NoError(t, err)

	t.Run("counts a validated signature", func(t *testing.T) {
		e, m, _ := newEngine(t)
		s := validatedSignature(nil)
		m.Signatures.EXPECT().Lock(ctx, int64(9)).Return(s, nil)
		m.Petitions.EXPECT().IncrementSignatureCount(ctx, int64(1), now, gomock.Any()).
			Return(&petition.CountUpdate{PetitionID: 1, Delta: 1, SignatureCount: 2}, nil)
		m.Journals.EXPECT().FindOrCreate(ctx, gomock.Any()).Return(&journal.Journal{ID: 1}, nil).Times(2)
		m.Journals.EXPECT().Increment(ctx, gomock.Any(), int64(1), now).Return(nil).Times(2)

		assert.NoError(t, e.HandleSignatureValidated(ctx, j))
	})

	t.Run("skips a signature invalidated in the meantime", func(t *testing.T) {
		e, m, _ := newEngine(t)
		s := validatedSignature(nil)
		s.State = signature.StateInvalidated
		m.Signatures.EXPECT().Lock(ctx, int64(9)).Return(s, nil)

		assert.NoError(t, e.HandleSignatureValidated(ctx, j))
	})

	t.Run("skips a deleted signature", func(t *testing.T) {
		e, m, _ := newEngine(t)
		m.Signatures.EXPECT().Lock(ctx, int64(9)).Return(nil, nil)

		assert.NoError(t, e.HandleSignatureValidated(ctx, j))
	})
}

func TestEngine_ResetSignatureCount(t *testing.T) {
	ctx := context.Background()

	t.Run("corrects drift and audits", func(t *testing.T) {
		e, m, _ := newEngine(t)
		gomock.InOrder(
			m.Petitions.EXPECT().MarkSignatureCountResetting(ctx, int64(4), now).Return(nil),
			m.Petitions.EXPECT().ResetSignatureCount(ctx, int64(4), now).
				Return(&petition.CountUpdate{PetitionID: 4, Delta: -2, SignatureCount: 8}, nil),
		)
		m.Audit.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, l *audit.AuditLog) error {
			assert.Equal(t, audit.ActionResetCount, l.Action)
			assert.Equal(t, "4", l.EntityID)
			assert.JSONEq(t, `{"signatureCount":10}`, string(l.OldValues))
			assert.JSONEq(t, `{"signatureCount":8}`, string(l.NewValues))
			assert.NotEmpty(t, l.Signature)
			return nil
		})

		u, err := e.ResetSignatureCount(ctx, 4, "admin@example.com")
		require.NoError(t, err)
		assert.Equal(t, -2, u.Delta)
	})

	t.Run("unknown petition", func(t *testing.T) {
		e, m, _ := newEngine(t)
		m.Petitions.EXPECT().MarkSignatureCountResetting(ctx, int64(4), now).Return(petition.ErrNotFound)

		_, err := e.ResetSignatureCount(ctx, 4, "admin@example.com")
		assert.ErrorIs(t, err, petition.ErrNotFound)
	})
}

func TestEngine_Reconcile(t *testing.T) {
	ctx := context.Background()
	e, m, _ := newEngine(t)

	m.Petitions.EXPECT().IDsWithInvalidSignatureCounts(ctx, 10).Return([]int64{1, 2}, nil)
	m.Petitions.EXPECT().MarkSignatureCountResetting(ctx, int64(1), now).Return(nil)
	m.Petitions.EXPECT().ResetSignatureCount(ctx, int64(1), now).
		Return(&petition.CountUpdate{PetitionID: 1, Delta: 1, SignatureCount: 3}, nil)
	m.Petitions.EXPECT().MarkSignatureCountResetting(ctx, int64(2), now).Return(nil)
	m.Petitions.EXPECT().ResetSignatureCount(ctx, int64(2), now).Return(nil, errors.New("deadlock detected"))
	m.Audit.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	reset, err := e.Reconcile(ctx, 10)
	assert.Equal(t, 1, reset)
	assert.ErrorContains(t, err, "deadlock detected")
}

func TestEngine_ReconcileRestoresSignatureRemovedBeforeItWasCounted(t *testing.T) {
	ctx := context.Background()
	e, m, _ := newEngine(t)
	s := validatedSignature(nil)
	j, err := job.New(job.NameSignatureValidated, job.SignatureValidatedArgs{SignatureID: s.ID, PetitionID: 1}, now)
	require.NoError(t, err)

	// Five counted signatures; the sixth is invalidated before its counting job runs.
	m.Petitions.EXPECT().DecrementSignatureCount(ctx, int64(1), now).
		Return(&petition.CountUpdate{PetitionID: 1, Delta: -1, SignatureCount: 4}, nil)
	m.Journals.EXPECT().Get(ctx, journal.CountryKey(1, "GB")).Return(nil, nil)
	require.NoError(t, e.ApplyRemoved(ctx, m.Repositories(), s, now))

	s.State = signature.StateInvalidated
	m.Signatures.EXPECT().Lock(ctx, s.ID).Return(s, nil)
	require.NoError(t, e.HandleSignatureValidated(ctx, j))

	m.Petitions.EXPECT().IDsWithInvalidSignatureCounts(ctx, 100).Return([]int64{1}, nil)
	m.Petitions.EXPECT().MarkSignatureCountResetting(ctx, int64(1), now).Return(nil)
	m.Petitions.EXPECT().ResetSignatureCount(ctx, int64(1), now).
		Return(&petition.CountUpdate{PetitionID: 1, Delta: 1, SignatureCount: 5}, nil)
	m.Audit.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	reset, err := e.Reconcile(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)
}

func TestEngine_ResetJournals(t *testing.T) {
	ctx := context.Background()
	e, m, auditSvc := newEngine(t)

	m.Journals.EXPECT().Reset(ctx, journal.KindCountry, now).Return(int64(12), nil)
	m.Audit.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, l *audit.AuditLog) error {
		assert.Equal(t, audit.EntityTypeJournal, l.EntityType)
		assert.Equal(t, "country", l.EntityID)
		return nil
	})

	rows, err := e.ResetJournals(ctx, journal.KindCountry, "cli")
	require.NoError(t, err)
	assert.Equal(t, int64(12), rows)
	auditSvc.Wait()
}
