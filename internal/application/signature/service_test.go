package signature

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
	"github.com/petition-hub/petition-hub/internal/domain/job"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
	signaturemocks "github.com/petition-hub/petition-hub/internal/domain/signature/mocks"
	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeCounter struct {
	removed []int64
	err     error
}

func (f *fakeCounter) ApplyRemoved(_ context.Context, _ unitofwork.Repositories, s *signature.Signature, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, s.ID)
	return nil
}

type fixture struct {
	ctrl     *gomock.Controller
	mocks    *apptest.Mocks
	tx       *apptest.Transactor
	counter  *fakeCounter
	gate     *signaturemocks.MockGate
	resolver *signaturemocks.MockConstituencyResolver
	auditSvc *appAudit.Service
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	m := apptest.NewMocks(ctrl)
	f := &fixture{
		ctrl:     ctrl,
		mocks:    m,
		tx:       m.Transactor(),
		counter:  &fakeCounter{},
		gate:     signaturemocks.NewMockGate(ctrl),
		resolver: signaturemocks.NewMockConstituencyResolver(ctrl),
	}
	f.auditSvc = appAudit.NewService(m.Audit, zerolog.Nop(), nil)
	f.svc = NewService(f.tx, m.Signatures, m.Petitions, f.counter, f.auditSvc, Options{
		Gate:           f.gate,
		Resolver:       f.resolver,
		AnonymizeKey:   []byte("secret"),
		AnonymizeBatch: 2,
	}, nil, zerolog.Nop())
	f.svc.now = apptest.Clock(now)
	return f
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	params := CreateParams{
		PetitionID:   1,
		Name:         " Jo Bloggs ",
		Email:        "Jo@Example.COM",
		Postcode:     "sw1a 1aa",
		LocationCode: "gb",
		IPAddress:    "192.0.2.10",
	}

	t.Run("open petition", func(t *testing.T) {
		f := newFixture(t)
		closedAt := now.Add(24 * time.Hour)
		f.mocks.Petitions.EXPECT().GetByID(ctx, int64(1)).
			Return(&petition.Petition{ID: 1, State: petition.StateOpen, ClosedAt: &closedAt}, nil)
		f.resolver.EXPECT().Resolve(ctx, "SW1A1AA").
			Return(&signature.Constituency{ID: "E14000639", RegionID: "H"}, nil)
		f.mocks.Signatures.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, s *signature.Signature) error {
			s.ID = 10
			return nil
		})
		f.gate.EXPECT().Exceeded(ctx, gomock.Any()).Return(false, nil)

		sig, err := f.svc.Create(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, int64(10), sig.ID)
		assert.Equal(t, "jo@example.com", sig.Email)
		assert.Equal(t, "Jo Bloggs", sig.Name)
		assert.Equal(t, "GB", sig.LocationCode)
		require.NotNil(t, sig.ConstituencyID)
		assert.Equal(t, "E14000639", *sig.ConstituencyID)
		assert.False(t, sig.Sponsor)
		assert.Equal(t, signature.StatePending, sig.State)
	})

	t.Run("sponsor signature while in moderation", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Petitions.EXPECT().GetByID(ctx, int64(1)).
			Return(&petition.Petition{ID: 1, State: petition.StateValidated}, nil)
		f.resolver.EXPECT().Resolve(ctx, "SW1A1AA").Return(nil, errors.New("lookup down"))
		f.mocks.Signatures.EXPECT().Create(ctx, gomock.Any()).Return(nil)
		f.gate.EXPECT().Exceeded(ctx, gomock.Any()).Return(false, errors.New("redis down"))

		sig, err := f.svc.Create(ctx, params)
		require.NoError(t, err)
		assert.True(t, sig.Sponsor)
		assert.Nil(t, sig.ConstituencyID)
	})

	t.Run("gate refusal marks fraudulent", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Petitions.EXPECT().GetByID(ctx, int64(1)).
			Return(&petition.Petition{ID: 1, State: petition.StateOpen}, nil)
		f.resolver.EXPECT().Resolve(ctx, gomock.Any()).Return(nil, nil)
		f.mocks.Signatures.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, s *signature.Signature) error {
			s.ID = 11
			return nil
		})
		f.gate.EXPECT().Exceeded(ctx, gomock.Any()).Return(true, nil)
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(11)).
			Return(&signature.Signature{ID: 11, PetitionID: 1, State: signature.StatePending}, nil)
		f.mocks.Signatures.EXPECT().UpdateState(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, s *signature.Signature) error {
			assert.Equal(t, signature.StateFraudulent, s.State)
			return nil
		})

		sig, err := f.svc.Create(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, signature.StateFraudulent, sig.State)
	})

	t.Run("closed petition", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Petitions.EXPECT().GetByID(ctx, int64(1)).
			Return(&petition.Petition{ID: 1, State: petition.StateClosed}, nil)

		_, err := f.svc.Create(ctx, params)
		assert.ErrorIs(t, err, ErrNotAccepting)
	})

	t.Run("open petition past its deadline", func(t *testing.T) {
		f := newFixture(t)
		closedAt := now.Add(-time.Minute)
		f.mocks.Petitions.EXPECT().GetByID(ctx, int64(1)).
			Return(&petition.Petition{ID: 1, State: petition.StateOpen, ClosedAt: &closedAt}, nil)

		_, err := f.svc.Create(ctx, params)
		assert.ErrorIs(t, err, ErrNotAccepting)
	})

	t.Run("invalid input", func(t *testing.T) {
		f := newFixture(t)
		bad := params
		bad.Email = "nobody"

		_, err := f.svc.Create(ctx, bad)
		assert.ErrorIs(t, err, signature.ErrValidation)
	})
}

func expectValidatedJob(ctx context.Context, t *testing.T, f *fixture, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		id := id
		f.mocks.Jobs.EXPECT().Enqueue(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, j *job.Job) error {
			assert.Equal(t, job.NameSignatureValidated, j.Name)
			var args job.SignatureValidatedArgs
			require.NoError(t, j.Decode(&args))
			assert.Equal(t, id, args.SignatureID)
			return nil
		})
	}
}

func TestService_Validate(t *testing.T) {
	ctx := context.Background()

	t.Run("validates the pending creator first", func(t *testing.T) {
		f := newFixture(t)
		sig := &signature.Signature{ID: 5, PetitionID: 1, State: signature.StatePending}
		creator := &signature.Signature{ID: 1, PetitionID: 1, State: signature.StatePending, Creator: true}

		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).Return(sig, nil)
		f.mocks.Petitions.EXPECT().GetByID(ctx, int64(1)).Return(&petition.Petition{ID: 1, SignatureCount: 0}, nil)
		f.mocks.Signatures.EXPECT().LockCreator(ctx, int64(1)).Return(creator, nil)
		f.mocks.Signatures.EXPECT().UpdateState(ctx, creator).Return(nil)
		f.mocks.Signatures.EXPECT().UpdateState(ctx, sig).Return(nil)
		expectValidatedJob(ctx, t, f, 1, 5)

		got, err := f.svc.Validate(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, signature.StateValidated, got.State)
		assert.Equal(t, 2, *got.Number)
		assert.Equal(t, 1, *creator.Number)
		assert.True(t, got.ValidatedAt.Equal(now))
	})

	t.Run("number follows the petition count", func(t *testing.T) {
		f := newFixture(t)
		sig := &signature.Signature{ID: 5, PetitionID: 1, State: signature.StatePending}
		creator := &signature.Signature{ID: 1, PetitionID: 1, State: signature.StateValidated, Creator: true}

		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).Return(sig, nil)
		f.mocks.Petitions.EXPECT().GetByID(ctx, int64(1)).Return(&petition.Petition{ID: 1, SignatureCount: 41}, nil)
		f.mocks.Signatures.EXPECT().LockCreator(ctx, int64(1)).Return(creator, nil)
		f.mocks.Signatures.EXPECT().UpdateState(ctx, sig).Return(nil)
		expectValidatedJob(ctx, t, f, 5)

		got, err := f.svc.Validate(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, 42, *got.Number)
	})

	t.Run("already validated conflicts", func(t *testing.T) {
		f := newFixture(t)
		number := 3
		sig := &signature.Signature{ID: 5, PetitionID: 1, State: signature.StateValidated, Number: &number}
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).Return(sig, nil)

		_, err := f.svc.Validate(ctx, 5)
		assert.ErrorIs(t, err, signature.ErrInvalidTransition)
		assert.Equal(t, 3, *sig.Number)
	})

	t.Run("fraudulent signature conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).
			Return(&signature.Signature{ID: 5, PetitionID: 1, State: signature.StateFraudulent}, nil)

		_, err := f.svc.Validate(ctx, 5)
		assert.ErrorIs(t, err, signature.ErrInvalidTransition)
	})

	t.Run("missing signature", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).Return(nil, nil)

		_, err := f.svc.Validate(ctx, 5)
		assert.ErrorIs(t, err, signature.ErrNotFound)
	})

	t.Run("aborted transaction is retried once", func(t *testing.T) {
		f := newFixture(t)
		f.tx.Fail = []error{unitofwork.ErrTransactionAborted}
		number := 1
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).
			Return(&signature.Signature{ID: 5, State: signature.StateValidated, Number: &number}, nil)

		_, err := f.svc.Validate(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, 2, f.tx.Calls)
	})

	t.Run("second aborted transaction propagates", func(t *testing.T) {
		f := newFixture(t)
		f.tx.Fail = []error{unitofwork.ErrTransactionAborted, unitofwork.ErrTransactionAborted}

		_, err := f.svc.Validate(ctx, 5)
		assert.ErrorIs(t, err, unitofwork.ErrTransactionAborted)
		assert.Equal(t, 2, f.tx.Calls)
	})
}

func TestService_Fraudulent(t *testing.T) {
	ctx := context.Background()

	t.Run("pending", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).
			Return(&signature.Signature{ID: 5, State: signature.StatePending}, nil)
		f.mocks.Signatures.EXPECT().UpdateState(ctx, gomock.Any()).Return(nil)

		require.NoError(t, f.svc.Fraudulent(ctx, 5))
		assert.Empty(t, f.counter.removed)
	})

	t.Run("validated conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).
			Return(&signature.Signature{ID: 5, State: signature.StateValidated}, nil)

		assert.ErrorIs(t, f.svc.Fraudulent(ctx, 5), signature.ErrInvalidTransition)
	})
}

func TestService_InvalidateWith(t *testing.T) {
	ctx := context.Background()
	invalidationID := int64(77)

	tests := []struct {
		name        string
		state       signature.State
		wantChanged bool
		wantRemoved bool
	}{
		{name: "validated is uncounted", state: signature.StateValidated, wantChanged: true, wantRemoved: true},
		{name: "pending is not counted", state: signature.StatePending, wantChanged: true},
		{name: "fraudulent is not counted", state: signature.StateFraudulent, wantChanged: true},
		{name: "invalidated is left alone", state: signature.StateInvalidated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sig := &signature.Signature{ID: 5, PetitionID: 1, State: tt.state, NotifyByEmail: true}
			f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).Return(sig, nil)
			if tt.wantChanged {
				f.mocks.Signatures.EXPECT().UpdateState(ctx, sig).Return(nil)
			}

			changed, err := f.svc.InvalidateWith(ctx, f.mocks.Repositories(), 5, now, &invalidationID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)
			if tt.wantRemoved {
				assert.Equal(t, []int64{5}, f.counter.removed)
			} else {
				assert.Empty(t, f.counter.removed)
			}
			if tt.wantChanged {
				assert.Equal(t, signature.StateInvalidated, sig.State)
				assert.False(t, sig.NotifyByEmail)
				assert.Equal(t, &invalidationID, sig.InvalidationID)
			}
		})
	}
}

func TestService_Invalidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).
		Return(&signature.Signature{ID: 5, PetitionID: 1, State: signature.StateValidated}, nil)
	f.mocks.Signatures.EXPECT().UpdateState(ctx, gomock.Any()).Return(nil)
	f.mocks.Audit.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, f.svc.Invalidate(ctx, 5, "moderator@example.com"))
	f.auditSvc.Wait()
	assert.Equal(t, []int64{5}, f.counter.removed)
}

func TestService_Destroy(t *testing.T) {
	ctx := context.Background()

	t.Run("validated signature is uncounted then deleted", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).
			Return(&signature.Signature{ID: 5, PetitionID: 1, State: signature.StateValidated}, nil)
		f.mocks.Signatures.EXPECT().Delete(ctx, int64(5)).Return(nil)
		f.mocks.Audit.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		require.NoError(t, f.svc.Destroy(ctx, 5, "admin"))
		f.auditSvc.Wait()
		assert.Equal(t, []int64{5}, f.counter.removed)
	})

	t.Run("creator is never destroyed", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(1)).
			Return(&signature.Signature{ID: 1, PetitionID: 1, State: signature.StateValidated, Creator: true}, nil)

		assert.ErrorIs(t, f.svc.Destroy(ctx, 1, "admin"), signature.ErrCreatorSignature)
		assert.Empty(t, f.counter.removed)
	})

	t.Run("counter failure keeps the row", func(t *testing.T) {
		f := newFixture(t)
		f.counter.err = errors.New("lock timeout")
		f.mocks.Signatures.EXPECT().Lock(ctx, int64(5)).
			Return(&signature.Signature{ID: 5, PetitionID: 1, State: signature.StateValidated}, nil)

		assert.Error(t, f.svc.Destroy(ctx, 5, "admin"))
	})
}

func TestService_ResolveConstituency(t *testing.T) {
	ctx := context.Background()

	t.Run("cached", func(t *testing.T) {
		f := newFixture(t)
		id := "S14000021"
		f.mocks.Signatures.EXPECT().GetByID(ctx, int64(5)).
			Return(&signature.Signature{ID: 5, ConstituencyID: &id}, nil)

		got, err := f.svc.ResolveConstituency(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "S14000021", *got)
	})

	t.Run("looked up and stored", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Signatures.EXPECT().GetByID(ctx, int64(5)).
			Return(&signature.Signature{ID: 5, Postcode: "EH11YZ"}, nil)
		f.resolver.EXPECT().Resolve(ctx, "EH11YZ").Return(&signature.Constituency{ID: "S14000021"}, nil)
		f.mocks.Signatures.EXPECT().UpdateConstituency(ctx, int64(5), "S14000021").Return(nil)

		got, err := f.svc.ResolveConstituency(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "S14000021", *got)
	})

	t.Run("unknown postcode", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Signatures.EXPECT().GetByID(ctx, int64(5)).
			Return(&signature.Signature{ID: 5, Postcode: "ZZ99"}, nil)
		f.resolver.EXPECT().Resolve(ctx, "ZZ99").Return(nil, nil)

		got, err := f.svc.ResolveConstituency(ctx, 5)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestService_AnonymizePetition(t *testing.T) {
	ctx := context.Background()

	t.Run("archived petition in batches", func(t *testing.T) {
		f := newFixture(t)
		archivedAt := now.Add(-time.Hour)
		f.mocks.Petitions.EXPECT().GetByID(ctx, int64(1)).
			Return(&petition.Petition{ID: 1, State: petition.StateCompleted, ArchivedAt: &archivedAt}, nil)
		gomock.InOrder(
			f.mocks.Signatures.EXPECT().ListForAnonymizing(ctx, int64(1), int64(0), 2).Return([]*signature.Signature{
				{ID: 3, Name: "A", Email: "a@example.com", IPAddress: "192.0.2.1"},
				{ID: 4, Name: "B", Email: "b@example.com", IPAddress: "192.0.2.2"},
			}, nil),
			f.mocks.Signatures.EXPECT().ListForAnonymizing(ctx, int64(1), int64(4), 2).Return([]*signature.Signature{
				{ID: 9, Name: "C", Email: "c@example.com", IPAddress: "192.0.2.3"},
			}, nil),
			f.mocks.Signatures.EXPECT().ListForAnonymizing(ctx, int64(1), int64(9), 2).Return(nil, nil),
		)
		f.mocks.Signatures.EXPECT().UpdatePersonalData(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, s *signature.Signature) error {
			assert.Equal(t, "Anonymous", s.Name)
			assert.NotNil(t, s.AnonymizedAt)
			return nil
		}).Times(3)
		f.mocks.Audit.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		n, err := f.svc.AnonymizePetition(ctx, 1, "cli")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		f.auditSvc.Wait()
	})

	t.Run("petition not archived", func(t *testing.T) {
		f := newFixture(t)
		f.mocks.Petitions.EXPECT().GetByID(ctx, int64(1)).
			Return(&petition.Petition{ID: 1, State: petition.StateOpen}, nil)

		_, err := f.svc.AnonymizePetition(ctx, 1, "cli")
		assert.ErrorIs(t, err, petition.ErrInvalidTransition)
	})
}
