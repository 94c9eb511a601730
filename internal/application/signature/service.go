package signature

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	appAudit "github.com/petition-hub/petition-hub/internal/application/audit"
	"github.com/petition-hub/petition-hub/internal/domain/audit"
	"github.com/petition-hub/petition-hub/internal/domain/job"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
)

// ErrNotAccepting is returned when a petition is in a state that takes no signatures.
var ErrNotAccepting = errors.New("petition is not accepting signatures")

// Counter applies the aggregate side effects of a counted signature leaving the count.
type Counter interface {
	ApplyRemoved(ctx context.Context, repos unitofwork.Repositories, s *signature.Signature, now time.Time) error
}

// Service drives the signature state machine.
type Service struct {
	tx             unitofwork.Transactor
	signatures     signature.Repository
	petitions      petition.Repository
	counter        Counter
	gate           signature.Gate
	resolver       signature.ConstituencyResolver
	auditSvc       *appAudit.Service
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	anonymizeKey   []byte
	anonymizeBatch int
	now            func() time.Time
}

// Options carries the optional collaborators and tunables of the service.
type Options struct {
	Gate           signature.Gate
	Resolver       signature.ConstituencyResolver
	AnonymizeKey   []byte
	AnonymizeBatch int
}

// NewService creates a signature service.
func NewService(
	tx unitofwork.Transactor,
	signatures signature.Repository,
	petitions petition.Repository,
	counter Counter,
	auditSvc *appAudit.Service,
	opts Options,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	if opts.AnonymizeBatch <= 0 {
		opts.AnonymizeBatch = 1000
	}
	return &Service{
		tx:             tx,
		signatures:     signatures,
		petitions:      petitions,
		counter:        counter,
		gate:           opts.Gate,
		resolver:       opts.Resolver,
		auditSvc:       auditSvc,
		metrics:        m,
		logger:         logger.With().Str("service", "signature").Logger(),
		anonymizeKey:   opts.AnonymizeKey,
		anonymizeBatch: opts.AnonymizeBatch,
		now:            unitofwork.Now,
	}
}

// CreateParams is a signer's submission.
type CreateParams struct {
	PetitionID    int64
	Name          string
	Email         string
	Postcode      string
	LocationCode  string
	IPAddress     string
	NotifyByEmail bool
}

// Create persists a pending signature and consults the admission gate. A signature the
// gate refuses is kept as fraudulent rather than dropped.
func (s *Service) Create(ctx context.Context, params CreateParams) (*signature.Signature, error) {
	now := s.now()
	sig := signature.NewSignature(params.PetitionID, params.Name, params.Email, params.Postcode,
		params.LocationCode, params.IPAddress, params.NotifyByEmail, now)
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	p, err := s.petitions.GetByID(ctx, params.PetitionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, petition.ErrNotFound
	}
	switch p.State {
	case petition.StatePending, petition.StateValidated, petition.StateSponsored, petition.StateFlagged:
		sig.Sponsor = true
	case petition.StateOpen:
		if p.ClosedAt != nil && !p.ClosedAt.After(now) {
			return nil, ErrNotAccepting
		}
	default:
		return nil, ErrNotAccepting
	}

	s.resolve(ctx, sig)
	if err := s.signatures.Create(ctx, sig); err != nil {
		return nil, fmt.Errorf("failed to create signature: %w", err)
	}
	s.metrics.SignatureTransition(string(signature.StatePending))

	if s.gate == nil {
		return sig, nil
	}
	exceeded, err := s.gate.Exceeded(ctx, sig)
	if err != nil {
		s.logger.Warn().Err(err).Int64("signature_id", sig.ID).Msg("admission gate unavailable, accepting signature")
		return sig, nil
	}
	if !exceeded {
		return sig, nil
	}
	if err := s.Fraudulent(ctx, sig.ID); err != nil {
		return nil, err
	}
	sig.State = signature.StateFraudulent
	return sig, nil
}

// resolve fills the constituency from the postcode. Lookup failures leave it empty.
func (s *Service) resolve(ctx context.Context, sig *signature.Signature) {
	if s.resolver == nil || sig.Postcode == "" || sig.ConstituencyID != nil {
		return
	}
	c, err := s.resolver.Resolve(ctx, sig.Postcode)
	if err != nil {
		s.logger.Warn().Err(err).Str("postcode", sig.Postcode).Msg("constituency lookup failed")
		return
	}
	if c != nil {
		sig.ConstituencyID = &c.ID
	}
}

// withLock runs fn in a transaction, retrying once on a fresh transaction when the
// first attempt hit an aborted transaction.
func (s *Service) withLock(ctx context.Context, fn func(ctx context.Context, repos unitofwork.Repositories) error) error {
	err := s.tx.InTx(ctx, fn)
	if errors.Is(err, unitofwork.ErrTransactionAborted) {
		s.logger.Warn().Err(err).Msg("transaction aborted, retrying locked block")
		err = s.tx.InTx(ctx, fn)
	}
	return err
}

func lock(ctx context.Context, repos unitofwork.Repositories, id int64) (*signature.Signature, error) {
	sig, err := repos.Signatures.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, signature.ErrNotFound
	}
	return sig, nil
}

// Validate moves a pending signature to validated. The petition creator's signature is
// validated first when it is still pending. Any other state, validated included, is a
// conflict. Counter updates run asynchronously once the transaction commits.
func (s *Service) Validate(ctx context.Context, id int64) (*signature.Signature, error) {
	now := s.now()
	var sig *signature.Signature
	var validated []*signature.Signature
	err := s.withLock(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		validated = validated[:0]
		var err error
		sig, err = lock(ctx, repos, id)
		if err != nil {
			return err
		}
		if sig.State != signature.StatePending {
			return sig.MarkValidated(0, now)
		}

		p, err := repos.Petitions.GetByID(ctx, sig.PetitionID)
		if err != nil {
			return err
		}
		if p == nil {
			return petition.ErrNotFound
		}
		number := p.SignatureCount

		if !sig.Creator {
			creator, err := repos.Signatures.LockCreator(ctx, sig.PetitionID)
			if err != nil {
				return err
			}
			if creator != nil && creator.State == signature.StatePending {
				number++
				if err := s.markValidated(ctx, repos, creator, number, now); err != nil {
					return fmt.Errorf("validate creator: %w", err)
				}
				validated = append(validated, creator)
			}
		}

		number++
		if err := s.markValidated(ctx, repos, sig, number, now); err != nil {
			return err
		}
		validated = append(validated, sig)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, v := range validated {
		s.metrics.SignatureTransition(string(signature.StateValidated))
		s.logger.Debug().Int64("signature_id", v.ID).Int64("petition_id", v.PetitionID).Int("number", *v.Number).Msg("signature validated")
	}
	return sig, nil
}

func (s *Service) markValidated(ctx context.Context, repos unitofwork.Repositories, sig *signature.Signature, number int, now time.Time) error {
	if err := sig.MarkValidated(number, now); err != nil {
		return err
	}
	if err := repos.Signatures.UpdateState(ctx, sig); err != nil {
		return err
	}
	j, err := job.New(job.NameSignatureValidated, job.SignatureValidatedArgs{
		SignatureID: sig.ID,
		PetitionID:  sig.PetitionID,
	}, now)
	if err != nil {
		return err
	}
	return repos.Jobs.Enqueue(ctx, j)
}

// Fraudulent marks a pending signature as fraudulent. Counters are untouched because
// the signature was never counted.
func (s *Service) Fraudulent(ctx context.Context, id int64) error {
	now := s.now()
	err := s.withLock(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		sig, err := lock(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := sig.MarkFraudulent(now); err != nil {
			return err
		}
		return repos.Signatures.UpdateState(ctx, sig)
	})
	if err != nil {
		return err
	}
	s.metrics.SignatureTransition(string(signature.StateFraudulent))
	return nil
}

// Invalidate invalidates one signature outside of any batch.
func (s *Service) Invalidate(ctx context.Context, id int64, actor string) error {
	now := s.now()
	var changed bool
	err := s.withLock(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		changed, err = s.InvalidateWith(ctx, repos, id, now, nil)
		return err
	})
	if err != nil {
		return err
	}
	if changed {
		s.auditSvc.Log(&audit.AuditEntry{
			EntityType: audit.EntityTypeSignature,
			EntityID:   strconv.FormatInt(id, 10),
			Action:     audit.ActionInvalidate,
			Actor:      actor,
		})
	}
	return nil
}

// InvalidateWith invalidates a signature inside the caller's transaction and reports
// whether its state changed. Aggregates are decremented synchronously when the
// signature had been counted. An already invalidated signature is left alone.
func (s *Service) InvalidateWith(ctx context.Context, repos unitofwork.Repositories, id int64, now time.Time, invalidationID *int64) (bool, error) {
	sig, err := lock(ctx, repos, id)
	if err != nil {
		return false, err
	}
	if sig.State == signature.StateInvalidated {
		return false, nil
	}
	wasCounted := sig.MarkInvalidated(now, invalidationID)
	if err := repos.Signatures.UpdateState(ctx, sig); err != nil {
		return false, err
	}
	if wasCounted {
		if err := s.counter.ApplyRemoved(ctx, repos, sig, now); err != nil {
			return false, err
		}
	}
	s.metrics.SignatureTransition(string(signature.StateInvalidated))
	return true, nil
}

// Destroy deletes a non-creator signature, uncounting it first when it was validated.
func (s *Service) Destroy(ctx context.Context, id int64, actor string) error {
	now := s.now()
	err := s.withLock(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		sig, err := lock(ctx, repos, id)
		if err != nil {
			return err
		}
		if err := sig.CanDestroy(); err != nil {
			return err
		}
		if sig.State == signature.StateValidated {
			if err := s.counter.ApplyRemoved(ctx, repos, sig, now); err != nil {
				return err
			}
		}
		return repos.Signatures.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.auditSvc.Log(&audit.AuditEntry{
		EntityType: audit.EntityTypeSignature,
		EntityID:   strconv.FormatInt(id, 10),
		Action:     audit.ActionDelete,
		Actor:      actor,
	})
	return nil
}

// Get returns one signature.
func (s *Service) Get(ctx context.Context, id int64) (*signature.Signature, error) {
	sig, err := s.signatures.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, signature.ErrNotFound
	}
	return sig, nil
}

// ResolveConstituency returns the signature's constituency, looking it up and caching it
// on first use. Nil means the postcode is unknown.
func (s *Service) ResolveConstituency(ctx context.Context, id int64) (*string, error) {
	sig, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig.ConstituencyID != nil {
		return sig.ConstituencyID, nil
	}
	if s.resolver == nil || sig.Postcode == "" {
		return nil, nil
	}
	c, err := s.resolver.Resolve(ctx, sig.Postcode)
	if err != nil {
		return nil, fmt.Errorf("resolve constituency: %w", err)
	}
	if c == nil {
		return nil, nil
	}
	if err := s.signatures.UpdateConstituency(ctx, id, c.ID); err != nil {
		return nil, err
	}
	return &c.ID, nil
}

// AnonymizePetition replaces the personal data of every signature on an archived
// petition and returns how many rows changed.
func (s *Service) AnonymizePetition(ctx context.Context, petitionID int64, actor string) (int, error) {
	if len(s.anonymizeKey) == 0 {
		return 0, errors.New("anonymize secret is not configured")
	}
	p, err := s.petitions.GetByID(ctx, petitionID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, petition.ErrNotFound
	}
	if !p.Archived() {
		return 0, fmt.Errorf("%w: can't anonymize signatures of a petition that isn't archived", petition.ErrInvalidTransition)
	}

	now := s.now()
	var afterID int64
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := s.signatures.ListForAnonymizing(ctx, petitionID, afterID, s.anonymizeBatch)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}
		for _, sig := range batch {
			if err := sig.Anonymize(s.anonymizeKey, now); err != nil {
				return total, err
			}
			if err := s.signatures.UpdatePersonalData(ctx, sig); err != nil {
				return total, err
			}
			total++
		}
		afterID = batch[len(batch)-1].ID
	}

	s.logger.Info().Int64("petition_id", petitionID).Int("signatures", total).Msg("petition signatures anonymized")
	s.auditSvc.Log(&audit.AuditEntry{
		EntityType: audit.EntityTypePetition,
		EntityID:   strconv.FormatInt(petitionID, 10),
		Action:     audit.ActionAnonymize,
		Actor:      actor,
		NewValues:  map[string]int{"signatures": total},
	})
	return total, nil
}
