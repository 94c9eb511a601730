package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	appAudit "github.com/petition-hub/petition-hub/internal/application/audit"
	"github.com/petition-hub/petition-hub/internal/application/notify"
	"github.com/petition-hub/petition-hub/internal/domain/audit"
	"github.com/petition-hub/petition-hub/internal/domain/job"
	"github.com/petition-hub/petition-hub/internal/domain/journal"
	"github.com/petition-hub/petition-hub/internal/domain/notification"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
)

// Engine keeps petition signature counts and journals in step with signature
// transitions. Methods taking repos run inside the caller's transaction.
type Engine struct {
	tx         unitofwork.Transactor
	petitions  petition.Repository
	journals   journal.Repository
	auditSvc   *appAudit.Service
	thresholds petition.Thresholds
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

// NewEngine creates a counter engine.
func NewEngine(
	tx unitofwork.Transactor,
	petitions petition.Repository,
	journals journal.Repository,
	auditSvc *appAudit.Service,
	thresholds petition.Thresholds,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		tx:         tx,
		petitions:  petitions,
		journals:   journals,
		auditSvc:   auditSvc,
		thresholds: thresholds,
		metrics:    m,
		logger:     logger.With().Str("service", "counter").Logger(),
		now:        unitofwork.Now,
	}
}

// IncrementSignatureCount folds every signature validated since the petition's
// last_signed_at into its count.
func (e *Engine) IncrementSignatureCount(ctx context.Context, petitionID int64) (*petition.CountUpdate, error) {
	now := e.now()
	var u *petition.CountUpdate
	err := e.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		u, err = e.increment(ctx, repos, petitionID, now)
		return err
	})
	return u, err
}

// DecrementSignatureCount removes one signature from the count, never going below one.
func (e *Engine) DecrementSignatureCount(ctx context.Context, petitionID int64) (*petition.CountUpdate, error) {
	now := e.now()
	var u *petition.CountUpdate
	err := e.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		u, err = e.decrement(ctx, repos, petitionID, now)
		return err
	})
	return u, err
}

func (e *Engine) increment(ctx context.Context, repos unitofwork.Repositories, petitionID int64, now time.Time) (*petition.CountUpdate, error) {
	u, err := repos.Petitions.IncrementSignatureCount(ctx, petitionID, now, e.thresholds)
	if err != nil {
		return nil, fmt.Errorf("increment petition %d: %w", petitionID, err)
	}
	if !u.Changed() {
		return u, nil
	}
	e.metrics.CounterUpdate("petition", "increment")
	if err := e.notifyCrossings(ctx, repos.Jobs, u, now); err != nil {
		return nil, err
	}
	return u, nil
}

func (e *Engine) decrement(ctx context.Context, repos unitofwork.Repositories, petitionID int64, now time.Time) (*petition.CountUpdate, error) {
	u, err := repos.Petitions.DecrementSignatureCount(ctx, petitionID, now)
	if err != nil {
		return nil, fmt.Errorf("decrement petition %d: %w", petitionID, err)
	}
	if !u.Changed() {
		e.logger.Debug().Int64("petition_id", petitionID).Msg("signature count already at its floor")
		return u, nil
	}
	e.metrics.CounterUpdate("petition", "decrement")
	return u, nil
}

// notifyCrossings queues one notification per threshold this update crossed.
func (e *Engine) notifyCrossings(ctx context.Context, q job.Queue, u *petition.CountUpdate, now time.Time) error {
	crossings := []struct {
		reached bool
		event   notification.EventType
	}{
		{u.ModerationThresholdReached(now), notification.EventModerationThresholdReached},
		{u.ReferralThresholdReached(now), notification.EventReferralThresholdReached},
		{u.DebateThresholdReached(now), notification.EventDebateThresholdReached},
	}
	for _, c := range crossings {
		if !c.reached {
			continue
		}
		e.logger.Info().
			Int64("petition_id", u.PetitionID).
			Int("signature_count", u.SignatureCount).
			Str("event", string(c.event)).
			Msg("threshold reached")
		if err := notify.Enqueue(ctx, q, u.PetitionID, c.event, strconv.Itoa(u.SignatureCount), now); err != nil {
			return err
		}
	}
	return nil
}

// ApplyValidated counts a validated signature on its petition and every journal it
// belongs to.
func (e *Engine) ApplyValidated(ctx context.Context, repos unitofwork.Repositories, s *signature.Signature, now time.Time) error {
	if _, err := e.increment(ctx, repos, s.PetitionID, now); err != nil {
		return err
	}
	validatedAt := now
	if s.ValidatedAt != nil {
		validatedAt = *s.ValidatedAt
	}
	for _, key := range journalKeys(s, validatedAt, true) {
		j, err := repos.Journals.FindOrCreate(ctx, key)
		if err != nil {
			return fmt.Errorf("journal %s: %w", key, err)
		}
		if err := repos.Journals.Increment(ctx, key.Kind, j.ID, now); err != nil {
			return fmt.Errorf("increment journal %s: %w", key, err)
		}
		e.metrics.CounterUpdate(string(key.Kind), "increment")
	}
	return nil
}

// ApplyRemoved uncounts a signature that left the validated state. Trending journals
// are hourly history and keep their counts.
func (e *Engine) ApplyRemoved(ctx context.Context, repos unitofwork.Repositories, s *signature.Signature, now time.Time) error {
	if _, err := e.decrement(ctx, repos, s.PetitionID, now); err != nil {
		return err
	}
	for _, key := range journalKeys(s, now, false) {
		j, err := repos.Journals.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("journal %s: %w", key, err)
		}
		if j == nil {
			continue
		}
		if err := repos.Journals.Decrement(ctx, key.Kind, j.ID, now); err != nil {
			return fmt.Errorf("decrement journal %s: %w", key, err)
		}
		e.metrics.CounterUpdate(string(key.Kind), "decrement")
	}
	return nil
}

func journalKeys(s *signature.Signature, validatedAt time.Time, trending bool) []journal.Key {
	keys := make([]journal.Key, 0, 3)
	if s.ConstituencyID != nil && *s.ConstituencyID != "" {
		keys = append(keys, journal.ConstituencyKey(s.PetitionID, *s.ConstituencyID))
	}
	keys = append(keys, journal.CountryKey(s.PetitionID, s.LocationCode))
	if trending {
		keys = append(keys, journal.TrendingKey(s.PetitionID, validatedAt))
	}
	return keys
}

// HandleSignatureValidated is the job handler for job.NameSignatureValidated. A
// signature that left the validated state before the job ran is skipped. Its removal
// already decremented the petition and its journals, so the petition under-counts by
// one until Reconcile resets it; the journals stay low until ResetJournals rebuilds them.
func (e *Engine) HandleSignatureValidated(ctx context.Context, j *job.Job) error {
	var args job.SignatureValidatedArgs
	if err := j.Decode(&args); err != nil {
		return err
	}
	now := e.now()
	return e.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		s, err := repos.Signatures.Lock(ctx, args.SignatureID)
		if err != nil {
			return err
		}
		if s == nil || s.State != signature.StateValidated {
			e.logger.Debug().Int64("signature_id", args.SignatureID).Msg("signature no longer validated, skipping counters")
			return nil
		}
		return e.ApplyValidated(ctx, repos, s, now)
	})
}

// ResetSignatureCount recomputes a petition's count from its validated signatures.
// The resetting marker is committed first so increments racing the recompute can be
// told apart in the audit trail.
func (e *Engine) ResetSignatureCount(ctx context.Context, petitionID int64, actor string) (*petition.CountUpdate, error) {
	now := e.now()
	if err := e.petitions.MarkSignatureCountResetting(ctx, petitionID, now); err != nil {
		return nil, err
	}

	var u *petition.CountUpdate
	err := e.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		u, err = repos.Petitions.ResetSignatureCount(ctx, petitionID, now)
		if err != nil {
			return err
		}
		return e.notifyCrossings(ctx, repos.Jobs, u, now)
	})
	if err != nil {
		return nil, fmt.Errorf("reset petition %d: %w", petitionID, err)
	}
	e.metrics.CounterUpdate("petition", "reset")

	if u.Delta != 0 {
		e.logger.Warn().
			Int64("petition_id", petitionID).
			Int("delta", u.Delta).
			Int("signature_count", u.SignatureCount).
			Msg("signature count corrected")
	}
	if err := e.auditSvc.LogSync(ctx, &audit.AuditEntry{
		EntityType: audit.EntityTypePetition,
		EntityID:   strconv.FormatInt(petitionID, 10),
		Action:     audit.ActionResetCount,
		Actor:      actor,
		OldValues:  map[string]int{"signatureCount": u.SignatureCount - u.Delta},
		NewValues:  map[string]int{"signatureCount": u.SignatureCount},
		Reason:     "signature count reset started at " + now.Format(time.RFC3339Nano),
	}); err != nil {
		e.logger.Warn().Err(err).Int64("petition_id", petitionID).Msg("failed to audit count reset")
	}
	return u, nil
}

// Reconcile resets up to limit petitions whose counts disagree with their validated
// signatures and returns how many were reset.
func (e *Engine) Reconcile(ctx context.Context, limit int) (int, error) {
	ids, err := e.petitions.IDsWithInvalidSignatureCounts(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("find drifted petitions: %w", err)
	}
	var errs []error
	reset := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return reset, err
		}
		if _, err := e.ResetSignatureCount(ctx, id, "reconciler"); err != nil {
			e.logger.Error().Err(err).Int64("petition_id", id).Msg("failed to reconcile petition")
			errs = append(errs, err)
			continue
		}
		e.metrics.Reconciled()
		reset++
	}
	return reset, errors.Join(errs...)
}

// ResetJournals rebuilds every journal row of kind from validated signatures.
func (e *Engine) ResetJournals(ctx context.Context, kind journal.Kind, actor string) (int64, error) {
	now := e.now()
	rows, err := e.journals.Reset(ctx, kind, now)
	if err != nil {
		return 0, fmt.Errorf("reset %s journals: %w", kind, err)
	}
	e.metrics.CounterUpdate(string(kind), "reset")
	e.logger.Info().Str("kind", string(kind)).Int64("rows", rows).Msg("journals rebuilt")
	e.auditSvc.Log(&audit.AuditEntry{
		EntityType: audit.EntityTypeJournal,
		EntityID:   string(kind),
		Action:     audit.ActionResetCount,
		Actor:      actor,
		NewValues:  map[string]int64{"rows": rows},
	})
	return rows, nil
}

// Journals returns the journal rows of one kind for a petition, largest first.
func (e *Engine) Journals(ctx context.Context, kind journal.Kind, petitionID int64) ([]*journal.Journal, error) {
	return e.journals.ListByPetition(ctx, kind, petitionID)
}
