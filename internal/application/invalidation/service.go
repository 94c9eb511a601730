package invalidation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	appAudit "github.com/petition-hub/petition-hub/internal/application/audit"
	"github.com/petition-hub/petition-hub/internal/domain/audit"
	"github.com/petition-hub/petition-hub/internal/domain/invalidation"
	"github.com/petition-hub/petition-hub/internal/domain/job"
	"github.com/petition-hub/petition-hub/internal/domain/notification"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
)

const defaultBatchSize = 1000

// errUnchanged ends a locked block without writing the row.
var errUnchanged = errors.New("unchanged")

// Invalidator invalidates a single signature inside the caller's transaction.
type Invalidator interface {
	InvalidateWith(ctx context.Context, repos unitofwork.Repositories, id int64, now time.Time, invalidationID *int64) (bool, error)
}

// Service manages invalidations and executes them.
type Service struct {
	tx          unitofwork.Transactor
	repo        invalidation.Repository
	invalidator Invalidator
	auditSvc    *appAudit.Service
	dispatcher  notification.Dispatcher
	batchSize   int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService creates an invalidation service. dispatcher may be nil.
func NewService(
	tx unitofwork.Transactor,
	repo invalidation.Repository,
	invalidator Invalidator,
	auditSvc *appAudit.Service,
	dispatcher notification.Dispatcher,
	batchSize int,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Service{
		tx:          tx,
		repo:        repo,
		invalidator: invalidator,
		auditSvc:    auditSvc,
		dispatcher:  dispatcher,
		batchSize:   batchSize,
		metrics:     m,
		logger:      logger.With().Str("service", "invalidation").Logger(),
		now:         unitofwork.Now,
	}
}

// CreateParams holds the editable fields of an invalidation.
type CreateParams struct {
	Summary string
	Details *string
	Filter  invalidation.Filter
}

// Create stores a pending invalidation.
func (s *Service) Create(ctx context.Context, params CreateParams, actor string) (*invalidation.Invalidation, error) {
	inv, err := invalidation.New(params.Summary, params.Details, params.Filter, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invalidation: %w", err)
	}
	s.logger.Info().Int64("invalidation_id", inv.ID).Str("summary", inv.Summary).Msg("invalidation created")
	s.audit(inv, audit.ActionCreate, actor, map[string]interface{}{"summary": inv.Summary, "filter": inv.Filter})
	return inv, nil
}

// Get returns one invalidation.
func (s *Service) Get(ctx context.Context, id int64) (*invalidation.Invalidation, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invalidation.ErrNotFound
	}
	return inv, nil
}

// List returns invalidations, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*invalidation.Invalidation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// locked runs fn against the invalidation row held FOR UPDATE and persists it when fn
// succeeds.
func (s *Service) locked(
	ctx context.Context,
	id int64,
	fn func(ctx context.Context, repos unitofwork.Repositories, inv *invalidation.Invalidation, now time.Time) error,
) (*invalidation.Invalidation, error) {
	now := s.now()
	var inv *invalidation.Invalidation
	err := s.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		inv, err = repos.Invalidations.Lock(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return invalidation.ErrNotFound
		}
		if err := fn(ctx, repos, inv, now); err != nil {
			return err
		}
		return repos.Invalidations.Update(ctx, inv)
	})
	if errors.Is(err, errUnchanged) {
		return inv, nil
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Update replaces the summary, details and filter of an invalidation that has not started.
func (s *Service) Update(ctx context.Context, id int64, params CreateParams, actor string) (*invalidation.Invalidation, error) {
	inv, err := s.locked(ctx, id, func(_ context.Context, _ unitofwork.Repositories, inv *invalidation.Invalidation, now time.Time) error {
		return inv.UpdateFilter(params.Summary, params.Details, params.Filter, now)
	})
	if err != nil {
		return nil, err
	}
	s.audit(inv, audit.ActionUpdate, actor, map[string]interface{}{"summary": inv.Summary, "filter": inv.Filter})
	return inv, nil
}

// Count records how many signatures currently match without changing any of them.
func (s *Service) Count(ctx context.Context, id int64) (*invalidation.Invalidation, error) {
	return s.locked(ctx, id, func(ctx context.Context, repos unitofwork.Repositories, inv *invalidation.Invalidation, now time.Time) error {
		n := 0
		if inv.Pending() {
			var err error
			if n, err = repos.Invalidations.CountMatching(ctx, inv.Filter); err != nil {
				return fmt.Errorf("count matching signatures: %w", err)
			}
		}
		return inv.MarkCounted(n, now)
	})
}

// Start queues a pending invalidation for execution.
func (s *Service) Start(ctx context.Context, id int64, actor string) (*invalidation.Invalidation, error) {
	inv, err := s.locked(ctx, id, func(ctx context.Context, repos unitofwork.Repositories, inv *invalidation.Invalidation, now time.Time) error {
		if err := inv.MarkEnqueued(now); err != nil {
			return err
		}
		j, err := job.New(job.NameInvalidationRun, job.InvalidationRunArgs{InvalidationID: inv.ID}, now)
		if err != nil {
			return err
		}
		return repos.Jobs.Enqueue(ctx, j)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("invalidation_id", inv.ID).Str("actor", actor).Msg("invalidation enqueued")
	s.audit(inv, audit.ActionStart, actor, map[string]interface{}{"matchingCount": inv.MatchingCount})
	return inv, nil
}

// Cancel stops the invalidation at its next batch boundary.
func (s *Service) Cancel(ctx context.Context, id int64, actor string) (*invalidation.Invalidation, error) {
	inv, err := s.locked(ctx, id, func(_ context.Context, _ unitofwork.Repositories, inv *invalidation.Invalidation, now time.Time) error {
		return inv.Cancel(now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("invalidation_id", inv.ID).Str("actor", actor).Msg("invalidation cancelled")
	s.audit(inv, audit.ActionCancel, actor, map[string]interface{}{"invalidatedCount": inv.InvalidatedCount})
	return inv, nil
}

// Destroy deletes an invalidation that never started.
func (s *Service) Destroy(ctx context.Context, id int64, actor string) error {
	var inv *invalidation.Invalidation
	err := s.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		inv, err = repos.Invalidations.Lock(ctx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return invalidation.ErrNotFound
		}
		if err := inv.CanDelete(); err != nil {
			return err
		}
		return repos.Invalidations.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.audit(inv, audit.ActionDelete, actor, nil)
	return nil
}

// Handle is the job handler for job.NameInvalidationRun.
func (s *Service) Handle(ctx context.Context, j *job.Job) error {
	var args job.InvalidationRunArgs
	if err := j.Decode(&args); err != nil {
		return err
	}
	err := s.Run(ctx, args.InvalidationID)
	if errors.Is(err, invalidation.ErrNotFound) {
		s.logger.Warn().Int64("invalidation_id", args.InvalidationID).Msg("invalidation deleted before it ran")
		return nil
	}
	return err
}

// Run executes an invalidation in ascending signature id batches. Cancellation is
// observed after each batch. Running a started, unfinished invalidation again resumes
// it; cancelled and completed ones are left alone.
func (s *Service) Run(ctx context.Context, id int64) error {
	var proceed bool
	inv, err := s.locked(ctx, id, func(ctx context.Context, repos unitofwork.Repositories, inv *invalidation.Invalidation, now time.Time) error {
		if inv.Cancelled() || inv.Completed() {
			return errUnchanged
		}
		remaining, err := repos.Invalidations.CountMatching(ctx, inv.Filter)
		if err != nil {
			return fmt.Errorf("count matching signatures: %w", err)
		}
		proceed = inv.Begin(remaining, now)
		return nil
	})
	if err != nil {
		return err
	}
	log := s.logger.With().Int64("invalidation_id", id).Logger()
	if !proceed {
		log.Info().Str("status", string(inv.Status())).Msg("invalidation not runnable, skipping")
		return nil
	}

	s.metrics.InvalidationStarted()
	defer s.metrics.InvalidationFinished()
	log.Info().Int("matching", inv.MatchingCount).Int("already_invalidated", inv.InvalidatedCount).Msg("invalidation started")

	filter := inv.Filter
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := s.repo.ListMatchingIDs(ctx, filter, afterID, s.batchSize)
		if err != nil {
			return fmt.Errorf("list matching signatures: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		for _, sigID := range ids {
			if err := s.invalidateOne(ctx, id, sigID); err != nil {
				return fmt.Errorf("invalidate signature %d: %w", sigID, err)
			}
			afterID = sigID
		}

		inv, err = s.Get(ctx, id)
		if err != nil {
			return err
		}
		if inv.Cancelled() {
			log.Info().Int("invalidated", inv.InvalidatedCount).Msg("invalidation cancelled, stopping")
			return nil
		}
		s.progress(ctx, inv)
		if len(ids) < s.batchSize {
			break
		}
	}

	var completed bool
	inv, err = s.locked(ctx, id, func(_ context.Context, _ unitofwork.Repositories, inv *invalidation.Invalidation, now time.Time) error {
		if inv.Cancelled() {
			return errUnchanged
		}
		inv.MarkCompleted(now)
		completed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !completed {
		log.Info().Int("invalidated", inv.InvalidatedCount).Msg("invalidation cancelled, stopping")
		return nil
	}
	s.progress(ctx, inv)
	log.Info().Int("invalidated", inv.InvalidatedCount).Msg("invalidation completed")
	return nil
}

func (s *Service) invalidateOne(ctx context.Context, invalidationID, signatureID int64) error {
	return s.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		changed, err := s.invalidator.InvalidateWith(ctx, repos, signatureID, s.now(), &invalidationID)
		if errors.Is(err, signature.ErrNotFound) {
			return nil
		}
		if err != nil || !changed {
			return err
		}
		return repos.Invalidations.IncrementInvalidatedCount(ctx, invalidationID)
	})
}

func (s *Service) progress(ctx context.Context, inv *invalidation.Invalidation) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Dispatch(ctx, notification.Event{
		Type:           notification.EventInvalidationProgress,
		InvalidationID: inv.ID,
		Detail:         strconv.Itoa(inv.PercentCompleted()),
		OccurredAt:     s.now(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Int64("invalidation_id", inv.ID).Msg("failed to dispatch invalidation progress")
	}
}

func (s *Service) audit(inv *invalidation.Invalidation, action audit.Action, actor string, values interface{}) {
	s.auditSvc.Log(&audit.AuditEntry{
		EntityType: audit.EntityTypeInvalidation,
		EntityID:   strconv.FormatInt(inv.ID, 10),
		Action:     action,
		Actor:      actor,
		NewValues:  values,
	})
}
