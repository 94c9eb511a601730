package petition

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
	"github.com/petition-hub/petition-hub/internal/domain/notification"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
)

// Settings are the site rules applied to petitions.
type Settings struct {
	ReferralThreshold int
	DebateThreshold   int
	Duration          time.Duration
	ReferralDelay     time.Duration
}

// Service drives the petition moderation state machine.
type Service struct {
	tx        unitofwork.Transactor
	petitions petition.Repository
	resolver  signature.ConstituencyResolver
	auditSvc  *appAudit.Service
	settings  Settings
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a petition service. resolver may be nil.
func NewService(
	tx unitofwork.Transactor,
	petitions petition.Repository,
	resolver signature.ConstituencyResolver,
	auditSvc *appAudit.Service,
	settings Settings,
	logger zerolog.Logger,
) *Service {
	return &Service{
		tx:        tx,
		petitions: petitions,
		resolver:  resolver,
		auditSvc:  auditSvc,
		settings:  settings,
		logger:    logger.With().Str("service", "petition").Logger(),
		now:       unitofwork.Now,
	}
}

// Creator identifies the person submitting a petition.
type Creator struct {
	Name          string
	Email         string
	Postcode      string
	LocationCode  string
	IPAddress     string
	NotifyByEmail bool
}

// Create stores a pending petition together with its creator's pending signature.
func (s *Service) Create(ctx context.Context, translations map[string]petition.Text, creator Creator) (*petition.Petition, *signature.Signature, error) {
	now := s.now()
	p := petition.New(translations, s.settings.ReferralThreshold, s.settings.DebateThreshold, now)
	if err := p.Validate(); err != nil {
		return nil, nil, err
	}
	sig := signature.NewSignature(0, creator.Name, creator.Email, creator.Postcode, creator.LocationCode,
		creator.IPAddress, creator.NotifyByEmail, now)
	sig.Creator = true

	if s.resolver != nil && sig.Postcode != "" {
		c, err := s.resolver.Resolve(ctx, sig.Postcode)
		if err != nil {
			s.logger.Warn().Err(err).Msg("constituency lookup failed for petition creator")
		} else if c != nil {
			sig.ConstituencyID = &c.ID
		}
	}

	err := s.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		if err := repos.Petitions.Create(ctx, p); err != nil {
			return fmt.Errorf("failed to create petition: %w", err)
		}
		sig.PetitionID = p.ID
		if err := sig.Validate(); err != nil {
			return err
		}
		if err := repos.Signatures.Create(ctx, sig); err != nil {
			return fmt.Errorf("failed to create creator signature: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info().Int64("petition_id", p.ID).Msg("petition created")
	s.auditSvc.Log(&audit.AuditEntry{
		EntityType: audit.EntityTypePetition,
		EntityID:   strconv.FormatInt(p.ID, 10),
		Action:     audit.ActionCreate,
		Actor:      sig.Email,
		NewValues:  map[string]interface{}{"state": p.State, "thresholdForReferral": p.ThresholdForReferral, "thresholdForDebate": p.ThresholdForDebate},
	})
	return p, sig, nil
}

// Get returns one petition.
func (s *Service) Get(ctx context.Context, id int64) (*petition.Petition, error) {
	p, err := s.petitions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, petition.ErrNotFound
	}
	return p, nil
}

// List returns petitions, newest first.
func (s *Service) List(ctx context.Context, filter petition.Filter, limit, offset int) ([]*petition.Petition, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.petitions.List(ctx, filter, limit, offset)
}

// transition loads a petition, applies fn and persists the result if the stored state is
// still the one fn saw. fn reports whether it changed anything and which notification,
// if any, to send.
func (s *Service) transition(
	ctx context.Context,
	id int64,
	actor string,
	action audit.Action,
	reason string,
	fn func(p *petition.Petition, now time.Time) (bool, notification.EventType, error),
) (*petition.Petition, bool, error) {
	now := s.now()
	var p *petition.Petition
	var from petition.State
	var changed bool
	err := s.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		p, err = repos.Petitions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return petition.ErrNotFound
		}
		from = p.State
		var event notification.EventType
		changed, event, err = fn(p, now)
		if err != nil || !changed {
			return err
		}
		if err := repos.Petitions.UpdateModeration(ctx, p, from); err != nil {
			return err
		}
		if event != "" {
			return notify.Enqueue(ctx, repos.Jobs, p.ID, event, string(p.State), now)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return p, false, nil
	}

	s.logger.Info().
		Int64("petition_id", p.ID).
		Str("from", string(from)).
		Str("to", string(p.State)).
		Str("action", string(action)).
		Msg("petition transitioned")
	s.auditSvc.Log(&audit.AuditEntry{
		EntityType: audit.EntityTypePetition,
		EntityID:   strconv.FormatInt(p.ID, 10),
		Action:     action,
		Actor:      actor,
		OldValues:  map[string]petition.State{"state": from},
		NewValues:  map[string]interface{}{"state": p.State, "archived": p.Archived()},
		Reason:     reason,
	})
	return p, true, nil
}

func always(err error) (bool, notification.EventType, error) {
	return err == nil, "", err
}

// Flag moves a sponsored petition aside for further review.
func (s *Service) Flag(ctx context.Context, id int64, actor string) (*petition.Petition, error) {
	p, _, err := s.transition(ctx, id, actor, audit.ActionFlag, "", func(p *petition.Petition, now time.Time) (bool, notification.EventType, error) {
		return always(p.Flag(now))
	})
	return p, err
}

// Unflag returns a flagged petition to the moderation queue.
func (s *Service) Unflag(ctx context.Context, id int64, actor string) (*petition.Petition, error) {
	p, _, err := s.transition(ctx, id, actor, audit.ActionUnflag, "", func(p *petition.Petition, now time.Time) (bool, notification.EventType, error) {
		return always(p.Unflag(now))
	})
	return p, err
}

// Publish opens a sponsored or flagged petition.
func (s *Service) Publish(ctx context.Context, id int64, actor string) (*petition.Petition, error) {
	p, _, err := s.transition(ctx, id, actor, audit.ActionPublish, "", func(p *petition.Petition, now time.Time) (bool, notification.EventType, error) {
		if err := p.Publish(now, s.settings.Duration); err != nil {
			return false, "", err
		}
		if p.State == petition.StateClosed {
			return true, notification.EventPetitionClosed, nil
		}
		return true, notification.EventPetitionPublished, nil
	})
	return p, err
}

// Reject rejects or hides a petition with a moderation reason code.
func (s *Service) Reject(ctx context.Context, id int64, code string, details *string, actor string) (*petition.Petition, error) {
	p, _, err := s.transition(ctx, id, actor, audit.ActionReject, code, func(p *petition.Petition, now time.Time) (bool, notification.EventType, error) {
		if err := p.Reject(code, details, now); err != nil {
			return false, "", err
		}
		return true, notification.EventPetitionRejected, nil
	})
	return p, err
}

// Close closes an open petition whose deadline has passed. It reports whether the
// petition changed; closing early or twice is a no-op.
func (s *Service) Close(ctx context.Context, id int64, actor string) (*petition.Petition, bool, error) {
	return s.transition(ctx, id, actor, audit.ActionClose, "", func(p *petition.Petition, now time.Time) (bool, notification.EventType, error) {
		changed, err := p.Close(now)
		return changed, notification.EventPetitionClosed, err
	})
}

// ReferOrReject settles a closed petition once the referral delay has passed.
func (s *Service) ReferOrReject(ctx context.Context, id int64, actor string) (*petition.Petition, bool, error) {
	return s.transition(ctx, id, actor, audit.ActionRefer, "", func(p *petition.Petition, now time.Time) (bool, notification.EventType, error) {
		changed, err := p.ReferOrReject(now, s.settings.ReferralDelay)
		if err != nil || !changed {
			return changed, "", err
		}
		if p.State == petition.StateReferred {
			return true, notification.EventPetitionReferred, nil
		}
		return true, notification.EventPetitionRejected, nil
	})
}

// Complete records that the outcome process concluded.
func (s *Service) Complete(ctx context.Context, id int64, actor string) (*petition.Petition, error) {
	p, _, err := s.transition(ctx, id, actor, audit.ActionComplete, "", func(p *petition.Petition, now time.Time) (bool, notification.EventType, error) {
		return always(p.Complete(now))
	})
	return p, err
}

// Archive sets the archived flag on a finished petition.
func (s *Service) Archive(ctx context.Context, id int64, actor string) (*petition.Petition, error) {
	p, _, err := s.transition(ctx, id, actor, audit.ActionArchive, "", func(p *petition.Petition, now time.Time) (bool, notification.EventType, error) {
		return always(p.Archive(now))
	})
	return p, err
}

func (s *Service) debate(ctx context.Context, id int64, actor string, fn func(p *petition.Petition, now time.Time) error) (*petition.Petition, error) {
	now := s.now()
	var p *petition.Petition
	err := s.tx.InTx(ctx, func(ctx context.Context, repos unitofwork.Repositories) error {
		var err error
		p, err = repos.Petitions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return petition.ErrNotFound
		}
		from := p.DebateState
		if err := fn(p, now); err != nil {
			return err
		}
		return repos.Petitions.UpdateDebate(ctx, p, from)
	})
	if err != nil {
		return nil, err
	}
	s.auditSvc.Log(&audit.AuditEntry{
		EntityType: audit.EntityTypePetition,
		EntityID:   strconv.FormatInt(p.ID, 10),
		Action:     audit.ActionUpdate,
		Actor:      actor,
		NewValues:  map[string]interface{}{"debateState": p.DebateState, "debateScheduledOn": p.DebateScheduledOn},
	})
	return p, nil
}

// ScheduleDebate records the date of a debate for a petition awaiting one.
func (s *Service) ScheduleDebate(ctx context.Context, id int64, on time.Time, actor string) (*petition.Petition, error) {
	return s.debate(ctx, id, actor, func(p *petition.Petition, now time.Time) error {
		return p.ScheduleDebate(on, now)
	})
}

// RecordDebateOutcome records whether the debate took place.
func (s *Service) RecordDebateOutcome(ctx context.Context, id int64, debated bool, actor string) (*petition.Petition, error) {
	return s.debate(ctx, id, actor, func(p *petition.Petition, now time.Time) error {
		return p.RecordDebateOutcome(debated, now)
	})
}

// CloseDue closes up to limit open petitions whose deadline has passed.
func (s *Service) CloseDue(ctx context.Context, limit int) (int, error) {
	due, err := s.petitions.ListDueForClosing(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list petitions due for closing: %w", err)
	}
	return s.sweep(ctx, due, "close", s.Close)
}

// ProcessReferrals refers or rejects up to limit closed petitions past the referral delay.
func (s *Service) ProcessReferrals(ctx context.Context, limit int) (int, error) {
	due, err := s.petitions.ListDueForReferral(ctx, s.now().Add(-s.settings.ReferralDelay), limit)
	if err != nil {
		return 0, fmt.Errorf("list petitions due for referral: %w", err)
	}
	return s.sweep(ctx, due, "refer", s.ReferOrReject)
}

// sweep applies fn to each petition, skipping ones a moderator changed in the meantime.
func (s *Service) sweep(
	ctx context.Context,
	due []*petition.Petition,
	name string,
	fn func(ctx context.Context, id int64, actor string) (*petition.Petition, bool, error),
) (int, error) {
	var errs []error
	done := 0
	for _, p := range due {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		_, changed, err := fn(ctx, p.ID, "scheduler")
		switch {
		case errors.Is(err, petition.ErrInvalidTransition):
			s.logger.Info().Err(err).Int64("petition_id", p.ID).Str("sweep", name).Msg("petition changed before sweep, skipping")
		case err != nil:
			s.logger.Error().Err(err).Int64("petition_id", p.ID).Str("sweep", name).Msg("sweep failed for petition")
			errs = append(errs, err)
		case changed:
			done++
		}
	}
	return done, errors.Join(errs...)
}
