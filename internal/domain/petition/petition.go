package petition

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// State represents the moderation/publication state of a petition.
type State string

const (
	StatePending   State = "pending"
	StateValidated State = "validated"
	StateSponsored State = "sponsored"
	StateFlagged   State = "flagged"
	StateOpen      State = "open"
	StateClosed    State = "closed"
	StateReferred  State = "referred"
	StateCompleted State = "completed"
	StateRejected  State = "rejected"
	StateHidden    State = "hidden"
)

// DebateState tracks progress towards a debate once the debate threshold is reached.
type DebateState string

const (
	DebatePending    DebateState = "pending"
	DebateAwaiting   DebateState = "awaiting"
	DebateScheduled  DebateState = "scheduled"
	DebateDebated    DebateState = "debated"
	DebateNotDebated DebateState = "not_debated"
)

var (
	ErrInvalidTransition = errors.New("invalid petition state transition")
	ErrNotFound          = errors.New("petition not found")
	ErrUnknownRejection  = errors.New("unknown rejection code")
	ErrValidation        = errors.New("petition is invalid")
)

// Text is the opaque per-locale payload of a petition.
type Text struct {
	Action            string `json:"action"`
	Background        string `json:"background"`
	AdditionalDetails string `json:"additionalDetails,omitempty"`
}

// Rejection records why a petition was rejected or hidden.
type Rejection struct {
	Code    string  `json:"code"`
	Details *string `json:"details,omitempty"`
}

// Petition is the aggregate whose signature_count and threshold stamps are driven by
// signature transitions and whose outer state is driven by moderators.
type Petition struct {
	ID                           int64           `json:"id"`
	Translations                 map[string]Text `json:"translations"`
	State                        State           `json:"state"`
	DebateState                  DebateState     `json:"debateState"`
	SignatureCount               int             `json:"signatureCount"`
	LastSignedAt                 *time.Time      `json:"lastSignedAt,omitempty"`
	ModerationThresholdReachedAt *time.Time      `json:"moderationThresholdReachedAt,omitempty"`
	ReferralThresholdReachedAt   *time.Time      `json:"referralThresholdReachedAt,omitempty"`
	DebateThresholdReachedAt     *time.Time      `json:"debateThresholdReachedAt,omitempty"`
	ThresholdForReferral         int             `json:"thresholdForReferral"`
	ThresholdForDebate           int             `json:"thresholdForDebate"`
	SignatureCountResetAt        *time.Time      `json:"signatureCountResetAt,omitempty"`
	SignatureCountValidatedAt    *time.Time      `json:"signatureCountValidatedAt,omitempty"`
	ModeratedAt                  *time.Time      `json:"moderatedAt,omitempty"`
	OpenedAt                     *time.Time      `json:"openedAt,omitempty"`
	ClosedAt                     *time.Time      `json:"closedAt,omitempty"`
	ReferredAt                   *time.Time      `json:"referredAt,omitempty"`
	RejectedAt                   *time.Time      `json:"rejectedAt,omitempty"`
	Rejection                    *Rejection      `json:"rejection,omitempty"`
	CompletedAt                  *time.Time      `json:"completedAt,omitempty"`
	ArchivedAt                   *time.Time      `json:"archivedAt,omitempty"`
	DebateScheduledOn            *time.Time      `json:"debateScheduledOn,omitempty"`
	CreatedAt                    time.Time       `json:"createdAt"`
	UpdatedAt                    time.Time       `json:"updatedAt"`
}

// New builds a pending petition, snapshotting the referral and debate thresholds so later
// configuration changes never move an in-flight petition's goalposts.
func New(translations map[string]Text, thresholdForReferral, thresholdForDebate int, now time.Time) *Petition {
	return &Petition{
		Translations:         translations,
		State:                StatePending,
		DebateState:          DebatePending,
		ThresholdForReferral: thresholdForReferral,
		ThresholdForDebate:   thresholdForDebate,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

// Validate checks the submitted text.
func (p *Petition) Validate() error {
	if len(p.Translations) == 0 {
		return fmt.Errorf("%w: at least one translation is required", ErrValidation)
	}
	for locale, text := range p.Translations {
		if text.Action == "" {
			return fmt.Errorf("%w: action is required for locale %s", ErrValidation, locale)
		}
		if len(text.Action) > 255 {
			return fmt.Errorf("%w: action is too long for locale %s (maximum is 255 characters)", ErrValidation, locale)
		}
	}
	return nil
}

// TranslationsJSON encodes the translations for storage.
func (p *Petition) TranslationsJSON() (json.RawMessage, error) {
	if p.Translations == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(p.Translations)
}

// Archived reports whether the archived flag is set.
func (p *Petition) Archived() bool {
	return p.ArchivedAt != nil
}

// CanTransitionTo validates an explicit moderation transition.
func (p *Petition) CanTransitionTo(target State) bool {
	transitions := map[State][]State{
		StatePending:   {StateValidated, StateSponsored},
		StateValidated: {StateSponsored},
		StateSponsored: {StateFlagged, StateOpen, StateClosed, StateRejected, StateHidden},
		StateFlagged:   {StateSponsored, StateOpen, StateClosed, StateRejected, StateHidden},
		StateOpen:      {StateClosed},
		StateClosed:    {StateReferred, StateRejected, StateCompleted},
		StateReferred:  {StateCompleted},
		StateCompleted: {},
		StateRejected:  {},
		StateHidden:    {},
	}
	for _, s := range transitions[p.State] {
		if s == target {
			return true
		}
	}
	return false
}

func (p *Petition) conflict(action string) error {
	return fmt.Errorf("%w: can't %s a petition that is %s", ErrInvalidTransition, action, p.State)
}

// Flag moves a sponsored petition aside for further review.
func (p *Petition) Flag(now time.Time) error {
	if !p.CanTransitionTo(StateFlagged) {
		return p.conflict("flag")
	}
	p.State = StateFlagged
	p.UpdatedAt = now
	return nil
}

// Unflag returns a flagged petition to the moderation queue.
func (p *Petition) Unflag(now time.Time) error {
	if p.State != StateFlagged {
		return p.conflict("unflag")
	}
	p.State = StateSponsored
	p.UpdatedAt = now
	return nil
}

// Publish opens a sponsored or flagged petition. A petition that was open before and whose
// deadline has already passed goes straight to closed.
func (p *Petition) Publish(now time.Time, duration time.Duration) error {
	if !p.CanTransitionTo(StateOpen) {
		return p.conflict("publish")
	}
	p.ModeratedAt = &now
	p.UpdatedAt = now
	if p.OpenedAt == nil {
		closedAt := now.Add(duration)
		p.OpenedAt = &now
		p.ClosedAt = &closedAt
		p.State = StateOpen
		return nil
	}
	if p.ClosedAt != nil && !p.ClosedAt.After(now) {
		p.State = StateClosed
		return nil
	}
	p.State = StateOpen
	return nil
}

// Reject rejects or hides a petition depending on the rejection code.
func (p *Petition) Reject(code string, details *string, now time.Time) error {
	reason, ok := LookupRejection(code)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRejection, code)
	}
	if p.State != StateSponsored && p.State != StateFlagged {
		return p.conflict("reject")
	}
	p.applyRejection(reason, details, now)
	return nil
}

func (p *Petition) applyRejection(reason RejectionReason, details *string, now time.Time) {
	if reason.Hidden {
		p.State = StateHidden
	} else {
		p.State = StateRejected
	}
	p.Rejection = &Rejection{Code: reason.Code, Details: details}
	p.RejectedAt = &now
	if p.ModeratedAt == nil {
		p.ModeratedAt = &now
	}
	p.UpdatedAt = now
}

// Close closes an open petition once its deadline has passed. It reports whether anything
// changed; calling it early or on an already closed petition is a no-op.
func (p *Petition) Close(now time.Time) (bool, error) {
	switch p.State {
	case StateClosed, StateReferred, StateCompleted:
		return false, nil
	case StateOpen:
	default:
		return false, p.conflict("close")
	}
	if p.ClosedAt == nil || p.ClosedAt.After(now) {
		return false, nil
	}
	p.State = StateClosed
	p.UpdatedAt = now
	return true, nil
}

// ReferOrReject settles a closed petition once the referral delay has elapsed: referred if
// the referral threshold was ever crossed, otherwise rejected for insufficient signatures.
// It reports whether anything changed.
func (p *Petition) ReferOrReject(now time.Time, delay time.Duration) (bool, error) {
	switch p.State {
	case StateReferred, StateRejected, StateCompleted:
		return false, nil
	case StateClosed:
	default:
		return false, p.conflict("refer")
	}
	if p.ClosedAt == nil || p.ClosedAt.Add(delay).After(now) {
		return false, nil
	}
	if p.ReferralThresholdReachedAt != nil {
		p.State = StateReferred
		p.ReferredAt = &now
		p.UpdatedAt = now
		return true, nil
	}
	p.applyRejection(insufficientSignatures, nil, now)
	return true, nil
}

// Complete records that the final outcome process concluded.
func (p *Petition) Complete(now time.Time) error {
	if !p.CanTransitionTo(StateCompleted) {
		return p.conflict("complete")
	}
	p.State = StateCompleted
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// Archive sets the archived flag.
func (p *Petition) Archive(now time.Time) error {
	switch p.State {
	case StateCompleted, StateRejected, StateHidden:
	default:
		return p.conflict("archive")
	}
	if p.ArchivedAt != nil {
		return fmt.Errorf("%w: petition is already archived", ErrInvalidTransition)
	}
	p.ArchivedAt = &now
	p.UpdatedAt = now
	return nil
}

// ScheduleDebate records a debate date for a petition awaiting a debate.
func (p *Petition) ScheduleDebate(on time.Time, now time.Time) error {
	if p.DebateState != DebateAwaiting && p.DebateState != DebateScheduled {
		return fmt.Errorf("%w: can't schedule a debate when debate state is %s", ErrInvalidTransition, p.DebateState)
	}
	p.DebateState = DebateScheduled
	p.DebateScheduledOn = &on
	p.UpdatedAt = now
	return nil
}

// RecordDebateOutcome marks the debate as held or declined.
func (p *Petition) RecordDebateOutcome(debated bool, now time.Time) error {
	switch p.DebateState {
	case DebateAwaiting, DebateScheduled:
	default:
		return fmt.Errorf("%w: can't record a debate outcome when debate state is %s", ErrInvalidTransition, p.DebateState)
	}
	if debated {
		p.DebateState = DebateDebated
	} else {
		p.DebateState = DebateNotDebated
	}
	p.UpdatedAt = now
	return nil
}
