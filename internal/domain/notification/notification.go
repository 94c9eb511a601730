package notification

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_dispatcher.go -package=mocks . Dispatcher

import (
	"context"
	"time"
)

// EventType identifies a petition lifecycle notification.
type EventType string

const (
	EventModerationThresholdReached EventType = "moderation_threshold_reached"
	EventReferralThresholdReached   EventType = "referral_threshold_reached"
	EventDebateThresholdReached     EventType = "debate_threshold_reached"
	EventPetitionPublished          EventType = "petition_published"
	EventPetitionRejected           EventType = "petition_rejected"
	EventPetitionClosed             EventType = "petition_closed"
	EventPetitionReferred           EventType = "petition_referred"
	EventInvalidationProgress       EventType = "invalidation_progress"
)

// Event is a fire-and-forget notification about a petition or an invalidation.
type Event struct {
	Type           EventType `json:"type"`
	PetitionID     int64     `json:"petitionId,omitempty"`
	InvalidationID int64     `json:"invalidationId,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Dispatcher delivers notifications to the outside world.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}
