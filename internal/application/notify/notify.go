package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/petition-hub/petition-hub/internal/domain/job"
	"github.com/petition-hub/petition-hub/internal/domain/notification"
)

// Enqueue queues a petition notification. When q is bound to a transaction the
// notification is only delivered if that transaction commits.
func Enqueue(ctx context.Context, q job.Queue, petitionID int64, event notification.EventType, detail string, now time.Time) error {
	j, err := job.New(job.NamePetitionNotify, job.PetitionNotifyArgs{
		PetitionID: petitionID,
		Event:      string(event),
		OccurredAt: now,
		Detail:     detail,
	}, now)
	if err != nil {
		return err
	}
	if err := q.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("enqueue %s notification: %w", event, err)
	}
	return nil
}

// Handler delivers queued petition notifications.
type Handler struct {
	dispatcher notification.Dispatcher
	logger     zerolog.Logger
}

func NewHandler(dispatcher notification.Dispatcher, logger zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		logger:     logger.With().Str("service", "notify").Logger(),
	}
}

// Handle is the job handler for job.NamePetitionNotify.
func (h *Handler) Handle(ctx context.Context, j *job.Job) error {
	var args job.PetitionNotifyArgs
	if err := j.Decode(&args); err != nil {
		return err
	}
	event := notification.Event{
		Type:       notification.EventType(args.Event),
		PetitionID: args.PetitionID,
		Detail:     args.Detail,
		OccurredAt: args.OccurredAt,
	}
	if err := h.dispatcher.Dispatch(ctx, event); err != nil {
		return fmt.Errorf("dispatch %s: %w", args.Event, err)
	}
	h.logger.Debug().Int64("petition_id", args.PetitionID).Str("event", args.Event).Msg("notification delivered")
	return nil
}
