package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Status represents job status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusDead      Status = "DEAD"
)

// Job names dispatched by the engine.
const (
	NameSignatureValidated = "signature.validated"
	NameInvalidationRun    = "invalidation.run"
	NamePetitionNotify     = "petition.notify"
)

const DefaultMaxAttempts = 10

var ErrUnknownJob = errors.New("no handler registered for job")

// Job is one unit of at-least-once asynchronous work.
type Job struct {
	ID          int64           `json:"id"`
	JobID       uuid.UUID       `json:"jobId"`
	Name        string          `json:"name"`
	Args        json.RawMessage `json:"args"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	LockedUntil *time.Time      `json:"lockedUntil,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// New builds a pending job with JSON-encoded args.
func New(name string, args interface{}, now time.Time) (*Job, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", name, err)
	}
	return &Job{
		JobID:       uuid.New(),
		Name:        name,
		Args:        raw,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		RunAt:       now,
		CreatedAt:   now,
	}, nil
}

// Decode unmarshals the job args into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Args, v); err != nil {
		return fmt.Errorf("decode %s args: %w", j.Name, err)
	}
	return nil
}

// CanRetry reports whether another attempt is allowed after a failure.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// NextRunAt returns the exponential backoff point for the next attempt.
func (j *Job) NextRunAt(now time.Time, base time.Duration) time.Time {
	exp := math.Pow(2, float64(j.Attempts-1))
	if exp < 1 {
		exp = 1
	}
	delay := time.Duration(float64(base) * exp)
	if delay > time.Hour {
		delay = time.Hour
	}
	return now.Add(delay)
}

// SignatureValidatedArgs drives the counter fan-out after a validation commits.
type SignatureValidatedArgs struct {
	SignatureID int64 `json:"signatureId"`
	PetitionID  int64 `json:"petitionId"`
}

// InvalidationRunArgs executes an enqueued invalidation.
type InvalidationRunArgs struct {
	InvalidationID int64 `json:"invalidationId"`
}

// PetitionNotifyArgs carries a petition lifecycle notification.
type PetitionNotifyArgs struct {
	PetitionID int64     `json:"petitionId"`
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurredAt"`
	Detail     string    `json:"detail,omitempty"`
}
