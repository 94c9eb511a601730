package invalidation

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// Status is derived from the lifecycle timestamps.
type Status string

const (
	StatusPending   Status = "pending"
	StatusEnqueued  Status = "enqueued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid invalidation transition")
	ErrNotFound          = errors.New("invalidation not found")
	ErrValidation        = errors.New("invalidation is invalid")
)

// ValidationErrors maps field names to messages.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+v[k])
	}
	return "invalidation is invalid: " + strings.Join(parts, ", ")
}

func (v ValidationErrors) Unwrap() error {
	return ErrValidation
}

// Filter selects signatures. Set fields are ANDed together; email and domain accept SQL
// wildcards when they contain a %.
type Filter struct {
	PetitionID     *int64     `json:"petitionId,omitempty"`
	Name           *string    `json:"name,omitempty"`
	Postcode       *string    `json:"postcode,omitempty"`
	IPAddress      *string    `json:"ipAddress,omitempty"`
	Email          *string    `json:"email,omitempty"`
	Domain         *string    `json:"domain,omitempty"`
	ConstituencyID *string    `json:"constituencyId,omitempty"`
	LocationCode   *string    `json:"locationCode,omitempty"`
	CreatedAfter   *time.Time `json:"createdAfter,omitempty"`
	CreatedBefore  *time.Time `json:"createdBefore,omitempty"`
}

// Empty reports whether no criteria are set. An empty filter would match every signature
// on the platform.
func (f Filter) Empty() bool {
	return f.PetitionID == nil && blank(f.Name) && blank(f.Postcode) && blank(f.IPAddress) &&
		blank(f.Email) && blank(f.Domain) && blank(f.ConstituencyID) && blank(f.LocationCode) &&
		f.CreatedAfter == nil && f.CreatedBefore == nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// Normalize trims criteria and drops blank ones.
func (f Filter) Normalize() Filter {
	norm := func(s *string, fn func(string) string) *string {
		if blank(s) {
			return nil
		}
		v := fn(strings.TrimSpace(*s))
		return &v
	}
	same := func(s string) string { return s }
	f.Name = norm(f.Name, same)
	f.Postcode = norm(f.Postcode, func(s string) string { return strings.ToUpper(strings.Join(strings.Fields(s), "")) })
	f.IPAddress = norm(f.IPAddress, same)
	f.Email = norm(f.Email, strings.ToLower)
	f.Domain = norm(f.Domain, strings.ToLower)
	f.ConstituencyID = norm(f.ConstituencyID, same)
	f.LocationCode = norm(f.LocationCode, strings.ToUpper)
	return f
}

// Wildcard reports whether an operator value uses SQL wildcard matching.
func Wildcard(v string) bool {
	return strings.Contains(v, "%")
}

// Invalidation is an administrative batch job that invalidates matching signatures.
type Invalidation struct {
	ID               int64      `json:"id"`
	Summary          string     `json:"summary"`
	Details          *string    `json:"details,omitempty"`
	Filter           Filter     `json:"filter"`
	MatchingCount    int        `json:"matchingCount"`
	InvalidatedCount int        `json:"invalidatedCount"`
	CountedAt        *time.Time `json:"countedAt,omitempty"`
	EnqueuedAt       *time.Time `json:"enqueuedAt,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// New builds a pending invalidation after normalising its filter.
func New(summary string, details *string, filter Filter, now time.Time) (*Invalidation, error) {
	inv := &Invalidation{
		Summary:   strings.TrimSpace(summary),
		Details:   details,
		Filter:    filter.Normalize(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Validate checks the invalidation before any persistence attempt.
func (i *Invalidation) Validate() error {
	errs := ValidationErrors{}
	if i.Summary == "" {
		errs["summary"] = "can't be blank"
	} else if len(i.Summary) > 255 {
		errs["summary"] = "is too long (maximum is 255 characters)"
	}
	f := i.Filter
	if f.Empty() {
		errs["base"] = "please select some conditions, otherwise all signatures will be invalidated"
	}
	if f.PetitionID != nil && *f.PetitionID <= 0 {
		errs["petition_id"] = "must be greater than 0"
	}
	if f.IPAddress != nil && net.ParseIP(*f.IPAddress) == nil {
		errs["ip_address"] = "is invalid"
	}
	if f.LocationCode != nil && len(*f.LocationCode) > 30 {
		errs["location_code"] = "is too long (maximum is 30 characters)"
	}
	if f.CreatedAfter != nil && f.CreatedBefore != nil && !f.CreatedAfter.Before(*f.CreatedBefore) {
		errs["created_before"] = "must be after created after"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Status derives the lifecycle position from the timestamps.
func (i *Invalidation) Status() Status {
	switch {
	case i.CompletedAt != nil:
		return StatusCompleted
	case i.CancelledAt != nil:
		return StatusCancelled
	case i.StartedAt != nil:
		return StatusRunning
	case i.EnqueuedAt != nil:
		return StatusEnqueued
	}
	return StatusPending
}

func (i *Invalidation) Pending() bool   { return i.Status() == StatusPending }
func (i *Invalidation) Started() bool   { return i.StartedAt != nil }
func (i *Invalidation) Cancelled() bool { return i.CancelledAt != nil }
func (i *Invalidation) Completed() bool { return i.CompletedAt != nil }

func conflict(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, msg)
}

// UpdateFilter replaces the criteria while the invalidation has not started.
func (i *Invalidation) UpdateFilter(summary string, details *string, filter Filter, now time.Time) error {
	if i.Started() || i.Cancelled() || i.Completed() {
		return conflict("can't edit invalidations that have started")
	}
	prev := *i
	i.Summary = strings.TrimSpace(summary)
	i.Details = details
	i.Filter = filter.Normalize()
	if err := i.Validate(); err != nil {
		*i = prev
		return err
	}
	i.MatchingCount = 0
	i.CountedAt = nil
	i.UpdatedAt = now
	return nil
}

// MarkCounted records a dry-run count.
func (i *Invalidation) MarkCounted(count int, now time.Time) error {
	if !i.Pending() {
		return conflict("can't count invalidations that aren't pending")
	}
	i.MatchingCount = count
	i.CountedAt = &now
	i.UpdatedAt = now
	return nil
}

// MarkEnqueued queues a pending invalidation for execution.
func (i *Invalidation) MarkEnqueued(now time.Time) error {
	if !i.Pending() {
		return conflict("can't start invalidations that aren't pending")
	}
	i.EnqueuedAt = &now
	i.UpdatedAt = now
	return nil
}

// Begin stamps the start of an execution and reports whether the run should proceed.
// Cancelled and completed invalidations are skipped. remaining is the number of
// signatures currently matching; a resumed run keeps the already invalidated ones in
// the snapshot.
func (i *Invalidation) Begin(remaining int, now time.Time) bool {
	if i.Cancelled() || i.Completed() {
		return false
	}
	if i.StartedAt == nil {
		i.StartedAt = &now
	}
	i.MatchingCount = i.InvalidatedCount + remaining
	i.CountedAt = &now
	i.UpdatedAt = now
	return true
}

// MarkCompleted stamps a run that exhausted every batch.
func (i *Invalidation) MarkCompleted(now time.Time) {
	i.CompletedAt = &now
	i.UpdatedAt = now
}

// Cancel stops the invalidation at the next batch boundary. Work already applied stays.
func (i *Invalidation) Cancel(now time.Time) error {
	if i.Cancelled() {
		return conflict("can't cancel invalidations that have already been cancelled")
	}
	if i.Completed() {
		return conflict("can't cancel invalidations that have completed")
	}
	i.CancelledAt = &now
	i.UpdatedAt = now
	return nil
}

// CanDelete reports whether the record may be destroyed. Started invalidations are
// permanent audit records.
func (i *Invalidation) CanDelete() error {
	switch i.Status() {
	case StatusPending:
		return nil
	case StatusCancelled:
		if !i.Started() {
			return nil
		}
	}
	return conflict("can't delete invalidations that have started")
}

// PercentCompleted is the share of matching signatures invalidated so far, clamped to
// [0, 100]. Nothing to do counts as done.
func (i *Invalidation) PercentCompleted() int {
	if i.MatchingCount <= 0 {
		return 100
	}
	pct := i.InvalidatedCount * 100 / i.MatchingCount
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
