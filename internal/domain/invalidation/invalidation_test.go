package invalidation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestFilterNormalize(t *testing.T) {
	f := Filter{
		Name:         ptr("  "),
		Postcode:     ptr(" cf10 1aa "),
		Email:        ptr(" Spam@Bulk.TEST"),
		Domain:       ptr("Bulk.Test"),
		LocationCode: ptr("gb"),
	}.Normalize()

	assert.Nil(t, f.Name)
	assert.Equal(t, "CF101AA", *f.Postcode)
	assert.Equal(t, "spam@bulk.test", *f.Email)
	assert.Equal(t, "bulk.test", *f.Domain)
	assert.Equal(t, "GB", *f.LocationCode)
	assert.False(t, f.Empty())

	assert.True(t, Filter{Name: ptr(" "), IPAddress: ptr("")}.Empty())
	assert.False(t, Filter{CreatedAfter: &now}.Empty())
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		summary string
		filter  Filter
		field   string
	}{
		{"blank summary", " ", Filter{PetitionID: ptr(int64(1))}, "summary"},
		{"empty filter", "Spam", Filter{Name: ptr(" ")}, "base"},
		{"bad petition", "Spam", Filter{PetitionID: ptr(int64(0))}, "petition_id"},
		{"bad ip", "Spam", Filter{IPAddress: ptr("10.0.0")}, "ip_address"},
		{"backwards range", "Spam", Filter{CreatedAfter: ptr(now), CreatedBefore: ptr(now.Add(-time.Hour))}, "created_before"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.summary, nil, tt.filter, now)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Contains(t, verrs, tt.field)
		})
	}

	inv, err := New(" Bulk signups ", nil, Filter{Domain: ptr("bulk.test")}, now)
	require.NoError(t, err)
	assert.Equal(t, "Bulk signups", inv.Summary)
	assert.Equal(t, StatusPending, inv.Status())
}

func TestLifecycle(t *testing.T) {
	inv, err := New("Spam", nil, Filter{IPAddress: ptr("10.0.0.1")}, now)
	require.NoError(t, err)

	require.NoError(t, inv.MarkCounted(12, now))
	assert.Equal(t, 12, inv.MatchingCount)

	require.NoError(t, inv.MarkEnqueued(now))
	assert.Equal(t, StatusEnqueued, inv.Status())
	assert.ErrorIs(t, inv.MarkCounted(3, now), ErrInvalidTransition)
	assert.NoError(t, inv.UpdateFilter("Spam", nil, Filter{Domain: ptr("x.test")}, now))

	require.True(t, inv.Begin(10, now))
	assert.Equal(t, StatusRunning, inv.Status())
	assert.ErrorIs(t, inv.UpdateFilter("Spam", nil, Filter{Domain: ptr("x.test")}, now), ErrInvalidTransition)
	assert.ErrorIs(t, inv.CanDelete(), ErrInvalidTransition)

	// A resumed run keeps the already invalidated signatures in the snapshot.
	inv.InvalidatedCount = 4
	require.True(t, inv.Begin(6, now.Add(time.Minute)))
	assert.Equal(t, 10, inv.MatchingCount)
	assert.Equal(t, now, *inv.StartedAt)
	assert.Equal(t, 40, inv.PercentCompleted())

	inv.InvalidatedCount = 10
	inv.MarkCompleted(now)
	assert.Equal(t, StatusCompleted, inv.Status())
	assert.False(t, inv.Begin(0, now))
	assert.ErrorIs(t, inv.Cancel(now), ErrInvalidTransition)
}

func TestUpdateFilter_KeepsPreviousOnError(t *testing.T) {
	inv, err := New("Spam", nil, Filter{Domain: ptr("bulk.test")}, now)
	require.NoError(t, err)
	require.NoError(t, inv.MarkCounted(5, now))

	err = inv.UpdateFilter("Spam", nil, Filter{}, now)
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "bulk.test", *inv.Filter.Domain)
	assert.Equal(t, 5, inv.MatchingCount)

	require.NoError(t, inv.UpdateFilter("Spam", nil, Filter{Domain: ptr("other.test")}, now))
	assert.Zero(t, inv.MatchingCount)
	assert.Nil(t, inv.CountedAt)
}

func TestCancelAndDelete(t *testing.T) {
	pending := &Invalidation{}
	assert.NoError(t, pending.CanDelete())
	require.NoError(t, pending.Cancel(now))
	assert.NoError(t, pending.CanDelete())
	assert.ErrorIs(t, pending.Cancel(now), ErrInvalidTransition)
	assert.False(t, pending.Begin(3, now))

	started := &Invalidation{StartedAt: &now}
	require.NoError(t, started.Cancel(now))
	assert.Equal(t, StatusCancelled, started.Status())
	assert.ErrorIs(t, started.CanDelete(), ErrInvalidTransition)
}

func TestPercentCompleted(t *testing.T) {
	assert.Equal(t, 100, (&Invalidation{}).PercentCompleted())
	assert.Equal(t, 33, (&Invalidation{MatchingCount: 3, InvalidatedCount: 1}).PercentCompleted())
	assert.Equal(t, 100, (&Invalidation{MatchingCount: 3, InvalidatedCount: 5}).PercentCompleted())
}

func TestWildcard(t *testing.T) {
	assert.True(t, Wildcard("%@bulk.test"))
	assert.False(t, Wildcard("alice@bulk.test"))
}
