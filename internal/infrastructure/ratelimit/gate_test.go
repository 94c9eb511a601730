package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petition-hub/petition-hub/internal/domain/signature"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
)

type failingCounter struct{}

func (failingCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func candidate(petitionID int64, ip, email string) *signature.Signature {
	return &signature.Signature{
		ID:           1,
		PetitionID:   petitionID,
		IPAddress:    ip,
		Email:        email,
		LocationCode: "GB",
	}
}

func newGate(t *testing.T, cfg Config) *Gate {
	g, err := NewGate(NewMemoryCounter(), cfg, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	require.NoError(t, err)
	return g
}

func TestGate_Windows(t *testing.T) {
	ctx := context.Background()
	g := newGate(t, Config{IPWindow: time.Hour, IPLimit: 2, DomainWindow: time.Hour, DomainLimit: 3})

	exceeded := func(petitionID int64, ip, email string) bool {
		t.Helper()
		ok, err := g.Exceeded(ctx, candidate(petitionID, ip, email))
		require.NoError(t, err)
		return ok
	}

	assert.False(t, exceeded(1, "10.0.0.1", "a@example.com"))
	assert.False(t, exceeded(1, "10.0.0.1", "b@example.com"))
	assert.True(t, exceeded(1, "10.0.0.1", "c@example.com"), "third signature from one ip")
	assert.False(t, exceeded(2, "10.0.0.1", "d@example.com"), "windows are per petition")

	assert.False(t, exceeded(1, "10.0.0.2", "e@example.com"))
	assert.True(t, exceeded(1, "10.0.0.3", "f@Example.com"), "fourth signature from one domain")
}

func TestGate_Lists(t *testing.T) {
	ctx := context.Background()
	g := newGate(t, Config{
		IPWindow:       time.Hour,
		IPLimit:        1,
		AllowedIPs:     []string{"192.168.0.0/16"},
		BlockedIPs:     []string{"203.0.113.7", "2001:db8::/32"},
		AllowedDomains: []string{"parliament.uk"},
		BlockedDomains: []string{"mailinator.com"},
	})

	tests := []struct {
		name     string
		ip       string
		email    string
		exceeded bool
	}{
		{name: "blocked ip", ip: "203.0.113.7", email: "a@example.com", exceeded: true},
		{name: "blocked ipv6 range", ip: "2001:db8::1", email: "a@example.com", exceeded: true},
		{name: "blocked subdomain", ip: "10.1.1.1", email: "a@eu.mailinator.com", exceeded: true},
		{name: "allowed range skips windows", ip: "192.168.4.4", email: "a@example.com"},
		{name: "allowed range again", ip: "192.168.4.4", email: "b@example.com"},
		{name: "allowed domain beats blocked ip", ip: "203.0.113.7", email: "clerk@parliament.uk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := g.Exceeded(ctx, candidate(1, tt.ip, tt.email))
			require.NoError(t, err)
			assert.Equal(t, tt.exceeded, ok)
		})
	}
}

func TestGate_Rules(t *testing.T) {
	ctx := context.Background()
	g := newGate(t, Config{
		DomainWindow: time.Hour,
		DomainLimit:  100,
		Rules:        []string{`domain_count > 1 && location != 'GB'`},
	})

	s := candidate(1, "", "a@example.com")
	s.LocationCode = "US"
	ok, err := g.Exceeded(ctx, s)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.Exceeded(ctx, s)
	require.NoError(t, err)
	assert.True(t, ok)

	s.LocationCode = "GB"
	ok, err = g.Exceeded(ctx, s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGate_BadConfig(t *testing.T) {
	_, err := NewGate(NewMemoryCounter(), Config{Rules: []string{"ip_count >"}}, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewGate(NewMemoryCounter(), Config{BlockedIPs: []string{"not-an-ip"}}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestGate_CounterFailure(t *testing.T) {
	g, err := NewGate(failingCounter{}, Config{IPWindow: time.Hour, IPLimit: 1}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = g.Exceeded(context.Background(), candidate(1, "10.0.0.1", "a@example.com"))
	assert.ErrorContains(t, err, "connection refused")
}

func TestMemoryCounter_WindowResets(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCounter()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return at }

	n, _ := c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n)
	n, _ = c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(2), n)

	at = at.Add(time.Minute)
	n, _ = c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n)
}
