package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.SignatureTransition("validated")
	m.SignatureTransition("validated")
	m.CounterUpdate("petition", "increment")
	m.JournalCreateRetry()
	m.JobDone("signature.validated", nil, 10*time.Millisecond)
	m.JobDone("signature.validated", errors.New("boom"), time.Millisecond)
	m.InvalidationStarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.signatureTransitions.WithLabelValues("validated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.counterUpdates.WithLabelValues("petition", "increment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.journalCreateRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("signature.validated", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalidationsRunning))

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SignatureTransition("validated")
		m.CounterUpdate("country", "decrement")
		m.JournalCreateRetry()
		m.Reconciled()
		m.JobDone("x", nil, 0)
		m.InvalidationStarted()
		m.InvalidationFinished()
		m.GateRejected("ip")
	})
}
