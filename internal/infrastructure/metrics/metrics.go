package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "petitions"

// Metrics exposes engine counters. A nil *Metrics is valid and records nothing, so
// components can be built without a registry in tests.
type Metrics struct {
	signatureTransitions *prometheus.CounterVec
	counterUpdates       *prometheus.CounterVec
	journalCreateRetries prometheus.Counter
	reconciliations      prometheus.Counter
	jobs                 *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	invalidationsRunning prometheus.Gauge
	gateRejections       *prometheus.CounterVec
}

// New registers the engine metrics with registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		signatureTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signature_transitions_total",
			Help:      "signature state transitions by target state",
		}, []string{"state"}),
		counterUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_updates_total",
			Help:      "signature counter updates by aggregate and operation",
		}, []string{"aggregate", "op"}),
		journalCreateRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_create_retries_total",
			Help:      "journal find-or-create attempts that lost a unique index race",
		}),
		reconciliations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_resets_total",
			Help:      "petition signature counts recomputed by the reconciliation sweep",
		}),
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "background jobs processed by name and result",
		}, []string{"name", "result"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "background job handler latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"name"}),
		invalidationsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "invalidations_running",
			Help:      "invalidations currently executing",
		}),
		gateRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "signatures rejected by admission control by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) SignatureTransition(state string) {
	if m == nil {
		return
	}
	m.signatureTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) CounterUpdate(aggregate, op string) {
	if m == nil {
		return
	}
	m.counterUpdates.WithLabelValues(aggregate, op).Inc()
}

func (m *Metrics) JournalCreateRetry() {
	if m == nil {
		return
	}
	m.journalCreateRetries.Inc()
}

func (m *Metrics) Reconciled() {
	if m == nil {
		return
	}
	m.reconciliations.Inc()
}

// JobDone records the outcome of one job attempt.
func (m *Metrics) JobDone(name string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.jobs.WithLabelValues(name, result).Inc()
	m.jobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) InvalidationStarted() {
	if m == nil {
		return
	}
	m.invalidationsRunning.Inc()
}

func (m *Metrics) InvalidationFinished() {
	if m == nil {
		return
	}
	m.invalidationsRunning.Dec()
}

func (m *Metrics) GateRejected(reason string) {
	if m == nil {
		return
	}
	m.gateRejections.WithLabelValues(reason).Inc()
}
