package honeybadger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "hbbft"
	metricsSubsystem = "epoch"
)

// Metrics collects epoch and accumulator statistics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Outcomes        *prometheus.CounterVec
	DiscardedShares prometheus.Counter
	TransientErrors prometheus.Counter
	AbortedEpochs   prometheus.Counter
	EpochDuration   prometheus.Histogram
}

// NewMetrics creates the epoch metrics and registers them on reg if it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "proposal_outcomes_total",
			Help:      "Agreed proposals by how their accumulation ended.",
		}, []string{"outcome"}),
		DiscardedShares: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "discarded_shares_total",
			Help:      "Decryption shares that failed verification.",
		}),
		TransientErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "transient_exchange_errors_total",
			Help:      "Retried failures to retrieve a vote.",
		}),
		AbortedEpochs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "aborted_total",
			Help:      "Epochs that produced no block.",
		}),
		EpochDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "duration_seconds",
			Help:      "Time to produce a block.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Outcomes, m.DiscardedShares, m.TransientErrors, m.AbortedEpochs, m.EpochDuration)
	}
	return m
}

func (m *Metrics) outcome(kind OutcomeKind) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) shareDiscarded() {
	if m == nil {
		return
	}
	m.DiscardedShares.Inc()
}

func (m *Metrics) transientError() {
	if m == nil {
		return
	}
	m.TransientErrors.Inc()
}

func (m *Metrics) aborted() {
	if m == nil {
		return
	}
	m.AbortedEpochs.Inc()
}

func (m *Metrics) finished(start time.Time) {
	if m == nil {
		return
	}
	m.EpochDuration.Observe(time.Since(start).Seconds())
}
