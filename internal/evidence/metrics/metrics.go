package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks evidence workflow activity.
type Metrics struct {
	EvidenceCreated     prometheus.Counter
	Transitions         *prometheus.CounterVec
	TransitionsRejected prometheus.Counter
	NotifyFailures      prometheus.Counter
	TransitionDuration  prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		EvidenceCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_evidence_created_total",
			Help: "Total number of evidence records created.",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shahin_evidence_transitions_total",
			Help: "Total number of successful workflow transitions.",
		}, []string{"to_status"}),
		TransitionsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_evidence_transitions_rejected_total",
			Help: "Total number of workflow transitions refused by the state machine.",
		}),
		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_evidence_notify_failures_total",
			Help: "Total number of reviewer notifications that could not be delivered.",
		}),
		TransitionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shahin_evidence_transition_duration_seconds",
			Help:    "Duration of workflow transition operations.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveTransition records the elapsed time of a workflow operation.
func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}
