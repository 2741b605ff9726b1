package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the serial code registry.
type Metrics struct {
	CodesGenerated        *prometheus.CounterVec
	VersionsCreated       prometheus.Counter
	CodesVoided           prometheus.Counter
	ReservationsCreated   prometheus.Counter
	ReservationsConfirmed prometheus.Counter
	ReservationsCancelled prometheus.Counter
	ReservationsExpired   prometheus.Counter
	GenerateDuration      prometheus.Histogram
}

// New creates a Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		CodesGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shahin_serial_codes_generated_total",
			Help: "Total number of serial codes generated, by entity prefix",
		}, []string{"prefix"}),
		VersionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_serial_code_versions_created_total",
			Help: "Total number of superseding code versions created",
		}),
		CodesVoided: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_serial_codes_voided_total",
			Help: "Total number of serial codes voided",
		}),
		ReservationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_serial_code_reservations_created_total",
			Help: "Total number of code reservations created",
		}),
		ReservationsConfirmed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_serial_code_reservations_confirmed_total",
			Help: "Total number of code reservations confirmed",
		}),
		ReservationsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_serial_code_reservations_cancelled_total",
			Help: "Total number of code reservations cancelled",
		}),
		ReservationsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_serial_code_reservations_expired_total",
			Help: "Total number of code reservations flipped to expired",
		}),
		GenerateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shahin_serial_code_generate_duration_seconds",
			Help:    "Duration of code generation including sequence allocation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveGenerate records the duration of a Generate operation.
// Call with time.Now() captured at the start of the operation.
func (m *Metrics) ObserveGenerate(start time.Time) {
	m.GenerateDuration.Observe(time.Since(start).Seconds())
}
