package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks AI input filter activity.
type Metrics struct {
	InputsChecked      prometheus.Counter
	InputsBlocked      prometheus.Counter
	SensitiveDataFound *prometheus.CounterVec
	RateLimited        prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		InputsChecked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_ai_inputs_checked_total",
			Help: "Total number of inputs run through the safety filter.",
		}),
		InputsBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_ai_inputs_blocked_total",
			Help: "Total number of inputs blocked for prompt injection.",
		}),
		SensitiveDataFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shahin_ai_sensitive_data_found_total",
			Help: "Total number of sensitive data pattern hits.",
		}, []string{"type"}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shahin_ai_rate_limited_total",
			Help: "Total number of requests refused by the rate limiter.",
		}),
	}
}
