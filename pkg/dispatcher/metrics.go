package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FanoutMetrics tracks subscriber deliveries. A nil *FanoutMetrics records nothing.
type FanoutMetrics struct {
	deliveries *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewFanoutMetrics constructs the instruments and registers them with reg when it is non-nil.
func NewFanoutMetrics(reg prometheus.Registerer) *FanoutMetrics {
	m := &FanoutMetrics{
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "backclock",
				Subsystem: "fanout",
				Name:      "deliveries_total",
				Help:      "Batches delivered to subscribers, labeled by subscriber and outcome.",
			},
			[]string{"subscriber", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{ //nolint:exhaustruct
				Namespace: "backclock",
				Subsystem: "fanout",
				Name:      "delivery_duration_seconds",
				Help:      "Time spent in a subscriber's delivery function.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"subscriber"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.deliveries, m.duration)
	}
	return m
}

func (m *FanoutMetrics) observe(subscriber string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.deliveries.WithLabelValues(subscriber, outcome).Inc()
	m.duration.WithLabelValues(subscriber).Observe(elapsed.Seconds())
}
