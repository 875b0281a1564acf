package recycler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomePooled  = "pooled"
	outcomeDropped = "dropped"
)

// RecyclerMetrics captures observability counters for recycle operations.
type RecyclerMetrics struct { //nolint:revive
	recycleTotal    *prometheus.CounterVec
	recycleDuration prometheus.Histogram
	checkoutTotal   prometheus.Counter
	doublePutTotal  prometheus.Counter
}

// NewRecyclerMetrics constructs metrics instruments and registers them with reg when it is non-nil.
func NewRecyclerMetrics(reg prometheus.Registerer) *RecyclerMetrics {
	m := &RecyclerMetrics{
		recycleTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "backclock",
				Subsystem: "recycler",
				Name:      "batches_total",
				Help:      "Total number of batch buffers recycled, labeled by outcome.",
			},
			[]string{"outcome"},
		),
		recycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{ //nolint:exhaustruct
				Namespace: "backclock",
				Subsystem: "recycler",
				Name:      "recycle_duration_seconds",
				Help:      "Time spent recycling batch buffers.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		checkoutTotal: prometheus.NewCounter(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "backclock",
				Subsystem: "recycler",
				Name:      "checkouts_total",
				Help:      "Total number of batch buffers leased from the pool.",
			},
		),
		doublePutTotal: prometheus.NewCounter(
			prometheus.CounterOpts{ //nolint:exhaustruct
				Namespace: "backclock",
				Subsystem: "recycler",
				Name:      "double_put_total",
				Help:      "Total number of double-put violations detected in debug mode.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.recycleTotal, m.recycleDuration, m.checkoutTotal, m.doublePutTotal)
	}
	return m
}

func (m *RecyclerMetrics) observeRecycle(pooled bool, started time.Time) {
	if m == nil {
		return
	}
	outcome := outcomeDropped
	if pooled {
		outcome = outcomePooled
	}
	m.recycleTotal.WithLabelValues(outcome).Inc()
	m.recycleDuration.Observe(time.Since(started).Seconds())
}

func (m *RecyclerMetrics) incCheckout() {
	if m == nil {
		return
	}
	m.checkoutTotal.Inc()
}

func (m *RecyclerMetrics) incDoublePut() {
	if m == nil {
		return
	}
	m.doublePutTotal.Inc()
}
