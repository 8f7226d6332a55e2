package invocation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks invocation outcomes and latencies.
type Metrics struct {
	completed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the invocation metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gravyvalet_invocations_total",
			Help: "Completed operation invocations by operation and terminal status.",
		}, []string{"operation", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gravyvalet_invocation_duration_seconds",
			Help:    "Wall-clock duration of operation invocations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) observe(operation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(operation, status).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
