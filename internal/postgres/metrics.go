package postgres

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics is a QueryObserver backed by a Prometheus histogram.
type QueryMetrics struct {
	Duration *prometheus.HistogramVec
}

// NewQueryMetrics registers and returns query metrics on the given registerer.
func NewQueryMetrics(reg prometheus.Registerer) *QueryMetrics {
	m := &QueryMetrics{
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "waypoint_db_query_duration_seconds",
			Help:    "Duration of database queries by operation and outcome.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~4s
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(m.Duration)
	return m
}

// ObserveQuery implements QueryObserver.
func (m *QueryMetrics) ObserveQuery(_ context.Context, operation, outcome string, dur time.Duration) {
	m.Duration.WithLabelValues(operation, outcome).Observe(dur.Seconds())
}
