package incident

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for incident operations.
type Metrics struct {
	OpsTotal       *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	EntriesCreated prometheus.Histogram
}

// NewMetrics registers and returns incident metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_incident_ops_total",
			Help: "Incident store operations by operation and result.",
		}, []string{"op", "result"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "waypoint_incident_op_duration_seconds",
			Help:    "Duration of incident operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}, []string{"op"}),
		EntriesCreated: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "waypoint_incident_entries",
			Help:    "Entries per created incident.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. 2048
		}),
	}
	reg.MustRegister(m.OpsTotal, m.OpDuration, m.EntriesCreated)
	return m
}

// Hooks returns service hooks that record into m.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnCreate: func(entries int, duration float64, err error) {
			m.OpsTotal.WithLabelValues("create", result(err)).Inc()
			m.OpDuration.WithLabelValues("create").Observe(duration)
			if err == nil {
				m.EntriesCreated.Observe(float64(entries))
			}
		},
		OnGet: func(found bool, duration float64, err error) {
			r := result(err)
			if err == nil && !found {
				r = "not_found"
			}
			m.OpsTotal.WithLabelValues("get", r).Inc()
			m.OpDuration.WithLabelValues("get").Observe(duration)
		},
		OnList: func(duration float64, err error) {
			m.OpsTotal.WithLabelValues("list", result(err)).Inc()
			m.OpDuration.WithLabelValues("list").Observe(duration)
		},
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
