package selection

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for selection sessions.
type Metrics struct {
	SelectionsTotal    *prometheus.CounterVec
	ClusterResolutions *prometheus.CounterVec
	ClusterDuration    prometheus.Histogram
	StaleDiscards      prometheus.Counter
	DetailCache        *prometheus.CounterVec
	IncidentsCreated   *prometheus.CounterVec
}

// NewMetrics registers and returns selection metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SelectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_selection_events_total",
			Help: "Selection changes by kind.",
		}, []string{"kind"}),
		ClusterResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_cluster_resolutions_total",
			Help: "Cluster containment resolutions by result.",
		}, []string{"result"}),
		ClusterDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "waypoint_cluster_resolution_duration_seconds",
			Help:    "Duration of cluster containment resolutions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~2s
		}),
		StaleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "waypoint_cluster_stale_discards_total",
			Help: "Cluster results discarded because the render pass or selection changed.",
		}),
		DetailCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_incident_detail_cache_total",
			Help: "Incident detail lookups by cache result.",
		}, []string{"result"}),
		IncidentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "waypoint_session_incident_creates_total",
			Help: "Incident creations from a session by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.SelectionsTotal,
		m.ClusterResolutions,
		m.ClusterDuration,
		m.StaleDiscards,
		m.DetailCache,
		m.IncidentsCreated,
	)
	return m
}

// Hooks receives session events. Nil funcs are skipped.
type Hooks struct {
	OnSelect        func(kind string)
	OnClusterResult func(duration float64, err error)
	OnStale         func()
	OnDetailCache   func(hit bool)
	OnCreate        func(err error)
}

// Hooks returns session hooks that record into m.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnSelect: func(kind string) {
			m.SelectionsTotal.WithLabelValues(kind).Inc()
		},
		OnClusterResult: func(duration float64, err error) {
			result := "success"
			if err != nil {
				result = "error"
			}
			m.ClusterResolutions.WithLabelValues(result).Inc()
			m.ClusterDuration.Observe(duration)
		},
		OnStale: func() {
			m.StaleDiscards.Inc()
		},
		OnDetailCache: func(hit bool) {
			result := "miss"
			if hit {
				result = "hit"
			}
			m.DetailCache.WithLabelValues(result).Inc()
		},
		OnCreate: func(err error) {
			result := "success"
			if err != nil {
				result = "error"
			}
			m.IncidentsCreated.WithLabelValues(result).Inc()
		},
	}
}

func (h Hooks) selected(kind string) {
	if h.OnSelect != nil {
		h.OnSelect(kind)
	}
}

func (h Hooks) clusterResult(d float64, err error) {
	if h.OnClusterResult != nil {
		h.OnClusterResult(d, err)
	}
}

func (h Hooks) stale() {
	if h.OnStale != nil {
		h.OnStale()
	}
}

func (h Hooks) detailCache(hit bool) {
	if h.OnDetailCache != nil {
		h.OnDetailCache(hit)
	}
}

func (h Hooks) created(err error) {
	if h.OnCreate != nil {
		h.OnCreate(err)
	}
}
