package metrics

import "github.com/prometheus/client_golang/prometheus"

// Core retrieval and streaming Prometheus metrics.
var (
	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatdex",
			Name:      "retrieval_requests_total",
			Help:      "Total number of retrieval queries",
		},
		[]string{"variant", "status"},
	)

	RetrievalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatdex",
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"variant"},
	)

	StreamSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatdex",
			Name:      "stream_sessions_active",
			Help:      "Streaming sessions currently emitting",
		},
	)

	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatdex",
			Name:      "stream_events_total",
			Help:      "Total stream events emitted by kind",
		},
		[]string{"kind"},
	)

	RefineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatdex",
			Name:      "refine_requests_total",
			Help:      "Total answer refinement attempts",
		},
		[]string{"status"}, // "replaced" / "unchanged" / "error"
	)
)

var coreMetricsRegistered bool

// RegisterCoreMetrics registers retrieval and streaming metrics. Must be
// called once from main.
func RegisterCoreMetrics() {
	if coreMetricsRegistered {
		return
	}
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(StreamSessionsActive)
	prometheus.MustRegister(StreamEventsTotal)
	prometheus.MustRegister(RefineRequestsTotal)
	coreMetricsRegistered = true
}
