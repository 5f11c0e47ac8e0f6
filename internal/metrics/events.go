package metrics

import "github.com/prometheus/client_golang/prometheus"

// Event pipeline Prometheus metrics.
var (
	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casedex",
			Name:      "events_processed_total",
			Help:      "Total number of processed case events",
		},
		[]string{"type", "outcome"}, // outcome: "ok" / "error" / "ignored"
	)

	EventsDeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "casedex",
			Name:      "events_dead_lettered_total",
			Help:      "Total number of events moved to the dead letter stream",
		},
		[]string{"type"},
	)

	EventApplyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "casedex",
			Name:      "event_apply_duration_seconds",
			Help:      "Time spent applying one event to its case document",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"type"},
	)
)

var eventMetricsRegistered bool

// RegisterEventMetrics registers Prometheus event metrics. Must be called once from main.
func RegisterEventMetrics() {
	if eventMetricsRegistered {
		return
	}
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(EventsDeadLetteredTotal)
	prometheus.MustRegister(EventApplyDuration)
	eventMetricsRegistered = true
}
