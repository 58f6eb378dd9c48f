package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric vectors shared by the Scorer, Orchestrator, and Feedback worker
// processes. Registered once per process via InitMetrics.
var (
	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_events_consumed_total",
			Help: "Total number of events consumed, by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_events_published_total",
			Help: "Total number of events published, by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	EventProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_event_processing_duration_seconds",
			Help:    "Time spent processing a single event end to end.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker"},
	)

	ScoringRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_scoring_requests_total",
			Help: "Total scoring adapter requests, by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	DeliveryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_delivery_requests_total",
			Help: "Total delivery adapter requests, by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open), by resource.",
		},
		[]string{"resource"},
	)

	PoisonMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_poison_messages_total",
			Help: "Total messages routed to a dead-letter topic, by source topic.",
		},
		[]string{"topic"},
	)

	BanditSelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_bandit_selections_total",
			Help: "Total Thompson Sampling experiment selections, by experiment_id.",
		},
		[]string{"experiment_id"},
	)
)

// InitMetrics registers all metric vectors with the default registerer. Must
// be called exactly once per process before /metrics is served.
func InitMetrics() {
	prometheus.MustRegister(EventsConsumedTotal)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(EventProcessingDuration)
	prometheus.MustRegister(ScoringRequestsTotal)
	prometheus.MustRegister(DeliveryRequestsTotal)
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(PoisonMessagesTotal)
	prometheus.MustRegister(BanditSelectionsTotal)
}

// RecordCircuitState maps a breaker's textual state onto the gauge's numeric
// encoding.
func RecordCircuitState(resource, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	default:
		v = 0
	}
	CircuitBreakerState.WithLabelValues(resource).Set(v)
}
