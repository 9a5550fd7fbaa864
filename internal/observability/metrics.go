// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	MessagesReceived  prometheus.Counter
	ParseErrors       prometheus.Counter
	EventsProcessed   *prometheus.CounterVec
	ConnectionErrors  prometheus.Counter
	ReconnectAttempts prometheus.Counter

	// Collection metrics
	TokensUpserted      prometheus.Counter
	TransactionsStored  prometheus.Counter
	DuplicatesDropped   prometheus.Counter
	LaunchesRecorded    prometheus.Counter
	MigrationsRecorded  prometheus.Counter
	TokenCount          prometheus.Gauge
	TransactionCount    prometheus.Gauge
	LaunchCount         prometheus.Gauge
	MigrationCount      prometheus.Gauge

	// Persistence metrics
	PersistFlushes  prometheus.Counter
	PersistFailures prometheus.Counter

	// Poller metrics
	PollCycles     prometheus.Counter
	PollErrors     prometheus.Counter
	APICallLatency *prometheus.HistogramVec

	// Health metrics
	LastConnectedTimestamp prometheus.Gauge
	LastFlushTimestamp     prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pumpfeed"
	}

	return &Metrics{
		// Stream metrics
		MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_received_total",
			Help:      "Total number of stream messages received",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "parse_errors_total",
			Help:      "Total number of payloads that failed to normalize",
		}),
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_processed_total",
			Help:      "Total number of events processed by kind",
		}, []string{"kind"}),
		ConnectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connection_errors_total",
			Help:      "Total number of stream connection errors",
		}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of stream reconnect attempts",
		}),

		// Collection metrics
		TokensUpserted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "tokens_upserted_total",
			Help:      "Total number of token upserts applied",
		}),
		TransactionsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "transactions_stored_total",
			Help:      "Total number of transactions accepted",
		}),
		DuplicatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "duplicates_dropped_total",
			Help:      "Total number of duplicate transactions dropped",
		}),
		LaunchesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "launches_recorded_total",
			Help:      "Total number of new launches recorded",
		}),
		MigrationsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "migrations_recorded_total",
			Help:      "Total number of migration events recorded",
		}),
		TokenCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "tokens",
			Help:      "Current number of tokens in the merge store",
		}),
		TransactionCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "transactions",
			Help:      "Current number of transactions in the merge store",
		}),
		LaunchCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "launches",
			Help:      "Current number of new launches in the merge store",
		}),
		MigrationCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collect",
			Name:      "migrations",
			Help:      "Current number of migration events in the merge store",
		}),

		// Persistence metrics
		PersistFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "flushes_total",
			Help:      "Total number of persistence flushes attempted",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "failures_total",
			Help:      "Total number of persistence flushes with failures",
		}),

		// Poller metrics
		PollCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles completed",
		}),
		PollErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "errors_total",
			Help:      "Total number of poll cycles that failed",
		}),
		APICallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "api_call_latency_seconds",
			Help:      "pump.fun API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		// Health metrics
		LastConnectedTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_connected_timestamp",
			Help:      "Unix timestamp of the last successful stream connect",
		}),
		LastFlushTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_flush_timestamp",
			Help:      "Unix timestamp of the last successful persistence flush",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
