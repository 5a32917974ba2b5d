package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks sessions that currently own a live hub.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coachsync_active_sessions",
			Help: "Number of sessions with a running hub",
		},
	)

	// OpenConnections tracks websocket connections across all sessions.
	OpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coachsync_open_connections",
			Help: "Number of open collaboration connections",
		},
	)

	// ChatMessages counts committed chat messages.
	ChatMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coachsync_chat_messages_total",
			Help: "Total number of sequenced chat messages",
		},
	)

	// DocumentWrites counts document write attempts by outcome (accepted|conflict).
	DocumentWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachsync_document_writes_total",
			Help: "Total number of document write attempts",
		},
		[]string{"outcome"},
	)

	// DroppedClients counts connections closed because their outbound queue filled.
	DroppedClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coachsync_dropped_clients_total",
			Help: "Connections dropped due to outbound backpressure",
		},
	)

	// EvictedConnections counts connections removed by heartbeat sweeps.
	EvictedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coachsync_evicted_connections_total",
			Help: "Connections evicted after missing heartbeats",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coachsync_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
