package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Connection metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_active_connections",
			Help: "Currently open websocket connections",
		},
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_events_received_total",
			Help: "Inbound websocket events",
		},
		[]string{"event"},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_delivery_failures_total",
			Help: "Outbound events that could not be delivered to their connection",
		},
	)

	// Stream metrics
	StreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_streams_total",
			Help: "Finished live streams by final state",
		},
		[]string{"state"}, // "complete" or "failed"
	)

	FragmentsRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_fragments_relayed_total",
			Help: "Generated fragments forwarded to clients",
		},
	)

	StreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatrelay_stream_duration_seconds",
			Help:    "Time from generator start to commit",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	SessionNotices = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_session_notices_total",
			Help: "Requests answered with a notice instead of a stream",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_store_latency_seconds",
			Help:    "History store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"op"},
	)
)
