package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wamirror_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wamirror_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"method", "path"},
	)

	// Session lifecycle
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wamirror_sessions_started_total",
			Help: "Session start attempts",
		},
		[]string{"result"}, // "started", "noop", "failed"
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wamirror_session_transitions_total",
			Help: "Session status transitions",
		},
		[]string{"to"},
	)

	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wamirror_live_sessions",
			Help: "Client handles currently held in the registry",
		},
	)

	// Ingest
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wamirror_messages_ingested_total",
			Help: "Messages persisted by the ingest pipeline",
		},
		[]string{"direction"},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wamirror_messages_dropped_total",
			Help: "Message events dropped by the ingest pipeline",
		},
		[]string{"reason"}, // "non_text", "group", "invalid", "store_error"
	)

	// History sync
	HistoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wamirror_history_fetches_total",
			Help: "Historical batches fetched from client handles",
		},
		[]string{"mode", "result"}, // mode: "on_demand", "bulk", "catch_up"
	)

	// Notifier
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wamirror_events_published_total",
			Help: "Events published to subscribers",
		},
		[]string{"type"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wamirror_event_sink_errors_total",
			Help: "Failed deliveries to external event sinks",
		},
		[]string{"sink"},
	)
)
