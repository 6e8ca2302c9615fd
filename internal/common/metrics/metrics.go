// Package metrics exposes the Prometheus vectors the core's components
// record against, grounded on the teacher's promauto-based metrics package
// (namespace, subsystem, vector shapes kept; names adapted to this domain).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "heromessaging"

// CircuitBreakerState constants mirror sony/gobreaker's state ordering.
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerHalfOpen = 1
	CircuitBreakerOpen     = 2
)

var (
	// Queue metrics (C3/C4)

	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Total entries enqueued, by queue name",
		},
		[]string{"queue"},
	)

	QueueDequeued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "dequeued_total",
			Help:      "Total entries dequeued, by queue name",
		},
		[]string{"queue"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of currently-visible entries in a named queue",
		},
		[]string{"queue"},
	)

	// Outbox metrics (C5)

	OutboxPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "poll_duration_seconds",
			Help:      "Time spent in a single outbox poll cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)

	OutboxSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "send_duration_seconds",
			Help:      "Time spent dispatching a single outbox entry",
			Buckets:   prometheus.DefBuckets,
		},
	)

	OutboxInFlightItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "in_flight_items",
			Help:      "Outbox entries currently claimed for dispatch",
		},
	)

	OutboxActiveGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "active_groups",
			Help:      "Number of message groups currently dispatching",
		},
	)

	OutboxEntriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "entries_processed_total",
			Help:      "Total outbox entries reaching a terminal or retry outcome",
		},
		[]string{"outcome"}, // processed, retried, failed
	)

	// Inbox metrics (C6)

	InboxReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "received_total",
			Help:      "Total inbox entries received, by outcome",
		},
		[]string{"outcome"}, // accepted, duplicate
	)

	InboxProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inbox",
			Name:      "processed_total",
			Help:      "Total inbox entries reaching a terminal outcome",
		},
		[]string{"outcome"}, // processed, failed
	)

	// Transport / consumer metrics (C7/C8)

	TransportState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "state",
			Help:      "Current transport state (0=disconnected,1=connecting,2=connected,3=disconnecting,4=faulted)",
		},
		[]string{"transport"},
	)

	ConsumerMessagesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "messages_handled_total",
			Help:      "Total envelopes handled by a consumer, by outcome",
		},
		[]string{"consumer_id", "outcome"}, // ok, error
	)

	// Pipeline metrics (C9)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Time to run the decorator chain around a handler",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"message_type"},
	)

	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "failures_total",
			Help:      "Total pipeline failures, by message type and reason",
		},
		[]string{"message_type", "reason"}, // Otel.RecordOperation passes the component name and the operation
	)

	PipelineCircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "circuit_breaker_state",
			Help:      "Retry decorator circuit breaker state (0=closed,1=half-open,2=open)",
		},
		[]string{"handler"},
	)

	PipelineCircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total retry decorator circuit breaker trips",
		},
		[]string{"handler"},
	)

	// HTTP metrics for cmd/heromessaging's demo health/metrics server.

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the demo server",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Demo HTTP server request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
