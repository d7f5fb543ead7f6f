// Package metrics registers the monitor's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exmon_ingest_messages_received_total",
			Help: "Total number of bus messages received",
		},
		[]string{"partition"},
	)

	MessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exmon_ingest_messages_stored_total",
			Help: "Total number of exception records stored",
		},
	)

	MessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exmon_ingest_messages_failed_total",
			Help: "Total number of messages acknowledged without being stored",
		},
		[]string{"reason"},
	)

	TimestampFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exmon_ingest_timestamp_fallbacks_total",
			Help: "Total number of events stamped with the ingestion time",
		},
	)

	// Storage metrics
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exmon_store_duration_seconds",
			Help:    "Duration of record store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Query metrics
	QueryTerms = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exmon_query_terms_total",
			Help: "Total number of advanced query terms by namespace",
		},
		[]string{"namespace"},
	)

	QueryFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exmon_query_fallbacks_total",
			Help: "Total number of advanced queries that failed to parse",
		},
	)

	QueryDroppedTerms = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exmon_query_dropped_terms_total",
			Help: "Total number of advanced query terms dropped before execution",
		},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exmon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exmon_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exmon_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"key"},
	)

	// Mirror metrics
	MirrorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exmon_mirror_failures_total",
			Help: "Total number of events that could not be indexed in OpenSearch",
		},
	)
)
