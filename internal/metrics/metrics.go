// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ChainRequests counts chain client requests by operation and outcome
	ChainRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moment_tracker",
		Subsystem: "chain",
		Name:      "requests_total",
		Help:      "Chain access node and indexer requests by operation and status.",
	}, []string{"operation", "status"})

	// ChainRetries counts backoff retries issued by the chain client
	ChainRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moment_tracker",
		Subsystem: "chain",
		Name:      "retries_total",
		Help:      "Chain request retries by operation.",
	}, []string{"operation"})

	// MarketSnapshots counts resolved snapshots by source (live or estimate)
	MarketSnapshots = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moment_tracker",
		Subsystem: "market",
		Name:      "snapshots_total",
		Help:      "Resolved market snapshots by source.",
	}, []string{"source"})

	// MarketFallbacks counts degraded lookups by reason
	MarketFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moment_tracker",
		Subsystem: "market",
		Name:      "fallbacks_total",
		Help:      "Market lookups served from the last-sale estimate, by reason.",
	}, []string{"reason"})

	// MalformedEvents counts skipped event payloads
	MalformedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moment_tracker",
		Subsystem: "extractor",
		Name:      "malformed_events_total",
		Help:      "Events skipped because their payload could not be read.",
	})

	// AnalyticsDuration observes portfolio analytics computation time
	AnalyticsDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "moment_tracker",
		Subsystem: "analytics",
		Name:      "duration_seconds",
		Help:      "Time spent computing portfolio analytics.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	// ReportRequests counts portfolio reports by data source
	ReportRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moment_tracker",
		Subsystem: "service",
		Name:      "reports_total",
		Help:      "Portfolio reports served by data source.",
	}, []string{"source"})
)

var registerOnce sync.Once

// MustRegisterMetrics registers all collectors with the default registry.
// Safe to call more than once.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ChainRequests,
			ChainRetries,
			MarketSnapshots,
			MarketFallbacks,
			MalformedEvents,
			AnalyticsDuration,
			ReportRequests,
		)
	})
}
