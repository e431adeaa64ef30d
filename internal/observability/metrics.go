// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the update pass.
type Metrics struct {
	// Target metrics
	TargetsProcessed prometheus.Counter
	TargetsSucceeded prometheus.Counter
	TargetsFailed    prometheus.Counter
	BarsUpserted     prometheus.Counter

	// Resolver metrics
	TickersResolved  prometheus.Counter
	TickersKept      prometheus.Counter
	ResolutionMisses prometheus.Counter
	CandidatesProbed prometheus.Counter

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  prometheus.Histogram
}

// New creates a Metrics instance with all metrics registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "equity_price_pipeline"
	}

	return &Metrics{
		TargetsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "targets_processed_total",
			Help:      "Total number of equity targets processed",
		}),
		TargetsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "targets_succeeded_total",
			Help:      "Total number of targets that completed the pass",
		}),
		TargetsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "targets_failed_total",
			Help:      "Total number of targets recorded as failed attempts",
		}),
		BarsUpserted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "bars_upserted_total",
			Help:      "Total number of price bars written (inserted or updated)",
		}),
		TickersResolved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "tickers_resolved_total",
			Help:      "Total number of tickers discovered via candidate probing",
		}),
		TickersKept: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "tickers_kept_total",
			Help:      "Total number of previously resolved tickers revalidated",
		}),
		ResolutionMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolution_misses_total",
			Help:      "Total number of symbols with no qualifying ticker",
		}),
		CandidatesProbed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "candidates_probed_total",
			Help:      "Total number of suffix candidates probed",
		}),
		ProviderRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of provider history requests by outcome",
		}, []string{"outcome"}),
		ProviderLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_latency_seconds",
			Help:      "Provider history request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
