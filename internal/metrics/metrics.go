// Package metrics provides Prometheus metrics for the matcher service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adbroll",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration records HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adbroll",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// VideosProcessedTotal counts matcher decisions by outcome (direct, fuzzy, ai, unmatched, failed)
	VideosProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adbroll",
			Subsystem: "matcher",
			Name:      "videos_processed_total",
			Help:      "Total number of videos processed by the matcher by outcome",
		},
		[]string{"outcome"},
	)

	// BatchDuration records the duration of batch runs by mode
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adbroll",
			Subsystem: "matcher",
			Name:      "batch_duration_seconds",
			Help:      "Duration of matcher batch runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		},
		[]string{"mode"},
	)

	// LeaseContentionTotal counts batch runs rejected because another run held the lease
	LeaseContentionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adbroll",
			Subsystem: "matcher",
			Name:      "lease_contention_total",
			Help:      "Total number of batch runs rejected by the matcher lease",
		},
	)

	// AICallsTotal counts AI fallback completion calls by result
	AICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adbroll",
			Subsystem: "ai",
			Name:      "calls_total",
			Help:      "Total number of AI fallback calls by result",
		},
		[]string{"result"},
	)

	// JobsTotal counts queue job transitions by kind and resulting status
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adbroll",
			Subsystem: "queue",
			Name:      "jobs_total",
			Help:      "Total number of match job transitions by kind and status",
		},
		[]string{"kind", "status"},
	)

	// ProductsImportedTotal counts catalog rows written by spreadsheet imports
	ProductsImportedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adbroll",
			Subsystem: "catalog",
			Name:      "products_imported_total",
			Help:      "Total number of products written by spreadsheet imports",
		},
	)
)

// Handler returns an HTTP handler exposing the registered metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
