// Package metrics provides Prometheus metrics for the mimic host.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution metrics
	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_executions_total",
			Help: "Total hosted handler executions by outcome",
		},
		[]string{"outcome"},
	)

	executionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mimic_execution_duration_seconds",
			Help:    "Hosted handler execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	capturedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mimic_captured_output_bytes_total",
			Help: "Total bytes written by hosted handlers",
		},
	)

	// ActiveCaptures is the number of output captures not yet released
	ActiveCaptures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mimic_captures_active",
			Help: "Number of output captures currently held",
		},
	)

	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mimic_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Tree cache metrics
	treeCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_tree_cache_lookups_total",
			Help: "Total cached file content lookups",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordExecution records a finished execution. outcome is "ok" or "fault".
func RecordExecution(outcome string, outputBytes int, duration time.Duration) {
	executionsTotal.WithLabelValues(outcome).Inc()
	executionDuration.Observe(duration.Seconds())
	capturedBytes.Add(float64(outputBytes))
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCacheLookup records a tree cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		treeCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	treeCacheTotal.WithLabelValues("miss").Inc()
}
