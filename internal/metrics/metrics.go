// Package metrics exposes Prometheus collectors for the generation gateway.
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
	generationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductio_generations_total",
			Help: "Total number of engine invocations, labeled by layer and outcome.",
		},
		[]string{"layer", "outcome"},
	)

	generationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conductio_generation_duration_seconds",
			Help:    "Histogram of engine invocation latencies, labeled by layer.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 240},
		},
		[]string{"layer"},
	)

	activeGenerations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductio_active_generations",
			Help: "Number of engine processes currently running.",
		},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductio_jobs_total",
			Help: "Total number of async jobs, labeled by status.",
		},
		[]string{"status"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conductio_active_workers",
			Help: "Number of workers currently processing a job.",
		},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conductio_rate_limited_total",
			Help: "Total number of requests rejected by the per-client rate limiter, labeled by route.",
		},
		[]string{"route"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120, 300},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGeneration records one engine invocation.
func ObserveGeneration(layer, outcome string, duration time.Duration) {
	generationsTotal.WithLabelValues(layer, outcome).Inc()
	generationDurationSeconds.WithLabelValues(layer).Observe(duration.Seconds())
}

// IncActiveGenerations increments the running engine process gauge.
func IncActiveGenerations() {
	activeGenerations.Inc()
}

// DecActiveGenerations decrements the running engine process gauge.
func DecActiveGenerations() {
	activeGenerations.Dec()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimited counts a request rejected by the rate limiter.
func ObserveRateLimited(route string) {
	rateLimitedTotal.WithLabelValues(route).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
