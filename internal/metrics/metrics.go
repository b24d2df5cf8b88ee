// Package metrics exposes Prometheus collectors for the stockboard service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	refreshItemsTotal          *prometheus.CounterVec
	refreshRowsWrittenTotal    prometheus.Counter
	refreshBatchesTotal        prometheus.Counter
	refreshRunsTotal           *prometheus.CounterVec
	refreshRunDurationSeconds  *prometheus.HistogramVec
	refreshActiveRuns          prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		refreshItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockboard_refresh_items_total",
				Help: "Total symbols refreshed, labeled by market and outcome class.",
			},
			[]string{"market", "outcome"},
		)

		refreshRowsWrittenTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stockboard_refresh_rows_written_total",
				Help: "Total upstream price rows written across all runs.",
			},
		)

		refreshBatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "stockboard_refresh_batches_total",
				Help: "Total batches completed.",
			},
		)

		refreshRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockboard_refresh_runs_total",
				Help: "Total refresh runs, labeled by terminal state.",
			},
			[]string{"state"},
		)

		refreshRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockboard_refresh_run_duration_seconds",
				Help:    "Wall time per completed run, labeled by terminal state.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"state"},
		)

		refreshActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockboard_refresh_active_runs",
				Help: "Number of refresh runs currently executing.",
			},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem counts one refreshed symbol.
func ObserveItem(market, outcome string, rowsWritten int) {
	if market == "" {
		market = "unknown"
	}
	refreshItemsTotal.WithLabelValues(market, outcome).Inc()
	if rowsWritten > 0 {
		refreshRowsWrittenTotal.Add(float64(rowsWritten))
	}
}

// ObserveBatch counts one completed batch.
func ObserveBatch() {
	refreshBatchesTotal.Inc()
}

// ObserveRunStart tracks an active run.
func ObserveRunStart() {
	refreshActiveRuns.Inc()
}

// ObserveRunEnd records a terminal run state and its duration.
func ObserveRunEnd(state string, elapsed time.Duration) {
	refreshActiveRuns.Dec()
	refreshRunsTotal.WithLabelValues(state).Inc()
	if elapsed > 0 {
		refreshRunDurationSeconds.WithLabelValues(state).Observe(elapsed.Seconds())
	}
}

// ObserveRunAborted records a run that failed validation or resolution
// before entering the running state.
func ObserveRunAborted() {
	refreshRunsTotal.WithLabelValues("failed").Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
