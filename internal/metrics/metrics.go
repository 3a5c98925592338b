// Package metrics provides Prometheus instrumentation for the ledger engine.
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
	// AnalysesTotal counts analysis runs, partitioned by outcome.
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapfolio_analyses_total",
		Help: "Total number of analysis runs",
	}, []string{"status"})

	// AnalysisDuration tracks end-to-end analysis pipeline duration.
	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapfolio_analysis_duration_seconds",
		Help:    "Analysis pipeline duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	})

	// SwapsProcessed counts swaps folded into ledgers.
	SwapsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapfolio_swaps_processed_total",
		Help: "Total swaps folded into ledgers",
	})

	// DegenerateSwapsDropped counts swaps dropped for a zero asset leg.
	DegenerateSwapsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapfolio_degenerate_swaps_dropped_total",
		Help: "Swaps dropped because the asset leg netted to zero",
	})

	// FetchDuration tracks upstream fetch latency by data source.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapfolio_fetch_duration_seconds",
		Help:    "Upstream data fetch duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swapfolio_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
