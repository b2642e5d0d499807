// Package metrics provides Prometheus instrumentation for the WagerPals
// backend.
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
	// BetsPlaced counts bets placed, partitioned by lateness.
	BetsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagerpals_bets_placed_total",
		Help: "Total number of bets placed",
	}, []string{"late"})

	// Resolutions counts resolve/unresolve operations.
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagerpals_resolutions_total",
		Help: "Total resolve and unresolve operations",
	}, []string{"action"})

	// StakeLimitRejections counts bets rejected by the stake limiter.
	StakeLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wagerpals_stake_limit_rejections_total",
		Help: "Bets rejected by the stake limiter",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wagerpals_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// PushDeliveries counts Web Push delivery attempts by result.
	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagerpals_push_deliveries_total",
		Help: "Web Push delivery attempts",
	}, []string{"result"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wagerpals_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wagerpals_http_request_duration_seconds",
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

		// Use the raw path for the label; the API shape keeps cardinality low.
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
