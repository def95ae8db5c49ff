package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rhiza_build_info",
			Help: "Build information of rhizad",
		},
		[]string{"version"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rhiza_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rhiza_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Earnings
	SyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rhiza_earnings_sync_total",
			Help: "Earnings sync attempts by outcome",
		},
		[]string{"outcome"}, // "accepted", "skipped", "failed"
	)

	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rhiza_earnings_recoveries_total",
			Help: "Local earnings overwritten with the server value after a sync was not accepted",
		},
		[]string{"status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rhiza_active_sessions",
			Help: "Number of logged-in sessions",
		},
	)

	OfflineCreditedSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rhiza_offline_credited_seconds_total",
			Help: "Hidden seconds credited on reconciliation",
		},
	)

	// Backend RPC
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rhiza_backend_rpc_requests_total",
			Help: "Total number of backend RPC calls",
		},
		[]string{"procedure", "status"},
	)

	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rhiza_backend_rpc_request_duration_seconds",
			Help:    "Duration of backend RPC calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
		[]string{"procedure"},
	)

	// TON API
	TONRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rhiza_ton_requests_total",
			Help: "TON API lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)
)

// Middleware records HTTP metrics keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordSync counts one sync attempt.
func RecordSync(outcome string) {
	SyncTotal.WithLabelValues(outcome).Inc()
}

// RecordRecovery counts one recovery overwrite.
func RecordRecovery(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RecoveriesTotal.WithLabelValues(status).Inc()
}

// RecordRPC records one backend RPC call.
func RecordRPC(procedure string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	RPCRequestsTotal.WithLabelValues(procedure, status).Inc()
	RPCRequestDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}
