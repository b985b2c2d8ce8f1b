// Package metrics holds the Prometheus collectors exported on /metrics.
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
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_http_requests_total",
			Help: "Total number of HTTP requests by route and status.",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// UpstreamRequests counts identity API calls. outcome is ok, not_found or error.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_identity_upstream_requests_total",
			Help: "Identity provider HTTP calls by provider, operation and outcome.",
		},
		[]string{"provider", "operation", "outcome"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_identity_upstream_duration_seconds",
			Help:    "Identity provider HTTP call latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_cache_hits_total",
			Help: "Identity cache hits by namespace.",
		},
		[]string{"namespace"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_cache_misses_total",
			Help: "Identity cache misses by namespace.",
		},
		[]string{"namespace"},
	)

	RatingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_ratings_created_total",
			Help: "Ratings persisted by category.",
		},
		[]string{"category"},
	)
)

// Middleware records request count and latency keyed by the chi route pattern
// so path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
