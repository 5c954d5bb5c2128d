package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey string

const routeLabelKey ctxKey = "metrics_route"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daybook_caldav_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daybook_caldav_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "daybook_caldav_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "daybook_caldav_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})
)

// Middleware records request metrics and enriches the context with the route
// label for downstream instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routePattern(r)
			ctx := context.WithValue(r.Context(), routeLabelKey, route)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			statusCode := strconv.Itoa(status)
			duration := time.Since(start).Seconds()

			httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route, statusCode).Observe(duration)
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(r.Method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation,
// associating it with the current route when available.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, routeFromContext(ctx)).Observe(time.Since(start).Seconds())
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
