package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/daybook-app/daybook/internal/auth"
	"github.com/daybook-app/daybook/internal/config"
	"github.com/daybook-app/daybook/internal/dav"
	"github.com/daybook-app/daybook/internal/http/ratelimit"
	"github.com/daybook-app/daybook/internal/metrics"
	"github.com/daybook-app/daybook/internal/store"
)

func init() {
	for _, method := range []string{
		"PROPFIND",
		"PROPPATCH",
		"MKCOL",
		"MKCALENDAR",
		"REPORT",
	} {
		chi.RegisterMethod(method)
	}
}

// NewRouter wires the CalDAV surface plus operational endpoints.
func NewRouter(cfg *config.Config, store *store.Store, authService *auth.Service, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Sync clients poll aggressively; the DAV limit is permissive.
	davRateLimiter := ratelimit.New(rate.Limit(20), 50, 5*time.Minute, cfg.TrustedProxies)

	// No RealIP middleware: rewriting RemoteAddr from X-Forwarded-For
	// before the limiter's trusted-proxy check would let untrusted peers
	// pick their own rate-limit bucket. The limiter resolves client IPs
	// itself.
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	davHandler := dav.NewHandler(cfg, store, logger)

	// Discovery: both GET and PROPFIND are redirected to the service root.
	r.Get("/.well-known/caldav", davHandler.WellKnown)
	r.MethodFunc("PROPFIND", "/.well-known/caldav", davHandler.WellKnown)
	r.MethodFunc("PROPFIND", "/", davHandler.WellKnown)

	r.Route(dav.BasePath, func(r chi.Router) {
		r.Use(davRateLimiter.Middleware())

		// Anything without a handler for its verb/resource combination
		// gets an explicit 501, never a silent 200.
		r.MethodNotAllowed(davHandler.NotImplemented)

		// Capability discovery happens before clients have credentials.
		r.MethodFunc("OPTIONS", "/*", davHandler.Options)

		// Scheduling inbox/outbox stubs answer every method with an
		// empty 200; Apple clients POST to the outbox.
		for _, pattern := range []string{
			"/schedule-inbox", "/schedule-inbox/",
			"/schedule-outbox", "/schedule-outbox/",
			"/calendars/{calendarID}/schedule-inbox",
			"/calendars/{calendarID}/schedule-outbox",
		} {
			r.Handle(pattern, http.HandlerFunc(davHandler.Schedule))
		}

		r.Group(func(r chi.Router) {
			r.Use(authService.RequireCalDAVAuth)
			r.MethodFunc("PROPFIND", "/*", davHandler.Propfind)
			r.MethodFunc("PROPPATCH", "/*", davHandler.Proppatch)
			r.MethodFunc("REPORT", "/*", davHandler.Report)
			r.MethodFunc("GET", "/*", davHandler.Get)
			r.MethodFunc("PUT", "/*", davHandler.Put)
			r.MethodFunc("DELETE", "/*", davHandler.Delete)
		})
	})

	return r
}

// requestLogger is the structured request log hook: one line per request,
// no header or body dumps.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
