package middleware

import (
	"net/http"
	"time"

	"github.com/ayo6706/campus-courier/internal/observability"
	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels requests no route matched, so scanners probing random
// paths share one series.
const unmatchedRoute = "unmatched"

// MetricsMiddleware records request durations per route pattern, e.g.
// /v1/orders/{id}/claim rather than one series per order id.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := chiPattern(r)
		if route == "" {
			route = unmatchedRoute
		}
		observability.ObserveHTTP(r.Method, route, rw.status, time.Since(start))
	})
}

// routePattern is the matched pattern, or the raw path for log lines.
func routePattern(r *http.Request) string {
	if pattern := chiPattern(r); pattern != "" {
		return pattern
	}
	return r.URL.Path
}

func chiPattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
