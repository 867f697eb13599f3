package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/user-directory/internal/metrics"
)

// unmatchedRoute labels requests that no route matched, so that arbitrary
// paths never become label values.
const unmatchedRoute = "unmatched"

// Metrics returns a middleware that reports every request to rec, labelled by
// chi's route pattern ("/api/users/{id}") rather than the raw path.
func Metrics(rec metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			// The pattern is only complete once routing has finished.
			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}

			rec.RecordRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
