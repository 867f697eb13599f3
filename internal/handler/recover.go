package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer turns a panic in a downstream handler into the standard 500
// envelope. The panic value and stack go through writeError, so a crash
// leaves the same single diagnostic line as any other server fault.
//
// http.ErrAbortHandler is re-raised: net/http uses it to abort a response
// and suppresses its stack trace.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				writeError(logger, w, r, fmt.Errorf("panic: %v\n%s", rec, debug.Stack()))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
