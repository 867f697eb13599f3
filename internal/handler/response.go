package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError, so all responses
// share one envelope:
//
//	success: {"success": true, ...payload}
//	failure: {"success": false, "error": "<client-safe message>"}
//
// writeError is the error translator: it is the only place where a domain
// error becomes an HTTP status, and the only place a failed request is
// logged with its real cause.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/user-directory/internal/apperror"
)

// Generic messages for failures whose real cause must not reach the client.
const (
	msgInternal = "Internal Server Error"
	msgNotFound = "User not found"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON sends data as JSON with the given status code.
// Headers must be set before WriteHeader; anything set afterwards is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// translate maps an error to its status code and client-facing message.
//
//	ErrValidation → 400, the joined validation messages
//	ErrNotFound   → 404, "User not found"
//	ErrConflict   → 409, the duplicate-key message
//	anything else → 500, "Internal Server Error"
func translate(err error) (int, string) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, msgInternal
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, appErr.Message
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, appErr.Message
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// writeError translates err, writes the error envelope and emits exactly one
// diagnostic line carrying the real error. Server faults log at error level,
// client mistakes at warn.
func writeError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, message := translate(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	logger.LogAttrs(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.String("message", message),
		slog.Int("status", status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("query", r.URL.RawQuery),
		slog.Bool("auth", r.Header.Get("Authorization") != ""),
		slog.String("request_id", chimiddleware.GetReqID(r.Context())),
	)

	writeJSON(w, status, ErrorResponse{Success: false, Error: message})
}
