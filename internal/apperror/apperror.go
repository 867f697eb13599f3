// Package apperror defines the domain errors shared by every layer.
//
// Layers below the handler never pick HTTP status codes. They return one of
// the sentinels below (wrapped in an *AppError when a client-safe message is
// available) and the handler maps the sentinel to a status.
package apperror

import (
	"errors"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
)

type AppError struct {
	Err     error    // sentinel
	Message string   // Client-safe message
	Field   string   // Optional: field causing the error
	Details []string // Optional: every individual violation, in report order
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports that id does not resolve to a live record.
// The message is fixed so lookups never echo caller input back.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: resource + " not found",
		Field:   id,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: ErrValidation.Error() + ": " + message,
		Field:   field,
		Details: []string{message},
	}
}

// Invalid collects several violations into one failure. The message lists
// them in order, joined by ", ", after the "Validation Error: " prefix.
func Invalid(messages []string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: ErrValidation.Error() + ": " + strings.Join(messages, ", "),
		Details: messages,
	}
}

// Duplicate reports a uniqueness violation detected by the store.
func Duplicate(resource, field string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: resource + " with this " + field + " already exists",
		Field:   field,
	}
}
