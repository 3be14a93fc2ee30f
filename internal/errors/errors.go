// Package errors defines the error vocabulary shared by the dispatch layer
// and the HTTP transport. Protocol-level failures are limited to two kinds:
// a missing lookup and a validation failure. Everything else propagates to
// the connection handler as an ordinary error.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// ErrNotFound marks a primary-key lookup that matched no row. The store
// layer wraps its driver's not-found condition into this sentinel.
var ErrNotFound = errors.New("not found")

// ValidationError is a single field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates field-level failures for one payload.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Error()
}

// Messages renders the failures as wire-format error strings.
func (e ValidationErrors) Messages() []string {
	msgs := make([]string, 0, len(e))
	for _, v := range e {
		msgs = append(msgs, v.Error())
	}
	return msgs
}

// Invalid builds a single-field ValidationErrors value.
func Invalid(field, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message}}
}

// AsValidation reports whether err carries field-level validation
// failures, extracting them into target. Callers that shadow the standard
// errors package use this instead of errors.As.
func AsValidation(err error, target *ValidationErrors) bool {
	return errors.As(err, target)
}

// APIError represents a structured error response on the HTTP surface
// (routing, upgrade and health endpoints).
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details any) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for common scenarios
var (
	ErrInvalidRequest     = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrResourceNotFound   = New(http.StatusNotFound, "RESOURCE_NOT_FOUND", "Unknown resource")
	ErrWebSocketUpgrade   = New(http.StatusInternalServerError, "WEBSOCKET_UPGRADE_FAILED", "WebSocket upgrade failed")
	ErrInternalServer     = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
)

// UpgradeFailed creates an upgrade error carrying the underlying cause.
func UpgradeFailed(err error) *APIError {
	return NewWithDetails(http.StatusInternalServerError, "WEBSOCKET_UPGRADE_FAILED", "WebSocket upgrade failed", err.Error())
}

// UnknownResource creates a not-found error for an unregistered resource name.
func UnknownResource(name string) *APIError {
	return NewWithDetails(http.StatusNotFound, "RESOURCE_NOT_FOUND", fmt.Sprintf("%s is not a registered resource", name), name)
}
