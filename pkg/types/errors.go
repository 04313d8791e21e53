package types

import (
	"fmt"
	"net/http"
)

// ──────────────────────────────────────────────────────────────────────────────
// Validation error (returned during envelope parsing)
// ──────────────────────────────────────────────────────────────────────────────

type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// ──────────────────────────────────────────────────────────────────────────────
// APIError — classified failure carried between layers
// ──────────────────────────────────────────────────────────────────────────────

// APIError is the internal form of every failure the gateway can report.
// The wire form is a Result (see result.go); HTTPCode never serializes.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   string `json:"details,omitempty"`
	HTTPCode  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ──────────────────────────────────────────────────────────────────────────────
// Common error constructors
// ──────────────────────────────────────────────────────────────────────────────

// MsgInvalidToken is the exact message the anti-forgery gate returns.
// Clients match on it to tell a stale session apart from a backend
// permission failure, which also arrives as a 403.
const MsgInvalidToken = "invalid or missing anti-forgery token"

func ErrMethodNotAllowed() *APIError {
	return &APIError{Code: "METHOD_NOT_ALLOWED", Message: "method not allowed", HTTPCode: http.StatusMethodNotAllowed}
}

func ErrForbidden(msg string) *APIError {
	return &APIError{Code: "FORBIDDEN", Message: msg, HTTPCode: http.StatusForbidden}
}

func ErrBadRequest(msg string) *APIError {
	return &APIError{Code: "BAD_REQUEST", Message: msg, HTTPCode: http.StatusBadRequest}
}

func ErrUnauthorized(msg string) *APIError {
	return &APIError{Code: "UNAUTHORIZED", Message: msg, HTTPCode: http.StatusUnauthorized}
}

// ErrPermissionDenied reports a backend permission failure. The message is
// deliberately generic; the backend's own wording travels in Details.
func ErrPermissionDenied(detail string) *APIError {
	return &APIError{Code: "PERMISSION_DENIED", Message: "Permission denied.", Details: detail, HTTPCode: http.StatusForbidden}
}

// ErrNotFound reports a missing resource. Generic message, raw detail.
func ErrNotFound(detail string) *APIError {
	return &APIError{Code: "NOT_FOUND", Message: "Not found.", Details: detail, HTTPCode: http.StatusNotFound}
}

// ErrValidation carries the backend's validation message verbatim.
func ErrValidation(msg string) *APIError {
	return &APIError{Code: "VALIDATION_FAILED", Message: msg, HTTPCode: http.StatusUnprocessableEntity}
}

func ErrInternal(msg string) *APIError {
	return &APIError{Code: "INTERNAL_ERROR", Message: msg, Retryable: true, HTTPCode: http.StatusInternalServerError}
}

func ErrRateLimited() *APIError {
	return &APIError{Code: "RATE_LIMITED", Message: "too many requests", Retryable: true, HTTPCode: http.StatusTooManyRequests}
}
