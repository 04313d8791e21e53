package types

import (
	"encoding/json"
	"net/http"
)

// ──────────────────────────────────────────────────────────────────────────────
// Result — the uniform envelope returned for every dispatch
// ──────────────────────────────────────────────────────────────────────────────

// Result is the response envelope: exactly one of Success/Error is set.
// HTTPStatus is transport metadata and never serializes.
type Result struct {
	Success bool   `json:"success,omitempty"`
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`

	HTTPStatus int `json:"-"`
}

// OK wraps a successful payload.
func OK(data any) *Result {
	return &Result{Success: true, Data: data, HTTPStatus: http.StatusOK}
}

// Fail converts a classified APIError into the wire envelope.
func Fail(e *APIError) *Result {
	return &Result{Error: true, Message: e.Message, Details: e.Details, HTTPStatus: e.HTTPCode}
}

// WriteJSON writes the envelope with its transport status.
func (r *Result) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.HTTPStatus)
	_ = json.NewEncoder(w).Encode(r)
}

// ──────────────────────────────────────────────────────────────────────────────
// Operation payloads
// ──────────────────────────────────────────────────────────────────────────────

// SearchResult carries a page of representations plus the backend's total.
type SearchResult struct {
	Items        []any `json:"items"`
	TotalResults int   `json:"totalResults"`
}

// DeleteResult confirms a single deletion.
type DeleteResult struct {
	Deleted bool `json:"deleted"`
	ID      ID   `json:"id"`
}

// BatchItemError records one failed batch_create element by position.
type BatchItemError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BatchIDError records one failed batch_delete id.
type BatchIDError struct {
	ID      ID     `json:"id"`
	Message string `json:"message"`
}

// BatchCreateResult aggregates per-item outcomes of a batch_create. The
// counts always satisfy CreatedCount+FailedCount == len(input); Success is
// true only when every item succeeded.
type BatchCreateResult struct {
	Success      bool             `json:"success"`
	CreatedCount int              `json:"createdCount"`
	FailedCount  int              `json:"failedCount"`
	Items        []any            `json:"items"`
	Errors       []BatchItemError `json:"errors"`
}

// BatchDeleteResult aggregates per-id outcomes of a batch_delete under the
// same counting invariant.
type BatchDeleteResult struct {
	Success      bool           `json:"success"`
	DeletedCount int            `json:"deletedCount"`
	FailedCount  int            `json:"failedCount"`
	DeletedIDs   []ID           `json:"deletedIds"`
	Errors       []BatchIDError `json:"errors"`
}
