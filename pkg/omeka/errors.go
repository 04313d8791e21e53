package omeka

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// FaultKind classifies a backend failure for the dispatcher's error mapper.
type FaultKind int

const (
	FaultInternal FaultKind = iota
	FaultPermission
	FaultNotFound
	FaultValidation
	FaultBadRequest
)

// Fault is a classified failure raised by the backend API. Message carries
// the backend's own wording so the mapper can surface it verbatim where the
// taxonomy calls for that.
type Fault struct {
	Kind    FaultKind
	Status  int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("omeka: %s (status %d)", f.Message, f.Status)
}

func kindFromStatus(status int) FaultKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return FaultPermission
	case http.StatusNotFound:
		return FaultNotFound
	case http.StatusUnprocessableEntity:
		return FaultValidation
	case http.StatusBadRequest:
		return FaultBadRequest
	default:
		return FaultInternal
	}
}

const maxErrorBodyBytes = 4 * 1024

// errorMessage pulls the human-readable message out of an API error body.
// The backend wraps errors as {"errors":{"error": "..."}} or uses field-keyed
// maps for validation problems; anything unrecognized falls back to the raw
// body text.
func errorMessage(status int, body []byte) string {
	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	var wrapped struct {
		Errors  json.RawMessage `json:"errors"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if wrapped.Message != "" {
			return wrapped.Message
		}
		if len(wrapped.Errors) > 0 {
			var single struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(wrapped.Errors, &single); err == nil && single.Error != "" {
				return single.Error
			}
			return string(wrapped.Errors)
		}
	}
	if len(body) > 0 {
		return string(body)
	}
	return fmt.Sprintf("backend returned status %d", status)
}
