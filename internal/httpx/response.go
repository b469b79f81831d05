// Package httpx writes the JSON envelopes every handler in this service
// shares: plain payloads on success, and an {error, details} document on
// failure whose error field carries a stable snake_case code such as
// "validation_failed", "duplicate_invoice" or "placement_overlap". Clients
// branch on the code; details carries whatever the handler can add (field
// errors, the conflicting record).
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON marshals payload and writes it with the given status. Marshalling
// happens before the header goes out so an encode failure can still become a
// clean 500 instead of a truncated body.
func JSON(w http.ResponseWriter, status int, payload any) {
	body := []byte("null")
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// A write failure here means the client went away; there is no channel
	// left to report it on.
	_, _ = w.Write(body)
}

// JSONError writes the failure envelope. code should be one of the service's
// snake_case error codes, not prose.
func JSONError(w http.ResponseWriter, status int, code string, details any) {
	JSON(w, status, ErrorResponse{Error: code, Details: details})
}
