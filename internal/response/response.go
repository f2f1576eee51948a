// Package response writes the JSON bodies emitted by the binder.
package response

import (
	"encoding/json"
	"net/http"
)

// ContentTypeJSON is the content type of every response the binder writes.
const ContentTypeJSON = "application/json"

// ErrorDetail represents additional error information in an error response.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Target  string `json:"target,omitempty"`
	Message string `json:"message"`
}

// Error is the wire representation of a binding or authorization failure.
// Code carries the machine-readable reason code.
type Error struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Target  string        `json:"target,omitempty"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// WriteError writes a structured error response. The reason code goes into
// the error's code property so clients can dispatch on it.
func WriteError(w http.ResponseWriter, statusCode int, code, message, details string) error {
	bindErr := &Error{
		Code:    code,
		Message: message,
	}
	if details != "" {
		bindErr.Details = []ErrorDetail{{Message: details}}
	}
	return WriteStructuredError(w, statusCode, bindErr)
}

// WriteStructuredError writes an error response with the full error structure.
func WriteStructuredError(w http.ResponseWriter, statusCode int, bindErr *Error) error {
	return WriteJSON(w, statusCode, map[string]interface{}{"error": bindErr})
}

// WriteJSON writes an arbitrary JSON response body.
func WriteJSON(w http.ResponseWriter, statusCode int, body interface{}) error {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(body)
}
