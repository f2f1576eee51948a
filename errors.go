package cmdbind

import (
	"errors"
	"net/http"

	"github.com/nlstn/go-cmdbind/internal/auth"
	"github.com/nlstn/go-cmdbind/internal/decode"
)

// Sentinel errors for common binding failures. These can be used with
// errors.Is() when decoding outside the HTTP pipeline.
var (
	// ErrEmptyBody indicates the request body was empty or whitespace.
	ErrEmptyBody = decode.ErrEmptyBody

	// ErrInvalidJSON indicates the request body was not valid JSON.
	ErrInvalidJSON = decode.ErrInvalidJSON

	// ErrTypeMismatch indicates the body did not match a registered command.
	ErrTypeMismatch = decode.ErrTypeMismatch

	// ErrMissingField indicates a required command field was absent.
	ErrMissingField = decode.ErrMissingField

	// ErrBodyTooLarge indicates the request body exceeded the configured cap.
	ErrBodyTooLarge = decode.ErrBodyTooLarge
)

// Reason is the machine-readable code reported when a bind is refused.
type Reason = auth.Reason

// Reason values reported in error responses and audit records.
const (
	ReasonNoBody       = auth.ReasonNoBody
	ReasonInvalidJSON  = auth.ReasonInvalidJSON
	ReasonTypeMismatch = auth.ReasonTypeMismatch
	ReasonMissingField = auth.ReasonMissingField
	ReasonBodyTooLarge = auth.ReasonBodyTooLarge
	ReasonRole         = auth.ReasonRole
	ReasonClaim        = auth.ReasonClaim
	ReasonDenied       = auth.ReasonDenied
	ReasonRejected     = auth.ReasonRejected
)

// BindError provides a structured error that includes an HTTP status code,
// reason code, and descriptive message. BeforeAuthorize hooks can return it
// to control the status and reason of the rejection response; a zero
// StatusCode falls back to 422 and an empty Reason to ReasonRejected.
type BindError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Reason is the machine-readable reason code.
	Reason Reason

	// Message is a human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping for errors.Is() and errors.As().
func (e *BindError) Unwrap() error {
	return e.Err
}

// BindStatus reports the status code and reason the bind pipeline should use
// when a hook returns this error.
func (e *BindError) BindStatus() (int, Reason) {
	return e.StatusCode, e.Reason
}

// MapErrorToHTTPStatus returns the appropriate HTTP status code for common
// binding errors. This helper can be used when decoding outside the HTTP
// pipeline.
func MapErrorToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var bindErr *BindError
	if errors.As(err, &bindErr) {
		return bindErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrEmptyBody),
		errors.Is(err, ErrInvalidJSON),
		errors.Is(err, ErrTypeMismatch),
		errors.Is(err, ErrMissingField):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
