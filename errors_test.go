package cmdbind

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestBindErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &BindError{
		StatusCode: http.StatusBadRequest,
		Reason:     ReasonInvalidJSON,
		Message:    "request body is not valid JSON",
		Err:        inner,
	}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
	if got := err.Error(); got != "request body is not valid JSON: boom" {
		t.Errorf("Error() = %q", got)
	}

	bare := &BindError{Message: "denied"}
	if got := bare.Error(); got != "denied" {
		t.Errorf("Error() = %q, want denied", got)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrEmptyBody, http.StatusBadRequest},
		{ErrInvalidJSON, http.StatusBadRequest},
		{ErrTypeMismatch, http.StatusBadRequest},
		{ErrMissingField, http.StatusBadRequest},
		{ErrBodyTooLarge, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("decode failed: %w", ErrInvalidJSON), http.StatusBadRequest},
		{&BindError{StatusCode: http.StatusUnprocessableEntity}, http.StatusUnprocessableEntity},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := MapErrorToHTTPStatus(tt.err); got != tt.want {
			t.Errorf("MapErrorToHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
