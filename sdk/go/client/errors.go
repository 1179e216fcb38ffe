package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Client-specific errors
var (
	ErrInvalidConfig      = errors.New("invalid client configuration")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	ErrStoreUnavailable   = errors.New("object store unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	RequestID  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Field != "" {
		return fmt.Sprintf("viewcone: %d %s (field %s): %s", e.StatusCode, e.Code, e.Field, msg)
	}
	return fmt.Sprintf("viewcone: %d %s: %s", e.StatusCode, e.Code, msg)
}

// Unwrap maps the status to one of the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return ErrInvalidRequest
	case http.StatusUnprocessableEntity:
		return ErrDegenerateGeometry
	case http.StatusServiceUnavailable:
		return ErrStoreUnavailable
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrUnexpectedResponse
	}
}
