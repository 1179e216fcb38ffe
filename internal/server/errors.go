package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/zeusync/viewcone/internal/core/storage"
	"github.com/zeusync/viewcone/internal/core/visibility"
)

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrUnauthorized         = errors.New("missing or invalid token")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrBadRequest           = errors.New("malformed request")
)

// Error codes reported in the error body.
const (
	CodeInvalidInput       = "invalid_input"
	CodeDegenerateGeometry = "degenerate_geometry"
	CodeStoreUnavailable   = "store_unavailable"
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeRateLimited        = "rate_limited"
	CodeCanceled           = "canceled"
	CodeInternal           = "internal"
)

// statusClientClosedRequest is nginx's status for a request the client
// abandoned before the answer was ready.
const statusClientClosedRequest = 499

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// classify maps an error to its HTTP status and body. Input problems are
// client errors; store problems are transient service errors.
func classify(err error) (int, APIError) {
	var verr *visibility.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, APIError{Code: CodeInvalidInput, Message: verr.Error(), Field: verr.Field}
	case errors.Is(err, visibility.ErrInvalidInput):
		return http.StatusBadRequest, APIError{Code: CodeInvalidInput, Message: err.Error()}
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, APIError{Code: CodeBadRequest, Message: err.Error()}
	case errors.Is(err, visibility.ErrDegenerateGeometry):
		return http.StatusUnprocessableEntity, APIError{Code: CodeDegenerateGeometry, Message: err.Error()}
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable, APIError{Code: CodeStoreUnavailable, Message: "object store unavailable, retry later"}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, APIError{Code: CodeCanceled, Message: "request canceled"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, APIError{Code: CodeRateLimited, Message: err.Error()}
	default:
		return http.StatusInternalServerError, APIError{Code: CodeInternal, Message: "internal error"}
	}
}
