package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/viewcone/internal/core/geometry"
	"github.com/zeusync/viewcone/internal/core/observability/log"
	"github.com/zeusync/viewcone/internal/core/visibility"
)

// visibleObjectsRequest mirrors the visibleObjects query arguments. Pointers
// tell a missing argument apart from a zero value.
type visibleObjectsRequest struct {
	ViewerPosition   *geometry.Vector3 `json:"viewerPosition"`
	ViewerDirection  *geometry.Vector3 `json:"viewerDirection"`
	FieldOfViewAngle *float64          `json:"fieldOfViewAngle"`
}

func (req visibleObjectsRequest) viewer() (visibility.ViewerState, error) {
	switch {
	case req.ViewerPosition == nil:
		return visibility.ViewerState{}, &visibility.ValidationError{Field: "viewerPosition", Reason: "is required"}
	case req.ViewerDirection == nil:
		return visibility.ViewerState{}, &visibility.ValidationError{Field: "viewerDirection", Reason: "is required"}
	case req.FieldOfViewAngle == nil:
		return visibility.ViewerState{}, &visibility.ValidationError{Field: "fieldOfViewAngle", Reason: "is required"}
	}
	return visibility.ViewerState{
		Position:         *req.ViewerPosition,
		Direction:        *req.ViewerDirection,
		FieldOfViewAngle: *req.FieldOfViewAngle,
	}, nil
}

type visibleObjectsResponse struct {
	VisibleObjects []visibility.Result `json:"visibleObjects"`
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/visible-objects", s.handleVisibleObjects)
	api.HandleFunc("GET /v1/stats", s.handleStats)
	if s.config.Server.WebSocket.Enabled {
		api.HandleFunc("GET /v1/ws", s.handleWebSocket)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("/v1/", chain(api, s.withAuth, s.withRateLimit))

	return chain(mux, withRequestID, s.withLogging, s.withAltSvc)
}

func (s *Server) handleVisibleObjects(w http.ResponseWriter, r *http.Request) {
	var req visibleObjectsRequest
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes), &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	viewer, err := req.viewer()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results, err := s.service.VisibleObjects(r.Context(), viewer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	body, err := encodeResults(results)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(body))
	w.Header().Set("X-Result-Count", strconv.Itoa(len(results)))
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.service.Stats()
	body, _ := json.Marshal(struct {
		Service        any   `json:"service"`
		OpenWebSockets int64 `json:"openWebSockets"`
		TrackedClients int   `json:"trackedClients"`
	}{
		Service:        stats,
		OpenWebSockets: s.connections.Load(),
		TrackedClients: s.trackedClients(),
	})
	writeRaw(w, http.StatusOK, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		s.logger.WithContext(r.Context()).Warn("Health check failed", log.Error(err))
		w.Header().Set("Retry-After", s.retryAfterSeconds())
		writeRaw(w, http.StatusServiceUnavailable, []byte(`{"status":"unavailable"}`))
		return
	}
	writeRaw(w, http.StatusOK, []byte(`{"status":"ok"}`))
}

func (s *Server) withAltSvc(next http.Handler) http.Handler {
	if s.http3Server == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ProtoMajor < 3 {
			_ = s.http3Server.SetQUICHeaders(w.Header())
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) trackedClients() int {
	if s.limiter == nil {
		return 0
	}
	return s.limiter.size()
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := classify(err)
	logger := s.logger.WithContext(r.Context())
	switch {
	case status >= 500:
		logger.Error("Request failed", log.Int("status", status), log.Error(err))
	default:
		logger.Debug("Request rejected", log.Int("status", status), log.Error(err))
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", s.retryAfterSeconds())
	}
	body, _ := json.Marshal(errorResponse{Error: apiErr})
	writeRaw(w, status, body)
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: body exceeds %d bytes", ErrBadRequest, maxErr.Limit)
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", ErrBadRequest)
	}
	return nil
}

func encodeResults(results []visibility.Result) ([]byte, error) {
	if results == nil {
		results = []visibility.Result{}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(visibleObjectsResponse{VisibleObjects: results}); err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	return buf.Bytes(), nil
}

// etag fingerprints a response body so clients can spot unchanged results.
func etag(body []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
