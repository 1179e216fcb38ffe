package server

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/viewcone/internal/core/observability/log"
	"github.com/zeusync/viewcone/internal/core/visibility"
)

const controlWriteWait = time.Second

// wsRequest is one query frame. ID is echoed back so clients can pipeline.
type wsRequest struct {
	ID string `json:"id,omitempty"`
	visibleObjectsRequest
}

type wsResult struct {
	ID             string              `json:"id,omitempty"`
	VisibleObjects []visibility.Result `json:"visibleObjects"`
	ETag           string              `json:"etag"`
}

type wsError struct {
	ID    string   `json:"id,omitempty"`
	Error APIError `json:"error"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithContext(r.Context()).Warn("Websocket upgrade failed", log.Error(err))
		return
	}

	s.sockets.Store(conn, struct{}{})
	open := s.connections.Add(1)
	logger := s.logger.WithContext(r.Context()).With(log.String("remote_addr", conn.RemoteAddr().String()))
	logger.Info("Websocket connected", log.Int64("open_websockets", open))

	defer func() {
		s.sockets.Delete(conn)
		s.connections.Add(-1)
		_ = conn.Close()
		logger.Info("Websocket disconnected")
	}()

	s.serveSocket(r.Context(), conn, clientKey(r), logger)
}

func (s *Server) serveSocket(ctx context.Context, conn *websocket.Conn, client string, logger log.Log) {
	cfg := s.config.Server.WebSocket
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.PingInterval > 0 && cfg.PongTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		})
		go s.pingLoop(ctx, conn, cfg.PingInterval)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("Websocket read failed", log.Error(err))
			}
			return
		}
		if cfg.PongTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		}

		reply := s.answerFrame(ctx, client, data, logger)

		if s.config.Server.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.config.Server.WriteTimeout))
		}
		if err := conn.WriteJSON(reply); err != nil {
			logger.Debug("Websocket write failed", log.Error(err))
			return
		}
	}
}

// answerFrame runs one query frame and builds the reply frame.
func (s *Server) answerFrame(ctx context.Context, client string, data []byte, logger log.Log) any {
	var req wsRequest
	fail := func(err error) any {
		status, apiErr := classify(err)
		if status >= 500 {
			logger.Error("Websocket query failed", log.Int("status", status), log.Error(err))
		}
		return wsError{ID: req.ID, Error: apiErr}
	}

	if s.limiter != nil && !s.limiter.allow(client) {
		return fail(ErrRateLimited)
	}
	if err := decodeJSON(bytes.NewReader(data), &req); err != nil {
		return fail(err)
	}
	viewer, err := req.viewer()
	if err != nil {
		return fail(err)
	}

	results, err := s.service.VisibleObjects(ctx, viewer)
	if err != nil {
		return fail(err)
	}
	body, err := encodeResults(results)
	if err != nil {
		return fail(err)
	}
	if results == nil {
		results = []visibility.Result{}
	}
	return wsResult{ID: req.ID, VisibleObjects: results, ETag: etag(body)}
}

func (s *Server) pingLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// closeWebSockets tells every open client the server is going away. Hijacked
// connections are not closed by http.Server.Shutdown.
func (s *Server) closeWebSockets() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	s.sockets.Range(func(key, _ any) bool {
		conn := key.(*websocket.Conn)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
		_ = conn.Close()
		return true
	})
}
