package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/viewcone/internal/core/storage"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/v1/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestWebSocketQuery(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), memoryService(t))
	conn := dial(t, wsURL(ts.URL))

	frame := `{"id":"q1",` + strings.TrimPrefix(frontQuery, "{")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	var reply wsResult
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "q1", reply.ID)
	require.Len(t, reply.VisibleObjects, 2)
	assert.Equal(t, "front", reply.VisibleObjects[0].ID)
	assert.Equal(t, "here", reply.VisibleObjects[1].ID)

	// Same results over HTTP carry the same fingerprint.
	resp := post(t, ts.URL, frontQuery, nil)
	assert.Equal(t, resp.Header.Get("ETag"), reply.ETag)
}

func TestWebSocketErrorKeepsConnection(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), memoryService(t))
	conn := dial(t, wsURL(ts.URL))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"bad","viewerPosition":{"x":0,"y":0,"z":0},"viewerDirection":{"x":0,"y":0,"z":0},"fieldOfViewAngle":90}`)))
	var failed wsError
	require.NoError(t, conn.ReadJSON(&failed))
	assert.Equal(t, "bad", failed.ID)
	assert.Equal(t, CodeInvalidInput, failed.Error.Code)
	assert.Equal(t, "viewerDirection", failed.Error.Field)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.ReadJSON(&failed))
	assert.Equal(t, CodeBadRequest, failed.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frontQuery)))
	var reply wsResult
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Len(t, reply.VisibleObjects, 2)
}

func TestWebSocketStoreUnavailable(t *testing.T) {
	q := &fakeQuerier{err: &storage.UnavailableError{Op: "open session", Err: storage.ErrClosed}}
	_, ts := newTestServer(t, testConfig(), q)
	conn := dial(t, wsURL(ts.URL))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frontQuery)))
	var failed wsError
	require.NoError(t, conn.ReadJSON(&failed))
	assert.Equal(t, CodeStoreUnavailable, failed.Error.Code)
}

func TestWebSocketAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Token = "secret"
	_, ts := newTestServer(t, cfg, &fakeQuerier{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, _, err = websocket.DefaultDialer.Dial(wsURL(ts.URL)+"?token=wrong", nil)
	require.Error(t, err)

	conn := dial(t, wsURL(ts.URL)+"?token=secret")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frontQuery)))
	var reply wsResult
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Empty(t, reply.VisibleObjects)
}

func TestWebSocketRateLimitedPerFrame(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 0.01
	cfg.RateLimit.Burst = 2
	q := &fakeQuerier{}
	_, ts := newTestServer(t, cfg, q)

	// The upgrade request spends the first token.
	conn := dial(t, wsURL(ts.URL))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frontQuery)))
	var reply wsResult
	require.NoError(t, conn.ReadJSON(&reply))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frontQuery)))
	var failed wsError
	require.NoError(t, conn.ReadJSON(&failed))
	assert.Equal(t, CodeRateLimited, failed.Error.Code)
	assert.Equal(t, int64(1), q.calls.Load())
}

func TestWebSocketDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Server.WebSocket.Enabled = false
	_, ts := newTestServer(t, cfg, &fakeQuerier{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCloseWebSockets(t *testing.T) {
	srv, ts := newTestServer(t, testConfig(), &fakeQuerier{})
	conn := dial(t, wsURL(ts.URL))

	// Round trip once so the server has registered the connection.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frontQuery)))
	var reply wsResult
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, int64(1), srv.connections.Load())

	srv.closeWebSockets()

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.Eventually(t, func() bool { return srv.connections.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
}
