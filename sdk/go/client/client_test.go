package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	baseURL   = "https://viewcone.test"
	queryURL  = baseURL + "/v1/visible-objects"
	healthURL = baseURL + "/healthz"
)

var frontViewer = Viewer{
	Direction:        Vector3{X: 1},
	FieldOfViewAngle: 90,
}

func newTestClient(t *testing.T, token string) *Client {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.BaseURL = baseURL
	cfg.Token = token
	cfg.RetryMax = 2
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 2 * time.Millisecond
	c, err := NewClient(cfg)
	require.NoError(t, err)
	httpmock.ActivateNonDefault(c.HTTPClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func TestVisibleObjects(t *testing.T) {
	t.Run("should decode results and headers", func(t *testing.T) {
		// given
		c := newTestClient(t, "secret")
		httpmock.RegisterResponder("POST", queryURL, func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			var viewer Viewer
			if err := json.NewDecoder(req.Body).Decode(&viewer); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			assert.Equal(t, frontViewer, viewer)

			resp := httpmock.NewStringResponse(http.StatusOK, `{"visibleObjects":[
				{"id":"front","translatedPosition":{"x":1,"y":0,"z":0},"angleFromViewer":0,"distanceFromViewer":1}]}`)
			resp.Header.Set("ETag", `"abc"`)
			resp.Header.Set("X-Request-ID", "req-1")
			return resp, nil
		})
		// when
		got, err := c.VisibleObjects(context.Background(), frontViewer)
		// then
		require.NoError(t, err)
		require.Len(t, got.Objects, 1)
		assert.Equal(t, "front", got.Objects[0].ID)
		assert.Equal(t, Vector3{X: 1}, got.Objects[0].TranslatedPosition)
		assert.Equal(t, 1.0, got.Objects[0].DistanceFromViewer)
		assert.Equal(t, `"abc"`, got.ETag)
		assert.Equal(t, "req-1", got.RequestID)
		assert.Equal(t, 1, httpmock.GetTotalCallCount())
	})

	t.Run("should return empty slice when nothing is visible", func(t *testing.T) {
		// given
		c := newTestClient(t, "")
		httpmock.RegisterResponder("POST", queryURL, httpmock.NewStringResponder(http.StatusOK, `{"visibleObjects":[]}`))
		// when
		got, err := c.VisibleObjects(context.Background(), frontViewer)
		// then
		require.NoError(t, err)
		assert.NotNil(t, got.Objects)
		assert.Empty(t, got.Objects)
	})

	t.Run("should not retry invalid input", func(t *testing.T) {
		// given
		c := newTestClient(t, "")
		httpmock.RegisterResponder("POST", queryURL, httpmock.NewStringResponder(http.StatusBadRequest,
			`{"error":{"code":"invalid_input","message":"viewerDirection: must not be a zero-length vector","field":"viewerDirection"}}`))
		// when
		_, err := c.VisibleObjects(context.Background(), Viewer{FieldOfViewAngle: 90})
		// then
		require.ErrorIs(t, err, ErrInvalidRequest)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "invalid_input", apiErr.Code)
		assert.Equal(t, "viewerDirection", apiErr.Field)
		assert.Equal(t, 1, httpmock.GetTotalCallCount())
	})

	t.Run("should map degenerate geometry", func(t *testing.T) {
		// given
		c := newTestClient(t, "")
		httpmock.RegisterResponder("POST", queryURL, httpmock.NewStringResponder(http.StatusUnprocessableEntity,
			`{"error":{"code":"degenerate_geometry","message":"object \"here\" coincides with the viewer"}}`))
		// when
		_, err := c.VisibleObjects(context.Background(), frontViewer)
		// then
		assert.ErrorIs(t, err, ErrDegenerateGeometry)
		assert.NotErrorIs(t, err, ErrInvalidRequest)
		assert.Equal(t, 1, httpmock.GetTotalCallCount())
	})

	t.Run("should retry on 503 status", func(t *testing.T) {
		// given
		c := newTestClient(t, "")
		httpmock.RegisterResponder("POST", queryURL, httpmock.NewStringResponder(http.StatusServiceUnavailable,
			`{"error":{"code":"store_unavailable","message":"object store unavailable, retry later"}}`))
		// when
		_, err := c.VisibleObjects(context.Background(), frontViewer)
		// then
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Equal(t, 3, httpmock.GetTotalCallCount())
	})

	t.Run("should recover after a transient failure", func(t *testing.T) {
		// given
		c := newTestClient(t, "")
		calls := 0
		httpmock.RegisterResponder("POST", queryURL, func(req *http.Request) (*http.Response, error) {
			calls++
			_, _ = io.Copy(io.Discard, req.Body)
			if calls == 1 {
				return httpmock.NewStringResponse(http.StatusServiceUnavailable, `{}`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"visibleObjects":[]}`), nil
		})
		// when
		got, err := c.VisibleObjects(context.Background(), frontViewer)
		// then
		require.NoError(t, err)
		assert.Empty(t, got.Objects)
		assert.Equal(t, 2, httpmock.GetTotalCallCount())
	})

	t.Run("should map unauthorized", func(t *testing.T) {
		// given
		c := newTestClient(t, "wrong")
		httpmock.RegisterResponder("POST", queryURL, httpmock.NewStringResponder(http.StatusUnauthorized,
			`{"error":{"code":"unauthorized","message":"missing or invalid token"}}`))
		// when
		_, err := c.VisibleObjects(context.Background(), frontViewer)
		// then
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("should tolerate a non-json error body", func(t *testing.T) {
		// given
		c := newTestClient(t, "")
		httpmock.RegisterResponder("POST", queryURL, httpmock.NewStringResponder(http.StatusNotFound, "404 page not found"))
		// when
		_, err := c.VisibleObjects(context.Background(), frontViewer)
		// then
		assert.ErrorIs(t, err, ErrUnexpectedResponse)
		assert.Contains(t, err.Error(), "Not Found")
	})
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, "")
	httpmock.RegisterResponder("GET", healthURL, httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))
	assert.NoError(t, c.Health(context.Background()))
}

func TestStats(t *testing.T) {
	c := newTestClient(t, "")
	httpmock.RegisterResponder("GET", baseURL+"/v1/stats",
		httpmock.NewStringResponder(http.StatusOK, `{"service":{"queries":4,"objectsReturned":9},"openWebSockets":1}`))

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Service.Queries)
	assert.Equal(t, int64(9), stats.Service.ObjectsReturned)
	assert.Equal(t, int64(1), stats.OpenWebSockets)
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(Config{BaseURL: baseURL, RetryMax: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
