// Package client is a Go SDK for the viewcone visibility query API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/zeusync/viewcone/internal/core/observability/log"
)

const maxErrorBody = 64 * 1024

// Client queries a viewcone server over HTTP. Transient failures (503, 429,
// connection errors) are retried with backoff.
type Client struct {
	baseURL *url.URL
	http    *retryablehttp.Client
	config  Config
	logger  log.Log
}

// Config holds configuration for the client
type Config struct {
	BaseURL string
	Token   string

	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Logger defaults to a no-op logger.
	Logger log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		BaseURL:      "http://127.0.0.1:4000",
		Timeout:      10 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

func NewClient(config Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, config.BaseURL)
	}
	if config.RetryMax < 0 {
		return nil, fmt.Errorf("%w: negative retry max", ErrInvalidConfig)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With(log.String("component", "viewcone_client"))

	rc := retryablehttp.NewClient()
	rc.RetryMax = config.RetryMax
	if config.RetryWaitMin > 0 {
		rc.RetryWaitMin = config.RetryWaitMin
	}
	if config.RetryWaitMax > 0 {
		rc.RetryWaitMax = config.RetryWaitMax
	}
	rc.HTTPClient.Timeout = config.Timeout
	rc.Logger = leveledLogger{logger}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.ResponseLogHook = func(_ retryablehttp.Logger, r *http.Response) {
		if r.StatusCode >= http.StatusBadRequest {
			logger.Debug("HTTP error response",
				log.String("method", r.Request.Method),
				log.String("url", r.Request.URL.String()),
				log.Int("status", r.StatusCode))
		}
	}

	return &Client{
		baseURL: base,
		http:    rc,
		config:  config,
		logger:  logger,
	}, nil
}

// HTTPClient exposes the underlying transport client, e.g. to install a mock.
func (c *Client) HTTPClient() *http.Client {
	return c.http.HTTPClient
}

// VisibleObjects returns the objects inside viewer's cone.
func (c *Client) VisibleObjects(ctx context.Context, viewer Viewer) (*Result, error) {
	body, err := json.Marshal(viewer)
	if err != nil {
		return nil, fmt.Errorf("encode viewer: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/visible-objects", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded visibleObjectsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrUnexpectedResponse, err)
	}
	if decoded.VisibleObjects == nil {
		decoded.VisibleObjects = []VisibleObject{}
	}
	return &Result{
		Objects:   decoded.VisibleObjects,
		ETag:      resp.Header.Get("ETag"),
		RequestID: resp.Header.Get("X-Request-ID"),
	}, nil
}

// Health reports whether the server and its store are reachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/stats", nil)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()

	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return Stats{}, fmt.Errorf("%w: decode body: %v", ErrUnexpectedResponse, err)
	}
	return stats, nil
}

// do sends the request and returns the response only for 2xx statuses.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var raw any
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL.String()+path, raw)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeAPIError(resp)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}
	var envelope struct {
		Error *APIError `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Field = envelope.Error.Field
	}
	return apiErr
}

// leveledLogger adapts log.Log to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger log.Log
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, kvFields(keysAndValues)...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, kvFields(keysAndValues)...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, kvFields(keysAndValues)...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, kvFields(keysAndValues)...)
}

func kvFields(kv []any) []log.Field {
	fields := make([]log.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, log.Any(key, kv[i+1]))
	}
	return fields
}
