package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	infraerrors "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/errors"
	infrahttp "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/http"
	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
)

// Submitter sends one tracking call and reports whether the server
// accepted it.
type Submitter interface {
	Submit(ctx context.Context, action Action, payload any) bool
}

const (
	defaultTimeout  = 5 * time.Second
	maxResponseBody = 4 << 10
)

// HTTPClient posts tracking calls to an ingest server.
type HTTPClient struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	log        logger.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.httpClient = c }
}

// WithUserAgent sets the User-Agent header sent with every call.
func WithUserAgent(ua string) Option {
	return func(h *HTTPClient) { h.userAgent = ua }
}

// NewHTTPClient creates a client for the server at baseURL.
func NewHTTPClient(baseURL string, log logger.Logger, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		endpoint:   strings.TrimRight(baseURL, "/") + TrackPath,
		httpClient: infrahttp.NewClient(&infrahttp.ClientConfig{Timeout: defaultTimeout}),
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts {action, data} and returns the server's success flag.
// Every failure is logged at warn and reported as false.
func (c *HTTPClient) Submit(ctx context.Context, action Action, payload any) bool {
	if err := c.post(ctx, action, payload); err != nil {
		c.log.Warn("Tracking call failed",
			logger.String("action", string(action)),
			logger.Error(err),
		)
		return false
	}
	return true
}

func (c *HTTPClient) post(ctx context.Context, action Action, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	body, err := json.Marshal(Request{Action: action, Data: data})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
		return httpErr
	}

	var out Response
	if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); decodeErr != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, decodeErr)
	}
	if !out.Success {
		return fmt.Errorf("rejected (status %d): %s", resp.StatusCode, out.Error)
	}
	return nil
}

// Func adapts a function to Submitter.
type Func func(ctx context.Context, action Action, payload any) bool

// Submit calls f.
func (f Func) Submit(ctx context.Context, action Action, payload any) bool {
	return f(ctx, action, payload)
}
