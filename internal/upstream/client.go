// ABOUTME: JSON HTTP client for outbound gateway calls with per-call timeouts
// ABOUTME: Maps non-2xx and transport failures onto apierr upstream errors

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/session-gateway/internal/apierr"
)

const (
	// DefaultTimeout bounds a single outbound attempt.
	DefaultTimeout = 15 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// Response is a completed 2xx exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// Object decodes the body as a JSON object. An empty or unparseable body
// yields an empty map.
func (r *Response) Object() map[string]any {
	out := map[string]any{}
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return out
	}
	if err := json.Unmarshal(r.Body, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding upstream response: %w", err)
	}
	return nil
}

// Request describes one outbound call.
type Request struct {
	Method string
	URL    string
	// Bearer, when set, is sent as an Authorization header.
	Bearer string
	// Body is JSON-encoded when non-nil.
	Body any
	// Retry enables retries for idempotent calls. Nil means a single attempt.
	Retry *RetryPolicy
	// Name labels the call in logs and error messages.
	Name string
}

// Client performs outbound JSON calls.
type Client struct {
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-attempt timeout. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do performs req, retrying according to req.Retry.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	name := req.Name
	if name == "" {
		name = req.Method + " " + req.URL
	}

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, apierr.Internal("encoding "+name+" request", err)
		}
	}

	var resp *Response
	attempt := 0
	err := req.Retry.Execute(ctx, func(ctx context.Context) error {
		attempt++
		r, err := c.once(ctx, req, name, payload)
		if err != nil {
			c.logger.Warn("upstream call failed",
				"call", name,
				"attempt", attempt,
				"retryable", IsRetryable(err),
				"error", err,
			)
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req Request, name string, payload []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, apierr.Internal("building "+name+" request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apierr.UpstreamTransport(name+" failed", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, apierr.UpstreamTransport("reading "+name+" response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, apierr.Upstream(name+" failed", httpResp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return &Response{StatusCode: httpResp.StatusCode, Body: raw}, nil
}

// PostJSON sends body as JSON with a single attempt.
func (c *Client) PostJSON(ctx context.Context, name, url, bearer string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Bearer: bearer, Body: body, Name: name})
}

// GetJSON performs a GET with the given retry policy.
func (c *Client) GetJSON(ctx context.Context, name, url, bearer string, retry *RetryPolicy) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url, Bearer: bearer, Retry: retry, Name: name})
}

// JoinURL joins a base URL and a path with exactly one slash between them.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
