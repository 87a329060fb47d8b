// ABOUTME: Generic HTTP call against the Flowstarter API with error-message extraction
// ABOUTME: Encodes bodies, attaches session auth headers, records metrics, decodes responses

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flowstarter/flowstarter-console/internal/metrics"
	"github.com/flowstarter/flowstarter-console/internal/session"
)

// APIPrefix is prepended to every endpoint path of the billing API.
const APIPrefix = "/core/v1"

// ErrNoBaseURL is returned when the snapshot has no base URL.
var ErrNoBaseURL = errors.New("API base URL is not configured")

// APIError is a non-2xx response.
type APIError struct {
	Method   string
	Endpoint string
	Status   int
	Message  string
	Body     string
}

func (e *APIError) Error() string {
	return e.Message
}

// NetworkError is a request that never produced a response.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// Response is a successful API response.
type Response struct {
	Status int
	Header http.Header
	Data   json.RawMessage
	Text   string
}

// IsJSON reports whether the body parsed as JSON.
func (r *Response) IsJSON() bool {
	return len(r.Data) > 0
}

// Decode unmarshals the JSON body into v. An empty or plain-text body
// leaves v untouched.
func (r *Response) Decode(v any) error {
	if !r.IsJSON() {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Client performs API calls. It is safe for concurrent use.
type Client struct {
	http               *http.Client
	logger             *slog.Logger
	metrics            *metrics.Metrics
	userAgent          string
	setupStatusTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithSetupStatusTimeout overrides the setup status deadline.
func WithSetupStatusTimeout(d time.Duration) Option {
	return func(c *Client) { c.setupStatusTimeout = d }
}

// New creates a Client. The default http.Client has no timeout; callers
// bound calls with their request context.
func New(opts ...Option) *Client {
	c := &Client{
		http:               &http.Client{},
		logger:             slog.Default().With("component", "apiclient"),
		userAgent:          "flowstarter-console",
		setupStatusTimeout: SetupStatusTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request ID that Call forwards upstream.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID set by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// encodeBody sends strings and byte slices untouched and JSON-encodes
// everything else.
func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}

// Call sends one request to snap's base URL + endpoint.
func (c *Client) Call(ctx context.Context, snap session.Snapshot, method, endpoint string, body any) (*Response, error) {
	base := snap.Base()
	if base == "" {
		return nil, ErrNoBaseURL
	}
	url := base + endpoint

	reader, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, vs := range snap.AuthHeaders() {
		req.Header[k] = vs
	}
	if id := RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.ObserveUpstream(method, endpoint, 0, elapsed)
		c.logger.Warn("upstream request failed", "method", method, "endpoint", endpoint, "error", err)
		return nil, &NetworkError{Method: method, URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	c.metrics.ObserveUpstream(method, endpoint, resp.StatusCode, elapsed)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && json.Valid(trimmed) {
		out.Data = json.RawMessage(trimmed)
	} else {
		out.Text = string(raw)
	}

	c.logger.Debug("upstream request",
		"method", method,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Method:   method,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  errorMessage(out, resp.StatusCode),
			Body:     string(raw),
		}
	}
	return out, nil
}

// errorMessage picks the most specific message available for a failed
// response: detail, message, error, raw text, then the status text.
func errorMessage(r *Response, status int) string {
	if r.IsJSON() {
		if msg := jsonMessage(r.Data); msg != "" {
			return msg
		}
	} else if text := strings.TrimSpace(r.Text); text != "" {
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

func jsonMessage(data json.RawMessage) string {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}

	switch d := body["detail"].(type) {
	case string:
		if d != "" {
			return d
		}
	case []any:
		// Validation errors arrive as a list of {loc, msg}.
		if len(d) > 0 {
			if item, ok := d[0].(map[string]any); ok {
				if msg, ok := item["msg"].(string); ok && msg != "" {
					return msg
				}
			}
		}
	case map[string]any:
		if msg, ok := d["message"].(string); ok && msg != "" {
			return msg
		}
	}

	for _, key := range []string{"message", "error"} {
		if msg, ok := body[key].(string); ok && msg != "" {
			return msg
		}
	}
	return ""
}

// Get is Call with GET.
func (c *Client) Get(ctx context.Context, snap session.Snapshot, endpoint string) (*Response, error) {
	return c.Call(ctx, snap, http.MethodGet, endpoint, nil)
}

// Post is Call with POST.
func (c *Client) Post(ctx context.Context, snap session.Snapshot, endpoint string, body any) (*Response, error) {
	return c.Call(ctx, snap, http.MethodPost, endpoint, body)
}

// Put is Call with PUT.
func (c *Client) Put(ctx context.Context, snap session.Snapshot, endpoint string, body any) (*Response, error) {
	return c.Call(ctx, snap, http.MethodPut, endpoint, body)
}

// Delete is Call with DELETE.
func (c *Client) Delete(ctx context.Context, snap session.Snapshot, endpoint string) (*Response, error) {
	return c.Call(ctx, snap, http.MethodDelete, endpoint, nil)
}

// GetJSON fetches endpoint and decodes it into v.
func (c *Client) GetJSON(ctx context.Context, snap session.Snapshot, endpoint string, v any) error {
	resp, err := c.Get(ctx, snap, endpoint)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// PostJSON posts body and decodes the response into v (which may be nil).
func (c *Client) PostJSON(ctx context.Context, snap session.Snapshot, endpoint string, body, v any) error {
	resp, err := c.Post(ctx, snap, endpoint, body)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return resp.Decode(v)
}

// PutJSON puts body and decodes the response into v (which may be nil).
func (c *Client) PutJSON(ctx context.Context, snap session.Snapshot, endpoint string, body, v any) error {
	resp, err := c.Put(ctx, snap, endpoint, body)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return resp.Decode(v)
}

// decodeList decodes either a bare JSON array or an object holding the
// array under key.
func decodeList[T any](resp *Response, key string) ([]T, error) {
	if !resp.IsJSON() {
		return nil, nil
	}
	data := resp.Data
	if data[0] != '[' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		inner, ok := wrapper[key]
		if !ok || string(inner) == "null" {
			return nil, nil
		}
		data = inner
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return items, nil
}
