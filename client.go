package emrcore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	internalbackoff "github.com/MaheshReddy-s/emrcore/internal/backoff"
	"github.com/MaheshReddy-s/emrcore/internal/coalesce"
)

const (
	DefaultTimeout              = 30 * time.Second
	DefaultMaxGetAttempts       = 2
	DefaultCoalescingWindow     = 150 * time.Millisecond
	DefaultSlowRequestThreshold = 3 * time.Second
)

// Client is the authenticated API client. GETs are retried and coalesced;
// writes are sent exactly once. Every failure is returned as *Error. It is
// safe for concurrent use.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	timeout           time.Duration
	maxGetAttempts    int
	backoffSchedule   []time.Duration
	retryableStatuses map[int]bool
	retryPolicy       RetryPolicy
	coalescingWindow  time.Duration
	coalescer         *coalesce.Group
	slowThreshold     time.Duration
	middleware        []Middleware
	session           *Session
	hooksMu           sync.RWMutex
	hooks             ObservabilityHooks
	metrics           *MetricsCollector
	debug             *DebugConfig
	logger            Logger
	validationError   error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient:       &http.Client{},
		timeout:          DefaultTimeout,
		maxGetAttempts:   DefaultMaxGetAttempts,
		backoffSchedule:  append([]time.Duration(nil), internalbackoff.DefaultSchedule...),
		coalescingWindow: DefaultCoalescingWindow,
		slowThreshold:    DefaultSlowRequestThreshold,
		middleware:       []Middleware{},
		session:          NewSession(),
		debug:            DefaultDebugConfig(),
		logger:           NopLogger{},
	}
	WithRetryableStatuses(DefaultRetryableStatuses...)(client)

	for _, option := range options {
		option(client)
	}

	if client.retryPolicy == nil {
		client.retryPolicy = NewDefaultRetryPolicy(client.maxGetAttempts, client.backoffSchedule...)
	}
	client.coalescer = coalesce.New(client.coalescingWindow)

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get fetches path and returns the unwrapped payload. Concurrent identical
// GETs within the coalescing window share one network call.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (json.RawMessage, error) {
	resp, err := c.GetWithMeta(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	return resp.payload(), nil
}

// GetBytes fetches path as binary and returns the raw body.
func (c *Client) GetBytes(ctx context.Context, path string, opts ...RequestOption) ([]byte, error) {
	opts = append(opts, WithResponseKind(KindBinary))
	resp, err := c.GetWithMeta(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetWithMeta is Get returning status and headers as well. Callers sharing a
// coalesced call receive the same *Response and must not modify it.
func (c *Client) GetWithMeta(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	r, apiErr := c.newRequest(http.MethodGet, path, opts)
	if apiErr != nil {
		return nil, apiErr
	}

	if !c.coalescer.Enabled() {
		return c.execute(ctx, r)
	}

	key := c.coalescingKey(r)
	v, err, shared := c.coalescer.Do(ctx, key, func() (interface{}, error) {
		resp, err := c.execute(context.WithoutCancel(ctx), r)
		if err != nil {
			return nil, err
		}
		return resp, nil
	})

	if shared {
		c.metrics.RecordCoalescedHit(r.method, r.endpoint())
		if c.debugOn(c.debug != nil && c.debug.LogCoalescing) {
			c.logger.Debug("Coalesced GET", "method", r.method, "endpoint", r.endpoint(), "kind", r.kind.String())
		}
	}

	if err != nil {
		return nil, NormalizeError(err)
	}
	return v.(*Response), nil
}

// Post sends body as JSON and returns the unwrapped payload.
func (c *Client) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (json.RawMessage, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body, opts)
}

// Put sends body as JSON and returns the unwrapped payload.
func (c *Client) Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) (json.RawMessage, error) {
	return c.sendJSON(ctx, http.MethodPut, path, body, opts)
}

// PostRaw sends an opaque body such as multipart form data. contentType is
// set only when non-empty.
func (c *Client) PostRaw(ctx context.Context, path string, body io.Reader, contentType string, opts ...RequestOption) (json.RawMessage, error) {
	r, apiErr := c.newRequest(http.MethodPost, path, opts)
	if apiErr != nil {
		return nil, apiErr
	}
	if apiErr := r.setRawBody(body, contentType); apiErr != nil {
		return nil, apiErr
	}

	resp, err := c.execute(ctx, r)
	if err != nil {
		return nil, err
	}
	return resp.payload(), nil
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (json.RawMessage, error) {
	r, apiErr := c.newRequest(http.MethodDelete, path, opts)
	if apiErr != nil {
		return nil, apiErr
	}

	resp, err := c.execute(ctx, r)
	if err != nil {
		return nil, err
	}
	return resp.payload(), nil
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body interface{}, opts []RequestOption) (json.RawMessage, error) {
	r, apiErr := c.newRequest(method, path, opts)
	if apiErr != nil {
		return nil, apiErr
	}
	if apiErr := r.setJSONBody(body); apiErr != nil {
		return nil, apiErr
	}

	resp, err := c.execute(ctx, r)
	if err != nil {
		return nil, err
	}
	return resp.payload(), nil
}

// Decode unmarshals a payload returned by the client into T. It passes
// through a non-nil err unchanged, so calls can be wrapped directly:
//
//	patient, err := emrcore.Decode[Patient](client.Get(ctx, "/patients/42"))
func Decode[T any](data json.RawMessage, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if len(data) == 0 {
		return out, nil
	}
	if uerr := json.Unmarshal(data, &out); uerr != nil {
		return out, &Error{
			Type:      ErrorTypeMalformedResponse,
			Code:      "0",
			Message:   fmt.Sprintf("failed to decode payload into %T", out),
			Cause:     uerr,
			Timestamp: time.Now(),
		}
	}
	return out, nil
}

// Session returns the session shared with asset pipelines.
func (c *Client) Session() *Session {
	return c.session
}

// SetToken replaces the bearer token for subsequent attempts.
func (c *Client) SetToken(token string) {
	c.session.SetToken(token)
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	return c.session.Token()
}

// SetOnUnauthorized registers the callback run once per 401 response, after
// the token has been cleared.
func (c *Client) SetOnUnauthorized(fn func()) {
	c.session.SetOnUnauthorized(fn)
}

// SetObservabilityHooks replaces the telemetry callbacks.
func (c *Client) SetObservabilityHooks(hooks ObservabilityHooks) {
	c.hooksMu.Lock()
	c.hooks = hooks
	c.hooksMu.Unlock()
}

// Metrics returns the collector, or nil when metrics are off.
func (c *Client) Metrics() *MetricsCollector {
	return c.metrics
}

// Logger returns the client's logger.
func (c *Client) Logger() Logger {
	return c.logger
}

// Close stops the coalescing sweep timer. Calls in flight still complete.
func (c *Client) Close() {
	c.coalescer.Close()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// coalescingKey identifies a GET by caller identity, kind and resolved URL.
func (c *Client) coalescingKey(r *request) string {
	return c.session.identity() + "|" + r.kind.String() + "|" + r.url
}

func (c *Client) debugOn(flag bool) bool {
	return c.debug != nil && c.debug.Enabled && flag
}
