package emrcore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	internalbackoff "github.com/MaheshReddy-s/emrcore/internal/backoff"
)

var errNoResponse = errors.New("transport returned no response")

// execute runs one logical call: attempts, retries and envelope unwrap.
// The returned error is always a *Error.
func (c *Client) execute(ctx context.Context, r *request) (*Response, error) {
	start := time.Now()
	endpoint := r.endpoint()

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debugOn(c.debug != nil && c.debug.LogRequests) {
		c.logger.Debug("Starting request", "requestID", requestID, "method", r.method, "endpoint", endpoint, "kind", r.kind.String())
	}

	c.metrics.RecordRequestStart(r.method, endpoint)
	resp, apiErr := c.doWithRetry(ctx, r, 1, requestID, start)
	c.metrics.RecordRequestEnd(r.method, endpoint)

	duration := time.Since(start)
	if apiErr != nil {
		c.metrics.RecordRequest(r.method, endpoint, apiErr.Status, duration)
		c.metrics.RecordError(apiErr.Type, r.method, endpoint)
		return nil, apiErr
	}

	c.metrics.RecordRequest(r.method, endpoint, resp.Status, duration)
	if c.debugOn(c.debug != nil && c.debug.LogRequests) {
		c.logger.Debug("Request completed", "requestID", requestID, "status", resp.Status, "duration", duration)
	}
	return resp, nil
}

func (c *Client) doWithRetry(ctx context.Context, r *request, attempt int, requestID string, startTime time.Time) (*Response, *Error) {
	endpoint := r.endpoint()

	if attempt > 1 {
		if c.debugOn(c.debug != nil && c.debug.LogRetries) {
			c.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxAttempts", c.maxGetAttempts, "endpoint", endpoint)
		}
		c.metrics.RecordRetry(r.method, endpoint, attempt)
	}

	resp, apiErr := c.attempt(ctx, r)
	if apiErr == nil {
		return resp, nil
	}

	apiErr.RequestID = requestID
	apiErr.Method = r.method
	apiErr.URL = r.url
	apiErr.Attempt = attempt
	apiErr.MaxAttempts = c.attemptBudget(r)
	apiErr.Duration = time.Since(startTime)

	// the caller gave up; no further attempts
	if ctx.Err() != nil {
		return nil, apiErr
	}

	delay, shouldRetry := c.retryPolicy.ShouldRetry(r.method, apiErr, attempt)
	if !shouldRetry {
		if attempt > 1 || apiErr.Retryable {
			c.logger.Warn("Request failed", "requestID", requestID, "method", r.method, "endpoint", endpoint,
				"type", apiErr.Type, "status", apiErr.Status, "attempt", attempt)
		}
		return nil, apiErr
	}

	if c.debugOn(c.debug != nil && c.debug.LogRetries) {
		c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", endpoint, "cause", apiErr.Type)
	}

	if err := internalbackoff.Sleep(ctx, delay); err != nil {
		return nil, apiErr
	}
	return c.doWithRetry(ctx, r, attempt+1, requestID, startTime)
}

// attempt sends one HTTP request bounded by its own deadline.
func (c *Client) attempt(ctx context.Context, r *request) (*Response, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := r.build(attemptCtx, c.session.Token())
	if err != nil {
		return nil, invalidRequestError("failed to build request", err)
	}

	c.metrics.RecordAttempt(r.method, r.endpoint())
	started := time.Now()

	status := 0
	var header http.Header
	var body []byte
	httpResp, err := c.executeMiddleware(req)
	if err == nil && httpResp == nil {
		err = errNoResponse
	}
	if err == nil {
		status = httpResp.StatusCode
		header = httpResp.Header
		body, err = io.ReadAll(httpResp.Body)
		_ = httpResp.Body.Close()
	}

	c.observeAttempt(r, time.Since(started), status)

	if err != nil {
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		aborted := ctx.Err() != nil
		return nil, normalizeTransportError(err, r.timeout, timedOut, aborted)
	}

	if status < 200 || status > 299 {
		apiErr := normalizeHTTPError(status, body, c.retryableStatuses)
		if status == http.StatusUnauthorized {
			c.expireSession(r)
		}
		return nil, apiErr
	}

	resp := &Response{Status: status, Header: header, Body: body, kind: r.kind}
	if r.kind == KindJSON {
		data, err := unwrapEnvelope(body)
		if err != nil {
			return nil, malformedResponseError(status, body, err)
		}
		resp.Data = data
	}
	return resp, nil
}

// observeAttempt fires the slow request hook at most once per attempt,
// whatever the outcome.
func (c *Client) observeAttempt(r *request, d time.Duration, status int) {
	if c.slowThreshold <= 0 || d <= c.slowThreshold {
		return
	}

	c.metrics.RecordSlowRequest(r.method, r.endpoint())
	c.logger.Warn("Slow request", "method", r.method, "path", r.path, "duration", d, "status", status)

	c.hooksMu.RLock()
	hook := c.hooks.OnSlowRequest
	c.hooksMu.RUnlock()
	if hook == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("Slow request hook panicked", "panic", rec)
		}
	}()
	hook(SlowRequest{Method: r.method, Path: r.path, Duration: d, Status: status})
}

func (c *Client) expireSession(r *request) {
	c.metrics.RecordUnauthorized()
	c.logger.Warn("Session expired", "method", r.method, "endpoint", r.endpoint())
	c.session.expire()
}

func (c *Client) attemptBudget(r *request) int {
	if p, ok := c.retryPolicy.(*DefaultRetryPolicy); ok && p.isIdempotent(r.method) {
		return p.MaxAttempts()
	}
	if r.method == http.MethodGet {
		return c.maxGetAttempts
	}
	return 1
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}
