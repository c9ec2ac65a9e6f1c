package emrcore

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WithBaseURL sets the URL that relative paths are joined to.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the default per-attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxGetAttempts sets the total number of attempts for a GET, first try
// included. Other methods are always attempted once.
func WithMaxGetAttempts(n int) Option {
	return func(c *Client) {
		c.maxGetAttempts = n
	}
}

// WithBackoffSchedule sets the delays slept before the second, third, ...
// attempt. The last delay is reused when attempts outnumber delays.
func WithBackoffSchedule(delays ...time.Duration) Option {
	return func(c *Client) {
		c.backoffSchedule = append([]time.Duration(nil), delays...)
	}
}

// WithRetryableStatuses replaces the set of HTTP statuses that are retried.
func WithRetryableStatuses(statuses ...int) Option {
	return func(c *Client) {
		c.retryableStatuses = make(map[int]bool, len(statuses))
		for _, s := range statuses {
			c.retryableStatuses[s] = true
		}
	}
}

// WithRetryPolicy replaces the default GET-only retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithCoalescingWindow sets how long a GET stays joinable. Zero or negative
// disables coalescing.
func WithCoalescingWindow(d time.Duration) Option {
	return func(c *Client) {
		c.coalescingWindow = d
	}
}

// WithSlowRequestThreshold sets the attempt duration above which the slow
// request hook fires. Zero or negative disables it.
func WithSlowRequestThreshold(d time.Duration) Option {
	return func(c *Client) {
		c.slowThreshold = d
	}
}

// WithObservabilityHooks installs telemetry callbacks.
func WithObservabilityHooks(hooks ObservabilityHooks) Option {
	return func(c *Client) {
		c.hooks = hooks
	}
}

// WithSession shares an existing session, e.g. with an asset pipeline.
func WithSession(s *Session) Option {
	return func(c *Client) {
		c.session = s
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger == nil {
			logger = NopLogger{}
		}
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging to a zap console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &Error{
			Type:    ErrorTypeValidation,
			Code:    "0",
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}

	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}

	if c.baseURL != "" && !isAbsoluteURL(c.baseURL) {
		errors = append(errors, "baseURL must start with http:// or https://")
	}

	if c.session == nil {
		errors = append(errors, "session cannot be nil")
	}

	return errors
}

func (c *Client) validateRetryConfig() []string {
	var errors []string

	if c.maxGetAttempts < 1 {
		errors = append(errors, "maxGetAttempts must be at least 1")
	}

	for i, d := range c.backoffSchedule {
		if d < 0 {
			errors = append(errors, fmt.Sprintf("backoffSchedule[%d] must be non-negative", i))
		}
	}

	for status := range c.retryableStatuses {
		if status < 100 || status > 599 {
			errors = append(errors, fmt.Sprintf("retryable status %d is not an HTTP status", status))
		}
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen == nil {
		errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}

// validateExtremeValues rejects values that would stall a clinical UI.
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.maxGetAttempts > 10 {
		errors = append(errors, "maxGetAttempts > 10 may keep callers waiting for minutes")
	}

	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}

	if c.coalescingWindow > time.Minute {
		errors = append(errors, "coalescingWindow > 1m would serve stale reads")
	}

	for i, d := range c.backoffSchedule {
		if d > time.Minute {
			errors = append(errors, fmt.Sprintf("backoffSchedule[%d] > 1m may cause very long delays", i))
		}
	}

	return errors
}

func isAbsoluteURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
