package emrcore

import (
	"encoding/json"
	"net/http"
	"time"
)

// ResponseKind selects how a successful body is interpreted.
type ResponseKind int

const (
	// KindJSON parses the body and unwraps the {"data": ...} envelope.
	KindJSON ResponseKind = iota
	// KindBinary returns the body bytes untouched.
	KindBinary
)

// String returns the kind's name. It is part of the coalescing key.
func (k ResponseKind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	default:
		return "json"
	}
}

func (k ResponseKind) accept() string {
	if k == KindBinary {
		return "*/*"
	}
	return "application/json"
}

// Response is a successful result with its status and headers.
type Response struct {
	Status int
	Header http.Header
	// Data is the unwrapped envelope payload. Nil for KindBinary.
	Data json.RawMessage
	// Body is the raw body as received.
	Body []byte

	kind ResponseKind
}

// payload is what the façade methods return: the unwrapped data for JSON
// calls, the raw body for binary ones.
func (r *Response) payload() json.RawMessage {
	if r.kind == KindBinary {
		return json.RawMessage(r.Body)
	}
	return r.Data
}

// Middleware wraps a single HTTP attempt.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option
type Option func(*Client)

// RequestOption adjusts a single call.
type RequestOption func(*request)

// SlowRequest describes one attempt that exceeded the slow threshold.
// Status is 0 when the attempt produced no response.
type SlowRequest struct {
	Method   string
	Path     string
	Duration time.Duration
	Status   int
}

// ObservabilityHooks are callbacks fired by the client. A nil field is skipped.
type ObservabilityHooks struct {
	OnSlowRequest func(SlowRequest)
}
