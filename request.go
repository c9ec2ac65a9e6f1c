package emrcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdempotencyKeyHeader carries a caller-chosen key that lets the backend
// detect a resubmitted write.
const IdempotencyKeyHeader = "X-Idempotency-Key"

// request describes one logical call. It is not modified once the first
// attempt starts.
type request struct {
	method  string
	path    string
	url     string
	header  http.Header
	body    []byte
	hasBody bool
	// jsonBody marks bodies that get the JSON content type by default.
	jsonBody bool
	kind     ResponseKind
	timeout  time.Duration
}

// WithHeader sets one request header.
func WithHeader(key, value string) RequestOption {
	return func(r *request) {
		r.header.Set(key, value)
	}
}

// WithHeaders sets several request headers.
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *request) {
		for k, v := range headers {
			r.header.Set(k, v)
		}
	}
}

// WithRequestTimeout overrides the client timeout for every attempt of this call.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(r *request) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithResponseKind selects JSON (default) or binary handling of the body.
func WithResponseKind(kind ResponseKind) RequestOption {
	return func(r *request) {
		r.kind = kind
	}
}

// WithIdempotencyKey sets the idempotency header. An empty key generates a
// random UUID.
func WithIdempotencyKey(key string) RequestOption {
	return func(r *request) {
		if key == "" {
			key = uuid.NewString()
		}
		r.header.Set(IdempotencyKeyHeader, key)
	}
}

func (c *Client) newRequest(method, path string, opts []RequestOption) (*request, *Error) {
	r := &request{
		method:  method,
		path:    path,
		header:  make(http.Header),
		kind:    KindJSON,
		timeout: c.timeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	resolved, err := c.resolveURL(path)
	if err != nil {
		return nil, err
	}
	r.url = resolved
	return r, nil
}

// resolveURL joins a relative path to the base URL with exactly one slash.
// Absolute http(s) URLs are used as given.
func (c *Client) resolveURL(path string) (string, *Error) {
	if isAbsoluteURL(path) {
		if _, err := url.Parse(path); err != nil {
			return "", invalidRequestError(fmt.Sprintf("invalid URL %q", path), err)
		}
		return path, nil
	}
	if c.baseURL == "" {
		return "", invalidRequestError(fmt.Sprintf("relative path %q requires a base URL", path), nil)
	}

	resolved := strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if _, err := url.Parse(resolved); err != nil {
		return "", invalidRequestError(fmt.Sprintf("invalid URL %q", resolved), err)
	}
	return resolved, nil
}

// setJSONBody encodes body. Strings, byte slices and json.RawMessage are
// taken as already serialized. A nil body sends nothing.
func (r *request) setJSONBody(body interface{}) *Error {
	switch v := body.(type) {
	case nil:
		return nil
	case json.RawMessage:
		r.body = v
	case []byte:
		r.body = v
	case string:
		r.body = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return invalidRequestError("failed to encode request body", err)
		}
		r.body = encoded
	}
	r.hasBody = true
	r.jsonBody = true
	return nil
}

// setRawBody buffers body so it can be handed to the transport. contentType
// is sent only when non-empty so multipart boundaries set by the caller are
// left alone.
func (r *request) setRawBody(body io.Reader, contentType string) *Error {
	if body != nil {
		data, err := io.ReadAll(body)
		if err != nil {
			return invalidRequestError("failed to read request body", err)
		}
		r.body = data
		r.hasBody = true
	}
	if contentType != "" && r.header.Get("Content-Type") == "" {
		r.header.Set("Content-Type", contentType)
	}
	return nil
}

// build creates the HTTP request for one attempt. Headers are rebuilt every
// attempt so a token change is seen by the next attempt.
func (r *request) build(ctx context.Context, token string) (*http.Request, error) {
	var body io.Reader
	if r.hasBody {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, err
	}

	for k, values := range r.header {
		req.Header[k] = append([]string(nil), values...)
	}
	if r.jsonBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", r.kind.accept())
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent())
	}
	if token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// endpoint is the metrics label: host and path without the query string.
func (r *request) endpoint() string {
	u, err := url.Parse(r.url)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	if u.Path == "" {
		return u.Host + "/"
	}
	return u.Host + u.Path
}
