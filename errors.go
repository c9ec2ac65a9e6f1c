package emrcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Error types. Every failure surfaced by the client carries exactly one.
const (
	ErrorTypeTimeout           = "Timeout"
	ErrorTypeNetwork           = "Network"
	ErrorTypeClient            = "Client"
	ErrorTypeServer            = "Server"
	ErrorTypeUnauthorized      = "Unauthorized"
	ErrorTypeMalformedResponse = "MalformedResponse"
	ErrorTypeInvalidRequest    = "InvalidRequest"
	ErrorTypeMissingKey        = "MissingKey"
	ErrorTypeDecryptionFailed  = "DecryptionFailed"
	ErrorTypeValidation        = "Validation"
)

// Sentinel errors for errors.Is. They match any *Error of the same type.
var (
	ErrTimeout           = &Error{Type: ErrorTypeTimeout}
	ErrNetwork           = &Error{Type: ErrorTypeNetwork}
	ErrUnauthorized      = &Error{Type: ErrorTypeUnauthorized}
	ErrMalformedResponse = &Error{Type: ErrorTypeMalformedResponse}
	ErrMissingKey        = &Error{Type: ErrorTypeMissingKey}
	ErrDecryptionFailed  = &Error{Type: ErrorTypeDecryptionFailed}
)

// DefaultRetryableStatuses are the HTTP statuses worth another attempt.
var DefaultRetryableStatuses = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

const (
	messageNetworkFailed = "network request failed"
	bodyExcerptLimit     = 200
)

// Error is the canonical failure shape. Status is 0 when no HTTP response was
// received. Code is the backend's string code when it sent one, otherwise the
// decimal status.
type Error struct {
	Type        string
	Code        string
	Status      int
	Message     string
	FieldErrors map[string][]string
	Retryable   bool
	Cause       error

	RequestID   string
	Method      string
	URL         string
	Attempt     int
	MaxAttempts int
	Timestamp   time.Time
	Duration    time.Duration
}

// Error implements error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 && e.MaxAttempts > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches another *Error of the same type. A target with a non-zero
// Status must also match the status.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Status == 0 || t.Status == e.Status
}

// HasFieldErrors reports whether the backend rejected specific fields.
func (e *Error) HasFieldErrors() bool {
	return e != nil && len(e.FieldErrors) > 0
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *Error) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Error Type: %s\n", e.Type)
	fmt.Fprintf(&b, "Code: %s\n", e.Code)
	fmt.Fprintf(&b, "Message: %s\n", e.Message)
	fmt.Fprintf(&b, "Retryable: %t\n", e.Retryable)
	if e.RequestID != "" {
		fmt.Fprintf(&b, "Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		fmt.Fprintf(&b, "Method: %s\n", e.Method)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", e.URL)
	}
	if e.Status > 0 {
		fmt.Fprintf(&b, "Status Code: %d\n", e.Status)
	}
	for field, msgs := range e.FieldErrors {
		fmt.Fprintf(&b, "Field %s: %s\n", field, strings.Join(msgs, "; "))
	}
	if e.Attempt > 0 {
		fmt.Fprintf(&b, "Attempt: %d/%d\n", e.Attempt, e.MaxAttempts)
	}
	if !e.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "Cause: %v\n", e.Cause)
	}
	return b.String()
}

// IsRetryable reports whether err is a canonical error marked retryable.
func IsRetryable(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Retryable
}

// IsUnauthorized reports whether the session expired or was rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidation reports whether the backend rejected the submitted data and
// the caller should fix it and resubmit.
func IsValidation(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.HasFieldErrors() || apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnprocessableEntity
}

// NormalizeError converts any error into the canonical shape. A canonical
// error anywhere in the chain is returned as is. A nil error yields nil.
func NormalizeError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return normalizeTransportError(err, 0, true, false)
	case errors.Is(err, context.Canceled):
		return normalizeTransportError(err, 0, false, true)
	}
	return normalizeTransportError(err, 0, false, false)
}

// normalizeTransportError classifies a failure where no usable HTTP response
// was received. timedOut means the attempt's own deadline fired; aborted means
// the caller cancelled.
func normalizeTransportError(err error, timeout time.Duration, timedOut, aborted bool) *Error {
	if !timedOut && !aborted && isNetTimeout(err) {
		timedOut = true
	}

	e := &Error{
		Code:      "0",
		Retryable: true,
		Cause:     err,
		Timestamp: time.Now(),
	}

	switch {
	case timedOut:
		e.Type = ErrorTypeTimeout
		if timeout > 0 {
			e.Message = fmt.Sprintf("request timed out after %s", timeout)
		} else {
			e.Message = "request timed out"
		}
	case aborted:
		e.Type = ErrorTypeTimeout
		if timeout > 0 {
			e.Message = fmt.Sprintf("request aborted before completing (timeout %s)", timeout)
		} else {
			e.Message = "request aborted before completing"
		}
	default:
		e.Type = ErrorTypeNetwork
		e.Message = messageNetworkFailed
		if err != nil && strings.TrimSpace(err.Error()) != "" {
			e.Message = err.Error()
		}
	}
	return e
}

// normalizeHTTPError builds the error for a non-success response.
func normalizeHTTPError(status int, body []byte, retryable map[int]bool) *Error {
	e := &Error{
		Type:      httpErrorType(status),
		Code:      strconv.Itoa(status),
		Status:    status,
		Retryable: retryable[status],
		Timestamp: time.Now(),
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		e.Message = fmt.Sprintf("request failed with status %d", status)
		return e
	}

	if !json.Valid([]byte(trimmed)) {
		e.Message = fmt.Sprintf("invalid JSON response (status %d): %s", status, excerpt(trimmed))
		return e
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		e.Message = trimmed
		return e
	}

	var nested map[string]json.RawMessage
	if raw, ok := obj["data"]; ok {
		_ = json.Unmarshal(raw, &nested)
	}

	e.Message = firstString(obj, "message", "msg", "error")
	if e.Message == "" {
		e.Message = firstString(nested, "message", "msg", "error")
	}
	if e.Message == "" {
		e.Message = trimmed
	}

	if code := scalarField(obj, "code"); code != "" {
		e.Code = code
	}

	e.FieldErrors = parseFieldErrors(obj["errors"])
	if e.FieldErrors == nil && nested != nil {
		e.FieldErrors = parseFieldErrors(nested["errors"])
	}
	return e
}

// malformedResponseError reports a success response whose body could not be
// decoded. Retrying will not change the body, so it is never retryable.
func malformedResponseError(status int, body []byte, cause error) *Error {
	return &Error{
		Type:      ErrorTypeMalformedResponse,
		Code:      strconv.Itoa(status),
		Status:    status,
		Message:   fmt.Sprintf("invalid JSON response (status %d): %s", status, excerpt(strings.TrimSpace(string(body)))),
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func invalidRequestError(message string, cause error) *Error {
	return &Error{
		Type:      ErrorTypeInvalidRequest,
		Code:      "0",
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func httpErrorType(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorTypeUnauthorized
	case status >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeClient
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func scalarField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// parseFieldErrors accepts {"field": ["a", "b"]} and {"field": "a"}.
func parseFieldErrors(raw json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return nil
	}

	out := make(map[string][]string, len(fields))
	for name, value := range fields {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			out[name] = list
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			out[name] = []string{single}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func excerpt(s string) string {
	if len(s) <= bodyExcerptLimit {
		return s
	}
	cut := bodyExcerptLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
