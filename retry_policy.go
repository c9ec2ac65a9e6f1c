package emrcore

import (
	"net/http"
	"time"

	internalbackoff "github.com/MaheshReddy-s/emrcore/internal/backoff"
)

// RetryPolicy decides whether a failed attempt is tried again. attempt is the
// 1-based number of the attempt that just failed.
type RetryPolicy interface {
	ShouldRetry(method string, err *Error, attempt int) (time.Duration, bool)
}

// DefaultRetryPolicy retries idempotent methods on retryable errors, waiting
// the schedule's delay for each attempt.
type DefaultRetryPolicy struct {
	maxAttempts  int
	schedule     *internalbackoff.Schedule
	isIdempotent func(method string) bool
}

// NewDefaultRetryPolicy creates a policy allowing maxAttempts attempts in
// total. An empty schedule uses the default delays.
func NewDefaultRetryPolicy(maxAttempts int, schedule ...time.Duration) *DefaultRetryPolicy {
	if len(schedule) == 0 {
		schedule = internalbackoff.DefaultSchedule
	}
	return &DefaultRetryPolicy{
		maxAttempts:  maxAttempts,
		schedule:     internalbackoff.NewSchedule(schedule...),
		isIdempotent: DefaultIsIdempotent,
	}
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(method string, err *Error, attempt int) (time.Duration, bool) {
	if err == nil || !err.Retryable {
		return 0, false
	}
	if attempt >= p.maxAttempts {
		return 0, false
	}
	if !p.isIdempotent(method) {
		return 0, false
	}
	return p.schedule.Delay(attempt), true
}

// MaxAttempts returns the total attempt budget.
func (p *DefaultRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// DefaultIsIdempotent allows retries for GET only. Writes to clinical records
// are never replayed.
func DefaultIsIdempotent(method string) bool {
	return method == http.MethodGet
}
