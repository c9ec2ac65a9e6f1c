// Package backoff holds the retry delay schedule used between attempts of a
// single logical request.
package backoff

import (
	"context"
	"time"
)

// DefaultSchedule is the delay before attempt 2 and before attempt 3.
var DefaultSchedule = []time.Duration{200 * time.Millisecond, 500 * time.Millisecond}

// Schedule is a fixed list of delays. Delay(n) is the pause after attempt n
// (1-based) and before attempt n+1. Attempts past the end of the list reuse
// the last entry.
type Schedule struct {
	delays []time.Duration
}

// NewSchedule copies delays into a Schedule. Negative delays are treated as zero.
func NewSchedule(delays ...time.Duration) *Schedule {
	cp := make([]time.Duration, len(delays))
	for i, d := range delays {
		if d < 0 {
			d = 0
		}
		cp[i] = d
	}
	return &Schedule{delays: cp}
}

// Delay returns the pause that follows the given attempt.
func (s *Schedule) Delay(attempt int) time.Duration {
	if s == nil || len(s.delays) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(s.delays) {
		return s.delays[len(s.delays)-1]
	}
	return s.delays[attempt-1]
}

// Delays returns a copy of the configured delays.
func (s *Schedule) Delays() []time.Duration {
	if s == nil {
		return nil
	}
	cp := make([]time.Duration, len(s.delays))
	copy(cp, s.delays)
	return cp
}

// Sleep waits for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the context ended the wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
