package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvBaseURL              = "EMR_API_BASE_URL"
	EnvTimeout              = "EMR_API_TIMEOUT"
	EnvCoalescingWindow     = "EMR_COALESCE_WINDOW"
	EnvSlowRequestThreshold = "EMR_SLOW_REQUEST_THRESHOLD"
	EnvMaxGetAttempts       = "EMR_MAX_GET_ATTEMPTS"
	EnvRetryableStatuses    = "EMR_RETRYABLE_STATUSES"
	EnvBackoffSchedule      = "EMR_BACKOFF_SCHEDULE"
	EnvUnwrapKey            = "EMR_UNWRAP_KEY"
	EnvUnwrapIV             = "EMR_UNWRAP_IV"
	EnvLogLevel             = "EMR_LOG_LEVEL"
)

var lookupEnv = os.LookupEnv

// parseEnv overlays cfg with every EMR_* variable that is set.
func parseEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok {
		cfg.BaseURL = v
	}
	if v, ok := lookup(EnvUnwrapKey); ok {
		cfg.UnwrapKey = v
	}
	if v, ok := lookup(EnvUnwrapIV); ok {
		cfg.UnwrapIV = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.LogLevel = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{EnvTimeout, &cfg.Timeout},
		{EnvCoalescingWindow, &cfg.CoalescingWindow},
		{EnvSlowRequestThreshold, &cfg.SlowRequestThreshold},
	}
	for _, d := range durations {
		v, ok := lookup(d.name)
		if !ok {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if v, ok := lookup(EnvMaxGetAttempts); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxGetAttempts, err)
		}
		cfg.MaxGetAttempts = n
	}

	if v, ok := lookup(EnvRetryableStatuses); ok {
		var statuses []int
		for _, part := range splitList(v) {
			n, err := strconv.Atoi(part)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvRetryableStatuses, err)
			}
			statuses = append(statuses, n)
		}
		cfg.RetryableStatuses = statuses
	}

	if v, ok := lookup(EnvBackoffSchedule); ok {
		var schedule []time.Duration
		for _, part := range splitList(v) {
			d, err := parseDuration(part)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvBackoffSchedule, err)
			}
			schedule = append(schedule, d)
		}
		cfg.BackoffSchedule = schedule
	}

	return nil
}

// parseDuration accepts Go duration strings and bare integers as milliseconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
