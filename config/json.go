package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// jsonConfig is the file shape. Pointer fields distinguish "absent" from
// zero so a file can set a window of 0 to disable coalescing.
type jsonConfig struct {
	BaseURL              *string    `json:"base_url"`
	Timeout              *Duration  `json:"timeout"`
	MaxGetAttempts       *int       `json:"max_get_attempts"`
	CoalescingWindow     *Duration  `json:"coalescing_window"`
	SlowRequestThreshold *Duration  `json:"slow_request_threshold"`
	RetryableStatuses    []int      `json:"retryable_statuses"`
	BackoffSchedule      []Duration `json:"backoff_schedule"`
	UnwrapKey            *string    `json:"unwrap_key"`
	UnwrapIV             *string    `json:"unwrap_iv"`
	LogLevel             *string    `json:"log_level"`
}

// parseJSON overlays cfg with the fields present in the file at path.
func parseJSON(cfg *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.BaseURL != nil {
		cfg.BaseURL = *jc.BaseURL
	}
	if jc.Timeout != nil {
		cfg.Timeout = jc.Timeout.Duration
	}
	if jc.MaxGetAttempts != nil {
		cfg.MaxGetAttempts = *jc.MaxGetAttempts
	}
	if jc.CoalescingWindow != nil {
		cfg.CoalescingWindow = jc.CoalescingWindow.Duration
	}
	if jc.SlowRequestThreshold != nil {
		cfg.SlowRequestThreshold = jc.SlowRequestThreshold.Duration
	}
	if jc.RetryableStatuses != nil {
		cfg.RetryableStatuses = jc.RetryableStatuses
	}
	if jc.BackoffSchedule != nil {
		cfg.BackoffSchedule = make([]time.Duration, len(jc.BackoffSchedule))
		for i, d := range jc.BackoffSchedule {
			cfg.BackoffSchedule[i] = d.Duration
		}
	}
	if jc.UnwrapKey != nil {
		cfg.UnwrapKey = *jc.UnwrapKey
	}
	if jc.UnwrapIV != nil {
		cfg.UnwrapIV = *jc.UnwrapIV
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
	return nil
}
