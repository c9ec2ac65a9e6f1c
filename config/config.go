// Package config loads client and asset pipeline settings from defaults, an
// optional JSON file and EMR_* environment variables, in that order.
package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/MaheshReddy-s/emrcore"
	"github.com/MaheshReddy-s/emrcore/assets"
)

// Config holds runtime settings.
//
// UnwrapKey and UnwrapIV are the application level AES-CBC key and IV. They
// are read as UTF-8 text unless prefixed with "base64:".
type Config struct {
	BaseURL              string
	Timeout              time.Duration
	MaxGetAttempts       int
	CoalescingWindow     time.Duration
	SlowRequestThreshold time.Duration
	RetryableStatuses    []int
	BackoffSchedule      []time.Duration
	UnwrapKey            string
	UnwrapIV             string
	LogLevel             string
}

// LoadDefaults populates c with the client defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = ""
	c.Timeout = emrcore.DefaultTimeout
	c.MaxGetAttempts = emrcore.DefaultMaxGetAttempts
	c.CoalescingWindow = emrcore.DefaultCoalescingWindow
	c.SlowRequestThreshold = emrcore.DefaultSlowRequestThreshold
	c.RetryableStatuses = append([]int(nil), emrcore.DefaultRetryableStatuses...)
	c.BackoffSchedule = []time.Duration{200 * time.Millisecond, 500 * time.Millisecond}
	c.LogLevel = "info"
}

// LoadConfig applies defaults, then the JSON file at path (skipped when path
// is empty), then environment variables. Later sources win.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, path); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, lookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClientOptions maps the settings onto client options. logger may be nil.
func (c *Config) ClientOptions(logger emrcore.Logger) []emrcore.Option {
	opts := []emrcore.Option{
		emrcore.WithTimeout(c.Timeout),
		emrcore.WithMaxGetAttempts(c.MaxGetAttempts),
		emrcore.WithCoalescingWindow(c.CoalescingWindow),
		emrcore.WithSlowRequestThreshold(c.SlowRequestThreshold),
		emrcore.WithRetryableStatuses(c.RetryableStatuses...),
		emrcore.WithBackoffSchedule(c.BackoffSchedule...),
	}
	if c.BaseURL != "" {
		opts = append(opts, emrcore.WithBaseURL(c.BaseURL))
	}
	if logger != nil {
		opts = append(opts, emrcore.WithLogger(logger))
	}
	return opts
}

// Logger builds a zap logger at LogLevel.
func (c *Config) Logger() (*emrcore.ZapLogger, error) {
	return emrcore.NewLeveledLogger(c.LogLevel)
}

// Unwrap returns the key unwrap settings for the asset pipeline.
func (c *Config) Unwrap() (assets.UnwrapConfig, error) {
	key, err := decodeSecret(c.UnwrapKey)
	if err != nil {
		return assets.UnwrapConfig{}, fmt.Errorf("unwrap key: %w", err)
	}
	iv, err := decodeSecret(c.UnwrapIV)
	if err != nil {
		return assets.UnwrapConfig{}, fmt.Errorf("unwrap iv: %w", err)
	}
	if len(key) == 0 || len(iv) == 0 {
		return assets.UnwrapConfig{}, fmt.Errorf("unwrap key and iv are required")
	}
	return assets.UnwrapConfig{Key: key, IV: iv}, nil
}

func decodeSecret(s string) ([]byte, error) {
	if encoded, ok := strings.CutPrefix(s, "base64:"); ok {
		return base64.StdEncoding.DecodeString(encoded)
	}
	return []byte(s), nil
}
