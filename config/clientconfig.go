package config

import (
	"fmt"
	"os"
	"time"

	"github.com/virtuclass/classkit/faults"
	"gopkg.in/yaml.v3"
)

// ClientConfig carries the deployment settings for one classroom client.
type ClientConfig struct {
	// AppID identifies the application with the media conferencing provider.
	AppID string `yaml:"app_id"`
	// SignalingEndpoint is the base URL of the session-signaling backend
	// that issues short-lived join tokens.
	SignalingEndpoint string `yaml:"signaling_endpoint"`
	// SyncEndpoint is the base URL (ws:// or wss://) of the sync
	// transport endpoint.
	SyncEndpoint string `yaml:"sync_endpoint"`
	// Reconnect overrides the retry defaults when non-zero.
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig overrides the backoff defaults. Zero fields keep the
// package defaults.
type ReconnectConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoadClientConfig reads and parses a YAML configuration file, applies
// defaults, and validates required fields.
func LoadClientConfig(path string) (*ClientConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *ClientConfig) applyDefaults() {
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxReconnectAttempts
	}

	if c.Reconnect.InitialDelay == 0 {
		c.Reconnect.InitialDelay = DefaultReconnectInitialDelay
	}

	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}

	if c.Reconnect.BackoffMultiplier == 0 {
		c.Reconnect.BackoffMultiplier = DefaultBackoffMultiplier
	}
}

// Validate checks that all required identifiers are present.
func (c *ClientConfig) Validate() error {
	if c.AppID == "" {
		return faults.Configuration("app_id is required")
	}

	if c.SignalingEndpoint == "" {
		return faults.Configuration("signaling_endpoint is required")
	}

	if c.SyncEndpoint == "" {
		return faults.Configuration("sync_endpoint is required")
	}

	if c.Reconnect.MaxAttempts < 0 {
		return faults.Configuration("reconnect.max_attempts must be positive")
	}

	return nil
}
