// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package config loads layered configuration: built-in defaults, an
// optional YAML file, and environment variable overrides, in that
// order of precedence (env highest).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `json:"server" koanf:"server"`
	Apply   ApplyConfig   `json:"apply" koanf:"apply"`
	State   StateConfig   `json:"state" koanf:"state"`
	Audit   AuditConfig   `json:"audit" koanf:"audit"`
	Notify  NotifyConfig  `json:"notify" koanf:"notify"`
	Logging LoggingConfig `json:"logging" koanf:"logging"`

	// ManifestPath is the YAML file declaring policies and entities.
	ManifestPath string `json:"manifest_path" koanf:"manifest_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `json:"host" koanf:"host"`
	Port    int           `json:"port" koanf:"port"`
	Timeout time.Duration `json:"timeout" koanf:"timeout"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	// 0 disables rate limiting.
	RateLimitReqs   int           `json:"rate_limit_reqs" koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `json:"rate_limit_window" koanf:"rate_limit_window"`

	CORSOrigins []string `json:"cors_origins" koanf:"cors_origins"`
}

// ApplyConfig tunes the provisioning orchestrator and the provider
// resilience chain.
type ApplyConfig struct {
	Concurrency    int           `json:"concurrency" koanf:"concurrency"`
	RetryAttempts  int           `json:"retry_attempts" koanf:"retry_attempts"`
	RetryBaseDelay time.Duration `json:"retry_base_delay" koanf:"retry_base_delay"`
	RetryMaxDelay  time.Duration `json:"retry_max_delay" koanf:"retry_max_delay"`

	// TrustState skips provider calls for entities whose ledger
	// fingerprint matches the plan.
	TrustState bool `json:"trust_state" koanf:"trust_state"`

	// ProviderRPS caps provider calls per second. 0 disables.
	ProviderRPS   float64 `json:"provider_rps" koanf:"provider_rps"`
	ProviderBurst int     `json:"provider_burst" koanf:"provider_burst"`

	// Breaker settings for the provider circuit breaker.
	BreakerMaxFailures  int           `json:"breaker_max_failures" koanf:"breaker_max_failures"`
	BreakerTimeout      time.Duration `json:"breaker_timeout" koanf:"breaker_timeout"`
	BreakerResetTimeout time.Duration `json:"breaker_reset_timeout" koanf:"breaker_reset_timeout"`
}

// StateConfig holds the applied-state ledger settings.
type StateConfig struct {
	// Path of the Badger directory. Empty selects an in-memory ledger.
	Path string `json:"path" koanf:"path"`
}

// AuditConfig holds audit recording settings.
type AuditConfig struct {
	Enabled         bool          `json:"enabled" koanf:"enabled"`
	RetentionDays   int           `json:"retention_days" koanf:"retention_days"`
	CleanupInterval time.Duration `json:"cleanup_interval" koanf:"cleanup_interval"`
	BufferSize      int           `json:"buffer_size" koanf:"buffer_size"`

	// DatabasePath of the DuckDB audit store. Empty selects the
	// in-memory store.
	DatabasePath string `json:"database_path" koanf:"database_path"`
}

// NotifyConfig holds notification transport settings.
type NotifyConfig struct {
	Backend       string        `json:"backend" koanf:"backend"`
	URL           string        `json:"url" koanf:"url"`
	MaxReconnects int           `json:"max_reconnects" koanf:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait" koanf:"reconnect_wait"`

	// AlertTopic receives a message when an apply run fails.
	AlertTopic string `json:"alert_topic" koanf:"alert_topic"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" koanf:"level"`
	Format string `json:"format" koanf:"format"`
	Caller bool   `json:"caller" koanf:"caller"`
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Apply.Concurrency < 1 {
		return fmt.Errorf("apply.concurrency must be at least 1, got %d", c.Apply.Concurrency)
	}
	if c.Apply.RetryAttempts < 0 {
		return fmt.Errorf("apply.retry_attempts must not be negative, got %d", c.Apply.RetryAttempts)
	}
	if c.Apply.RetryBaseDelay <= 0 {
		return fmt.Errorf("apply.retry_base_delay must be positive, got %s", c.Apply.RetryBaseDelay)
	}
	switch c.Notify.Backend {
	case "", "channel", "nats":
	default:
		return fmt.Errorf("notify.backend %q is not supported", c.Notify.Backend)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format %q is not supported", c.Logging.Format)
	}
	return nil
}
