// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in
// order. The first file found wins.
var DefaultConfigPaths = []string{
	"gatewarden.yaml",
	"gatewarden.yml",
	"/etc/gatewarden/config.yaml",
	"/etc/gatewarden/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "GATEWARDEN_CONFIG"

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8432,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Apply: ApplyConfig{
			Concurrency:         4,
			RetryAttempts:       4,
			RetryBaseDelay:      500 * time.Millisecond,
			RetryMaxDelay:       15 * time.Second,
			TrustState:          false,
			ProviderRPS:         0,
			ProviderBurst:       1,
			BreakerMaxFailures:  3,
			BreakerTimeout:      time.Minute,
			BreakerResetTimeout: 2 * time.Minute,
		},
		State: StateConfig{
			Path: "/data/gatewarden/state",
		},
		Audit: AuditConfig{
			Enabled:         true,
			RetentionDays:   90,
			CleanupInterval: 24 * time.Hour,
			BufferSize:      1000,
			DatabasePath:    "/data/gatewarden/audit.duckdb",
		},
		Notify: NotifyConfig{
			Backend:       "channel",
			URL:           "nats://127.0.0.1:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			AlertTopic:    "provisioning.failures",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		ManifestPath: "manifest.yaml",
	}
}

// Load reads configuration in three layers:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path
// skips the file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are the paths parsed as comma-separated lists when
// they arrive through the environment layer as plain strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice from the YAML layer.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are skipped so that random environment noise
// cannot reach the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":         "server.host",
		"http_port":         "server.port",
		"http_timeout":      "server.timeout",
		"rate_limit_reqs":   "server.rate_limit_reqs",
		"rate_limit_window": "server.rate_limit_window",
		"cors_origins":      "server.cors_origins",

		// Apply
		"apply_concurrency":      "apply.concurrency",
		"apply_retry_attempts":   "apply.retry_attempts",
		"apply_retry_base_delay": "apply.retry_base_delay",
		"apply_retry_max_delay":  "apply.retry_max_delay",
		"apply_trust_state":      "apply.trust_state",
		"provider_rps":           "apply.provider_rps",
		"provider_burst":         "apply.provider_burst",
		"breaker_max_failures":   "apply.breaker_max_failures",
		"breaker_timeout":        "apply.breaker_timeout",
		"breaker_reset_timeout":  "apply.breaker_reset_timeout",

		// State
		"state_path": "state.path",

		// Audit
		"audit_enabled":          "audit.enabled",
		"audit_retention_days":   "audit.retention_days",
		"audit_cleanup_interval": "audit.cleanup_interval",
		"audit_buffer_size":      "audit.buffer_size",
		"audit_database_path":    "audit.database_path",

		// Notify
		"notify_backend":      "notify.backend",
		"nats_url":            "notify.url",
		"nats_max_reconnects": "notify.max_reconnects",
		"nats_reconnect_wait": "notify.reconnect_wait",
		"notify_alert_topic":  "notify.alert_topic",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Manifest
		"manifest_path": "manifest_path",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
