// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatewarden.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Server.Port != 8432 {
		t.Errorf("default port = %d, want 8432", cfg.Server.Port)
	}
	if cfg.Apply.Concurrency != 4 {
		t.Errorf("default concurrency = %d, want 4", cfg.Apply.Concurrency)
	}
	if cfg.Apply.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("default retry base delay = %s", cfg.Apply.RetryBaseDelay)
	}
	if !cfg.Audit.Enabled {
		t.Error("audit should default to enabled")
	}
	if cfg.Notify.Backend != "channel" {
		t.Errorf("default notify backend = %q, want channel", cfg.Notify.Backend)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
apply:
  concurrency: 8
  trust_state: true
notify:
  backend: nats
  url: nats://broker:4222
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Apply.Concurrency != 8 || !cfg.Apply.TrustState {
		t.Errorf("apply = %+v", cfg.Apply)
	}
	if cfg.Notify.Backend != "nats" || cfg.Notify.URL != "nats://broker:4222" {
		t.Errorf("notify = %+v", cfg.Notify)
	}
	// Untouched sections keep their defaults.
	if cfg.Apply.RetryAttempts != 4 {
		t.Errorf("retry attempts = %d, want default 4", cfg.Apply.RetryAttempts)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != "https://a.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"port out of range", "server:\n  port: 99999\n"},
		{"zero concurrency", "apply:\n  concurrency: 0\n"},
		{"unknown notify backend", "notify:\n  backend: smoke-signal\n"},
		{"unknown log format", "logging:\n  format: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
