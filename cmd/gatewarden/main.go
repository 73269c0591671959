// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package main is the entry point for the gatewarden daemon.
//
// Gatewarden provisions access-control entities (groups, users,
// policies, attachments, log sinks) from a declarative YAML manifest
// and answers policy simulation queries against the provisioned state.
//
// # Startup order
//
//  1. Configuration: layered load via koanf (defaults, YAML file,
//     environment variables)
//  2. Manifest: parse, validate, and resolve the declared entities
//     into a deterministic apply plan; load the policy snapshot
//  3. State ledger: BadgerDB store of applied-entity fingerprints
//  4. Audit store: DuckDB (or in-memory) event trail plus the async
//     recorder
//  5. Notifier: watermill publisher (in-process channel or NATS
//     JetStream) for apply failure alerts
//  6. Orchestrator: bounded-concurrency provisioning engine over the
//     rate-limited, breaker-protected provider
//  7. HTTP API and maintenance janitors under a suture supervisor tree
//
// # Configuration
//
// Configuration is loaded via koanf with layered sources (highest
// priority wins): environment variables, config file
// (gatewarden.yaml), built-in defaults. See internal/config.
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the audit recorder flushes its buffer, and the
// state ledger closes cleanly.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/gatewarden/gatewarden/internal/api"
	"github.com/gatewarden/gatewarden/internal/audit"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/notify"
	"github.com/gatewarden/gatewarden/internal/orchestrator"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/provider"
	"github.com/gatewarden/gatewarden/internal/state"
	"github.com/gatewarden/gatewarden/internal/supervisor"
	"github.com/gatewarden/gatewarden/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("manifest", cfg.ManifestPath).
		Str("state_path", cfg.State.Path).
		Str("notify_backend", cfg.Notify.Backend).
		Msg("Starting gatewarden")

	// Resolve the manifest before opening anything else: a manifest
	// that cannot plan is a configuration error, not a runtime one.
	manifest, err := config.LoadManifest(cfg.ManifestPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.ManifestPath).Msg("Failed to load manifest")
	}
	pl, err := manifest.Plan()
	if err != nil {
		logging.Fatal().Err(err).Msg("Manifest does not resolve into a valid plan")
	}
	logging.Info().Int("entities", len(pl.Entities)).Msg("Manifest resolved")

	// The policy snapshot is available immediately so simulation works
	// before the first apply run.
	dir, err := manifest.Directory()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build policy directory")
	}
	snapshots := policy.NewStore()
	snapshots.Swap(dir)

	ledger, err := state.Open(cfg.State.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open state ledger")
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state ledger")
		}
	}()

	recorder, auditDB, err := buildRecorder(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize audit store")
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit recorder")
		}
		if auditDB != nil {
			if err := auditDB.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing audit database")
			}
		}
	}()

	notifier, err := notify.New(notify.Config{
		Backend:       cfg.Notify.Backend,
		URL:           cfg.Notify.URL,
		MaxReconnects: cfg.Notify.MaxReconnects,
		ReconnectWait: cfg.Notify.ReconnectWait,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize notifier")
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing notifier")
		}
	}()

	orch := orchestrator.New(buildProvider(cfg), ledger, notifier, orchestrator.Config{
		Concurrency:    cfg.Apply.Concurrency,
		RetryAttempts:  cfg.Apply.RetryAttempts,
		RetryBaseDelay: cfg.Apply.RetryBaseDelay,
		RetryMaxDelay:  cfg.Apply.RetryMaxDelay,
		TrustState:     cfg.Apply.TrustState,
		AlertTopic:     cfg.Notify.AlertTopic,
	})

	router := api.New(cfg, snapshots, orch, recorder)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))
	tree.AddMaintenanceService(services.NewAuditCleanupService(recorder))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Gatewarden listening")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor tree terminated")
		os.Exit(1)
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}

	logging.Info().Msg("Gatewarden stopped")
}

// buildProvider assembles the provider resilience chain: memory
// provider, rate limiter, circuit breaker. Outermost wrapper is called
// first by the orchestrator.
func buildProvider(cfg *config.Config) provider.Provider {
	var p provider.Provider = provider.NewMemory()

	if cfg.Apply.ProviderRPS > 0 {
		p = provider.WithRateLimit(p, cfg.Apply.ProviderRPS, cfg.Apply.ProviderBurst)
	}

	breakerCfg := provider.DefaultBreakerConfig()
	if cfg.Apply.BreakerMaxFailures > 0 {
		breakerCfg.MinRequests = uint32(cfg.Apply.BreakerMaxFailures)
	}
	if cfg.Apply.BreakerTimeout > 0 {
		breakerCfg.Interval = cfg.Apply.BreakerTimeout
	}
	if cfg.Apply.BreakerResetTimeout > 0 {
		breakerCfg.Timeout = cfg.Apply.BreakerResetTimeout
	}
	return provider.WithBreaker(p, breakerCfg)
}

// buildRecorder opens the configured audit store. The *sql.DB return is
// non-nil only for the DuckDB store and must be closed by the caller
// after the recorder.
func buildRecorder(cfg *config.Config) (*audit.Recorder, *sql.DB, error) {
	auditCfg := audit.Config{
		Enabled:         cfg.Audit.Enabled,
		RetentionDays:   cfg.Audit.RetentionDays,
		CleanupInterval: cfg.Audit.CleanupInterval,
		BufferSize:      cfg.Audit.BufferSize,
	}

	if cfg.Audit.DatabasePath == "" {
		return audit.NewRecorder(audit.NewMemoryStore(0), auditCfg), nil, nil
	}

	db, err := sql.Open("duckdb", cfg.Audit.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit database: %w", err)
	}

	store := audit.NewDuckDBStore(db)
	if err := store.CreateTable(context.Background()); err != nil {
		//nolint:errcheck // already failing, best-effort close
		db.Close()
		return nil, nil, fmt.Errorf("create audit schema: %w", err)
	}

	return audit.NewRecorder(store, auditCfg), db, nil
}
