// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package api exposes policy simulation, plan inspection, provisioning
// runs, and audit queries over HTTP. Routing is built on chi with the
// production middleware stack from its ecosystem.
package api

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatewarden/gatewarden/internal/audit"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/middleware"
	"github.com/gatewarden/gatewarden/internal/orchestrator"
	"github.com/gatewarden/gatewarden/internal/policy"
)

// Router wires HTTP handlers to the policy store, the provisioning
// orchestrator, and the audit recorder.
type Router struct {
	cfg       *config.Config
	snapshots *policy.Store
	orch      *orchestrator.Orchestrator
	recorder  *audit.Recorder

	// loadManifest reads the declared manifest. Separated out so tests
	// can feed manifests without touching the filesystem.
	loadManifest func() (*config.Manifest, error)

	// applying guards against overlapping apply runs; the provider is
	// the serialization point and two runs would race on convergence.
	applying atomic.Bool
}

// New creates a router over the given dependencies. The manifest is
// re-read from cfg.ManifestPath on every plan and apply request so
// edits take effect without a restart.
func New(cfg *config.Config, snapshots *policy.Store, orch *orchestrator.Orchestrator, recorder *audit.Recorder) *Router {
	return &Router{
		cfg:       cfg,
		snapshots: snapshots,
		orch:      orch,
		recorder:  recorder,
		loadManifest: func() (*config.Manifest, error) {
			return config.LoadManifest(cfg.ManifestPath)
		},
	}
}

// SetupChi builds the HTTP handler tree.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, outermost first.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		MaxAge:         86400,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		if router.cfg.Server.RateLimitReqs > 0 {
			r.Use(httprate.Limit(
				router.cfg.Server.RateLimitReqs,
				router.cfg.Server.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}

		r.Post("/simulate", router.handleSimulate)
		r.Get("/plan", router.handlePlan)
		r.Post("/apply", router.handleApply)
		r.Get("/audit/events", router.handleAuditEvents)

		r.Route("/health", func(r chi.Router) {
			r.Get("/live", router.handleHealthLive)
			r.Get("/ready", router.handleHealthReady)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
