// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package metrics exposes Prometheus collectors for gatewarden.
// Covered areas:
//   - Policy decision counts and latency
//   - Provisioning apply outcomes and run duration
//   - Identity-provider call retries and circuit breaker state
//   - API request counts and latency
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Policy evaluation metrics
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_decisions_total",
			Help: "Total number of policy decisions by effect",
		},
		[]string{"decision"}, // "allow", "deny", "implicit_deny"
	)

	DecisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatewarden_decision_duration_seconds",
			Help:    "Latency of policy decisions in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	SnapshotVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatewarden_policy_snapshot_version",
			Help: "Version of the currently active policy snapshot",
		},
	)

	// Provisioning metrics
	ApplyEntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_apply_entities_total",
			Help: "Total entity apply outcomes by status",
		},
		[]string{"status"}, // "created", "updated", "unchanged", "failed", "not_attempted"
	)

	ApplyRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatewarden_apply_run_duration_seconds",
			Help:    "Duration of full apply runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	ProviderRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_provider_retries_total",
			Help: "Total number of retried identity-provider calls",
		},
		[]string{"kind"}, // entity kind
	)

	// Circuit breaker metrics
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gatewarden_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	BreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "outcome"}, // "success", "failure", "rejected"
	)

	// Audit pipeline metrics
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_audit_events_total",
			Help: "Total audit events by disposition",
		},
		[]string{"disposition"}, // "recorded", "dropped"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewarden_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatewarden_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)
)
