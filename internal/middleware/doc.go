// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package middleware provides HTTP middleware shared by the API router:
// request ID propagation and Prometheus request instrumentation. All
// middleware uses the standard func(http.Handler) http.Handler shape so
// it composes directly with chi.
package middleware
