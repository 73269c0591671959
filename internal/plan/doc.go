// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package plan builds and resolves the deployment graph over entity
// specifications.
//
// Every entity a manifest declares (groups, users, policies, attachments,
// memberships, log sinks, sink access policies, audit trails, notification
// topics) becomes a node; "must exist before" relationships become edges.
// Most edges are implied by entity kind (an attachment depends on its
// principal and its policy, an audit trail depends on its sink's access
// policy rather than merely the sink), and manifests may add explicit
// edges via depends_on.
//
// Resolve performs a deterministic topological sort: nodes with no
// remaining prerequisites are emitted in declaration order, so an
// unchanged manifest always yields an identical plan. Cycles, dangling
// references, and duplicate names are configuration errors reported
// before any provider call is made.
package plan
