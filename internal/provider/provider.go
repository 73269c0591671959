// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package provider defines the identity-provider collaborator: the external
// system that accepts entity specifications and returns created or updated
// resource identifiers. The engine never talks to a cloud API directly;
// everything goes through the Provider interface, wrapped with rate
// limiting and a circuit breaker.
package provider

import (
	"context"

	"github.com/gatewarden/gatewarden/internal/plan"
)

// Outcome describes what Ensure did for an entity.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// Provider creates or updates entities in the external identity provider.
// Ensure must be idempotent: ensuring an entity that already exists in the
// desired state returns OutcomeUnchanged, never a duplicate-creation error.
type Provider interface {
	Ensure(ctx context.Context, e plan.Entity) (Outcome, error)
}
