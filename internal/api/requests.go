// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gatewarden/gatewarden/internal/audit"
	"github.com/gatewarden/gatewarden/internal/policy"
)

// SimulateRequest is the body of POST /api/v1/simulate. It carries the
// access request to evaluate against the active policy snapshot.
type SimulateRequest struct {
	Principal string `json:"principal" validate:"required"`
	Action    string `json:"action" validate:"required"`
	Resource  string `json:"resource" validate:"required"`

	// ResourceTags feed "tag:" condition keys.
	ResourceTags map[string]string `json:"resource_tags,omitempty"`

	// Session feeds session-attribute condition keys.
	Session map[string]string `json:"session,omitempty"`
}

// context builds the evaluation input from the request body.
func (sr *SimulateRequest) context() *policy.RequestContext {
	return &policy.RequestContext{
		Principal:    sr.Principal,
		Action:       sr.Action,
		Resource:     sr.Resource,
		ResourceTags: sr.ResourceTags,
		Session:      sr.Session,
	}
}

// SimulateResponse reports the decision and which statements produced it.
type SimulateResponse struct {
	Decision policy.Decision           `json:"decision"`
	Allowed  bool                      `json:"allowed"`
	Matched  []policy.MatchedStatement `json:"matched,omitempty"`

	// SnapshotVersion identifies the policy snapshot the decision was
	// made against, for correlating simulations across reloads.
	SnapshotVersion uint64 `json:"snapshot_version"`
}

// PlanEntry describes one entity in resolved apply order.
type PlanEntry struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Name          string   `json:"name"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// PlanResponse is the body of GET /api/v1/plan.
type PlanResponse struct {
	Entities []PlanEntry `json:"entities"`
}

// ApplyResponse wraps an apply run outcome.
type ApplyResponse struct {
	RunID     string         `json:"run_id"`
	Converged bool           `json:"converged"`
	Started   time.Time      `json:"started"`
	Finished  time.Time      `json:"finished"`
	Counts    map[string]int `json:"counts"`
	Entities  interface{}    `json:"entities"`

	// SnapshotVersion is set when the run converged and the policy
	// snapshot was swapped to the newly applied manifest.
	SnapshotVersion uint64 `json:"snapshot_version,omitempty"`
}

// maxAuditPageSize caps the limit query parameter.
const maxAuditPageSize = 1000

// parseAuditFilter builds an audit query filter from URL query
// parameters. Unknown parameters are ignored; malformed values error.
func parseAuditFilter(values url.Values) (audit.QueryFilter, error) {
	filter := audit.DefaultQueryFilter()

	if raw := values.Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			filter.Types = append(filter.Types, audit.EventType(strings.TrimSpace(t)))
		}
	}
	filter.Principal = values.Get("principal")
	filter.Decision = values.Get("decision")
	filter.Entity = values.Get("entity")
	filter.RunID = values.Get("run_id")

	if raw := values.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid since timestamp: %w", err)
		}
		filter.StartTime = &t
	}
	if raw := values.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid until timestamp: %w", err)
		}
		filter.EndTime = &t
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		if n > maxAuditPageSize {
			n = maxAuditPageSize
		}
		filter.Limit = n
	}
	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset %q", raw)
		}
		filter.Offset = n
	}
	if raw := values.Get("order"); raw != "" {
		switch raw {
		case "asc":
			filter.OrderDesc = false
		case "desc":
			filter.OrderDesc = true
		default:
			return filter, fmt.Errorf("invalid order %q, want asc or desc", raw)
		}
	}

	return filter, nil
}
