// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package audit records access decisions and provisioning activity
// for compliance review and forensic analysis.
package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Policy evaluation events
	EventTypeDecision        EventType = "policy.decision"
	EventTypeSnapshotSwapped EventType = "policy.snapshot_swapped"

	// Provisioning events
	EventTypeRunStarted    EventType = "provision.run_started"
	EventTypeRunFinished   EventType = "provision.run_finished"
	EventTypeEntityApplied EventType = "provision.entity_applied"
	EventTypeEntityFailed  EventType = "provision.entity_failed"
)

// Event is a single audit record. Decision events populate the
// Principal/Action/Resource/Decision fields; provisioning events
// populate Entity/Status/RunID.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Principal that requested the action.
	Principal string `json:"principal,omitempty"`

	// Action that was evaluated.
	Action string `json:"action,omitempty"`

	// Resource the action targeted.
	Resource string `json:"resource,omitempty"`

	// Decision rendered: allow, deny, or implicit_deny.
	Decision string `json:"decision,omitempty"`

	// MatchedPolicy names the policy whose statement determined the
	// decision, if any statement matched.
	MatchedPolicy string `json:"matched_policy,omitempty"`

	// Entity is the plan entity ID for provisioning events.
	Entity string `json:"entity,omitempty"`

	// Status of the provisioning step (created, updated, failed, ...).
	Status string `json:"status,omitempty"`

	// RunID links the events of one apply run.
	RunID string `json:"run_id,omitempty"`

	// RequestID from the originating HTTP request.
	RequestID string `json:"request_id,omitempty"`

	// Detail carries event-specific context.
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Query retrieves events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than the given time.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter defines filtering options for audit queries.
type QueryFilter struct {
	// Types filters by event types.
	Types []EventType `json:"types,omitempty"`

	// Principal filters decision events by principal.
	Principal string `json:"principal,omitempty"`

	// Decision filters by rendered decision.
	Decision string `json:"decision,omitempty"`

	// Entity filters provisioning events by entity ID.
	Entity string `json:"entity,omitempty"`

	// RunID filters by apply run.
	RunID string `json:"run_id,omitempty"`

	// StartTime is the beginning of the time range.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is the end of the time range.
	EndTime *time.Time `json:"end_time,omitempty"`

	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty"`

	// Offset for pagination.
	Offset int `json:"offset,omitempty"`

	// OrderDesc sorts most-recent-first.
	OrderDesc bool `json:"order_desc,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{
		Limit:     100,
		OrderDesc: true,
	}
}
