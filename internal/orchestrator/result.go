// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package orchestrator

import (
	"time"
)

// Status is the per-entity outcome of an apply run.
type Status string

const (
	StatusCreated   Status = "created"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"

	// StatusNotAttempted marks entities that were never started because a
	// prerequisite failed or the run was halted.
	StatusNotAttempted Status = "not_attempted"
)

// EntityResult records what happened to one entity.
type EntityResult struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of one apply run. Entities appear in plan order.
type Result struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Entities []EntityResult `json:"entities"`

	byID map[string]int
}

func newResult(runID string, ids []string) *Result {
	r := &Result{
		RunID:    runID,
		Started:  time.Now().UTC(),
		Entities: make([]EntityResult, len(ids)),
		byID:     make(map[string]int, len(ids)),
	}
	for i, id := range ids {
		r.Entities[i] = EntityResult{ID: id, Status: StatusNotAttempted}
		r.byID[id] = i
	}
	return r
}

func (r *Result) set(id string, status Status, attempts int, err error) {
	i := r.byID[id]
	r.Entities[i].Status = status
	r.Entities[i].Attempts = attempts
	if err != nil {
		r.Entities[i].Error = err.Error()
	}
}

// Status returns the recorded status for an entity ID.
func (r *Result) Status(id string) Status {
	if i, ok := r.byID[id]; ok {
		return r.Entities[i].Status
	}
	return ""
}

// OK reports whether every entity converged (created, updated, or
// unchanged).
func (r *Result) OK() bool {
	for _, e := range r.Entities {
		switch e.Status {
		case StatusCreated, StatusUpdated, StatusUnchanged:
		default:
			return false
		}
	}
	return true
}

// Counts tallies entities by status.
func (r *Result) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, e := range r.Entities {
		counts[e.Status]++
	}
	return counts
}
