// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/goccy/go-json"

	"github.com/gatewarden/gatewarden/internal/plan"
)

// Memory is an in-process Provider used for local simulation mode and
// tests. It stores entity fingerprints and converges like a real provider:
// create on first sight, update on spec drift, unchanged otherwise.
//
// Failures can be injected per entity ID to exercise orchestrator
// behavior.
type Memory struct {
	mu      sync.Mutex
	applied map[string]string // entity ID -> spec fingerprint
	calls   []string          // entity IDs in Ensure call order

	failWith  map[string]error
	failTimes map[string]int
}

// NewMemory creates an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{
		applied:   make(map[string]string),
		failWith:  make(map[string]error),
		failTimes: make(map[string]int),
	}
}

// FailWith makes every Ensure call for the entity fail with err until
// cleared by a FailTimes budget of zero or a new FailWith(nil).
func (m *Memory) FailWith(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failWith, id)
		return
	}
	m.failWith[id] = err
	m.failTimes[id] = -1 // unlimited
}

// FailTimes makes the next n Ensure calls for the entity fail with err,
// then succeed.
func (m *Memory) FailTimes(id string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith[id] = err
	m.failTimes[id] = n
}

// Ensure implements Provider.
func (m *Memory) Ensure(ctx context.Context, e plan.Entity) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", Transient(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := e.ID()
	m.calls = append(m.calls, id)

	if err, ok := m.failWith[id]; ok {
		remaining := m.failTimes[id]
		if remaining != 0 {
			if remaining > 0 {
				m.failTimes[id] = remaining - 1
				if m.failTimes[id] == 0 {
					delete(m.failWith, id)
					delete(m.failTimes, id)
				}
			}
			return "", err
		}
	}

	fp, err := Fingerprint(e)
	if err != nil {
		return "", err
	}

	prev, exists := m.applied[id]
	m.applied[id] = fp
	switch {
	case !exists:
		return OutcomeCreated, nil
	case prev != fp:
		return OutcomeUpdated, nil
	default:
		return OutcomeUnchanged, nil
	}
}

// Exists reports whether the entity has been applied.
func (m *Memory) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.applied[id]
	return ok
}

// Calls returns the Ensure call order seen so far.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Fingerprint computes a stable content hash of an entity specification,
// used for drift detection and the applied-state store.
func Fingerprint(e plan.Entity) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
