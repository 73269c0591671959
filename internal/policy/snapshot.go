// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package policy

import (
	"sync/atomic"

	"github.com/gatewarden/gatewarden/internal/metrics"
)

// Snapshot is an immutable view of one configuration version. Every
// Decide call reads exactly one snapshot, so configuration reloads can
// never produce torn reads under concurrent evaluation.
type Snapshot struct {
	version uint64
	dir     *Directory
}

// Version returns the snapshot's monotonically increasing version.
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Directory returns the underlying directory. Callers must treat it as
// read-only.
func (s *Snapshot) Directory() *Directory {
	return s.dir
}

// Store publishes directory snapshots. Swaps are atomic; readers either
// see the old snapshot or the new one, never a mixture.
type Store struct {
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewStore creates a store with an empty initial snapshot.
func NewStore() *Store {
	st := &Store{}
	st.Swap(NewDirectory())
	return st
}

// Swap publishes a new directory as the current snapshot and returns it.
// The previous snapshot remains valid for in-flight evaluations.
func (st *Store) Swap(dir *Directory) *Snapshot {
	snap := &Snapshot{
		version: st.version.Add(1),
		dir:     dir,
	}
	st.current.Store(snap)
	metrics.SnapshotVersion.Set(float64(snap.version))
	return snap
}

// Current returns the most recently published snapshot.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}
