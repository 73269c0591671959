// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package state persists the applied-state ledger: for every entity the
// orchestrator has successfully ensured, the fingerprint of the spec that
// was applied and the run that applied it. The ledger makes re-applies
// cheap (unchanged fingerprints can skip provider calls when trusted) and
// gives operators a record of what each run changed.
package state

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// keyPrefix namespaces ledger entries inside the store.
const keyPrefix = "applied/"

// Record is the persisted state for one entity.
type Record struct {
	// Fingerprint of the entity spec that was applied.
	Fingerprint string `json:"fingerprint"`

	// Outcome of the last apply: created, updated, or unchanged.
	Outcome string `json:"outcome"`

	// RunID identifies the apply run.
	RunID string `json:"run_id"`

	AppliedAt time.Time `json:"applied_at"`
}

// Store is a Badger-backed ledger. Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a ledger at path. An empty path opens an
// in-memory store, used by tests and simulation mode.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	// Badger's own logger is noisy at INFO; the caller logs lifecycle.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put records the applied state for an entity ID.
func (s *Store) Put(id string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal state record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+id), data)
	})
}

// Get returns the applied record for an entity ID. The boolean reports
// whether a record exists.
func (s *Store) Get(id string) (Record, bool, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read state record: %w", err)
	}
	return rec, true, nil
}

// Delete removes an entity's record. Removing an absent record is a no-op.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
}

// Each iterates the full ledger in key order.
func (s *Store) Each(fn func(id string, rec Record) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(keyPrefix):])
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if err := fn(id, rec); err != nil {
				return err
			}
		}
		return nil
	})
}
