// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	events []Event
	mu     sync.RWMutex
	maxLen int
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

// Save persists an audit event.
func (s *MemoryStore) Save(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Enforce max length by dropping the oldest 10%.
	if len(s.events) >= s.maxLen {
		removeCount := s.maxLen / 10
		if removeCount == 0 {
			removeCount = 1
		}
		s.events = s.events[removeCount:]
	}

	s.events = append(s.events, *event)
	return nil
}

// Query retrieves events matching the filter. Results are most-recent-
// first when filter.OrderDesc is set, oldest-first otherwise.
func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Event
	skipped := 0

	visit := func(event Event) bool {
		if !matchesFilter(&event, &filter) {
			return true
		}
		if skipped < filter.Offset {
			skipped++
			return true
		}
		results = append(results, event)
		return filter.Limit <= 0 || len(results) < filter.Limit
	}

	if filter.OrderDesc {
		for i := len(s.events) - 1; i >= 0; i-- {
			if !visit(s.events[i]) {
				break
			}
		}
	} else {
		for i := range s.events {
			if !visit(s.events[i]) {
				break
			}
		}
	}

	return results, nil
}

// Count returns the number of events matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.events {
		if matchesFilter(&s.events[i], &filter) {
			count++
		}
	}
	return count, nil
}

// Delete removes events older than the given time.
func (s *MemoryStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for i := range s.events {
		if s.events[i].Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, s.events[i])
	}
	s.events = kept
	return removed, nil
}

func matchesFilter(event *Event, filter *QueryFilter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Principal != "" && event.Principal != filter.Principal {
		return false
	}
	if filter.Decision != "" && event.Decision != filter.Decision {
		return false
	}
	if filter.Entity != "" && event.Entity != filter.Entity {
		return false
	}
	if filter.RunID != "" && event.RunID != filter.RunID {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}

	return true
}
