// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/gatewarden/gatewarden/internal/logging"
)

// DuckDBStore implements Store using DuckDB for durable persistence.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a DuckDB-backed audit store. Call CreateTable
// before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table and indexes if missing.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,

			-- Decision events
			principal TEXT,
			action TEXT,
			resource TEXT,
			decision TEXT,
			matched_policy TEXT,

			-- Provisioning events
			entity TEXT,
			status TEXT,
			run_id TEXT,

			request_id TEXT,
			detail JSON,

			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type);
		CREATE INDEX IF NOT EXISTS idx_audit_principal ON audit_events(principal);
		CREATE INDEX IF NOT EXISTS idx_audit_decision ON audit_events(decision);
		CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_events(entity);
		CREATE INDEX IF NOT EXISTS idx_audit_run_id ON audit_events(run_id);
	`

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Info().Msg("Audit events table created/verified")
	return nil
}

// Save persists an audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	query := `
		INSERT INTO audit_events (
			id, timestamp, type,
			principal, action, resource, decision, matched_policy,
			entity, status, run_id,
			request_id, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var detail *string
	if len(event.Detail) > 0 {
		d := string(event.Detail)
		detail = &d
	}

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Type),
		event.Principal,
		event.Action,
		event.Resource,
		event.Decision,
		event.MatchedPolicy,
		event.Entity,
		event.Status,
		event.RunID,
		event.RequestID,
		detail,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}

	return nil
}

// Query retrieves events matching the filter.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, false)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit event row")
			continue
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// Count returns the number of events matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := buildQuery(filter, true)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	return count, nil
}

// Delete removes events older than the given time.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	if count > 0 {
		logging.Info().Int64("deleted", count).Time("older_than", olderThan).Msg("Deleted expired audit events")
	}

	return count, nil
}

func buildQuery(filter QueryFilter, countOnly bool) (string, []any) {
	var conditions []string
	var args []any

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conditions = append(conditions, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}

	appendEq := func(column, value string) {
		if value != "" {
			conditions = append(conditions, column+" = ?")
			args = append(args, value)
		}
	}
	appendEq("principal", filter.Principal)
	appendEq("decision", filter.Decision)
	appendEq("entity", filter.Entity)
	appendEq("run_id", filter.RunID)

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}

	var query string
	if countOnly {
		query = "SELECT COUNT(*) FROM audit_events"
	} else {
		// Cast the JSON column to VARCHAR for scanning.
		query = `
			SELECT
				id, timestamp, type,
				principal, action, resource, decision, matched_policy,
				entity, status, run_id,
				request_id, CAST(detail AS VARCHAR) as detail
			FROM audit_events
		`
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	if !countOnly {
		if filter.OrderDesc {
			query += " ORDER BY timestamp DESC"
		} else {
			query += " ORDER BY timestamp ASC"
		}
		if filter.Limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		}
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	return query, args
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		event  Event
		typ    string
		detail sql.NullString
	)

	var principal, action, resource, decision, matchedPolicy sql.NullString
	var entity, status, runID, requestID sql.NullString

	err := rows.Scan(
		&event.ID,
		&event.Timestamp,
		&typ,
		&principal,
		&action,
		&resource,
		&decision,
		&matchedPolicy,
		&entity,
		&status,
		&runID,
		&requestID,
		&detail,
	)
	if err != nil {
		return nil, err
	}

	event.Type = EventType(typ)
	event.Principal = principal.String
	event.Action = action.String
	event.Resource = resource.String
	event.Decision = decision.String
	event.MatchedPolicy = matchedPolicy.String
	event.Entity = entity.String
	event.Status = status.String
	event.RunID = runID.String
	event.RequestID = requestID.String
	if detail.Valid && detail.String != "" {
		event.Detail = json.RawMessage(detail.String)
	}

	return &event, nil
}
