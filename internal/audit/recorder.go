// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/policy"
)

// Config holds configuration for the audit recorder.
type Config struct {
	// Enabled controls whether audit recording is active.
	Enabled bool `json:"enabled" koanf:"enabled"`

	// RetentionDays is how long to keep audit events.
	RetentionDays int `json:"retention_days" koanf:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval" koanf:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size" koanf:"buffer_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
	}
}

// Recorder buffers events and writes them to the store asynchronously,
// so policy evaluation never blocks on audit persistence. The buffer is
// bounded; when it fills, events are dropped and counted rather than
// backpressuring the caller.
type Recorder struct {
	config    Config
	store     Store
	eventChan chan *Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewRecorder creates a recorder writing to store and starts its
// background writer.
func NewRecorder(store Store, config Config) *Recorder {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	r := &Recorder{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	r.wg.Add(1)
	go r.asyncWriter()

	return r
}

// asyncWriter drains the buffer into the store.
func (r *Recorder) asyncWriter() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			// Drain remaining events before exiting.
			for {
				select {
				case event := <-r.eventChan:
					r.writeEvent(event)
				default:
					return
				}
			}
		case event := <-r.eventChan:
			r.writeEvent(event)
		}
	}
}

func (r *Recorder) writeEvent(event *Event) {
	if r.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to save audit event")
		metrics.AuditEventsTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.AuditEventsTotal.WithLabelValues("recorded").Inc()
}

// Record enqueues an audit event. It never blocks: if the buffer is
// full the event is dropped and counted.
func (r *Recorder) Record(event *Event) {
	if !r.config.Enabled {
		return
	}

	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case r.eventChan <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Msg("Audit buffer full, dropping event")
		metrics.AuditEventsTotal.WithLabelValues("dropped").Inc()
	}
}

// RecordDecision records the outcome of one policy evaluation.
func (r *Recorder) RecordDecision(ctx context.Context, principal, action, resource string, result policy.Result) {
	var matched string
	if len(result.Matched) > 0 {
		matched = result.Matched[0].PolicyName
	}
	r.Record(&Event{
		Type:          EventTypeDecision,
		Principal:     principal,
		Action:        action,
		Resource:      resource,
		Decision:      result.Decision.MetricLabel(),
		MatchedPolicy: matched,
		RequestID:     getRequestID(ctx),
	})
}

// RecordEntity records the result of one provisioning step.
func (r *Recorder) RecordEntity(runID, entityID, status string, stepErr error) {
	typ := EventTypeEntityApplied
	var detail json.RawMessage
	if stepErr != nil {
		typ = EventTypeEntityFailed
		detail = mustJSON(map[string]string{"error": stepErr.Error()})
	}
	r.Record(&Event{
		Type:   typ,
		Entity: entityID,
		Status: status,
		RunID:  runID,
		Detail: detail,
	})
}

// RecordRun records the start or end of an apply run.
func (r *Recorder) RecordRun(runID string, finished bool, counts map[string]int) {
	typ := EventTypeRunStarted
	var detail json.RawMessage
	if finished {
		typ = EventTypeRunFinished
		detail = mustJSON(counts)
	}
	r.Record(&Event{
		Type:   typ,
		RunID:  runID,
		Detail: detail,
	})
}

// RecordSnapshotSwap records activation of a new policy snapshot,
// linked to the apply run that produced it.
func (r *Recorder) RecordSnapshotSwap(runID string, version uint64) {
	r.Record(&Event{
		Type:   EventTypeSnapshotSwapped,
		RunID:  runID,
		Detail: mustJSON(map[string]uint64{"snapshot_version": version}),
	})
}

// Query retrieves events matching the filter.
func (r *Recorder) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return r.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (r *Recorder) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return r.store.Count(ctx, filter)
}

// RunCleanup deletes events past retention on a timer. It blocks until
// ctx is cancelled, so it can run directly under a supervisor.
func (r *Recorder) RunCleanup(ctx context.Context) error {
	interval := r.config.CleanupInterval
	retention := r.config.RetentionDays
	if interval <= 0 || retention <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retention)
			count, err := r.store.Delete(ctx, cutoff)
			if err != nil {
				logging.Error().Err(err).Msg("Audit cleanup error")
			} else if count > 0 {
				logging.Info().Int64("count", count).Msg("Cleaned up expired audit events")
			}
		}
	}
}

// Close drains the buffer and stops the writer.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() {
		close(r.stopChan)
	})
	r.wg.Wait()
	return nil
}

func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func getRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return logging.RequestIDFromContext(ctx)
}
