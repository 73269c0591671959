// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package notify publishes provisioning notifications over Watermill.
// The default backend is an in-process pub/sub; NATS JetStream is
// available for multi-node deployments.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gatewarden/gatewarden/internal/logging"
)

// Config holds notifier configuration.
type Config struct {
	// Backend selects the transport: "channel" (in-process, default)
	// or "nats".
	Backend string `json:"backend" koanf:"backend"`

	// URL of the NATS server, for the nats backend.
	URL string `json:"url" koanf:"url"`

	// MaxReconnects before the NATS client gives up. -1 retries forever.
	MaxReconnects int `json:"max_reconnects" koanf:"max_reconnects"`

	// ReconnectWait between NATS reconnection attempts.
	ReconnectWait time.Duration `json:"reconnect_wait" koanf:"reconnect_wait"`
}

// DefaultConfig returns the in-process backend.
func DefaultConfig() Config {
	return Config{
		Backend:       "channel",
		URL:           "nats://127.0.0.1:4222",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Notifier publishes JSON payloads to topics. It satisfies the alerter
// interface the provisioning orchestrator expects.
type Notifier struct {
	publisher message.Publisher
	mu        sync.RWMutex
	closed    bool

	// subscriber is set only for the in-process backend, for consumers
	// sharing the process.
	subscriber message.Subscriber
}

// New creates a notifier for the configured backend.
func New(cfg Config) (*Notifier, error) {
	switch cfg.Backend {
	case "", "channel":
		return NewGoChannel(), nil
	case "nats":
		return NewNATS(cfg)
	default:
		return nil, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
}

// NewGoChannel creates an in-process notifier. Messages are delivered
// to subscribers in the same process and lost on restart.
func NewGoChannel() *Notifier {
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, newLoggerAdapter())

	return &Notifier{
		publisher:  ps,
		subscriber: ps,
	}
}

// Publish marshals payload to JSON and publishes it on topic.
func (n *Notifier) Publish(ctx context.Context, topic string, payload any) error {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return fmt.Errorf("notifier is closed")
	}
	n.mu.RUnlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	if err := n.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns a channel of messages on topic. Only supported by
// the in-process backend.
func (n *Notifier) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if n.subscriber == nil {
		return nil, fmt.Errorf("backend does not support in-process subscription")
	}
	return n.subscriber.Subscribe(ctx, topic)
}

// Close shuts down the underlying publisher.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	return n.publisher.Close()
}

// loggerAdapter bridges Watermill logging onto zerolog.
type loggerAdapter struct {
	fields watermill.LogFields
}

func newLoggerAdapter() watermill.LoggerAdapter {
	return &loggerAdapter{}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.event(logging.Error().Err(err), fields).Msg(msg)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.event(logging.Debug(), fields).Msg(msg)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.event(logging.Debug(), fields).Msg(msg)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.event(logging.Debug(), fields).Msg(msg)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(a.fields)+len(fields))
	for k, v := range a.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &loggerAdapter{fields: merged}
}

func (a *loggerAdapter) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range a.fields {
		e = e.Interface(k, v)
	}
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
