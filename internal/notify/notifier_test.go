// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package notify

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestGoChannelPublishDeliversToSubscribers(t *testing.T) {
	n := NewGoChannel()
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := n.Subscribe(ctx, "provisioning.failures")
	if err != nil {
		t.Fatal(err)
	}

	payload := map[string]any{"run_id": "r1", "failed": 2}
	if err := n.Publish(ctx, "provisioning.failures", payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		var got map[string]any
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if got["run_id"] != "r1" {
			t.Errorf("run_id = %v, want r1", got["run_id"])
		}
		if msg.UUID == "" {
			t.Error("message UUID should be set")
		}
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("message never delivered")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	n := NewGoChannel()
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if err := n.Publish(context.Background(), "t", "x"); err == nil {
		t.Error("publish after close should fail")
	}
	// Close is idempotent.
	if err := n.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestPublishRejectsUnmarshalablePayload(t *testing.T) {
	n := NewGoChannel()
	defer n.Close()

	if err := n.Publish(context.Background(), "t", make(chan int)); err == nil {
		t.Error("channel payload should fail to marshal")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	n, err := New(Config{Backend: "channel"})
	if err != nil {
		t.Fatal(err)
	}
	n.Close()

	if _, err := New(Config{Backend: "carrier-pigeon"}); err == nil {
		t.Error("unknown backend should be rejected")
	}
}
