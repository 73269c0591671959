// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package supervisor

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewTreeAppliesDefaults(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{})

	if tree.Root() == nil {
		t.Fatal("root supervisor must not be nil")
	}
	want := DefaultTreeConfig()
	if tree.config != want {
		t.Errorf("config = %+v, want defaults %+v", tree.config, want)
	}
}

// blockingService runs until cancelled and reports that it started.
type blockingService struct {
	started chan struct{}
}

func (s *blockingService) Serve(ctx context.Context) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *blockingService) String() string { return "blocking" }

func TestTreeRunsAndStopsServices(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureBackoff:  time.Second,
		ShutdownTimeout: 2 * time.Second,
	})

	apiSvc := &blockingService{started: make(chan struct{}, 1)}
	maintSvc := &blockingService{started: make(chan struct{}, 1)}
	tree.AddAPIService(apiSvc)
	tree.AddMaintenanceService(maintSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for name, started := range map[string]chan struct{}{
		"api": apiSvc.started, "maintenance": maintSvc.started,
	} {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s service never started", name)
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancellation")
	}

	unstopped, err := tree.UnstoppedServiceReport()
	if err != nil {
		t.Fatal(err)
	}
	if len(unstopped) != 0 {
		t.Errorf("unstopped services: %v", unstopped)
	}
}
