// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDecisionsTotalIncrements(t *testing.T) {
	before := testutil.ToFloat64(DecisionsTotal.WithLabelValues("deny"))
	DecisionsTotal.WithLabelValues("deny").Inc()
	after := testutil.ToFloat64(DecisionsTotal.WithLabelValues("deny"))

	if after != before+1 {
		t.Errorf("expected counter to increase by 1, before=%v after=%v", before, after)
	}
}

func TestApplyEntitiesTotalLabels(t *testing.T) {
	// Each documented status label must be usable without panic.
	for _, status := range []string{"created", "updated", "unchanged", "failed", "not_attempted"} {
		ApplyEntitiesTotal.WithLabelValues(status).Add(0)
	}
}

func TestBreakerStateGauge(t *testing.T) {
	BreakerState.WithLabelValues("test-breaker").Set(2)
	got := testutil.ToFloat64(BreakerState.WithLabelValues("test-breaker"))
	if got != 2 {
		t.Errorf("BreakerState = %v, want 2", got)
	}
}
