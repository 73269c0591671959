// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package provider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/gatewarden/gatewarden/internal/plan"
)

// RateLimited wraps a Provider with a token-bucket limiter so a large
// plan cannot flood the external provider's API.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps the provider, allowing rps calls per second with
// the given burst. rps <= 0 disables limiting.
func WithRateLimit(next Provider, rps float64, burst int) *RateLimited {
	var limiter *rate.Limiter
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &RateLimited{next: next, limiter: limiter}
}

// Ensure implements Provider. Waiting for a token respects context
// cancellation.
func (r *RateLimited) Ensure(ctx context.Context, e plan.Entity) (Outcome, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", Transient(err)
		}
	}
	return r.next.Ensure(ctx, e)
}
