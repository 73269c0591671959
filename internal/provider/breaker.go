// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package provider

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/plan"
)

// BreakerConfig tunes the circuit breaker around provider calls.
type BreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string

	// MaxRequests allowed through in half-open state.
	MaxRequests uint32

	// Interval resets failure counts while closed.
	Interval time.Duration

	// Timeout before an open breaker transitions to half-open.
	Timeout time.Duration

	// FailureRatio opens the breaker once at least MinRequests have been
	// seen and this failure ratio is reached.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "identity-provider",
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
		FailureRatio: 0.6,
		MinRequests:  10,
	}
}

// Breaker wraps a Provider with circuit breaker protection. A rejected
// call (open breaker or half-open overflow) surfaces as a transient
// error so the orchestrator's retry policy applies.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[Outcome]
	name string
}

// WithBreaker wraps the provider with a circuit breaker.
func WithBreaker(next Provider, cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg = DefaultBreakerConfig()
	}
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[Outcome](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("circuit breaker state transition")
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
		// Permanent provider failures count toward tripping; context
		// cancellation does not say anything about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Breaker{next: next, cb: cb, name: cfg.Name}
}

// Ensure implements Provider.
func (b *Breaker) Ensure(ctx context.Context, e plan.Entity) (Outcome, error) {
	outcome, err := b.cb.Execute(func() (Outcome, error) {
		return b.next.Ensure(ctx, e)
	})
	switch {
	case err == nil:
		metrics.BreakerRequests.WithLabelValues(b.name, "success").Inc()
		return outcome, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.BreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return "", Transient(err)
	default:
		metrics.BreakerRequests.WithLabelValues(b.name, "failure").Inc()
		return "", err
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
