// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package orchestrator drives creation and update of entities through the
// identity provider, in the order a resolved plan dictates.
//
// Entities with no dependency relationship run concurrently in a bounded
// worker pool; an entity connected by an edge never starts before its
// prerequisite has observably succeeded. A permanent failure halts all
// further scheduling: in-flight entities finish, everything not yet
// started is reported NotAttempted. Transient failures are retried with
// exponential backoff inside the entity's own step.
//
// Re-running Apply against an already-satisfied provider converges: every
// entity reports Unchanged and no side effects occur.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/plan"
	"github.com/gatewarden/gatewarden/internal/provider"
	"github.com/gatewarden/gatewarden/internal/state"
)

// Alerter publishes operator alerts. Satisfied by notify.Publisher.
type Alerter interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Config tunes an apply run.
type Config struct {
	// Concurrency bounds the worker pool. Minimum 1.
	Concurrency int

	// RetryAttempts is the number of retries after the first try for
	// transient provider errors.
	RetryAttempts int

	// RetryBaseDelay is the first backoff delay; each retry doubles it up
	// to RetryMaxDelay.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// TrustState skips the provider call for entities whose ledger
	// fingerprint already matches the spec. Off by default: the provider
	// remains the source of truth unless the operator opts in.
	TrustState bool

	// AlertTopic, when set together with an Alerter, receives a message
	// for every run that did not fully converge.
	AlertTopic string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:    4,
		RetryAttempts:  4,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  15 * time.Second,
	}
}

// Orchestrator applies resolved plans through a Provider.
type Orchestrator struct {
	provider provider.Provider
	ledger   *state.Store // optional
	alerter  Alerter      // optional
	cfg      Config

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator. ledger and alerter may be nil.
func New(p provider.Provider, ledger *state.Store, alerter Alerter, cfg Config) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	return &Orchestrator{
		provider: p,
		ledger:   ledger,
		alerter:  alerter,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// stepDone carries a finished entity step back to the scheduler.
type stepDone struct {
	index    int
	status   Status
	attempts int
	err      error
}

// Apply executes the plan. The returned Result always covers every
// entity; failures are reported in the result, not as the error return.
// The error return is reserved for a context already cancelled before
// any step started.
//
// Cancellation is honored between entity steps only: a step calls the
// provider with a non-cancellable context so no call is abandoned
// mid-flight against the external system.
func (o *Orchestrator) Apply(ctx context.Context, pl *plan.Plan) (*Result, error) {
	runID := uuid.NewString()
	result := newResult(runID, pl.IDs())

	if err := ctx.Err(); err != nil {
		result.Finished = time.Now().UTC()
		return result, err
	}

	started := time.Now()
	logging.Info().
		Str("run_id", runID).
		Int("entities", len(pl.Entities)).
		Int("concurrency", o.cfg.Concurrency).
		Msg("apply run started")

	// Dependency bookkeeping. dependents are kept sorted by plan index so
	// scheduling stays deterministic.
	indexByID := make(map[string]int, len(pl.Entities))
	for i := range pl.Entities {
		indexByID[pl.Entities[i].ID()] = i
	}
	indegree := make([]int, len(pl.Entities))
	dependents := make([][]int, len(pl.Entities))
	for i := range pl.Entities {
		pres := pl.Prerequisites(pl.Entities[i].ID())
		indegree[i] = len(pres)
		for _, pre := range pres {
			j := indexByID[pre]
			dependents[j] = append(dependents[j], i)
		}
	}
	for i := range dependents {
		sort.Ints(dependents[i])
	}

	var ready []int
	for i := range pl.Entities {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	done := make(chan stepDone)
	inFlight := 0
	halted := false

	for {
		// Schedule while capacity and work remain, unless halted.
		for !halted && inFlight < o.cfg.Concurrency && len(ready) > 0 {
			idx := ready[0]
			ready = ready[1:]
			inFlight++
			go func(idx int) {
				status, attempts, err := o.applyEntity(ctx, pl.Entities[idx], runID)
				done <- stepDone{index: idx, status: status, attempts: attempts, err: err}
			}(idx)
		}

		if inFlight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			// Halt between steps; in-flight steps run to completion.
			halted = true
			ready = nil
			continue
		case d := <-done:
			inFlight--
			entity := &pl.Entities[d.index]
			result.set(entity.ID(), d.status, d.attempts, d.err)
			metrics.ApplyEntitiesTotal.WithLabelValues(string(d.status)).Inc()

			if d.err != nil {
				logging.Error().
					Err(d.err).
					Str("run_id", runID).
					Str("entity", entity.ID()).
					Int("attempts", d.attempts).
					Msg("entity apply failed; halting run")
				halted = true
				ready = nil
				continue
			}

			logging.Debug().
				Str("run_id", runID).
				Str("entity", entity.ID()).
				Str("status", string(d.status)).
				Msg("entity applied")

			for _, dep := range dependents[d.index] {
				indegree[dep]--
				if indegree[dep] == 0 && !halted {
					ready = append(ready, dep)
				}
			}
		}
	}

	result.Finished = time.Now().UTC()
	metrics.ApplyRunDuration.Observe(time.Since(started).Seconds())

	// NotAttempted entities were never dispatched; count them here.
	for _, e := range result.Entities {
		if e.Status == StatusNotAttempted {
			metrics.ApplyEntitiesTotal.WithLabelValues(string(StatusNotAttempted)).Inc()
		}
	}

	counts := result.Counts()
	logging.Info().
		Str("run_id", runID).
		Bool("converged", result.OK()).
		Int("created", counts[StatusCreated]).
		Int("updated", counts[StatusUpdated]).
		Int("unchanged", counts[StatusUnchanged]).
		Int("failed", counts[StatusFailed]).
		Int("not_attempted", counts[StatusNotAttempted]).
		Msg("apply run finished")

	if !result.OK() {
		o.alert(ctx, result)
	}
	return result, nil
}

// applyEntity runs one entity step: optional ledger short-circuit, the
// provider call with transient-error retries, and ledger recording.
func (o *Orchestrator) applyEntity(ctx context.Context, e plan.Entity, runID string) (Status, int, error) {
	fp, err := provider.Fingerprint(e)
	if err != nil {
		return StatusFailed, 0, err
	}

	if o.cfg.TrustState && o.ledger != nil {
		if rec, ok, lerr := o.ledger.Get(e.ID()); lerr == nil && ok && rec.Fingerprint == fp {
			return StatusUnchanged, 0, nil
		}
	}

	// The provider call itself must never be abandoned mid-flight;
	// cancellation is honored between attempts instead.
	stepCtx := context.WithoutCancel(ctx)

	attempts := 0
	delay := o.cfg.RetryBaseDelay
	for {
		attempts++
		outcome, err := o.provider.Ensure(stepCtx, e)
		if err == nil {
			status := statusFromOutcome(outcome)
			o.record(e.ID(), fp, status, runID)
			return status, attempts, nil
		}

		if !provider.IsTransient(err) || attempts > o.cfg.RetryAttempts {
			return StatusFailed, attempts, err
		}

		metrics.ProviderRetriesTotal.WithLabelValues(string(e.Kind)).Inc()
		logging.Warn().
			Err(err).
			Str("entity", e.ID()).
			Int("attempt", attempts).
			Dur("backoff", delay).
			Msg("transient provider error; retrying")

		if err := o.sleep(ctx, delay); err != nil {
			return StatusFailed, attempts, err
		}
		if delay *= 2; delay > o.cfg.RetryMaxDelay {
			delay = o.cfg.RetryMaxDelay
		}
	}
}

// record writes the ledger entry; ledger failures are logged, never fatal
// to the run.
func (o *Orchestrator) record(id, fp string, status Status, runID string) {
	if o.ledger == nil {
		return
	}
	err := o.ledger.Put(id, state.Record{
		Fingerprint: fp,
		Outcome:     string(status),
		RunID:       runID,
		AppliedAt:   time.Now().UTC(),
	})
	if err != nil {
		logging.Warn().Err(err).Str("entity", id).Msg("failed to record applied state")
	}
}

func (o *Orchestrator) alert(ctx context.Context, result *Result) {
	if o.alerter == nil || o.cfg.AlertTopic == "" {
		return
	}
	if err := o.alerter.Publish(ctx, o.cfg.AlertTopic, result); err != nil {
		logging.Warn().Err(err).Str("run_id", result.RunID).Msg("failed to publish apply alert")
	}
}

func statusFromOutcome(outcome provider.Outcome) Status {
	switch outcome {
	case provider.OutcomeCreated:
		return StatusCreated
	case provider.OutcomeUpdated:
		return StatusUpdated
	default:
		return StatusUnchanged
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
