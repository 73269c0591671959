// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/metrics"
	"github.com/gatewarden/gatewarden/internal/orchestrator"
	"github.com/gatewarden/gatewarden/internal/plan"
	"github.com/gatewarden/gatewarden/internal/validation"
)

// handleSimulate evaluates one access request against the active policy
// snapshot and returns the decision without touching any provider.
func (router *Router) handleSimulate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}
	if verrs := validation.ValidateStruct(&req); verrs != nil {
		rw.ValidationError("invalid simulate request", validationDetails(verrs))
		return
	}

	snapshot := router.snapshots.Current()
	if snapshot == nil {
		rw.ServiceUnavailable("no policy snapshot loaded")
		return
	}

	start := time.Now()
	result := snapshot.Decide(req.context())
	metrics.DecisionDuration.Observe(time.Since(start).Seconds())
	metrics.DecisionsTotal.WithLabelValues(result.Decision.MetricLabel()).Inc()

	router.recorder.RecordDecision(r.Context(), req.Principal, req.Action, req.Resource, result)

	logging.Ctx(r.Context()).Debug().
		Str("principal", req.Principal).
		Str("action", req.Action).
		Str("resource", req.Resource).
		Str("decision", string(result.Decision)).
		Msg("simulated access request")

	rw.Success(SimulateResponse{
		Decision:        result.Decision,
		Allowed:         result.Decision.Allowed(),
		Matched:         result.Matched,
		SnapshotVersion: snapshot.Version(),
	})
}

// handlePlan resolves the manifest into apply order without applying
// anything.
func (router *Router) handlePlan(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	pl, ok := router.resolvePlan(rw)
	if !ok {
		return
	}

	entries := make([]PlanEntry, len(pl.Entities))
	for i := range pl.Entities {
		e := &pl.Entities[i]
		entries[i] = PlanEntry{
			ID:            e.ID(),
			Kind:          string(e.Kind),
			Name:          e.Name,
			Prerequisites: pl.Prerequisites(e.ID()),
		}
	}

	rw.Success(PlanResponse{Entities: entries})
}

// handleApply runs the provisioning orchestrator over the resolved plan.
// Runs are serialized; a second request while one is in flight gets 409.
func (router *Router) handleApply(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if !router.applying.CompareAndSwap(false, true) {
		rw.Conflict("an apply run is already in progress")
		return
	}
	defer router.applying.Store(false)

	manifest, pl, ok := router.resolveManifest(rw)
	if !ok {
		return
	}

	result, err := router.orch.Apply(r.Context(), pl)
	if err != nil {
		rw.ServiceUnavailable("apply run aborted: " + err.Error())
		return
	}

	router.recorder.RecordRun(result.RunID, false, nil)
	for _, e := range result.Entities {
		var stepErr error
		if e.Error != "" {
			stepErr = errors.New(e.Error)
		}
		router.recorder.RecordEntity(result.RunID, e.ID, string(e.Status), stepErr)
	}
	counts := statusCounts(result)
	router.recorder.RecordRun(result.RunID, true, counts)

	resp := ApplyResponse{
		RunID:     result.RunID,
		Converged: result.OK(),
		Started:   result.Started,
		Finished:  result.Finished,
		Counts:    counts,
		Entities:  result.Entities,
	}

	// A converged run means the provider now matches the manifest, so
	// the evaluation snapshot can move to the newly declared policies.
	if result.OK() {
		dir, err := manifest.Directory()
		if err != nil {
			rw.UnprocessableManifest(err)
			return
		}
		snapshot := router.snapshots.Swap(dir)
		resp.SnapshotVersion = snapshot.Version()
		router.recorder.RecordSnapshotSwap(result.RunID, snapshot.Version())
	}

	rw.Success(resp)
}

// handleAuditEvents queries the audit trail with filters from query
// parameters.
func (router *Router) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter, err := parseAuditFilter(r.URL.Query())
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	events, err := router.recorder.Query(r.Context(), filter)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("audit query failed")
		rw.InternalError("audit query failed")
		return
	}
	total, err := router.recorder.Count(r.Context(), filter)
	if err != nil {
		logging.CtxErr(r.Context(), err).Msg("audit count failed")
		rw.InternalError("audit query failed")
		return
	}

	rw.SuccessWithPagination(events, &PaginationMeta{
		Total:   total,
		Count:   len(events),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: int64(filter.Offset+len(events)) < total,
	})
}

func (router *Router) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// handleHealthReady reports ready once a policy snapshot is loaded. A
// gatewarden that cannot answer simulations is not ready.
func (router *Router) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	snapshot := router.snapshots.Current()
	if snapshot == nil {
		rw.ServiceUnavailable("policy snapshot not loaded")
		return
	}

	rw.Success(map[string]interface{}{
		"status":           "ok",
		"snapshot_version": snapshot.Version(),
	})
}

// resolveManifest loads and resolves the manifest, writing the error
// response itself on failure.
func (router *Router) resolveManifest(rw *ResponseWriter) (*config.Manifest, *plan.Plan, bool) {
	manifest, err := router.loadManifest()
	if err != nil {
		rw.UnprocessableManifest(err)
		return nil, nil, false
	}

	pl, err := manifest.Plan()
	if err != nil {
		var cfgErr *plan.ConfigurationError
		var cycErr *plan.CycleError
		if errors.As(err, &cfgErr) || errors.As(err, &cycErr) {
			rw.UnprocessableManifest(err)
		} else {
			rw.InternalError("plan resolution failed: " + err.Error())
		}
		return nil, nil, false
	}

	return manifest, pl, true
}

func (router *Router) resolvePlan(rw *ResponseWriter) (*plan.Plan, bool) {
	_, pl, ok := router.resolveManifest(rw)
	return pl, ok
}

// validationDetails flattens validator output for the error envelope.
func validationDetails(verrs *validation.Errors) []map[string]string {
	fields := verrs.Fields()
	out := make([]map[string]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, map[string]string{
			"field":   f.Field,
			"message": f.Message,
		})
	}
	return out
}

func statusCounts(result *orchestrator.Result) map[string]int {
	counts := make(map[string]int)
	for status, n := range result.Counts() {
		counts[string(status)] = n
	}
	return counts
}
