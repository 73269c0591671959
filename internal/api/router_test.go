// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/gatewarden/gatewarden/internal/audit"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/orchestrator"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/provider"
	"github.com/gatewarden/gatewarden/internal/state"
)

const testManifest = `
entities:
  - kind: group
    name: engineering
  - kind: user
    name: alice
  - kind: membership
    name: alice-engineering
    group: engineering
    user: alice
  - kind: policy
    name: reports-ro
    statements:
      - sid: AllowRead
        effect: Allow
        actions: ["reports:read"]
        resources: ["reports/*"]
  - kind: attachment
    name: eng-reports
    principal: engineering
    policy: reports-ro
`

// envelope mirrors APIResponse with a raw payload so tests can decode
// Data into the concrete type they expect.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

type testHarness struct {
	router    *Router
	handler   http.Handler
	mem       *provider.Memory
	store     *audit.MemoryStore
	snapshots *policy.Store
}

func newTestHarness(t *testing.T, manifest string) *testHarness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "manifest.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        8432,
			Timeout:     5 * time.Second,
			CORSOrigins: []string{"*"},
		},
		ManifestPath: path,
	}

	ledger, err := state.Open("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	mem := provider.NewMemory()
	orch := orchestrator.New(mem, ledger, nil, orchestrator.Config{
		Concurrency:    2,
		RetryAttempts:  1,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	})

	store := audit.NewMemoryStore(1000)
	recorder := audit.NewRecorder(store, audit.Config{Enabled: true, BufferSize: 100})
	t.Cleanup(func() { recorder.Close() })

	// A zero-value store has no snapshot yet; tests that need one call
	// loadSnapshot, mirroring the daemon's swap-at-startup.
	snapshots := &policy.Store{}
	router := New(cfg, snapshots, orch, recorder)

	return &testHarness{
		router:    router,
		handler:   router.SetupChi(),
		mem:       mem,
		store:     store,
		snapshots: snapshots,
	}
}

// loadSnapshot swaps in the directory declared by the manifest so
// simulate has something to evaluate against.
func (h *testHarness) loadSnapshot(t *testing.T, manifest string) {
	t.Helper()
	m, err := config.ParseManifest([]byte(manifest))
	if err != nil {
		t.Fatal(err)
	}
	dir, err := m.Directory()
	if err != nil {
		t.Fatal(err)
	}
	h.snapshots.Swap(dir)
}

func (h *testHarness) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestSimulateAllowsMatchingRequest(t *testing.T) {
	h := newTestHarness(t, testManifest)
	h.loadSnapshot(t, testManifest)

	rec, env := h.do(t, http.MethodPost, "/api/v1/simulate",
		`{"principal":"alice","action":"reports:read","resource":"reports/q3"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp SimulateResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Decision != policy.DecisionAllow || !resp.Allowed {
		t.Errorf("decision = %v allowed = %v, want Allow/true", resp.Decision, resp.Allowed)
	}
	if len(resp.Matched) == 0 || resp.Matched[0].PolicyName != "reports-ro" {
		t.Errorf("matched = %+v, want reports-ro statement", resp.Matched)
	}
	if resp.SnapshotVersion == 0 {
		t.Error("snapshot version must be set")
	}
}

func TestSimulateDefaultsToImplicitDeny(t *testing.T) {
	h := newTestHarness(t, testManifest)
	h.loadSnapshot(t, testManifest)

	rec, env := h.do(t, http.MethodPost, "/api/v1/simulate",
		`{"principal":"alice","action":"reports:delete","resource":"reports/q3"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp SimulateResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Decision != policy.DecisionImplicitDeny || resp.Allowed {
		t.Errorf("decision = %v allowed = %v, want ImplicitDeny/false", resp.Decision, resp.Allowed)
	}
}

func TestSimulateRejectsIncompleteRequest(t *testing.T) {
	h := newTestHarness(t, testManifest)
	h.loadSnapshot(t, testManifest)

	rec, env := h.do(t, http.MethodPost, "/api/v1/simulate",
		`{"action":"reports:read","resource":"reports/q3"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want %s", env.Error, ErrCodeValidationFailed)
	}
}

func TestSimulateWithoutSnapshotIsUnavailable(t *testing.T) {
	h := newTestHarness(t, testManifest)

	rec, env := h.do(t, http.MethodPost, "/api/v1/simulate",
		`{"principal":"alice","action":"reports:read","resource":"reports/q3"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v, want %s", env.Error, ErrCodeServiceUnavailable)
	}
}

func TestPlanReturnsResolvedOrder(t *testing.T) {
	h := newTestHarness(t, testManifest)

	rec, env := h.do(t, http.MethodGet, "/api/v1/plan", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp PlanResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Entities) != 5 {
		t.Fatalf("got %d entities, want 5", len(resp.Entities))
	}

	order := map[string]int{}
	for i, e := range resp.Entities {
		order[e.ID] = i
	}
	if order["group:engineering"] > order["membership:alice-engineering"] {
		t.Error("group must precede its membership in plan order")
	}
	if order["policy:reports-ro"] > order["attachment:eng-reports"] {
		t.Error("policy must precede its attachment in plan order")
	}

	for _, e := range resp.Entities {
		if e.ID == "attachment:eng-reports" {
			if len(e.Prerequisites) != 2 {
				t.Errorf("attachment prerequisites = %v, want principal and policy", e.Prerequisites)
			}
		}
	}
}

func TestPlanRejectsDanglingReference(t *testing.T) {
	broken := `
entities:
  - kind: attachment
    name: orphan
    principal: ghost
    policy: missing
`
	h := newTestHarness(t, broken)

	rec, env := h.do(t, http.MethodGet, "/api/v1/plan", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
	if env.Error == nil || env.Error.Code != ErrCodeManifestInvalid {
		t.Errorf("error = %+v, want %s", env.Error, ErrCodeManifestInvalid)
	}
}

func TestApplyProvisionsAndSwapsSnapshot(t *testing.T) {
	h := newTestHarness(t, testManifest)

	rec, env := h.do(t, http.MethodPost, "/api/v1/apply", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp ApplyResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Converged {
		t.Fatalf("run did not converge: %+v", resp)
	}
	if resp.Counts["created"] != 5 {
		t.Errorf("created = %d, want 5", resp.Counts["created"])
	}
	if resp.SnapshotVersion == 0 {
		t.Error("converged apply must swap in a policy snapshot")
	}

	for _, id := range []string{"group:engineering", "user:alice", "policy:reports-ro"} {
		if !h.mem.Exists(id) {
			t.Errorf("provider missing %s after apply", id)
		}
	}

	// The swapped snapshot must answer simulations immediately.
	rec, env = h.do(t, http.MethodPost, "/api/v1/simulate",
		`{"principal":"alice","action":"reports:read","resource":"reports/q3"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("simulate after apply = %d, want 200", rec.Code)
	}
	var sim SimulateResponse
	if err := json.Unmarshal(env.Data, &sim); err != nil {
		t.Fatal(err)
	}
	if !sim.Allowed {
		t.Errorf("decision after apply = %v, want Allow", sim.Decision)
	}
}

func TestApplyRecordsAuditTrail(t *testing.T) {
	h := newTestHarness(t, testManifest)

	_, env := h.do(t, http.MethodPost, "/api/v1/apply", "")

	var resp ApplyResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}

	// The recorder writes asynchronously; poll until the run's events
	// land or the deadline passes.
	var events []audit.Event
	deadline := time.Now().Add(2 * time.Second)
	for {
		var err error
		events, err = h.store.Query(context.Background(), audit.QueryFilter{RunID: resp.RunID, Limit: 100})
		if err != nil {
			t.Fatal(err)
		}
		// Run started, 5 entity events, run finished, snapshot swapped.
		if len(events) >= 8 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d audit events for run %s, want 8", len(events), resp.RunID)
		}
		time.Sleep(5 * time.Millisecond)
	}

	byType := make(map[audit.EventType]int)
	for _, e := range events {
		byType[e.Type]++
	}
	if byType[audit.EventTypeRunStarted] != 1 {
		t.Errorf("run_started events = %d, want 1", byType[audit.EventTypeRunStarted])
	}
	if byType[audit.EventTypeRunFinished] != 1 {
		t.Errorf("run_finished events = %d, want 1", byType[audit.EventTypeRunFinished])
	}
	if byType[audit.EventTypeEntityApplied] != 5 {
		t.Errorf("entity_applied events = %d, want 5", byType[audit.EventTypeEntityApplied])
	}
	if byType[audit.EventTypeSnapshotSwapped] != 1 {
		t.Errorf("snapshot_swapped events = %d, want 1", byType[audit.EventTypeSnapshotSwapped])
	}
}

func TestApplyConflictsWhileRunInFlight(t *testing.T) {
	h := newTestHarness(t, testManifest)
	h.router.applying.Store(true)

	rec, env := h.do(t, http.MethodPost, "/api/v1/apply", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if env.Error == nil || env.Error.Code != ErrCodeConflict {
		t.Errorf("error = %+v, want %s", env.Error, ErrCodeConflict)
	}
}

func TestAuditEventsFiltersAndPaginates(t *testing.T) {
	h := newTestHarness(t, testManifest)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, e := range []audit.Event{
		{ID: "e1", Type: audit.EventTypeDecision, Principal: "alice", Decision: "allow"},
		{ID: "e2", Type: audit.EventTypeDecision, Principal: "bob", Decision: "deny"},
		{ID: "e3", Type: audit.EventTypeEntityApplied, Entity: "user:alice", RunID: "run-9"},
	} {
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := h.store.Save(ctx, &e); err != nil {
			t.Fatal(err)
		}
	}

	rec, env := h.do(t, http.MethodGet, "/api/v1/audit/events?type=policy.decision&limit=1&order=asc", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var events []audit.Event
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].ID != "e1" {
		t.Fatalf("events = %+v, want just e1", events)
	}
	if env.Meta == nil || env.Meta.Pagination == nil {
		t.Fatal("pagination metadata missing")
	}
	if env.Meta.Pagination.Total != 2 || !env.Meta.Pagination.HasMore {
		t.Errorf("pagination = %+v, want total 2 with more", env.Meta.Pagination)
	}
}

func TestAuditEventsRejectsBadQuery(t *testing.T) {
	h := newTestHarness(t, testManifest)

	for _, target := range []string{
		"/api/v1/audit/events?limit=zero",
		"/api/v1/audit/events?offset=-3",
		"/api/v1/audit/events?since=yesterday",
		"/api/v1/audit/events?order=sideways",
	} {
		rec, env := h.do(t, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
		if env.Error == nil || env.Error.Code != ErrCodeBadRequest {
			t.Errorf("%s: error = %+v, want %s", target, env.Error, ErrCodeBadRequest)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestHarness(t, testManifest)

	rec, _ := h.do(t, http.MethodGet, "/api/v1/health/live", "")
	if rec.Code != http.StatusOK {
		t.Errorf("live = %d, want 200", rec.Code)
	}

	rec, _ = h.do(t, http.MethodGet, "/api/v1/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready before snapshot = %d, want 503", rec.Code)
	}

	h.loadSnapshot(t, testManifest)
	rec, _ = h.do(t, http.MethodGet, "/api/v1/health/ready", "")
	if rec.Code != http.StatusOK {
		t.Errorf("ready after snapshot = %d, want 200", rec.Code)
	}
}

func TestRequestIDPropagatesToResponses(t *testing.T) {
	h := newTestHarness(t, testManifest)
	h.loadSnapshot(t, testManifest)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate",
		strings.NewReader(`{"principal":"alice","action":"reports:read","resource":"reports/q3"}`))
	req.Header.Set("X-Request-ID", "trace-42")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Meta == nil || env.Meta.RequestID != "trace-42" {
		t.Errorf("meta request ID = %+v, want trace-42", env.Meta)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "trace-42" {
		t.Errorf("header request ID = %q, want trace-42", got)
	}

	// The decision event written for this request carries the same ID.
	deadline := time.Now().Add(2 * time.Second)
	for {
		events, err := h.store.Query(context.Background(),
			audit.QueryFilter{Types: []audit.EventType{audit.EventTypeDecision}})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) == 1 {
			if events[0].RequestID != "trace-42" {
				t.Errorf("decision event request ID = %q, want trace-42", events[0].RequestID)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d decision events, want 1", len(events))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
