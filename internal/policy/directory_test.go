// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package policy

import (
	"errors"
	"testing"
)

func mustBuild(t *testing.T, build func(d *Directory) error) *Directory {
	t.Helper()
	d := NewDirectory()
	if err := build(d); err != nil {
		t.Fatalf("building directory: %v", err)
	}
	return d
}

func allowStatement(sid, action, resource string) Statement {
	return Statement{
		SID:       sid,
		Effect:    EffectAllow,
		Actions:   CompileMatchers([]string{action}),
		Resources: CompileMatchers([]string{resource}),
	}
}

func TestDirectoryDuplicatePrincipal(t *testing.T) {
	d := NewDirectory()
	if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
		t.Fatalf("first AddPrincipal: %v", err)
	}
	_, err := d.AddPrincipal("dev-1", KindGroup)
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestDirectoryAttachUnknownRefs(t *testing.T) {
	d := NewDirectory()
	if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
		t.Fatal(err)
	}

	if err := d.Attach("ghost", "readonly"); !errors.Is(err, ErrUnknownPrincipal) {
		t.Errorf("expected ErrUnknownPrincipal, got %v", err)
	}
	if err := d.Attach("dev-1", "readonly"); !errors.Is(err, ErrUnknownPolicy) {
		t.Errorf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestDirectoryMembershipKinds(t *testing.T) {
	d := mustBuild(t, func(d *Directory) error {
		if _, err := d.AddPrincipal("developers", KindGroup); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
			return err
		}
		return nil
	})

	if err := d.AddMember("dev-1", "developers"); err == nil {
		t.Error("adding a member to a user should fail")
	}
	if err := d.AddMember("developers", "developers"); err == nil {
		t.Error("adding a group as a member should fail")
	}
	if err := d.AddMember("developers", "dev-1"); err != nil {
		t.Errorf("valid membership should succeed, got %v", err)
	}
	// Repeated membership is a no-op.
	if err := d.AddMember("developers", "dev-1"); err != nil {
		t.Errorf("repeated membership should be a no-op, got %v", err)
	}
	u, _ := d.Principal("dev-1")
	if len(u.Groups) != 1 {
		t.Errorf("expected 1 group membership, got %d", len(u.Groups))
	}
}

func TestSetPolicyRejectsMalformedStatements(t *testing.T) {
	d := NewDirectory()

	tests := []struct {
		name   string
		policy *Policy
	}{
		{"bad effect", &Policy{Name: "p", Statements: []Statement{{
			Effect:    "Maybe",
			Actions:   CompileMatchers([]string{"*"}),
			Resources: CompileMatchers([]string{"*"}),
		}}}},
		{"no actions", &Policy{Name: "p", Statements: []Statement{{
			Effect:    EffectAllow,
			Resources: CompileMatchers([]string{"*"}),
		}}}},
		{"no resources", &Policy{Name: "p", Statements: []Statement{{
			Effect:  EffectAllow,
			Actions: CompileMatchers([]string{"*"}),
		}}}},
		{"unknown condition operator", &Policy{Name: "p", Statements: []Statement{{
			Effect:     EffectAllow,
			Actions:    CompileMatchers([]string{"*"}),
			Resources:  CompileMatchers([]string{"*"}),
			Conditions: []Condition{{Operator: "IpAddress", Key: "k", Values: []string{"v"}}},
		}}}},
		{"unnamed policy", &Policy{Statements: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.SetPolicy(tt.policy); err == nil {
				t.Error("expected load-time rejection, got nil")
			}
		})
	}
}

func TestSetPolicyReplacesWholesale(t *testing.T) {
	d := NewDirectory()

	first := &Policy{Name: "readonly", Statements: []Statement{
		allowStatement("list", "iam:list-users", "*"),
		allowStatement("get", "iam:get-user", "*"),
	}}
	if err := d.SetPolicy(first); err != nil {
		t.Fatal(err)
	}

	second := &Policy{Name: "readonly", Statements: []Statement{
		allowStatement("get", "iam:get-user", "*"),
	}}
	if err := d.SetPolicy(second); err != nil {
		t.Fatal(err)
	}

	got, _ := d.Policy("readonly")
	if len(got.Statements) != 1 {
		t.Errorf("update must replace statements wholesale, got %d statements", len(got.Statements))
	}
	if got.Statements[0].SID != "get" {
		t.Errorf("stale statement survived update: %q", got.Statements[0].SID)
	}
}

func TestEffectivePolicyNamesUnion(t *testing.T) {
	d := mustBuild(t, func(d *Directory) error {
		for _, p := range []*Policy{
			{Name: "direct", Statements: []Statement{allowStatement("", "a:b", "*")}},
			{Name: "group-a", Statements: []Statement{allowStatement("", "a:b", "*")}},
			{Name: "shared", Statements: []Statement{allowStatement("", "a:b", "*")}},
		} {
			if err := d.SetPolicy(p); err != nil {
				return err
			}
		}
		if _, err := d.AddPrincipal("team-a", KindGroup); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
			return err
		}
		if err := d.AddMember("team-a", "dev-1"); err != nil {
			return err
		}
		for _, attach := range []struct{ principal, policy string }{
			{"dev-1", "direct"},
			{"dev-1", "shared"},
			{"team-a", "group-a"},
			{"team-a", "shared"}, // also attached via group: must not duplicate
		} {
			if err := d.Attach(attach.principal, attach.policy); err != nil {
				return err
			}
		}
		return nil
	})

	names, err := d.EffectivePolicyNames("dev-1")
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{"direct": true, "shared": true, "group-a": true}
	if len(names) != len(want) {
		t.Fatalf("expected %d unique policies, got %v", len(want), names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected policy %q in effective set", n)
		}
	}
}

func TestStatementsForPreservesWithinPolicyOrder(t *testing.T) {
	d := mustBuild(t, func(d *Directory) error {
		if err := d.SetPolicy(&Policy{Name: "p", Statements: []Statement{
			allowStatement("first", "a:one", "*"),
			allowStatement("second", "a:two", "*"),
		}}); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
			return err
		}
		return d.Attach("dev-1", "p")
	})

	bound, err := d.StatementsFor("dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(bound) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(bound))
	}
	if bound[0].Statement.SID != "first" || bound[1].Statement.SID != "second" {
		t.Errorf("statement order within a policy must be preserved, got %q then %q",
			bound[0].Statement.SID, bound[1].Statement.SID)
	}
}
