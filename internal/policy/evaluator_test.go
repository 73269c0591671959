// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package policy

import (
	"sync"
	"testing"
)

// buildSnapshot assembles a directory and publishes it through a fresh store.
func buildSnapshot(t *testing.T, build func(d *Directory) error) *Snapshot {
	t.Helper()
	dir := mustBuild(t, build)
	return NewStore().Swap(dir)
}

func TestDecideExplicitDenyWinsOverAnyAllow(t *testing.T) {
	snap := buildSnapshot(t, func(d *Directory) error {
		if err := d.SetPolicy(&Policy{Name: "broad-allow", Statements: []Statement{
			allowStatement("all", "*", "*"),
		}}); err != nil {
			return err
		}
		if err := d.SetPolicy(&Policy{Name: "block-prod", Statements: []Statement{{
			SID:       "deny-prod",
			Effect:    EffectDeny,
			Actions:   CompileMatchers([]string{"*"}),
			Resources: CompileMatchers([]string{"*"}),
			Conditions: []Condition{{
				Operator: OpStringEquals, Key: "tag:environment", Values: []string{"production"},
			}},
		}}}); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
			return err
		}
		if err := d.Attach("dev-1", "broad-allow"); err != nil {
			return err
		}
		return d.Attach("dev-1", "block-prod")
	})

	res := snap.Decide(&RequestContext{
		Principal:    "dev-1",
		Action:       "ec2:terminate-instance",
		Resource:     "grn:ec2:instance/i-1",
		ResourceTags: map[string]string{"environment": "production"},
	})
	if res.Decision != DecisionDeny {
		t.Errorf("explicit deny must win regardless of allows, got %v", res.Decision)
	}

	// Both the allow and the deny survive matching; diagnostics carry both.
	if len(res.Matched) != 2 {
		t.Errorf("expected both matched statements in diagnostics, got %d", len(res.Matched))
	}
}

func TestDecideImplicitDenyWhenNothingMatches(t *testing.T) {
	snap := buildSnapshot(t, func(d *Directory) error {
		if err := d.SetPolicy(&Policy{Name: "narrow", Statements: []Statement{
			allowStatement("", "iam:list-users", "*"),
		}}); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
			return err
		}
		return d.Attach("dev-1", "narrow")
	})

	res := snap.Decide(&RequestContext{
		Principal: "dev-1",
		Action:    "iam:delete-user",
		Resource:  "grn:iam:user/dev-2",
	})
	if res.Decision != DecisionImplicitDeny {
		t.Errorf("unmatched request must resolve to ImplicitDeny, got %v", res.Decision)
	}
	if len(res.Matched) != 0 {
		t.Errorf("ImplicitDeny should carry no matched statements, got %v", res.Matched)
	}
}

func TestDecideUnknownPrincipalIsImplicitDenyNotError(t *testing.T) {
	snap := buildSnapshot(t, func(d *Directory) error { return nil })

	res := snap.Decide(&RequestContext{Principal: "ghost", Action: "a:b", Resource: "r"})
	if res.Decision != DecisionImplicitDeny {
		t.Errorf("unknown principal = %v, want ImplicitDeny", res.Decision)
	}
}

// Environment-scoped allow: development tagged resources are permitted,
// production tagged resources fall through to ImplicitDeny.
func TestDecideEnvironmentScopedAllow(t *testing.T) {
	snap := buildSnapshot(t, func(d *Directory) error {
		if err := d.SetPolicy(&Policy{Name: "dev-operator", Statements: []Statement{{
			SID:       "start-dev",
			Effect:    EffectAllow,
			Actions:   CompileMatchers([]string{"ec2:start-instance"}),
			Resources: CompileMatchers([]string{"*"}),
			Conditions: []Condition{{
				Operator: OpStringEquals, Key: "tag:environment", Values: []string{"development"},
			}},
		}}}); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
			return err
		}
		return d.Attach("dev-1", "dev-operator")
	})

	dev := snap.Decide(&RequestContext{
		Principal:    "dev-1",
		Action:       "ec2:start-instance",
		Resource:     "grn:ec2:instance/i-dev",
		ResourceTags: map[string]string{"environment": "development"},
	})
	if dev.Decision != DecisionAllow {
		t.Errorf("development-tagged resource = %v, want Allow", dev.Decision)
	}

	prod := snap.Decide(&RequestContext{
		Principal:    "dev-1",
		Action:       "ec2:start-instance",
		Resource:     "grn:ec2:instance/i-prod",
		ResourceTags: map[string]string{"environment": "production"},
	})
	if prod.Decision != DecisionImplicitDeny {
		t.Errorf("production-tagged resource = %v, want ImplicitDeny", prod.Decision)
	}
}

// The MFA bootstrap pattern: instead of a blanket conditional deny gated on
// the MFA flag (which locks out principals that have no session attribute at
// all yet), the directory carries only a narrow unconditional allow for the
// self-service MFA actions. A principal with no MFA established can enroll a
// device but can do nothing else.
func TestDecideMFABootstrapWithoutLockout(t *testing.T) {
	snap := buildSnapshot(t, func(d *Directory) error {
		if err := d.SetPolicy(&Policy{Name: "mfa-self-service", Statements: []Statement{{
			SID:       "bootstrap",
			Effect:    EffectAllow,
			Actions:   CompileMatchers([]string{"iam:enable-mfa-device", "iam:resync-mfa-device"}),
			Resources: CompileMatchers([]string{"grn:iam:user/${self}"}),
		}}}); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("new-hire", KindUser); err != nil {
			return err
		}
		return d.Attach("new-hire", "mfa-self-service")
	})

	// Fresh session: no MFA attribute exists at all.
	enroll := snap.Decide(&RequestContext{
		Principal: "new-hire",
		Action:    "iam:enable-mfa-device",
		Resource:  "grn:iam:user/new-hire",
	})
	if enroll.Decision != DecisionAllow {
		t.Errorf("MFA enrollment on own identity = %v, want Allow", enroll.Decision)
	}

	// The same narrow allow must not leak to other identities.
	other := snap.Decide(&RequestContext{
		Principal: "new-hire",
		Action:    "iam:enable-mfa-device",
		Resource:  "grn:iam:user/someone-else",
	})
	if other.Decision != DecisionImplicitDeny {
		t.Errorf("MFA enrollment on another identity = %v, want ImplicitDeny", other.Decision)
	}

	// Anything else while MFA is absent stays implicitly denied.
	listUsers := snap.Decide(&RequestContext{
		Principal: "new-hire",
		Action:    "iam:list-users",
		Resource:  "*",
	})
	if listUsers.Decision != DecisionImplicitDeny {
		t.Errorf("non-bootstrap action = %v, want ImplicitDeny", listUsers.Decision)
	}
}

// An if-exists gate lets established sessions through while not denying a
// session that has never set the attribute.
func TestDecideIfExistsGateDoesNotDenyFreshSessions(t *testing.T) {
	snap := buildSnapshot(t, func(d *Directory) error {
		if err := d.SetPolicy(&Policy{Name: "console", Statements: []Statement{{
			SID:       "sign-in",
			Effect:    EffectAllow,
			Actions:   CompileMatchers([]string{"console:sign-in"}),
			Resources: CompileMatchers([]string{"*"}),
			Conditions: []Condition{{
				Operator: OpBoolIfExists, Key: "session:mfa-present", Values: []string{"true"},
			}},
		}}}); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
			return err
		}
		return d.Attach("dev-1", "console")
	})

	fresh := snap.Decide(&RequestContext{
		Principal: "dev-1",
		Action:    "console:sign-in",
		Resource:  "grn:console",
	})
	if fresh.Decision != DecisionAllow {
		t.Errorf("sign-in before any session attribute exists = %v, want Allow", fresh.Decision)
	}

	withoutMFA := snap.Decide(&RequestContext{
		Principal: "dev-1",
		Action:    "console:sign-in",
		Resource:  "grn:console",
		Session:   map[string]string{"session:mfa-present": "false"},
	})
	if withoutMFA.Decision != DecisionImplicitDeny {
		t.Errorf("sign-in with MFA explicitly absent = %v, want ImplicitDeny", withoutMFA.Decision)
	}
}

func TestDecideGroupPoliciesApply(t *testing.T) {
	snap := buildSnapshot(t, func(d *Directory) error {
		if err := d.SetPolicy(&Policy{Name: "team-read", Statements: []Statement{
			allowStatement("", "wiki:read", "*"),
		}}); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("writers", KindGroup); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
			return err
		}
		if err := d.AddMember("writers", "dev-1"); err != nil {
			return err
		}
		return d.Attach("writers", "team-read")
	})

	res := snap.Decide(&RequestContext{Principal: "dev-1", Action: "wiki:read", Resource: "grn:wiki:page/1"})
	if res.Decision != DecisionAllow {
		t.Errorf("group-attached policy must apply to members, got %v", res.Decision)
	}
	if len(res.Matched) != 1 || res.Matched[0].PolicyName != "team-read" {
		t.Errorf("diagnostics should name the group policy, got %v", res.Matched)
	}
}

func TestDecideConcurrentUseOverOneSnapshot(t *testing.T) {
	snap := buildSnapshot(t, func(d *Directory) error {
		if err := d.SetPolicy(&Policy{Name: "p", Statements: []Statement{
			allowStatement("", "a:read", "*"),
		}}); err != nil {
			return err
		}
		if _, err := d.AddPrincipal("dev-1", KindUser); err != nil {
			return err
		}
		return d.Attach("dev-1", "p")
	})

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				res := snap.Decide(&RequestContext{Principal: "dev-1", Action: "a:read", Resource: "r"})
				if res.Decision != DecisionAllow {
					t.Errorf("concurrent Decide = %v, want Allow", res.Decision)
					return
				}
			}
		}()
	}
	wg.Wait()
}
