// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package policy

import (
	"errors"
	"fmt"
	"sort"
)

// Directory errors.
var (
	ErrUnknownPrincipal = errors.New("unknown principal")
	ErrUnknownPolicy    = errors.New("unknown policy")
	ErrUnknownGroup     = errors.New("unknown group")
	ErrDuplicateName    = errors.New("duplicate name")
	ErrNotAUser         = errors.New("membership requires a user")
	ErrNotAGroup        = errors.New("membership requires a group")
)

// Directory holds principals, policies, and attachments for one
// configuration version. A Directory is mutable while being built and
// must not be modified after it is published in a Snapshot; publish a
// new Directory instead.
type Directory struct {
	principals map[string]*Principal
	policies   map[string]*Policy
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		principals: make(map[string]*Principal),
		policies:   make(map[string]*Policy),
	}
}

// AddPrincipal registers a user or group. Names are unique across both
// kinds: a user and a group may not share a name.
func (d *Directory) AddPrincipal(name string, kind PrincipalKind) (*Principal, error) {
	if _, exists := d.principals[name]; exists {
		return nil, fmt.Errorf("principal %q: %w", name, ErrDuplicateName)
	}
	p := &Principal{Name: name, Kind: kind}
	d.principals[name] = p
	return p, nil
}

// SetPolicy registers a policy or replaces an existing one wholesale.
// The statement list is never merged in place; replacing the whole policy
// avoids stale-statement leaks across configuration versions. Every
// statement's matchers and conditions are validated before the policy is
// accepted.
func (d *Directory) SetPolicy(p *Policy) error {
	if p.Name == "" {
		return errors.New("policy name is required")
	}
	for i := range p.Statements {
		st := &p.Statements[i]
		if st.Effect != EffectAllow && st.Effect != EffectDeny {
			return fmt.Errorf("policy %q statement %d: invalid effect %q", p.Name, i, st.Effect)
		}
		if len(st.Actions) == 0 {
			return fmt.Errorf("policy %q statement %d: no action matcher", p.Name, i)
		}
		if len(st.Resources) == 0 {
			return fmt.Errorf("policy %q statement %d: no resource matcher", p.Name, i)
		}
		for _, c := range st.Conditions {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("policy %q statement %d: %w", p.Name, i, err)
			}
		}
	}
	d.policies[p.Name] = p
	return nil
}

// Attach attaches a policy to a principal by name. Attaching the same
// policy twice is a no-op.
func (d *Directory) Attach(principalName, policyName string) error {
	p, ok := d.principals[principalName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPrincipal, principalName)
	}
	if _, ok := d.policies[policyName]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, policyName)
	}
	for _, existing := range p.Policies {
		if existing == policyName {
			return nil
		}
	}
	p.Policies = append(p.Policies, policyName)
	return nil
}

// AddMember adds a user to a group. Group nesting is not supported.
func (d *Directory) AddMember(groupName, userName string) error {
	g, ok := d.principals[groupName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, groupName)
	}
	if g.Kind != KindGroup {
		return fmt.Errorf("%w: %q is a %s", ErrNotAGroup, groupName, g.Kind)
	}
	u, ok := d.principals[userName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPrincipal, userName)
	}
	if u.Kind != KindUser {
		return fmt.Errorf("%w: %q is a %s", ErrNotAUser, userName, u.Kind)
	}
	for _, existing := range u.Groups {
		if existing == groupName {
			return nil
		}
	}
	u.Groups = append(u.Groups, groupName)
	return nil
}

// Principal returns a principal by name.
func (d *Directory) Principal(name string) (*Principal, bool) {
	p, ok := d.principals[name]
	return p, ok
}

// Policy returns a policy by name.
func (d *Directory) Policy(name string) (*Policy, bool) {
	p, ok := d.policies[name]
	return p, ok
}

// PrincipalNames returns all principal names in lexical order.
func (d *Directory) PrincipalNames() []string {
	names := make([]string, 0, len(d.principals))
	for name := range d.principals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EffectivePolicyNames returns the union of policies attached to the
// principal directly and through group membership. A policy attached on
// multiple paths appears once.
func (d *Directory) EffectivePolicyNames(principalName string) ([]string, error) {
	p, ok := d.principals[principalName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrincipal, principalName)
	}

	seen := make(map[string]struct{})
	var names []string
	add := func(policyName string) {
		if _, dup := seen[policyName]; dup {
			return
		}
		seen[policyName] = struct{}{}
		names = append(names, policyName)
	}

	for _, name := range p.Policies {
		add(name)
	}
	for _, groupName := range p.Groups {
		g, ok := d.principals[groupName]
		if !ok {
			continue
		}
		for _, name := range g.Policies {
			add(name)
		}
	}
	return names, nil
}

// BoundStatement pairs a statement with the policy it came from, for
// decision diagnostics.
type BoundStatement struct {
	PolicyName string
	Index      int
	Statement  *Statement
}

// StatementsFor returns the principal's effective statement set: every
// statement of every effective policy. Statement order within a policy is
// preserved for diagnostics; evaluation itself is order-independent.
func (d *Directory) StatementsFor(principalName string) ([]BoundStatement, error) {
	policyNames, err := d.EffectivePolicyNames(principalName)
	if err != nil {
		return nil, err
	}

	var out []BoundStatement
	for _, policyName := range policyNames {
		pol := d.policies[policyName]
		for i := range pol.Statements {
			out = append(out, BoundStatement{
				PolicyName: policyName,
				Index:      i,
				Statement:  &pol.Statements[i],
			})
		}
	}
	return out, nil
}
