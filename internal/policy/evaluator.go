// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package policy

// MatchedStatement identifies a statement that survived matching and
// condition evaluation, for decision diagnostics.
type MatchedStatement struct {
	PolicyName string `json:"policy"`
	Index      int    `json:"index"`
	SID        string `json:"sid,omitempty"`
	Effect     Effect `json:"effect"`
}

// Result carries a decision together with the statements that produced it.
type Result struct {
	Decision Decision           `json:"decision"`
	Matched  []MatchedStatement `json:"matched,omitempty"`
}

// Decide evaluates a request against the snapshot and returns Allow, Deny,
// or ImplicitDeny. It never returns an error: an unknown principal simply
// has no matching statements and resolves to ImplicitDeny.
//
// The effect resolution order is the core correctness contract of the
// system: explicit Deny beats any number of Allows, and the absence of a
// surviving statement is an ImplicitDeny.
//
// Decide is pure and safe for concurrent use over one snapshot.
func (s *Snapshot) Decide(req *RequestContext) Result {
	bound, err := s.dir.StatementsFor(req.Principal)
	if err != nil {
		return Result{Decision: DecisionImplicitDeny}
	}

	var matched []MatchedStatement
	denied := false
	allowed := false

	for _, b := range bound {
		st := b.Statement
		if !st.matchesAction(req.Action, req.Principal) {
			continue
		}
		if !st.matchesResource(req.Resource, req.Principal) {
			continue
		}
		if !conditionsHold(st, req) {
			continue
		}

		matched = append(matched, MatchedStatement{
			PolicyName: b.PolicyName,
			Index:      b.Index,
			SID:        st.SID,
			Effect:     st.Effect,
		})
		switch st.Effect {
		case EffectDeny:
			denied = true
		case EffectAllow:
			allowed = true
		}
	}

	switch {
	case denied:
		return Result{Decision: DecisionDeny, Matched: matched}
	case allowed:
		return Result{Decision: DecisionAllow, Matched: matched}
	default:
		return Result{Decision: DecisionImplicitDeny}
	}
}

// conditionsHold reports whether every condition of the statement holds.
// A statement without conditions always applies.
func conditionsHold(st *Statement, req *RequestContext) bool {
	for _, c := range st.Conditions {
		if !c.Evaluate(req) {
			return false
		}
	}
	return true
}
