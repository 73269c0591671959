// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package policy

import "strings"

// Effect is the declared effect of a statement.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// Decision is the outcome of evaluating a request against a snapshot.
type Decision string

const (
	DecisionAllow Decision = "Allow"
	DecisionDeny  Decision = "Deny"

	// DecisionImplicitDeny is the default-closed outcome when no statement
	// matches the request. It is a decision, not an error.
	DecisionImplicitDeny Decision = "ImplicitDeny"
)

// Allowed reports whether the decision permits the request.
func (d Decision) Allowed() bool {
	return d == DecisionAllow
}

// MetricLabel returns the label value used for decision counters.
func (d Decision) MetricLabel() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	default:
		return "implicit_deny"
	}
}

// PrincipalKind distinguishes users from groups.
type PrincipalKind string

const (
	KindUser  PrincipalKind = "user"
	KindGroup PrincipalKind = "group"
)

// Principal is an identity or identity-group subject to policy decisions.
type Principal struct {
	// Name uniquely identifies the principal within the directory.
	Name string `json:"name"`

	// Kind is user or group.
	Kind PrincipalKind `json:"kind"`

	// Policies are the names of policies attached directly.
	Policies []string `json:"policies,omitempty"`

	// Groups are the groups a user belongs to. Empty for groups;
	// nesting is not supported.
	Groups []string `json:"groups,omitempty"`
}

// Policy is a named, ordered list of statements. A policy may be attached
// to any number of principals; it is shared, never copied. Updates replace
// the statement list wholesale.
type Policy struct {
	Name       string      `json:"name"`
	Statements []Statement `json:"statements"`
}

// Statement is a single allow/deny rule. Conditions are conjunctive: the
// statement applies only if every condition holds.
type Statement struct {
	// SID is an optional statement identifier used in diagnostics.
	SID string `json:"sid,omitempty"`

	Effect Effect `json:"effect"`

	// Actions are matched against the request action. A statement with no
	// action matcher matches nothing.
	Actions []Matcher `json:"actions"`

	// Resources are matched against the request resource.
	Resources []Matcher `json:"resources"`

	Conditions []Condition `json:"conditions,omitempty"`
}

// matchesAction reports whether any action matcher matches.
func (s *Statement) matchesAction(action, self string) bool {
	for _, m := range s.Actions {
		if m.Matches(action, self) {
			return true
		}
	}
	return false
}

// matchesResource reports whether any resource matcher matches.
func (s *Statement) matchesResource(resource, self string) bool {
	for _, m := range s.Resources {
		if m.Matches(resource, self) {
			return true
		}
	}
	return false
}

// TagKeyPrefix namespaces request-context keys that resolve against the
// target resource's tags rather than session attributes.
const TagKeyPrefix = "tag:"

// RequestContext holds the runtime facts a request is evaluated against.
// It is constructed fresh per evaluation call and never persisted.
type RequestContext struct {
	// Principal is the name of the requesting principal.
	Principal string `json:"principal"`

	// Action being attempted, e.g. "ec2:start-instance".
	Action string `json:"action"`

	// Resource is the target resource identifier.
	Resource string `json:"resource"`

	// ResourceTags are tags on the target resource, addressed by
	// condition keys of the form "tag:<name>".
	ResourceTags map[string]string `json:"resource_tags,omitempty"`

	// Session holds session attributes such as "session:mfa-present"
	// or "session:source-ip". Keys are matched verbatim.
	Session map[string]string `json:"session,omitempty"`
}

// Lookup resolves a condition key against the request context. Keys with
// the "tag:" prefix resolve against resource tags; all other keys resolve
// against session attributes. The second return reports key presence so
// that if-exists operators can distinguish absent from empty.
func (rc *RequestContext) Lookup(key string) (string, bool) {
	if name, ok := strings.CutPrefix(key, TagKeyPrefix); ok {
		v, present := rc.ResourceTags[name]
		return v, present
	}
	v, present := rc.Session[key]
	return v, present
}
