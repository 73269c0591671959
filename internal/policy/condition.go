// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator names a condition predicate.
//
// Strict operators fail closed: a key absent from the request context
// evaluates to false. IfExists operators apply only when the key is
// present: an absent key evaluates to true, mirroring "ignore this
// condition when the attribute does not apply". The distinction matters
// for attributes a principal may not have established yet (a session
// MFA flag before any device is registered); conflating the two locks
// principals out of the very actions needed to establish the attribute.
type Operator string

const (
	OpStringEquals    Operator = "StringEquals"
	OpStringNotEquals Operator = "StringNotEquals"
	OpBool            Operator = "Bool"

	OpStringEqualsIfExists Operator = "StringEqualsIfExists"
	OpBoolIfExists         Operator = "BoolIfExists"
)

// ConditionError reports a malformed condition found at policy load time.
// Conditions are never rejected at evaluation time.
type ConditionError struct {
	Operator Operator
	Key      string
	Reason   string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %s on key %q: %s", e.Operator, e.Key, e.Reason)
}

// Condition is a predicate over the request context gating a statement's
// applicability. Values are disjunctive: the condition holds if the
// context value matches any expected value.
type Condition struct {
	Operator Operator `json:"operator"`
	Key      string   `json:"key"`
	Values   []string `json:"values"`
}

// Validate rejects unknown operators and empty key/value lists. Called
// when a policy is loaded into a directory so that a malformed condition
// can never silently skew evaluation.
func (c Condition) Validate() error {
	switch c.Operator {
	case OpStringEquals, OpStringNotEquals, OpBool, OpStringEqualsIfExists, OpBoolIfExists:
	default:
		return &ConditionError{Operator: c.Operator, Key: c.Key, Reason: "unknown operator"}
	}
	if c.Key == "" {
		return &ConditionError{Operator: c.Operator, Key: c.Key, Reason: "empty context key"}
	}
	if len(c.Values) == 0 {
		return &ConditionError{Operator: c.Operator, Key: c.Key, Reason: "no expected values"}
	}
	return nil
}

// Evaluate resolves the condition against the request context.
func (c Condition) Evaluate(rc *RequestContext) bool {
	actual, present := rc.Lookup(c.Key)

	switch c.Operator {
	case OpStringEquals:
		return present && containsString(c.Values, actual)

	case OpStringNotEquals:
		// Absent key fails closed, same as the other strict operators.
		return present && !containsString(c.Values, actual)

	case OpBool:
		return present && boolMatch(c.Values, actual)

	case OpStringEqualsIfExists:
		if !present {
			return true
		}
		return containsString(c.Values, actual)

	case OpBoolIfExists:
		if !present {
			return true
		}
		return boolMatch(c.Values, actual)

	default:
		// Unknown operators are rejected at load time; fail closed if one
		// slips through.
		return false
	}
}

func containsString(values []string, actual string) bool {
	for _, v := range values {
		if v == actual {
			return true
		}
	}
	return false
}

// boolMatch compares the actual context value against expected boolean
// values, tolerating case variations ("True", "TRUE").
func boolMatch(values []string, actual string) bool {
	actualBool, err := strconv.ParseBool(strings.ToLower(actual))
	if err != nil {
		return false
	}
	for _, v := range values {
		want, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			continue
		}
		if want == actualBool {
			return true
		}
	}
	return false
}
