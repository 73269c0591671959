// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package policy

import (
	"strings"

	"github.com/goccy/go-json"
)

// SelfToken in a resource pattern binds to the requesting principal's own
// name at evaluation time, e.g. "grn:iam:user/${self}/mfa".
const SelfToken = "${self}"

type matchKind uint8

const (
	matchExact matchKind = iota
	matchPrefix
	matchAny
	matchTemplate
)

// Matcher matches action or resource strings. Three static forms exist:
// exact, prefix (trailing "*"), and full wildcard ("*"). Resource patterns
// containing ${self} are templated and expanded with the requesting
// principal's name before matching.
type Matcher struct {
	raw    string
	kind   matchKind
	prefix string
}

// CompileMatcher builds a matcher from a pattern string.
func CompileMatcher(pattern string) Matcher {
	m := Matcher{raw: pattern}
	switch {
	case pattern == "*":
		m.kind = matchAny
	case strings.Contains(pattern, SelfToken):
		m.kind = matchTemplate
	case strings.HasSuffix(pattern, "*"):
		m.kind = matchPrefix
		m.prefix = strings.TrimSuffix(pattern, "*")
	default:
		m.kind = matchExact
	}
	return m
}

// CompileMatchers builds matchers for a list of patterns.
func CompileMatchers(patterns []string) []Matcher {
	out := make([]Matcher, len(patterns))
	for i, p := range patterns {
		out[i] = CompileMatcher(p)
	}
	return out
}

// Matches reports whether value matches the pattern. self is the name of
// the requesting principal, used only by templated patterns.
func (m Matcher) Matches(value, self string) bool {
	switch m.kind {
	case matchAny:
		return true
	case matchExact:
		return value == m.raw
	case matchPrefix:
		return strings.HasPrefix(value, m.prefix)
	case matchTemplate:
		expanded := strings.ReplaceAll(m.raw, SelfToken, self)
		if strings.HasSuffix(expanded, "*") {
			return strings.HasPrefix(value, strings.TrimSuffix(expanded, "*"))
		}
		return value == expanded
	default:
		return false
	}
}

// Pattern returns the original pattern string.
func (m Matcher) Pattern() string {
	return m.raw
}

// String implements fmt.Stringer.
func (m Matcher) String() string {
	return m.raw
}

// MarshalJSON encodes the matcher as its pattern string.
func (m Matcher) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.raw)
}

// UnmarshalJSON decodes a pattern string and compiles it.
func (m *Matcher) UnmarshalJSON(data []byte) error {
	var pattern string
	if err := json.Unmarshal(data, &pattern); err != nil {
		return err
	}
	*m = CompileMatcher(pattern)
	return nil
}
