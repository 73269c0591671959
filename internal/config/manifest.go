// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/gatewarden/gatewarden/internal/plan"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/validation"
)

// Manifest is the declarative description of the desired access-control
// state: every principal, policy, attachment, and supporting resource,
// in declaration order.
type Manifest struct {
	Entities []EntitySpec `json:"entities" koanf:"entities"`
}

// EntitySpec is the YAML form of one declared entity.
type EntitySpec struct {
	Kind string `json:"kind" koanf:"kind" validate:"required,oneof=group user policy attachment membership log-sink sink-policy audit-trail topic"`
	Name string `json:"name" koanf:"name" validate:"required,resource_name"`

	Principal  string `json:"principal,omitempty" koanf:"principal"`
	Policy     string `json:"policy,omitempty" koanf:"policy"`
	Group      string `json:"group,omitempty" koanf:"group"`
	User       string `json:"user,omitempty" koanf:"user"`
	Sink       string `json:"sink,omitempty" koanf:"sink"`
	SinkPolicy string `json:"sink_policy,omitempty" koanf:"sink_policy"`
	Endpoint   string `json:"endpoint,omitempty" koanf:"endpoint"`

	Statements []StatementSpec `json:"statements,omitempty" koanf:"statements" validate:"omitempty,dive"`
	DependsOn  []string        `json:"depends_on,omitempty" koanf:"depends_on"`
}

// StatementSpec is the YAML form of one policy statement.
type StatementSpec struct {
	SID        string          `json:"sid,omitempty" koanf:"sid"`
	Effect     string          `json:"effect" koanf:"effect" validate:"required,oneof=Allow Deny"`
	Actions    []string        `json:"actions" koanf:"actions" validate:"required,min=1"`
	Resources  []string        `json:"resources" koanf:"resources" validate:"required,min=1"`
	Conditions []ConditionSpec `json:"conditions,omitempty" koanf:"conditions" validate:"omitempty,dive"`
}

// ConditionSpec is the YAML form of one statement condition.
type ConditionSpec struct {
	Operator string   `json:"operator" koanf:"operator" validate:"required"`
	Key      string   `json:"key" koanf:"key" validate:"required"`
	Values   []string `json:"values" koanf:"values" validate:"required,min=1"`
}

// LoadManifest reads and compiles a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	return loadManifest(file.Provider(path), path)
}

// ParseManifest compiles a manifest from raw YAML, for tests and
// API-submitted documents.
func ParseManifest(data []byte) (*Manifest, error) {
	return loadManifest(rawbytes.Provider(data), "<inline>")
}

func loadManifest(provider koanf.Provider, source string) (*Manifest, error) {
	k := koanf.New(".")
	if err := k.Load(provider, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load manifest %s: %w", source, err)
	}

	m := &Manifest{}
	if err := k.Unmarshal("", m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest %s: %w", source, err)
	}

	for i := range m.Entities {
		if verr := validation.ValidateStruct(&m.Entities[i]); verr != nil {
			return nil, fmt.Errorf("manifest %s entity %d (%s): %w", source, i, m.Entities[i].Name, verr)
		}
	}

	return m, nil
}

// Plan compiles the manifest into a resolved deployment plan. Dangling
// references, duplicates, and dependency cycles surface here, before
// anything touches a provider.
func (m *Manifest) Plan() (*plan.Plan, error) {
	entities := make([]plan.Entity, len(m.Entities))
	for i := range m.Entities {
		e, err := m.Entities[i].compile()
		if err != nil {
			return nil, err
		}
		entities[i] = e
	}
	return plan.Resolve(entities)
}

// Directory builds the policy directory the evaluator decides against.
// Only policy-bearing and principal entities contribute; sinks, trails,
// and topics are provisioning-only.
func (m *Manifest) Directory() (*policy.Directory, error) {
	dir := policy.NewDirectory()

	// Principals and policies first, attachments and memberships after,
	// regardless of declaration order: directory references are by name
	// and independent of provisioning order.
	for i := range m.Entities {
		spec := &m.Entities[i]
		switch plan.Kind(spec.Kind) {
		case plan.KindUser:
			if _, err := dir.AddPrincipal(spec.Name, policy.KindUser); err != nil {
				return nil, err
			}
		case plan.KindGroup:
			if _, err := dir.AddPrincipal(spec.Name, policy.KindGroup); err != nil {
				return nil, err
			}
		case plan.KindPolicy:
			pol, err := compilePolicy(spec.Name, spec.Statements)
			if err != nil {
				return nil, err
			}
			if err := dir.SetPolicy(pol); err != nil {
				return nil, err
			}
		}
	}

	for i := range m.Entities {
		spec := &m.Entities[i]
		switch plan.Kind(spec.Kind) {
		case plan.KindAttachment:
			if err := dir.Attach(spec.Principal, spec.Policy); err != nil {
				return nil, fmt.Errorf("attachment %q: %w", spec.Name, err)
			}
		case plan.KindMembership:
			if err := dir.AddMember(spec.Group, spec.User); err != nil {
				return nil, fmt.Errorf("membership %q: %w", spec.Name, err)
			}
		}
	}

	return dir, nil
}

func (s *EntitySpec) compile() (plan.Entity, error) {
	e := plan.Entity{
		Kind:       plan.Kind(s.Kind),
		Name:       s.Name,
		Principal:  s.Principal,
		Policy:     s.Policy,
		Group:      s.Group,
		User:       s.User,
		Sink:       s.Sink,
		SinkPolicy: s.SinkPolicy,
		Endpoint:   s.Endpoint,
		DependsOn:  s.DependsOn,
	}

	if len(s.Statements) > 0 {
		statements, err := compileStatements(s.Statements)
		if err != nil {
			return plan.Entity{}, fmt.Errorf("entity %q: %w", s.Name, err)
		}
		e.Statements = statements
	}

	return e, nil
}

func compilePolicy(name string, specs []StatementSpec) (*policy.Policy, error) {
	statements, err := compileStatements(specs)
	if err != nil {
		return nil, fmt.Errorf("policy %q: %w", name, err)
	}
	return &policy.Policy{Name: name, Statements: statements}, nil
}

func compileStatements(specs []StatementSpec) ([]policy.Statement, error) {
	statements := make([]policy.Statement, len(specs))
	for i, spec := range specs {
		st := policy.Statement{
			SID:       spec.SID,
			Effect:    policy.Effect(spec.Effect),
			Actions:   policy.CompileMatchers(spec.Actions),
			Resources: policy.CompileMatchers(spec.Resources),
		}
		for _, c := range spec.Conditions {
			cond := policy.Condition{
				Operator: policy.Operator(c.Operator),
				Key:      c.Key,
				Values:   c.Values,
			}
			if err := cond.Validate(); err != nil {
				return nil, fmt.Errorf("statement %d: %w", i, err)
			}
			st.Conditions = append(st.Conditions, cond)
		}
		statements[i] = st
	}
	return statements, nil
}
