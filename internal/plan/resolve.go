// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Plan is a resolved application order over a manifest's entities.
type Plan struct {
	// Entities in topological order. Ties are broken by declaration
	// order, so re-resolving an unchanged manifest yields an identical
	// plan.
	Entities []Entity

	// prereqs maps entity ID to the IDs that must succeed before it may
	// be applied.
	prereqs map[string][]string
}

// Prerequisites returns the IDs that must be applied successfully before
// the given entity.
func (p *Plan) Prerequisites(id string) []string {
	return p.prereqs[id]
}

// IDs returns the entity IDs in plan order.
func (p *Plan) IDs() []string {
	ids := make([]string, len(p.Entities))
	for i := range p.Entities {
		ids[i] = p.Entities[i].ID()
	}
	return ids
}

// Resolve builds the deployment graph over the declared entities and
// returns them in a deterministic topological order. It fails with a
// *ConfigurationError on duplicate names or dangling references and with
// a *CycleError if the graph is not acyclic. No provider call happens
// before Resolve succeeds.
func Resolve(entities []Entity) (*Plan, error) {
	byID := make(map[string]int, len(entities))
	for i := range entities {
		id := entities[i].ID()
		if _, dup := byID[id]; dup {
			return nil, &ConfigurationError{Entity: id, Reason: "duplicate entity"}
		}
		byID[id] = i
	}

	prereqs := make(map[string][]string, len(entities))
	addEdge := func(from *Entity, toID string) {
		id := from.ID()
		for _, existing := range prereqs[id] {
			if existing == toID {
				return
			}
		}
		prereqs[id] = append(prereqs[id], toID)
	}

	for i := range entities {
		e := &entities[i]

		for _, r := range e.impliedRefs() {
			if r.name == "" {
				return nil, &ConfigurationError{Entity: e.ID(), Reason: fmt.Sprintf("missing required reference %s", r.field)}
			}
			target, err := lookupRef(byID, r)
			if err != nil {
				return nil, &ConfigurationError{Entity: e.ID(), Reason: err.Error()}
			}
			addEdge(e, target)
		}

		for _, dep := range e.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, &ConfigurationError{Entity: e.ID(), Reason: fmt.Sprintf("depends_on references unknown entity %q", dep)}
			}
			if dep == e.ID() {
				return nil, &ConfigurationError{Entity: e.ID(), Reason: "entity depends on itself"}
			}
			addEdge(e, dep)
		}
	}

	// Kahn's algorithm, level by level. Within a level, nodes keep their
	// declaration order; that is the entire tie-break rule.
	indegree := make(map[string]int, len(entities))
	dependents := make(map[string][]string, len(entities))
	for id, pres := range prereqs {
		indegree[id] = len(pres)
		for _, pre := range pres {
			dependents[pre] = append(dependents[pre], id)
		}
	}

	ordered := make([]Entity, 0, len(entities))
	emitted := make(map[string]bool, len(entities))
	remaining := len(entities)

	for remaining > 0 {
		progressed := false
		for i := range entities {
			id := entities[i].ID()
			if emitted[id] || indegree[id] > 0 {
				continue
			}
			ordered = append(ordered, entities[i])
			emitted[id] = true
			remaining--
			progressed = true
			for _, dep := range dependents[id] {
				indegree[dep]--
			}
		}
		if !progressed {
			var blocked []string
			for i := range entities {
				if id := entities[i].ID(); !emitted[id] {
					blocked = append(blocked, id)
				}
			}
			sort.Strings(blocked)
			return nil, &CycleError{Nodes: blocked}
		}
	}

	return &Plan{Entities: ordered, prereqs: prereqs}, nil
}

// lookupRef resolves a reference name against the candidate kinds and
// returns the target entity ID.
func lookupRef(byID map[string]int, r ref) (string, error) {
	for _, k := range r.kinds {
		id := EntityID(k, r.name)
		if _, ok := byID[id]; ok {
			return id, nil
		}
	}
	kinds := make([]string, len(r.kinds))
	for i, k := range r.kinds {
		kinds[i] = string(k)
	}
	return "", fmt.Errorf("dangling reference %s: no %s entity named %q", r, strings.Join(kinds, " or "), r.name)
}
