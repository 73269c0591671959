// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package plan

import (
	"fmt"

	"github.com/gatewarden/gatewarden/internal/policy"
)

// Kind identifies the type of a provisioned entity.
type Kind string

const (
	KindGroup      Kind = "group"
	KindUser       Kind = "user"
	KindPolicy     Kind = "policy"
	KindAttachment Kind = "attachment"
	KindMembership Kind = "membership"
	KindLogSink    Kind = "log-sink"
	KindSinkPolicy Kind = "sink-policy"
	KindAuditTrail Kind = "audit-trail"
	KindTopic      Kind = "topic"
)

// Entity is one provisionable resource specification. The kind determines
// which reference fields are meaningful.
type Entity struct {
	Kind Kind   `json:"kind" validate:"required,oneof=group user policy attachment membership log-sink sink-policy audit-trail topic"`
	Name string `json:"name" validate:"required,resource_name"`

	// Principal and Policy name the two ends of an attachment. Principal
	// may be a user or a group.
	Principal string `json:"principal,omitempty"`
	Policy    string `json:"policy,omitempty"`

	// Group and User name the two ends of a membership.
	Group string `json:"group,omitempty"`
	User  string `json:"user,omitempty"`

	// Sink names the log sink a sink-policy protects.
	Sink string `json:"sink,omitempty"`

	// SinkPolicy names the access policy an audit trail writes through.
	// The trail's edge points here, not at the sink: the provider rejects
	// a trail whose sink is not yet writable.
	SinkPolicy string `json:"sink_policy,omitempty"`

	// Endpoint is the recipient endpoint of a notification topic.
	Endpoint string `json:"endpoint,omitempty"`

	// Statements carry the policy document for policy and sink-policy
	// entities.
	Statements []policy.Statement `json:"statements,omitempty"`

	// DependsOn adds explicit prerequisite edges by entity ID
	// ("kind:name") on top of the implied ones.
	DependsOn []string `json:"depends_on,omitempty"`
}

// ID returns the graph node identifier, unique across kinds.
func (e *Entity) ID() string {
	return string(e.Kind) + ":" + e.Name
}

// EntityID builds the node identifier for a kind and name.
func EntityID(kind Kind, name string) string {
	return string(kind) + ":" + name
}

// impliedRefs returns the references this entity requires to exist first,
// as (description, candidate kinds, name) tuples resolved against the
// declared entity set.
func (e *Entity) impliedRefs() []ref {
	switch e.Kind {
	case KindAttachment:
		return []ref{
			{field: "principal", kinds: []Kind{KindUser, KindGroup}, name: e.Principal},
			{field: "policy", kinds: []Kind{KindPolicy}, name: e.Policy},
		}
	case KindMembership:
		return []ref{
			{field: "group", kinds: []Kind{KindGroup}, name: e.Group},
			{field: "user", kinds: []Kind{KindUser}, name: e.User},
		}
	case KindSinkPolicy:
		return []ref{
			{field: "sink", kinds: []Kind{KindLogSink}, name: e.Sink},
		}
	case KindAuditTrail:
		return []ref{
			{field: "sink_policy", kinds: []Kind{KindSinkPolicy}, name: e.SinkPolicy},
		}
	default:
		return nil
	}
}

// ref is an implied reference from one entity to another.
type ref struct {
	field string
	kinds []Kind
	name  string
}

func (r ref) String() string {
	return fmt.Sprintf("%s=%q", r.field, r.name)
}
