// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package plan

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a structurally invalid manifest: duplicate
// entity names, dangling references, or malformed specs. Configuration
// errors are fatal and surface before any provider call.
type ConfigurationError struct {
	Entity string // entity ID the problem was found on
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Entity == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error on %s: %s", e.Entity, e.Reason)
}

// CycleError reports a dependency cycle. Nodes holds the IDs of every
// entity still blocked when resolution stalled; at least one of them is
// on a cycle.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return "dependency cycle among: " + strings.Join(e.Nodes, ", ")
}
