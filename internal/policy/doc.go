// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package policy implements the gatewarden policy model and evaluator.
//
// A Directory holds principals (users and groups), named policies, and the
// attachments between them. Policies are ordered lists of statements; each
// statement carries an effect (Allow or Deny), action and resource matchers,
// and an optional conjunctive list of conditions evaluated against the
// request context.
//
// Evaluation follows the classic layered-policy contract:
//
//  1. Collect every statement from every policy attached to the principal,
//     directly or through group membership.
//  2. Keep statements whose action and resource matchers match the request.
//  3. Keep statements whose conditions all hold against the request context.
//  4. Any surviving Deny wins. Otherwise any surviving Allow allows.
//     Otherwise the decision is ImplicitDeny.
//
// Directories are published as immutable versioned snapshots through a
// Store; Decide is a pure function over one snapshot and is safe for
// unbounded concurrent use.
package policy
