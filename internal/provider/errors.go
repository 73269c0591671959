// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package provider

import (
	"errors"
	"fmt"
)

// Permanent provider failures. These abort the remaining plan; retrying
// cannot help.
var (
	// ErrAlreadyExists signals the entity exists with a conflicting spec
	// the provider refuses to reconcile. A clean already-exists in the
	// desired state is OutcomeUnchanged, not an error.
	ErrAlreadyExists = errors.New("entity already exists with conflicting specification")

	// ErrInvalidReference signals the entity references a resource the
	// provider does not know.
	ErrInvalidReference = errors.New("invalid resource reference")

	// ErrPermissionDenied signals the provisioning credentials lack the
	// permission for this operation.
	ErrPermissionDenied = errors.New("permission denied by provider")
)

// TransientError marks a failure worth retrying with backoff: throttling,
// connection resets, provider-side timeouts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether the error is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
