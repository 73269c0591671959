// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package services

import (
	"context"

	"github.com/gatewarden/gatewarden/internal/audit"
)

// AuditCleanupService runs the audit retention janitor under
// supervision. It blocks in Recorder.RunCleanup until cancelled.
type AuditCleanupService struct {
	recorder *audit.Recorder
}

// NewAuditCleanupService wraps the recorder's retention loop.
func NewAuditCleanupService(recorder *audit.Recorder) *AuditCleanupService {
	return &AuditCleanupService{recorder: recorder}
}

// Serve implements suture.Service.
func (s *AuditCleanupService) Serve(ctx context.Context) error {
	return s.recorder.RunCleanup(ctx)
}

// String identifies the service in suture's logs.
func (s *AuditCleanupService) String() string {
	return "audit-cleanup"
}
