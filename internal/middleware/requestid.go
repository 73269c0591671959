// Gatewarden - Declarative Access-Control Provisioning and Policy Simulation
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

package middleware

import (
	"net/http"

	"github.com/gatewarden/gatewarden/internal/logging"
)

// RequestIDHeader is the header clients and upstream proxies use to
// carry a request ID across hops.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request a unique ID, honoring one supplied by
// an upstream proxy. The ID is echoed in the response header and stored
// in the request context for logging and audit attribution.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
