// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"

	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
	"github.com/ghostlightlabs/gatekeeper/pkg/ratelimit"
)

// errorResponse is the uniform error envelope every pipeline failure
// produces.
type errorResponse struct {
	Error string `json:"error"`

	// RetryAfter is seconds until the caller may retry, set on 429 only.
	RetryAfter int `json:"retryAfter,omitempty"`
}

// writeError writes the uniform error shape with the given status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorResponse(w, status, &errorResponse{Error: message})
}

// writeRateLimited writes a 429 with Retry-After and the retry hint in the
// body.
func writeRateLimited(w http.ResponseWriter, decision *ratelimit.Decision) {
	seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	writeErrorResponse(w, http.StatusTooManyRequests, &errorResponse{
		Error:      "Too many requests",
		RetryAfter: seconds,
	})
}

func writeErrorResponse(w http.ResponseWriter, status int, body *errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to write error response", "error", err)
	}
}

// setRateLimitHeaders exposes the window state on every response that passed
// through the rate-limit stage.
func setRateLimitHeaders(w http.ResponseWriter, decision *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetAt.Unix()))
}

// setSecurityHeaders adds the response hardening headers applied to
// gateway-wrapped routes.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
}

// remoteIP extracts the caller's IP, trusting chi's RealIP middleware to
// have already folded in X-Forwarded-For where configured.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
