// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/ghostlightlabs/gatekeeper/pkg/audit"
	"github.com/ghostlightlabs/gatekeeper/pkg/auth"
	"github.com/ghostlightlabs/gatekeeper/pkg/authz"
	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
	"github.com/ghostlightlabs/gatekeeper/pkg/ratelimit"
)

// maxValidatedBodyBytes bounds how much of a request body the validation
// stage will buffer.
const maxValidatedBodyBytes = 1 << 20 // 1 MiB

// Gateway wires the admission pipeline's collaborators together. All
// dependencies are injected at construction; nothing is created at import
// time.
type Gateway struct {
	resolver auth.Resolver
	gate     *authz.Gate
	limiter  *ratelimit.Limiter
	auditor  *audit.Auditor
}

// New creates a Gateway.
func New(resolver auth.Resolver, gate *authz.Gate, limiter *ratelimit.Limiter, auditor *audit.Auditor) *Gateway {
	return &Gateway{
		resolver: resolver,
		gate:     gate,
		limiter:  limiter,
		auditor:  auditor,
	}
}

// Wrap applies the route policy to a handler. The pipeline runs
// authentication, authorization, rate limiting, and payload validation in
// order; any failure short-circuits to the uniform error response and still
// emits an audit record tagged with the failing stage.
//
// Rate limiting deliberately runs after authentication so authenticated
// callers get per-identity quotas; public routes skip identity resolution
// entirely and are limited by IP.
func (g *Gateway) Wrap(policy *RoutePolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)

		event := &audit.Event{
			Type:      audit.EventTypeRequest,
			Action:    policy.Audit.Action,
			Resource:  policy.Audit.Resource,
			SourceIP:  ip,
			UserAgent: r.UserAgent(),
		}

		// Stage 1: authentication.
		var identity *auth.Identity
		credential := bearerCredential(r)
		if policy.RequireAuth {
			var err error
			identity, err = g.resolveIdentity(r, credential)
			if err != nil {
				g.deny(w, event, audit.StageAuthentication, err.Error())
				writeError(w, http.StatusUnauthorized, "Unauthorized - Authentication required")
				return
			}
			event.ActorID = identity.Subject
		}

		// Stage 2: authorization.
		if policy.RequireAuth {
			if err := g.gate.Authorize(identity, policy.AllowedRoles); err != nil {
				g.deny(w, event, audit.StageAuthorization, "insufficient permissions")
				writeError(w, http.StatusForbidden, "Forbidden - Insufficient permissions")
				return
			}
		}

		// Stage 3: rate limiting. Keyed by credential when one was resolved,
		// by IP otherwise.
		if policy.RateLimit != nil {
			limitCredential := ""
			if identity != nil {
				limitCredential = credential
			}
			key := ratelimit.ClientKey(policy.Category, limitCredential, ip)

			decision, err := g.limiter.Check(r.Context(), key, *policy.RateLimit)
			if err != nil {
				// Fail closed: a broken counter store must not grant
				// unlimited admission.
				logger.Errorw("rate limit check failed",
					"key", key,
					"error", err,
				)
				g.deny(w, event, audit.StageRateLimit, "counter store unavailable")
				writeError(w, http.StatusBadGateway, "Upstream unavailable")
				return
			}

			setRateLimitHeaders(w, decision)
			if !decision.Allowed {
				g.deny(w, event, audit.StageRateLimit, "quota exceeded")
				writeRateLimited(w, decision)
				return
			}
		}

		// Stage 4: payload validation.
		if policy.compiled != nil {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxValidatedBodyBytes))
			if err != nil {
				g.deny(w, event, audit.StageValidation, "unreadable body")
				writeError(w, http.StatusBadRequest, "Validation failed")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if err := policy.validatePayload(body); err != nil {
				g.deny(w, event, audit.StageValidation, err.Error())
				writeError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
				return
			}
		}

		// Admitted: emit the audit record before invoking the handler.
		event.Outcome = audit.OutcomeSuccess
		g.auditor.Emit(event)

		setSecurityHeaders(w)
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

// resolveIdentity runs the resolver with the request's context.
func (g *Gateway) resolveIdentity(r *http.Request, credential string) (*auth.Identity, error) {
	if credential == "" {
		return nil, auth.ErrNoCredential
	}
	return g.resolver.ResolveIdentity(r.Context(), credential)
}

// deny emits the audit record for a short-circuited request.
func (g *Gateway) deny(_ http.ResponseWriter, event *audit.Event, stage, reason string) {
	event.Outcome = audit.OutcomeDenied
	event.Stage = stage
	event.Reason = reason
	g.auditor.Emit(event)
}

// bearerCredential extracts the bearer credential from the Authorization
// header, or returns "" if none is present.
func bearerCredential(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
