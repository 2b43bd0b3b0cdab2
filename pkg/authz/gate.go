// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authz implements role-based authorization for gateway routes.
package authz

import (
	"strings"

	"github.com/ghostlightlabs/gatekeeper/pkg/auth"
	"github.com/ghostlightlabs/gatekeeper/pkg/errors"
	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
)

// Gate decides whether a resolved identity may access a route.
//
// Access is granted if the caller holds any role in the route's allow-list,
// or any role registered as privileged (the break-glass family that bypasses
// per-route allow-lists platform-wide). An empty allow-list admits any
// authenticated caller.
type Gate struct {
	privileged map[string]bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithPrivilegedRoles registers role names whose holders bypass per-route
// allow-lists. Privilege is declared here, at role-definition time, rather
// than inferred from a naming convention at check time.
func WithPrivilegedRoles(roles ...string) GateOption {
	return func(g *Gate) {
		for _, role := range roles {
			g.privileged[role] = true
		}
	}
}

// WithPrivilegedPrefix registers every role produced by the legacy
// name-prefix convention (e.g. "LEGEND_"). It exists so configurations
// written against the convention keep working; the prefix is expanded into
// explicit role names at load time, not consulted per request.
func WithPrivilegedPrefix(prefix string, knownRoles []string) GateOption {
	return func(g *Gate) {
		for _, role := range knownRoles {
			if strings.HasPrefix(role, prefix) {
				g.privileged[role] = true
			}
		}
	}
}

// NewGate creates a Gate with the given options.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{privileged: make(map[string]bool)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsPrivileged reports whether the role is registered as break-glass.
func (g *Gate) IsPrivileged(role string) bool {
	return g.privileged[role]
}

// Authorize returns nil if the identity may access a route guarded by the
// given allow-list, or an unauthorized error otherwise.
func (g *Gate) Authorize(identity *auth.Identity, allowedRoles []string) error {
	if identity == nil {
		return errors.NewUnauthorizedError("no identity", nil)
	}

	for _, role := range identity.Roles {
		if g.privileged[role] {
			logger.Debugw("access granted via privileged role",
				"subject", identity.Subject,
				"role", role,
			)
			return nil
		}
	}

	// Empty allow-list means any authenticated caller.
	if len(allowedRoles) == 0 {
		return nil
	}

	for _, role := range allowedRoles {
		if identity.HasRole(role) {
			return nil
		}
	}

	return errors.NewUnauthorizedError("insufficient permissions", nil)
}
