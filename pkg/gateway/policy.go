// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway composes identity resolution, authorization, rate
// limiting, payload validation, and audit emission into a single per-route
// admission pipeline.
package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ghostlightlabs/gatekeeper/pkg/ratelimit"
)

// AuditSpec declares the audit action and resource recorded for a route.
type AuditSpec struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

// RoutePolicy is the static security configuration attached to a route. It
// is loaded at startup and never mutated at runtime.
type RoutePolicy struct {
	// RequireAuth controls whether identity resolution runs at all. Public
	// routes skip it entirely but are still rate limited by IP.
	RequireAuth bool `json:"auth"`

	// AllowedRoles is the route's role allow-list. Empty with RequireAuth
	// set means any authenticated caller.
	AllowedRoles []string `json:"roles,omitempty"`

	// RateLimit is the route's quota. Nil disables rate limiting.
	RateLimit *ratelimit.Policy `json:"rate_limit,omitempty"`

	// Category groups routes onto shared rate-limit counters.
	Category string `json:"category,omitempty"`

	// Schema is a JSON schema the request body must satisfy. Nil disables
	// payload validation.
	Schema json.RawMessage `json:"validation,omitempty"`

	// Audit declares the action/resource pair stamped on audit events.
	Audit AuditSpec `json:"audit"`

	// compiled is the schema compiled at startup.
	compiled *gojsonschema.Schema
}

// Compile prepares the policy for serving, compiling the JSON schema if one
// is declared. It must be called once before the policy is used.
func (p *RoutePolicy) Compile() error {
	if len(p.Schema) == 0 {
		return nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(p.Schema))
	if err != nil {
		return fmt.Errorf("failed to compile route schema: %w", err)
	}
	p.compiled = schema
	return nil
}

// validatePayload checks the body against the compiled schema. Returns a
// human-readable description of the first failure.
func (p *RoutePolicy) validatePayload(body []byte) error {
	if p.compiled == nil {
		return nil
	}
	result, err := p.compiled.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("%s", errs[0].String())
		}
		return fmt.Errorf("payload does not match schema")
	}
	return nil
}
