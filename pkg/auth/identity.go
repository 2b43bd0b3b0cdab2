// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth provides caller identity resolution for the admission gateway.
package auth

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Identity represents an authenticated user or service account resolved from
// a bearer credential. It is ephemeral: recomputed per request and never
// persisted by the gateway.
type Identity struct {
	// Subject is the unique identifier for the principal (from 'sub' claim).
	Subject string

	// Name is the human-readable name (from 'name' claim).
	Name string

	// Email is the email address (from 'email' claim, if available).
	Email string

	// Roles are the platform roles held by this identity, as reported by the
	// identity collaborator. Authorization decisions are made on this set.
	Roles []string

	// Claims contains additional claims from the auth token.
	Claims map[string]any

	// Token is the original credential (for pass-through scenarios).
	// This is redacted in String() and MarshalJSON() to prevent leakage.
	Token string
}

// HasRole reports whether the identity holds the given role.
func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}

// String returns a string representation of the Identity with sensitive
// fields redacted. This prevents accidental token leakage when the Identity
// is logged or printed.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q, Roles:%v}", i.Subject, i.Roles)
}

// MarshalJSON implements json.Marshaler to redact sensitive fields during
// JSON serialization. This prevents accidental token leakage in structured
// logs or audit records.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}

	type safeIdentity struct {
		Subject string         `json:"subject"`
		Name    string         `json:"name"`
		Email   string         `json:"email"`
		Roles   []string       `json:"roles"`
		Claims  map[string]any `json:"claims"`
		Token   string         `json:"token"`
	}

	token := i.Token
	if token != "" {
		token = "REDACTED"
	}

	return json.Marshal(&safeIdentity{
		Subject: i.Subject,
		Name:    i.Name,
		Email:   i.Email,
		Roles:   i.Roles,
		Claims:  i.Claims,
		Token:   token,
	})
}
