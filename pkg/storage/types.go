// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides single-use stores for login-flow state: pending
// OIDC/SAML authentication requests and OAuth2 authorization codes.
package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultPendingAuthTTL is the default TTL for pending login requests.
const DefaultPendingAuthTTL = 10 * time.Minute

// DefaultAuthorizationCodeTTL is the default TTL for authorization codes.
const DefaultAuthorizationCodeTTL = 10 * time.Minute

// Store errors
var (
	// ErrNotFound is returned when no record exists for the given key.
	ErrNotFound = errors.New("record not found")

	// ErrExpired is returned when the record exists but its TTL has passed.
	ErrExpired = errors.New("record expired")

	// ErrAlreadyConsumed is returned when the record was already consumed.
	// Reuse of a code or state is a replay signal and is reported distinctly
	// from an unknown value.
	ErrAlreadyConsumed = errors.New("record already consumed")
)

// PendingAuthRequest tracks an OIDC or SAML login attempt between initiation
// and the provider callback. It is keyed by its unguessable State value and
// consumed exactly once.
type PendingAuthRequest struct {
	// RequestID identifies the login attempt. For SAML this is the
	// AuthnRequest ID the IdP echoes back as InResponseTo.
	RequestID string `json:"request_id"`

	// ProviderID names the identity provider this request targets.
	ProviderID string `json:"provider_id"`

	// State is the anti-replay value round-tripped through the provider.
	State string `json:"state"`

	// Nonce binds the eventual ID token to this request (OIDC only).
	Nonce string `json:"nonce,omitempty"`

	// CodeVerifier is the PKCE verifier whose S256 challenge was sent to the
	// provider (OIDC only).
	CodeVerifier string `json:"code_verifier,omitempty"`

	// RelayState is the opaque value round-tripped through the IdP to
	// recover client-side context (SAML only).
	RelayState string `json:"relay_state,omitempty"`

	// RedirectURI is where the browser lands after the flow completes.
	RedirectURI string `json:"redirect_uri"`

	// ExpiresAt is when this request stops being consumable.
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthorizationCode is a single-use OAuth2 authorization code record.
type AuthorizationCode struct {
	// Code is the random code value handed to the client.
	Code string `json:"code"`

	// ClientID is the client the code was issued to.
	ClientID string `json:"client_id"`

	// RedirectURI is the exact redirect URI the code was bound to.
	RedirectURI string `json:"redirect_uri"`

	// Scopes are the granted scopes.
	Scopes []string `json:"scopes"`

	// State is the client's original state parameter, if any.
	State string `json:"state,omitempty"`

	// ExpiresAt is when the code stops being exchangeable.
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthStore persists pending login requests and authorization codes.
//
// Consume operations combine retrieval and invalidation into one atomic step
// so that two near-simultaneous callback deliveries cannot both succeed
// against the same code or state.
type AuthStore interface {
	// PutPendingAuth stores a pending login request keyed by its state.
	PutPendingAuth(ctx context.Context, pending *PendingAuthRequest) error

	// ConsumePendingAuth atomically retrieves and invalidates the pending
	// request for the given state. Returns ErrNotFound, ErrExpired, or
	// ErrAlreadyConsumed on failure.
	ConsumePendingAuth(ctx context.Context, state string) (*PendingAuthRequest, error)

	// PutAuthorizationCode stores an authorization code record.
	PutAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically retrieves and invalidates the code.
	// Returns ErrNotFound, ErrExpired, or ErrAlreadyConsumed on failure.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// Close releases the store's resources.
	Close() error
}
