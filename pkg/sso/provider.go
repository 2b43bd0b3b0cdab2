// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sso implements the OIDC and SAML login initiators.
package sso

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
)

// ProviderType distinguishes login protocols.
type ProviderType string

// Supported provider types
const (
	// ProviderTypeOIDC is an OpenID Connect provider
	ProviderTypeOIDC ProviderType = "oidc"
	// ProviderTypeSAML is a SAML 2.0 identity provider
	ProviderTypeSAML ProviderType = "saml"
)

// Provider is a configured external identity provider.
type Provider struct {
	// ID identifies the provider in login URLs.
	ID string `json:"id"`

	// Type is the provider's protocol.
	Type ProviderType `json:"type"`

	// Enabled gates the provider; disabled providers reject logins.
	Enabled bool `json:"enabled"`

	// Issuer is the OIDC issuer URL.
	Issuer string `json:"issuer,omitempty"`

	// AuthorizationEndpoint overrides the discovered authorization endpoint.
	// When empty, the endpoint is discovered from the issuer, falling back
	// to the {issuer}/authorize convention (a soft default; not all
	// providers follow it).
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`

	// ClientID is the OIDC client ID registered with the provider.
	ClientID string `json:"client_id,omitempty"`

	// Scopes are the OIDC scopes to request. Defaults to "openid profile email".
	Scopes []string `json:"scopes,omitempty"`

	// SSOURL is the SAML IdP's single-sign-on URL (HTTP-redirect binding).
	SSOURL string `json:"sso_url,omitempty"`

	// EntityID is our SAML service-provider entity ID.
	EntityID string `json:"entity_id,omitempty"`

	// ACSURL is our assertion consumer service URL.
	ACSURL string `json:"acs_url,omitempty"`
}

// ProviderRegistry holds configured providers. Registration happens at
// startup; lookups are concurrent.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]*Provider)}
}

// Register adds a provider.
func (r *ProviderRegistry) Register(p *Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID] = p
	return nil
}

// Get returns the enabled provider with the given ID and type. It fails if
// the provider is unknown, disabled, or of a different protocol.
func (r *ProviderRegistry) Get(id string, providerType ProviderType) (*Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	if !p.Enabled {
		return nil, fmt.Errorf("provider %q is disabled", id)
	}
	if p.Type != providerType {
		return nil, fmt.Errorf("provider %q is not a %s provider", id, providerType)
	}
	return p, nil
}

// generateToken returns a cryptographically random, URL-safe token with
// nBytes of entropy. Used for state and nonce values; collision-free at
// practical volumes.
func generateToken(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
