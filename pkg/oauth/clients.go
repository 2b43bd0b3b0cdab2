// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth implements the OAuth 2.0 authorization endpoint.
package oauth

import (
	"fmt"
	"slices"
	"sync"
)

// Client is a registered OAuth 2.0 client.
type Client struct {
	// ID is the client_id.
	ID string `json:"id"`

	// RedirectURIs is the exact-match allow-list of redirect URIs. No
	// substring or prefix matching is ever applied.
	RedirectURIs []string `json:"redirect_uris"`

	// AllowedScopes is the set of scopes the client may request.
	AllowedScopes []string `json:"allowed_scopes"`

	// Active gates the client; inactive clients are rejected as unknown.
	Active bool `json:"active"`
}

// AllowsRedirectURI reports whether uri exactly matches a registered
// redirect URI.
func (c *Client) AllowsRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// AllowsScopes reports whether every requested scope is in the client's
// allow-list.
func (c *Client) AllowsScopes(scopes []string) bool {
	for _, scope := range scopes {
		if !slices.Contains(c.AllowedScopes, scope) {
			return false
		}
	}
	return true
}

// ClientRegistry holds registered clients. Registration happens at startup;
// lookups are concurrent.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

// Register adds a client to the registry.
func (r *ClientRegistry) Register(client *Client) error {
	if client.ID == "" {
		return fmt.Errorf("client ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
	return nil
}

// Get returns the active client with the given ID, or false if the client
// is unknown or inactive.
func (r *ClientRegistry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[id]
	if !ok || !client.Active {
		return nil, false
	}
	return client, true
}
