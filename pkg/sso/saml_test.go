// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package sso

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostlightlabs/gatekeeper/pkg/audit"
)

func samlLoginRequest(providerID, redirectURI string) *http.Request {
	q := url.Values{}
	if providerID != "" {
		q.Set("provider_id", providerID)
	}
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	req := httptest.NewRequest(http.MethodGet, "/sso/saml/login?"+q.Encode(), nil)
	req.RemoteAddr = "10.0.0.1:54321"
	return req
}

func TestSAMLLoginRedirect(t *testing.T) {
	t.Parallel()

	store := newTestAuthStore(t)
	handler := NewSAMLLoginHandler(newTestRegistry(t), store, audit.NewAuditor("test", nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, samlLoginRequest("corp-idp", "https://app.example.com/home"))

	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", location.Host)
	assert.Equal(t, "/sso", location.Path)

	q := location.Query()
	assert.NotEmpty(t, q.Get("SAMLRequest"), "redirect binding carries the deflated request")
	relayState := q.Get("RelayState")
	require.NotEmpty(t, relayState)

	// The pending record is keyed by RelayState and carries the AuthnRequest
	// ID for InResponseTo checking at the callback.
	pending, err := store.ConsumePendingAuth(t.Context(), relayState)
	require.NoError(t, err)
	assert.Equal(t, "corp-idp", pending.ProviderID)
	assert.Equal(t, relayState, pending.RelayState)
	assert.NotEmpty(t, pending.RequestID)
	assert.Equal(t, "https://app.example.com/home", pending.RedirectURI)
}

func TestSAMLLoginDistinctRelayStatePerAttempt(t *testing.T) {
	t.Parallel()

	handler := NewSAMLLoginHandler(newTestRegistry(t), newTestAuthStore(t), audit.NewAuditor("test", nil))

	relayStateFor := func() string {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, samlLoginRequest("corp-idp", "https://app.example.com/home"))
		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		return location.Query().Get("RelayState")
	}

	assert.NotEqual(t, relayStateFor(), relayStateFor())
}

func TestSAMLLoginRejections(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(&Provider{
		ID:      "corp-idp-broken",
		Type:    ProviderTypeSAML,
		Enabled: true,
		SSOURL:  "https://idp.example.com/sso",
		// No ACS URL configured.
	}))
	handler := NewSAMLLoginHandler(registry, newTestAuthStore(t), audit.NewAuditor("test", nil))

	tests := []struct {
		name        string
		providerID  string
		redirectURI string
	}{
		{"missing provider_id", "", "https://app.example.com/home"},
		{"missing redirect_uri", "corp-idp", ""},
		{"unknown provider", "ghost", "https://app.example.com/home"},
		{"oidc provider on saml route", "okta", "https://app.example.com/home"},
		{"missing acs url", "corp-idp-broken", "https://app.example.com/home"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, samlLoginRequest(tt.providerID, tt.redirectURI))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
