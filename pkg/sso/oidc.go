// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package sso

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/ghostlightlabs/gatekeeper/pkg/audit"
	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
	"github.com/ghostlightlabs/gatekeeper/pkg/storage"
)

// defaultOIDCScopes are requested when the provider config names none.
var defaultOIDCScopes = []string{"openid", "profile", "email"}

// discoveryTimeout bounds the provider metadata lookup so a slow IdP cannot
// hang login initiation.
const discoveryTimeout = 3 * time.Second

// stateTokenBytes is the entropy of state and nonce values.
const stateTokenBytes = 32

// OIDCLoginHandler serves GET /sso/oidc/login: it generates PKCE and
// anti-replay material, persists a pending-request record, and redirects the
// browser to the provider's authorization endpoint.
type OIDCLoginHandler struct {
	providers  *ProviderRegistry
	store      storage.AuthStore
	auditor    *audit.Auditor
	pendingTTL time.Duration
}

// NewOIDCLoginHandler creates an OIDCLoginHandler.
func NewOIDCLoginHandler(providers *ProviderRegistry, store storage.AuthStore, auditor *audit.Auditor) *OIDCLoginHandler {
	return &OIDCLoginHandler{
		providers:  providers,
		store:      store,
		auditor:    auditor,
		pendingTTL: storage.DefaultPendingAuthTTL,
	}
}

// ServeHTTP handles the login initiation request.
func (h *OIDCLoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	providerID := r.URL.Query().Get("provider_id")
	redirectURI := r.URL.Query().Get("redirect_uri")

	event := &audit.Event{
		Type:      audit.EventTypeLoginInitiated,
		SourceIP:  requestIP(r),
		UserAgent: r.UserAgent(),
		Extra:     map[string]string{"provider_id": providerID, "protocol": "oidc"},
	}

	if providerID == "" || redirectURI == "" {
		h.fail(w, event, "provider_id and redirect_uri are required")
		return
	}

	provider, err := h.providers.Get(providerID, ProviderTypeOIDC)
	if err != nil {
		h.fail(w, event, err.Error())
		return
	}

	state, err := generateToken(stateTokenBytes)
	if err != nil {
		h.fail(w, event, "failed to generate state")
		return
	}
	nonce, err := generateToken(stateTokenBytes)
	if err != nil {
		h.fail(w, event, "failed to generate nonce")
		return
	}
	verifier := oauth2.GenerateVerifier()

	authURL := h.authorizationEndpoint(ctx, provider)

	pending := &storage.PendingAuthRequest{
		RequestID:    state,
		ProviderID:   provider.ID,
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		RedirectURI:  redirectURI,
		ExpiresAt:    time.Now().Add(h.pendingTTL),
	}
	if err := h.store.PutPendingAuth(ctx, pending); err != nil {
		logger.Errorw("failed to persist pending auth request",
			"provider_id", provider.ID,
			"error", err,
		)
		h.fail(w, event, "failed to persist login state")
		return
	}

	scopes := provider.Scopes
	if len(scopes) == 0 {
		scopes = defaultOIDCScopes
	}

	conf := &oauth2.Config{
		ClientID:    provider.ClientID,
		RedirectURL: redirectURI,
		Scopes:      scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: authURL},
	}
	loginURL := conf.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("nonce", nonce),
	)

	// Pre-auth audit: identity is not known yet, so record source only.
	event.Outcome = audit.OutcomeSuccess
	h.auditor.Emit(event)

	http.Redirect(w, r, loginURL, http.StatusFound)
}

// authorizationEndpoint resolves the provider's authorization endpoint:
// explicit configuration wins, then OIDC discovery, then the
// {issuer}/authorize convention. The convention is a soft default and not a
// protocol guarantee; providers that deviate must configure the endpoint
// explicitly.
func (h *OIDCLoginHandler) authorizationEndpoint(ctx context.Context, provider *Provider) string {
	if provider.AuthorizationEndpoint != "" {
		return provider.AuthorizationEndpoint
	}

	discoveryCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	discovered, err := gooidc.NewProvider(discoveryCtx, provider.Issuer)
	if err == nil {
		return discovered.Endpoint().AuthURL
	}

	logger.Warnw("OIDC discovery failed, falling back to issuer convention",
		"provider_id", provider.ID,
		"issuer", provider.Issuer,
		"error", err,
	)
	return strings.TrimSuffix(provider.Issuer, "/") + "/authorize"
}

func (h *OIDCLoginHandler) fail(w http.ResponseWriter, event *audit.Event, reason string) {
	event.Outcome = audit.OutcomeDenied
	event.Stage = audit.StageProtocol
	event.Reason = reason
	h.auditor.Emit(event)
	writeProtocolError(w, reason)
}

func requestIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
