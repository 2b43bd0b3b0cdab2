// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package sso

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/crewjam/saml"

	"github.com/ghostlightlabs/gatekeeper/pkg/audit"
	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
	"github.com/ghostlightlabs/gatekeeper/pkg/storage"
)

// SAMLLoginHandler serves GET /sso/saml/login: it builds an AuthnRequest,
// persists a pending-request record keyed by RelayState, and redirects the
// browser to the IdP via the HTTP-redirect binding.
//
// The AuthnRequest itself is unsigned; assertions are signed at the IdP and
// verified by the callback handler.
type SAMLLoginHandler struct {
	providers  *ProviderRegistry
	store      storage.AuthStore
	auditor    *audit.Auditor
	pendingTTL time.Duration
}

// NewSAMLLoginHandler creates a SAMLLoginHandler.
func NewSAMLLoginHandler(providers *ProviderRegistry, store storage.AuthStore, auditor *audit.Auditor) *SAMLLoginHandler {
	return &SAMLLoginHandler{
		providers:  providers,
		store:      store,
		auditor:    auditor,
		pendingTTL: storage.DefaultPendingAuthTTL,
	}
}

// ServeHTTP handles the login initiation request.
func (h *SAMLLoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	providerID := r.URL.Query().Get("provider_id")
	redirectURI := r.URL.Query().Get("redirect_uri")

	event := &audit.Event{
		Type:      audit.EventTypeLoginInitiated,
		SourceIP:  requestIP(r),
		UserAgent: r.UserAgent(),
		Extra:     map[string]string{"provider_id": providerID, "protocol": "saml"},
	}

	if providerID == "" || redirectURI == "" {
		h.fail(w, event, "provider_id and redirect_uri are required")
		return
	}

	provider, err := h.providers.Get(providerID, ProviderTypeSAML)
	if err != nil {
		h.fail(w, event, err.Error())
		return
	}

	sp, err := serviceProviderFor(provider)
	if err != nil {
		h.fail(w, event, err.Error())
		return
	}

	// RelayState doubles as the pending-request key; it must be unguessable.
	relayState, err := generateToken(stateTokenBytes)
	if err != nil {
		h.fail(w, event, "failed to generate relay state")
		return
	}

	authnRequest, err := sp.MakeAuthenticationRequest(provider.SSOURL, saml.HTTPRedirectBinding, saml.HTTPPostBinding)
	if err != nil {
		logger.Errorw("failed to build AuthnRequest",
			"provider_id", provider.ID,
			"error", err,
		)
		h.fail(w, event, "failed to build authentication request")
		return
	}

	pending := &storage.PendingAuthRequest{
		RequestID:   authnRequest.ID,
		ProviderID:  provider.ID,
		State:       relayState,
		RelayState:  relayState,
		RedirectURI: redirectURI,
		ExpiresAt:   time.Now().Add(h.pendingTTL),
	}
	if err := h.store.PutPendingAuth(ctx, pending); err != nil {
		logger.Errorw("failed to persist pending auth request",
			"provider_id", provider.ID,
			"error", err,
		)
		h.fail(w, event, "failed to persist login state")
		return
	}

	redirectURL, err := authnRequest.Redirect(relayState, sp)
	if err != nil {
		h.fail(w, event, "failed to encode authentication request")
		return
	}

	// Pre-auth audit: identity is not known yet, so record source only.
	event.Outcome = audit.OutcomeSuccess
	event.Extra["request_id"] = authnRequest.ID
	h.auditor.Emit(event)

	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// serviceProviderFor builds the crewjam service provider for a configured
// IdP.
func serviceProviderFor(provider *Provider) (*saml.ServiceProvider, error) {
	acsURL, err := url.Parse(provider.ACSURL)
	if err != nil || provider.ACSURL == "" {
		return nil, fmt.Errorf("provider %q has an invalid ACS URL", provider.ID)
	}

	return &saml.ServiceProvider{
		EntityID: provider.EntityID,
		AcsURL:   *acsURL,
	}, nil
}

func (h *SAMLLoginHandler) fail(w http.ResponseWriter, event *audit.Event, reason string) {
	event.Outcome = audit.OutcomeDenied
	event.Stage = audit.StageProtocol
	event.Reason = reason
	h.auditor.Emit(event)
	writeProtocolError(w, reason)
}
