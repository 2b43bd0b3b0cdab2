// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ghostlightlabs/gatekeeper/pkg/audit"
	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
	"github.com/ghostlightlabs/gatekeeper/pkg/storage"
)

// SessionGate is the extension point for the consent/session precondition.
// The authorize endpoint assumes session-level authentication happened
// upstream; deployments wire the real check here. The default allows.
type SessionGate func(r *http.Request) error

// AuthorizeHandler serves GET /oauth/authorize: it validates the client,
// redirect URI, and scopes, issues a short-lived single-use authorization
// code, and redirects back to the client.
type AuthorizeHandler struct {
	clients     *ClientRegistry
	store       storage.AuthStore
	auditor     *audit.Auditor
	sessionGate SessionGate
	codeTTL     time.Duration
}

// AuthorizeHandlerOption configures an AuthorizeHandler.
type AuthorizeHandlerOption func(*AuthorizeHandler)

// WithSessionGate installs the consent/session precondition check.
func WithSessionGate(gate SessionGate) AuthorizeHandlerOption {
	return func(h *AuthorizeHandler) {
		h.sessionGate = gate
	}
}

// WithCodeTTL overrides the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) AuthorizeHandlerOption {
	return func(h *AuthorizeHandler) {
		h.codeTTL = ttl
	}
}

// NewAuthorizeHandler creates an AuthorizeHandler.
func NewAuthorizeHandler(clients *ClientRegistry, store storage.AuthStore, auditor *audit.Auditor, opts ...AuthorizeHandlerOption) *AuthorizeHandler {
	h := &AuthorizeHandler{
		clients:     clients,
		store:       store,
		auditor:     auditor,
		sessionGate: func(*http.Request) error { return nil },
		codeTTL:     storage.DefaultAuthorizationCodeTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP handles the authorization request. Validation fails fast with a
// distinct OAuth2 error code per failure class.
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID := r.URL.Query().Get("client_id")
	redirectURI := r.URL.Query().Get("redirect_uri")
	state := r.URL.Query().Get("state")
	responseType := r.URL.Query().Get("response_type")
	scope := r.URL.Query().Get("scope")

	event := &audit.Event{
		Type:      audit.EventTypeOAuthAuthorize,
		SourceIP:  remoteIP(r),
		UserAgent: r.UserAgent(),
		Extra:     map[string]string{"client_id": clientID},
	}

	fail := func(code, description string) {
		event.Outcome = audit.OutcomeDenied
		event.Stage = audit.StageProtocol
		event.Reason = fmt.Sprintf("%s: %s", code, description)
		h.auditor.Emit(event)
		writeOAuthError(w, code, description)
	}

	// Missing required parameters.
	if clientID == "" || redirectURI == "" || responseType == "" {
		fail("invalid_request", "client_id, redirect_uri, and response_type are required")
		return
	}

	// Only the authorization-code flow is supported.
	if responseType != "code" {
		fail("unsupported_response_type", "only response_type=code is supported")
		return
	}

	// Client must be registered and active.
	client, ok := h.clients.Get(clientID)
	if !ok {
		logger.Warnw("authorization request for unknown client", "client_id", clientID)
		fail("invalid_client", "unknown or inactive client")
		return
	}

	// redirect_uri must exactly match a registered URI.
	if !client.AllowsRedirectURI(redirectURI) {
		logger.Warnw("invalid redirect_uri",
			"client_id", clientID,
			"redirect_uri", redirectURI,
		)
		fail("invalid_request", "redirect_uri does not match registered URIs")
		return
	}

	// Requested scopes must be a subset of the client's allowed scopes.
	var scopes []string
	if scope != "" {
		scopes = strings.Split(scope, " ")
	}
	if !client.AllowsScopes(scopes) {
		fail("invalid_scope", "requested scopes exceed client allowance")
		return
	}

	// Consent/session precondition (external; defaults to allow).
	if err := h.sessionGate(r); err != nil {
		fail("access_denied", "session requirement not met")
		return
	}

	code, err := generateCode()
	if err != nil {
		logger.Errorw("failed to generate authorization code", "error", err)
		fail("server_error", "failed to generate authorization code")
		return
	}

	record := &storage.AuthorizationCode{
		Code:        code,
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Scopes:      scopes,
		State:       state,
		ExpiresAt:   time.Now().Add(h.codeTTL),
	}
	if err := h.store.PutAuthorizationCode(ctx, record); err != nil {
		logger.Errorw("failed to store authorization code", "error", err)
		fail("server_error", "failed to persist authorization code")
		return
	}

	event.Outcome = audit.OutcomeSuccess
	h.auditor.Emit(event)

	redirect, _ := url.Parse(redirectURI)
	q := redirect.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	redirect.RawQuery = q.Encode()

	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

// writeOAuthError writes a JSON error body with OAuth2-standard error codes.
func writeOAuthError(w http.ResponseWriter, code, description string) {
	status := http.StatusBadRequest
	if code == "server_error" {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// generateCode returns a cryptographically random, URL-safe code value.
func generateCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
