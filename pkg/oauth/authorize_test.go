// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostlightlabs/gatekeeper/pkg/audit"
	"github.com/ghostlightlabs/gatekeeper/pkg/errors"
	"github.com/ghostlightlabs/gatekeeper/pkg/storage"
)

func newTestAuthorizeHandler(t *testing.T, opts ...AuthorizeHandlerOption) (*AuthorizeHandler, storage.AuthStore) {
	t.Helper()

	clients := NewClientRegistry()
	require.NoError(t, clients.Register(&Client{
		ID:            "client-1",
		RedirectURIs:  []string{"https://app.example.com/callback"},
		AllowedScopes: []string{"read", "write"},
		Active:        true,
	}))
	require.NoError(t, clients.Register(&Client{
		ID:           "client-inactive",
		RedirectURIs: []string{"https://app.example.com/callback"},
		Active:       false,
	}))

	store := storage.NewMemoryStore(storage.WithCleanupInterval(time.Hour))
	t.Cleanup(func() { _ = store.Close() })

	return NewAuthorizeHandler(clients, store, audit.NewAuditor("test", nil), opts...), store
}

func authorizeRequest(params map[string]string) *http.Request {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
	req.RemoteAddr = "10.0.0.1:54321"
	return req
}

func oauthErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestAuthorizeValidationOrder(t *testing.T) {
	t.Parallel()

	handler, _ := newTestAuthorizeHandler(t)

	tests := []struct {
		name      string
		params    map[string]string
		wantError string
	}{
		{
			name: "missing client_id",
			params: map[string]string{
				"redirect_uri":  "https://app.example.com/callback",
				"response_type": "code",
			},
			wantError: "invalid_request",
		},
		{
			name: "missing redirect_uri",
			params: map[string]string{
				"client_id":     "client-1",
				"response_type": "code",
			},
			wantError: "invalid_request",
		},
		{
			name: "missing response_type",
			params: map[string]string{
				"client_id":    "client-1",
				"redirect_uri": "https://app.example.com/callback",
			},
			wantError: "invalid_request",
		},
		{
			name: "implicit flow rejected",
			params: map[string]string{
				"client_id":     "client-1",
				"redirect_uri":  "https://app.example.com/callback",
				"response_type": "token",
			},
			wantError: "unsupported_response_type",
		},
		{
			name: "response_type checked before client lookup",
			params: map[string]string{
				"client_id":     "client-unknown",
				"redirect_uri":  "https://app.example.com/callback",
				"response_type": "token",
			},
			wantError: "unsupported_response_type",
		},
		{
			name: "unknown client",
			params: map[string]string{
				"client_id":     "client-unknown",
				"redirect_uri":  "https://app.example.com/callback",
				"response_type": "code",
			},
			wantError: "invalid_client",
		},
		{
			name: "inactive client treated as unknown",
			params: map[string]string{
				"client_id":     "client-inactive",
				"redirect_uri":  "https://app.example.com/callback",
				"response_type": "code",
			},
			wantError: "invalid_client",
		},
		{
			name: "trailing slash breaks exact redirect_uri match",
			params: map[string]string{
				"client_id":     "client-1",
				"redirect_uri":  "https://app.example.com/callback/",
				"response_type": "code",
			},
			wantError: "invalid_request",
		},
		{
			name: "redirect_uri prefix is not enough",
			params: map[string]string{
				"client_id":     "client-1",
				"redirect_uri":  "https://app.example.com/callback?extra=1",
				"response_type": "code",
			},
			wantError: "invalid_request",
		},
		{
			name: "scope outside allowance",
			params: map[string]string{
				"client_id":     "client-1",
				"redirect_uri":  "https://app.example.com/callback",
				"response_type": "code",
				"scope":         "read admin",
			},
			wantError: "invalid_scope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, authorizeRequest(tt.params))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantError, oauthErrorCode(t, rec))
		})
	}
}

func TestAuthorizeIssuesSingleUseCode(t *testing.T) {
	t.Parallel()

	handler, store := newTestAuthorizeHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizeRequest(map[string]string{
		"client_id":     "client-1",
		"redirect_uri":  "https://app.example.com/callback",
		"response_type": "code",
		"scope":         "read write",
		"state":         "client-state-123",
	}))

	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", location.Host)
	assert.Equal(t, "/callback", location.Path)
	assert.Equal(t, "client-state-123", location.Query().Get("state"))

	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	record, err := store.ConsumeAuthorizationCode(t.Context(), code)
	require.NoError(t, err)
	assert.Equal(t, "client-1", record.ClientID)
	assert.Equal(t, "https://app.example.com/callback", record.RedirectURI)
	assert.Equal(t, []string{"read", "write"}, record.Scopes)
	assert.Equal(t, "client-state-123", record.State)

	// The code is gone after one exchange.
	_, err = store.ConsumeAuthorizationCode(t.Context(), code)
	assert.ErrorIs(t, err, storage.ErrAlreadyConsumed)
}

func TestAuthorizeOmitsStateWhenAbsent(t *testing.T) {
	t.Parallel()

	handler, _ := newTestAuthorizeHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizeRequest(map[string]string{
		"client_id":     "client-1",
		"redirect_uri":  "https://app.example.com/callback",
		"response_type": "code",
	}))

	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.NotEmpty(t, location.Query().Get("code"))
	assert.False(t, location.Query().Has("state"))
}

func TestAuthorizeDistinctCodesPerRequest(t *testing.T) {
	t.Parallel()

	handler, _ := newTestAuthorizeHandler(t)

	codeFor := func() string {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authorizeRequest(map[string]string{
			"client_id":     "client-1",
			"redirect_uri":  "https://app.example.com/callback",
			"response_type": "code",
		}))
		require.Equal(t, http.StatusFound, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		return location.Query().Get("code")
	}

	assert.NotEqual(t, codeFor(), codeFor())
}

func TestAuthorizeSessionGateDenies(t *testing.T) {
	t.Parallel()

	gate := func(*http.Request) error {
		return errors.NewUnauthenticatedError("no session", nil)
	}
	handler, _ := newTestAuthorizeHandler(t, WithSessionGate(gate))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authorizeRequest(map[string]string{
		"client_id":     "client-1",
		"redirect_uri":  "https://app.example.com/callback",
		"response_type": "code",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "access_denied", oauthErrorCode(t, rec))
}
