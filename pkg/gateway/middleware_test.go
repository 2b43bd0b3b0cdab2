// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostlightlabs/gatekeeper/pkg/audit"
	"github.com/ghostlightlabs/gatekeeper/pkg/auth"
	"github.com/ghostlightlabs/gatekeeper/pkg/authz"
	"github.com/ghostlightlabs/gatekeeper/pkg/ratelimit"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	resolver := auth.NewStaticResolver(map[string]*auth.Identity{
		"manager-token": {Subject: "user-manager", Roles: []string{"venue_manager"}},
		"crew-token":    {Subject: "user-crew", Roles: []string{"crew_member"}},
		"legend-token":  {Subject: "user-legend", Roles: []string{"LEGEND_OWNER"}},
	})
	gate := authz.NewGate(authz.WithPrivilegedRoles("LEGEND_OWNER"))

	store := ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(time.Hour))
	t.Cleanup(func() { _ = store.Close() })

	return New(resolver, gate, ratelimit.NewLimiter(store), audit.NewAuditor("test", nil))
}

func doRequest(handler http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "10.0.0.1:54321"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestWrapAuthentication(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	policy := &RoutePolicy{RequireAuth: true, Category: "api"}
	require.NoError(t, policy.Compile())
	handler := gw.Wrap(policy, okHandler())

	t.Run("missing credential", func(t *testing.T) {
		t.Parallel()

		rec := doRequest(handler, http.MethodGet, "/v1/projects", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Unauthorized - Authentication required", body["error"])
	})

	t.Run("invalid credential", func(t *testing.T) {
		t.Parallel()

		rec := doRequest(handler, http.MethodGet, "/v1/projects", "forged", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-bearer authorization header", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/v1/projects", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid credential admitted", func(t *testing.T) {
		t.Parallel()

		rec := doRequest(handler, http.MethodGet, "/v1/projects", "crew-token", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestWrapAuthorization(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	policy := &RoutePolicy{
		RequireAuth:  true,
		AllowedRoles: []string{"venue_manager"},
		Category:     "api",
	}
	require.NoError(t, policy.Compile())
	handler := gw.Wrap(policy, okHandler())

	t.Run("allowed role", func(t *testing.T) {
		t.Parallel()

		rec := doRequest(handler, http.MethodGet, "/v1/projects", "manager-token", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing role", func(t *testing.T) {
		t.Parallel()

		rec := doRequest(handler, http.MethodGet, "/v1/projects", "crew-token", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Forbidden - Insufficient permissions", body["error"])
	})

	t.Run("privileged role bypasses allow-list", func(t *testing.T) {
		t.Parallel()

		rec := doRequest(handler, http.MethodGet, "/v1/projects", "legend-token", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestWrapRateLimiting(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	policy := &RoutePolicy{
		Category:  "public",
		RateLimit: &ratelimit.Policy{MaxRequests: 2, Window: time.Minute},
	}
	require.NoError(t, policy.Compile())
	handler := gw.Wrap(policy, okHandler())

	for i := 1; i <= 2; i++ {
		rec := doRequest(handler, http.MethodGet, "/v1/ping", "", "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(2-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := doRequest(handler, http.MethodGet, "/v1/ping", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests", body["error"])
	assert.EqualValues(t, retryAfter, body["retryAfter"])
}

func TestWrapRateLimitKeyedPerIdentity(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	policy := &RoutePolicy{
		RequireAuth: true,
		Category:    "api",
		RateLimit:   &ratelimit.Policy{MaxRequests: 1, Window: time.Minute},
	}
	require.NoError(t, policy.Compile())
	handler := gw.Wrap(policy, okHandler())

	first := doRequest(handler, http.MethodGet, "/v1/projects", "crew-token", "")
	require.Equal(t, http.StatusOK, first.Code)

	exhausted := doRequest(handler, http.MethodGet, "/v1/projects", "crew-token", "")
	assert.Equal(t, http.StatusTooManyRequests, exhausted.Code)

	// A different identity behind the same IP has its own quota.
	other := doRequest(handler, http.MethodGet, "/v1/projects", "manager-token", "")
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestWrapCounterStoreFailureFailsClosed(t *testing.T) {
	t.Parallel()

	resolver := auth.NewStaticResolver(nil)
	limiter := ratelimit.NewLimiter(&failingStore{})
	gw := New(resolver, authz.NewGate(), limiter, audit.NewAuditor("test", nil))

	policy := &RoutePolicy{
		Category:  "public",
		RateLimit: &ratelimit.Policy{MaxRequests: 10, Window: time.Minute},
	}
	require.NoError(t, policy.Compile())
	handler := gw.Wrap(policy, okHandler())

	rec := doRequest(handler, http.MethodGet, "/v1/ping", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWrapPayloadValidation(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	policy := &RoutePolicy{
		Category: "api",
		Schema: json.RawMessage(`{
			"type": "object",
			"required": ["name"],
			"properties": {
				"name": {"type": "string", "minLength": 1}
			}
		}`),
	}
	require.NoError(t, policy.Compile())

	var seenBody string
	handler := gw.Wrap(policy, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seenBody = string(body)
		w.WriteHeader(http.StatusCreated)
	}))

	t.Run("valid payload passes with body intact", func(t *testing.T) {
		rec := doRequest(handler, http.MethodPost, "/v1/projects", "", `{"name":"tour"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"name":"tour"}`, seenBody)
	})

	t.Run("missing required field", func(t *testing.T) {
		rec := doRequest(handler, http.MethodPost, "/v1/projects", "", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body["error"], "Validation failed")
	})

	t.Run("malformed JSON", func(t *testing.T) {
		rec := doRequest(handler, http.MethodPost, "/v1/projects", "", `{"name":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWrapSetsSecurityHeadersAndIdentity(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t)
	policy := &RoutePolicy{RequireAuth: true, Category: "api"}
	require.NoError(t, policy.Compile())

	var gotIdentity *auth.Identity
	handler := gw.Wrap(policy, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := doRequest(handler, http.MethodGet, "/v1/projects", "crew-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))

	require.NotNil(t, gotIdentity)
	assert.Equal(t, "user-crew", gotIdentity.Subject)
}

func TestWrapPublicRouteSkipsIdentityResolution(t *testing.T) {
	t.Parallel()

	limiter := ratelimit.NewLimiter(newCountingStore())
	resolver := &panickingResolver{}
	gw := New(resolver, authz.NewGate(), limiter, audit.NewAuditor("test", nil))

	policy := &RoutePolicy{
		Category:  "public",
		RateLimit: &ratelimit.Policy{MaxRequests: 5, Window: time.Minute},
	}
	require.NoError(t, policy.Compile())
	handler := gw.Wrap(policy, okHandler())

	// Even with a credential attached, a public route never resolves it; the
	// quota is keyed by IP.
	rec := doRequest(handler, http.MethodGet, "/v1/ping", "some-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// failingStore always errors, simulating an unreachable shared store.
type failingStore struct{}

func (*failingStore) Increment(_ context.Context, _ string, _ time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, assert.AnError
}

func (*failingStore) Close() error { return nil }

// panickingResolver fails the test if identity resolution runs at all.
type panickingResolver struct{}

func (*panickingResolver) ResolveIdentity(context.Context, string) (*auth.Identity, error) {
	panic("identity resolution must not run on public routes")
}

// countingStore is a minimal in-memory counter without background goroutines.
type countingStore struct {
	counts map[string]int64
}

func newCountingStore() *countingStore {
	return &countingStore{counts: make(map[string]int64)}
}

func (s *countingStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.counts[key]++
	return s.counts[key], time.Now().Add(window), nil
}

func (*countingStore) Close() error { return nil }
