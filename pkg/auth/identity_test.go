// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityHasRole(t *testing.T) {
	t.Parallel()

	identity := &Identity{
		Subject: "user-1",
		Roles:   []string{"crew_member", "venue_manager"},
	}

	assert.True(t, identity.HasRole("crew_member"))
	assert.False(t, identity.HasRole("finance_admin"))

	var nilIdentity *Identity
	assert.False(t, nilIdentity.HasRole("crew_member"))
}

func TestIdentityStringRedactsToken(t *testing.T) {
	t.Parallel()

	identity := &Identity{
		Subject: "user-1",
		Token:   "super-secret-token",
	}

	s := identity.String()
	assert.Contains(t, s, "user-1")
	assert.NotContains(t, s, "super-secret-token")
}

func TestIdentityMarshalJSONRedactsToken(t *testing.T) {
	t.Parallel()

	identity := &Identity{
		Subject: "user-1",
		Email:   "user@example.com",
		Roles:   []string{"crew_member"},
		Token:   "super-secret-token",
	}

	data, err := json.Marshal(identity)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "super-secret-token")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "REDACTED", decoded["token"])
	assert.Equal(t, "user-1", decoded["subject"])
}

func TestIdentityWithContext(t *testing.T) {
	t.Parallel()

	identity := &Identity{Subject: "user-1"}
	ctx := WithIdentity(t.Context(), identity)

	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, identity, got)

	_, ok = IdentityFromContext(t.Context())
	assert.False(t, ok)
}
