// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrNoCredential      = errors.New("no credential provided")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Resolver turns an inbound bearer credential into a caller identity.
//
// Implementations must not trust any client-supplied identity claim outside
// the credential itself.
type Resolver interface {
	// ResolveIdentity validates the credential and returns the identity it
	// represents, or an error if the credential is missing or invalid.
	ResolveIdentity(ctx context.Context, credential string) (*Identity, error)
}

// StaticResolver resolves credentials from a fixed table. It is intended for
// development and tests where no identity provider is available.
type StaticResolver struct {
	identities map[string]*Identity
}

// NewStaticResolver creates a resolver backed by a credential -> identity map.
func NewStaticResolver(identities map[string]*Identity) *StaticResolver {
	if identities == nil {
		identities = make(map[string]*Identity)
	}
	return &StaticResolver{identities: identities}
}

// ResolveIdentity implements Resolver.
func (s *StaticResolver) ResolveIdentity(_ context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrNoCredential
	}
	identity, ok := s.identities[credential]
	if !ok {
		return nil, ErrInvalidCredential
	}
	// Copy so callers cannot mutate the table through the returned identity.
	out := *identity
	out.Token = credential
	return &out, nil
}
