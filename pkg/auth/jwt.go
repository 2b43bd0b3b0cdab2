// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// JWT validation errors
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrMissingJWKSURL  = errors.New("missing JWKS URL")
)

// DefaultRolesClaim is the claim the resolver reads roles from when the
// config does not name one. Role claim names vary by provider (e.g. "roles",
// "groups", "cognito:groups"), so deployments should set it explicitly.
const DefaultRolesClaim = "roles"

// JWTResolver resolves bearer credentials by validating them as JWTs against
// a JWKS endpoint.
type JWTResolver struct {
	issuer     string
	audience   string
	jwksURL    string
	rolesClaim string
	jwksClient *jwk.Cache

	// Lazy JWKS registration so construction never blocks on the network.
	jwksRegistered     bool
	jwksRegistrationMu sync.Mutex
	jwksRegistrationErr error
}

// JWTResolverConfig contains configuration for the JWT resolver.
type JWTResolverConfig struct {
	// Issuer is the expected token issuer (e.g. https://id.example.com)
	Issuer string

	// Audience is the expected audience for the token
	Audience string

	// JWKSURL is the URL to fetch the JWKS from
	JWKSURL string

	// RolesClaim names the claim holding the caller's roles. Defaults to
	// DefaultRolesClaim.
	RolesClaim string
}

// NewJWTResolver creates a new JWT resolver with an auto-refreshing JWKS
// cache.
func NewJWTResolver(ctx context.Context, config JWTResolverConfig) (*JWTResolver, error) {
	if config.JWKSURL == "" {
		return nil, ErrMissingJWKSURL
	}

	httprcClient := httprc.NewClient()
	cache, err := jwk.NewCache(ctx, httprcClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	rolesClaim := config.RolesClaim
	if rolesClaim == "" {
		rolesClaim = DefaultRolesClaim
	}

	return &JWTResolver{
		issuer:     config.Issuer,
		audience:   config.Audience,
		jwksURL:    config.JWKSURL,
		rolesClaim: rolesClaim,
		jwksClient: cache,
	}, nil
}

// ensureJWKSRegistered ensures that the JWKS URL is registered with the cache.
func (r *JWTResolver) ensureJWKSRegistered(ctx context.Context) error {
	r.jwksRegistrationMu.Lock()
	defer r.jwksRegistrationMu.Unlock()

	if r.jwksRegistered {
		return r.jwksRegistrationErr
	}

	registrationCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.jwksClient.Register(registrationCtx, r.jwksURL)
	if err != nil {
		r.jwksRegistrationErr = fmt.Errorf("failed to register JWKS URL: %w", err)
	} else {
		r.jwksRegistrationErr = nil
	}

	r.jwksRegistered = true
	return r.jwksRegistrationErr
}

// getKeyFromJWKS gets the signing key for the token from the JWKS.
func (r *JWTResolver) getKeyFromJWKS(ctx context.Context, token *jwt.Token) (interface{}, error) {
	if err := r.ensureJWKSRegistered(ctx); err != nil {
		return nil, fmt.Errorf("JWKS registration failed: %w", err)
	}

	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header missing kid")
	}

	keySet, err := r.jwksClient.Lookup(ctx, r.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup JWKS: %w", err)
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}

	var rawKey interface{}
	if err := jwk.Export(key, &rawKey); err != nil {
		return nil, fmt.Errorf("failed to export raw key: %w", err)
	}

	return rawKey, nil
}

// validateClaims validates the registered claims in the token.
func (r *JWTResolver) validateClaims(claims jwt.MapClaims) error {
	if r.issuer != "" {
		issuerClaim, err := claims.GetIssuer()
		if err != nil {
			return fmt.Errorf("failed to get issuer from claims: %w", err)
		}
		if strings.TrimSpace(issuerClaim) != strings.TrimSpace(r.issuer) {
			return ErrInvalidIssuer
		}
	}

	if r.audience != "" {
		audiences, err := claims.GetAudience()
		if err != nil {
			return ErrInvalidAudience
		}
		found := false
		for _, aud := range audiences {
			if aud == r.audience {
				found = true
				break
			}
		}
		if !found {
			return ErrInvalidAudience
		}
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if time.Now().After(exp.Time) {
			return ErrTokenExpired
		}
	}

	return nil
}

// ResolveIdentity implements Resolver by validating the credential as a JWT.
func (r *JWTResolver) ResolveIdentity(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrNoCredential
	}

	parsed, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		return r.getKeyFromJWKS(ctx, token)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if err := r.validateClaims(claims); err != nil {
		return nil, err
	}

	return claimsToIdentity(claims, credential, r.rolesClaim)
}

// claimsToIdentity converts JWT claims to an Identity. It requires the 'sub'
// claim per OIDC Core 1.0 spec § 5.1.
func claimsToIdentity(claims jwt.MapClaims, token, rolesClaim string) (*Identity, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("missing or invalid 'sub' claim")
	}

	identity := &Identity{
		Subject: sub,
		Claims:  claims,
		Token:   token,
		Roles:   rolesFromClaim(claims[rolesClaim]),
	}

	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}

	return identity, nil
}

// rolesFromClaim normalizes a roles claim value. Providers emit either a
// JSON array or a space-separated string.
func rolesFromClaim(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	case string:
		if v == "" {
			return nil
		}
		return strings.Fields(v)
	default:
		return nil
	}
}
