// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// IdentityConfig configures the bearer-credential resolver.
type IdentityConfig struct {
	// Issuer is the expected token issuer.
	Issuer string `mapstructure:"issuer"`

	// Audience is the expected token audience.
	Audience string `mapstructure:"audience"`

	// JWKSURL is where signing keys are fetched from.
	JWKSURL string `mapstructure:"jwks_url"`

	// RolesClaim names the claim holding the caller's roles.
	RolesClaim string `mapstructure:"roles_claim"`
}

// OAuthClientConfig is a statically registered OAuth client.
type OAuthClientConfig struct {
	ID            string   `mapstructure:"id"`
	RedirectURIs  []string `mapstructure:"redirect_uris"`
	AllowedScopes []string `mapstructure:"allowed_scopes"`
	Active        bool     `mapstructure:"active"`
}

// SSOProviderConfig is a configured external identity provider.
type SSOProviderConfig struct {
	ID                    string   `mapstructure:"id"`
	Type                  string   `mapstructure:"type"`
	Enabled               bool     `mapstructure:"enabled"`
	Issuer                string   `mapstructure:"issuer"`
	AuthorizationEndpoint string   `mapstructure:"authorization_endpoint"`
	ClientID              string   `mapstructure:"client_id"`
	Scopes                []string `mapstructure:"scopes"`
	SSOURL                string   `mapstructure:"sso_url"`
	EntityID              string   `mapstructure:"entity_id"`
	ACSURL                string   `mapstructure:"acs_url"`
}

// WebhookProviderConfig is a webhook provider's trust settings.
type WebhookProviderConfig struct {
	Name               string        `mapstructure:"name"`
	Secret             string        `mapstructure:"secret"`
	Scheme             string        `mapstructure:"scheme"`
	SignatureHeader    string        `mapstructure:"signature_header"`
	TimestampHeader    string        `mapstructure:"timestamp_header"`
	TimestampTolerance time.Duration `mapstructure:"timestamp_tolerance"`
}

// RateLimitConfig is a route quota.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// Config is the gateway's startup configuration. It is loaded once and
// collaborators are constructed from it explicitly; nothing reads it at
// import time.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `mapstructure:"listen_addr"`

	// Debug enables debug logging.
	Debug bool `mapstructure:"debug"`

	// RedisAddr, when set, switches the rate-limit counters and the
	// single-use auth store to a shared Redis instance so quotas and
	// single-use semantics hold across replicas.
	RedisAddr string `mapstructure:"redis_addr"`

	// Identity configures the bearer-credential resolver.
	Identity IdentityConfig `mapstructure:"identity"`

	// PrivilegedRoles are break-glass roles that bypass route allow-lists.
	PrivilegedRoles []string `mapstructure:"privileged_roles"`

	// PrivilegedPrefix is the legacy naming convention for break-glass
	// roles; it is expanded against KnownRoles at load time.
	PrivilegedPrefix string `mapstructure:"privileged_prefix"`

	// KnownRoles is the full set of platform roles, used to expand
	// PrivilegedPrefix.
	KnownRoles []string `mapstructure:"known_roles"`

	// AdminRateLimit guards the gateway's own admin endpoints.
	AdminRateLimit RateLimitConfig `mapstructure:"admin_rate_limit"`

	// OAuthClients are the statically registered OAuth clients.
	OAuthClients []OAuthClientConfig `mapstructure:"oauth_clients"`

	// SSOProviders are the configured login providers.
	SSOProviders []SSOProviderConfig `mapstructure:"sso_providers"`

	// WebhookProviders are the trusted webhook senders.
	WebhookProviders []WebhookProviderConfig `mapstructure:"webhook_providers"`
}

// Load reads configuration from the given file (optional) and the
// environment (GATEKEEPER_ prefix).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8443")
	v.SetDefault("identity.roles_claim", "roles")
	v.SetDefault("admin_rate_limit.max_requests", 100)
	v.SetDefault("admin_rate_limit.window", time.Minute)

	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
