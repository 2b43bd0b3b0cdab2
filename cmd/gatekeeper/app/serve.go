// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ghostlightlabs/gatekeeper/pkg/audit"
	"github.com/ghostlightlabs/gatekeeper/pkg/auth"
	"github.com/ghostlightlabs/gatekeeper/pkg/authz"
	"github.com/ghostlightlabs/gatekeeper/pkg/config"
	"github.com/ghostlightlabs/gatekeeper/pkg/gateway"
	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
	"github.com/ghostlightlabs/gatekeeper/pkg/oauth"
	"github.com/ghostlightlabs/gatekeeper/pkg/ratelimit"
	"github.com/ghostlightlabs/gatekeeper/pkg/sso"
	"github.com/ghostlightlabs/gatekeeper/pkg/storage"
	"github.com/ghostlightlabs/gatekeeper/pkg/webhook"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admission gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the configuration file")

	return cmd
}

// runServe constructs every collaborator explicitly and runs the HTTP
// server until interrupted. No client is created at import time.
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores: shared Redis when configured, in-process otherwise. The
	// in-process counter store is only correct for a single replica.
	var (
		counterStore ratelimit.CounterStore
		authStore    storage.AuthStore
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		counterStore = ratelimit.NewRedisStore(rdb)
		authStore = storage.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		logger.Infow("using shared redis stores", "addr", cfg.RedisAddr)
	} else {
		counterStore = ratelimit.NewMemoryStore()
		authStore = storage.NewMemoryStore()
		logger.Warn("using in-process stores; quotas and single-use semantics do not hold across replicas")
	}
	defer func() {
		if err := counterStore.Close(); err != nil {
			logger.Errorw("failed to close counter store", "error", err)
		}
		if err := authStore.Close(); err != nil {
			logger.Errorw("failed to close auth store", "error", err)
		}
	}()

	resolver, err := buildResolver(ctx, cfg)
	if err != nil {
		return err
	}

	gate := authz.NewGate(
		authz.WithPrivilegedRoles(cfg.PrivilegedRoles...),
		authz.WithPrivilegedPrefix(cfg.PrivilegedPrefix, cfg.KnownRoles),
	)
	limiter := ratelimit.NewLimiter(counterStore)
	auditor := audit.NewAuditor("gatekeeper", nil)
	gw := gateway.New(resolver, gate, limiter, auditor)

	clients := oauth.NewClientRegistry()
	for _, c := range cfg.OAuthClients {
		if err := clients.Register(&oauth.Client{
			ID:            c.ID,
			RedirectURIs:  c.RedirectURIs,
			AllowedScopes: c.AllowedScopes,
			Active:        c.Active,
		}); err != nil {
			return fmt.Errorf("failed to register OAuth client: %w", err)
		}
	}

	providers := sso.NewProviderRegistry()
	for _, p := range cfg.SSOProviders {
		if err := providers.Register(&sso.Provider{
			ID:                    p.ID,
			Type:                  sso.ProviderType(p.Type),
			Enabled:               p.Enabled,
			Issuer:                p.Issuer,
			AuthorizationEndpoint: p.AuthorizationEndpoint,
			ClientID:              p.ClientID,
			Scopes:                p.Scopes,
			SSOURL:                p.SSOURL,
			EntityID:              p.EntityID,
			ACSURL:                p.ACSURL,
		}); err != nil {
			return fmt.Errorf("failed to register SSO provider: %w", err)
		}
	}

	webhookProviders := make([]*webhook.ProviderConfig, 0, len(cfg.WebhookProviders))
	for _, p := range cfg.WebhookProviders {
		webhookProviders = append(webhookProviders, &webhook.ProviderConfig{
			Name:               p.Name,
			Secret:             []byte(p.Secret),
			Scheme:             webhook.Scheme(p.Scheme),
			SignatureHeader:    p.SignatureHeader,
			TimestampHeader:    p.TimestampHeader,
			TimestampTolerance: p.TimestampTolerance,
		})
	}
	verifier := webhook.NewVerifier(webhookProviders, auditor)

	router := buildRouter(cfg, gw, auditor, clients, providers, authStore, verifier)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("gateway listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildResolver selects the identity resolver. Without an identity
// provider configured, all protected routes fail authentication.
func buildResolver(ctx context.Context, cfg *config.Config) (auth.Resolver, error) {
	if cfg.Identity.JWKSURL != "" || cfg.Identity.Issuer != "" {
		resolver, err := auth.NewJWTResolver(ctx, auth.JWTResolverConfig{
			Issuer:     cfg.Identity.Issuer,
			Audience:   cfg.Identity.Audience,
			JWKSURL:    cfg.Identity.JWKSURL,
			RolesClaim: cfg.Identity.RolesClaim,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWT resolver: %w", err)
		}
		return resolver, nil
	}

	logger.Warn("no identity provider configured; protected routes will reject all credentials")
	return auth.NewStaticResolver(nil), nil
}

func buildRouter(
	cfg *config.Config,
	gw *gateway.Gateway,
	auditor *audit.Auditor,
	clients *oauth.ClientRegistry,
	providers *sso.ProviderRegistry,
	authStore storage.AuthStore,
	verifier *webhook.Verifier,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Pre-authentication entry points: invoked directly by the browser, so
	// they do not pass through the admission pipeline.
	r.Method(http.MethodGet, "/oauth/authorize", oauth.NewAuthorizeHandler(clients, authStore, auditor))
	r.Method(http.MethodGet, "/sso/oidc/login", sso.NewOIDCLoginHandler(providers, authStore, auditor))
	r.Method(http.MethodGet, "/sso/saml/login", sso.NewSAMLLoginHandler(providers, authStore, auditor))

	// Inbound provider callbacks; trust is established by HMAC only.
	r.Handle("/webhooks/{provider}", webhook.NewHandler(verifier))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Admin surface, guarded by the full pipeline: privileged operators can
	// inspect the webhook forensic log.
	adminPolicy := &gateway.RoutePolicy{
		RequireAuth: true,
		Category:    "admin",
		RateLimit: &ratelimit.Policy{
			MaxRequests: cfg.AdminRateLimit.MaxRequests,
			Window:      cfg.AdminRateLimit.Window,
		},
		Audit: gateway.AuditSpec{Action: "webhooks:inspect", Resource: "webhook_deliveries"},
	}
	if err := adminPolicy.Compile(); err != nil {
		logger.Errorf("failed to compile admin policy: %v", err)
	}
	r.Method(http.MethodGet, "/internal/webhook-deliveries", gw.Wrap(adminPolicy, http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(verifier.Deliveries()); err != nil {
				logger.Errorw("failed to encode deliveries", "error", err)
			}
		})))

	return r
}
