// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app defines the gatekeeper CLI commands.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
)

// NewRootCmd creates the root command for the gatekeeper CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Request-admission and identity-federation gateway",
		Long: `Gatekeeper is the admission layer in front of the platform API:
it resolves bearer credentials to identities, enforces role allow-lists and
per-caller rate limits, validates payload schemas, emits audit events, and
hosts the OAuth2, OIDC, and SAML login entry points plus inbound webhook
signature verification.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())

	return rootCmd
}
