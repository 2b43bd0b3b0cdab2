// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the gatekeeper admission gateway.
package main

import (
	"os"

	"github.com/ghostlightlabs/gatekeeper/cmd/gatekeeper/app"
	"github.com/ghostlightlabs/gatekeeper/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
