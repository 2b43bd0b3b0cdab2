// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package audit provides gateway audit event types and emission.
package audit

// Gateway event types
const (
	// EventTypeRequest represents a request passing through the admission
	// pipeline, successful or not
	EventTypeRequest = "gateway_request"
	// EventTypeOAuthAuthorize represents an OAuth2 authorization request
	EventTypeOAuthAuthorize = "oauth_authorize"
	// EventTypeLoginInitiated represents an OIDC or SAML login initiation
	EventTypeLoginInitiated = "login_initiated"
	// EventTypeWebhookDelivery represents an inbound webhook delivery attempt
	EventTypeWebhookDelivery = "webhook_delivery"
)

// Outcomes for audit events
const (
	// OutcomeSuccess indicates the operation was admitted
	OutcomeSuccess = "success"
	// OutcomeDenied indicates the operation was denied by a pipeline stage
	OutcomeDenied = "denied"
	// OutcomeError indicates the operation failed for an operational reason
	OutcomeError = "error"
)

// Pipeline stages recorded on denied events
const (
	// StageAuthentication is the identity resolution stage
	StageAuthentication = "authentication"
	// StageAuthorization is the role check stage
	StageAuthorization = "authorization"
	// StageRateLimit is the admission quota stage
	StageRateLimit = "rate_limit"
	// StageValidation is the payload schema stage
	StageValidation = "validation"
	// StageSignature is the webhook trust verification stage
	StageSignature = "signature"
	// StageProtocol is the login-protocol validation stage
	StageProtocol = "protocol"
)
