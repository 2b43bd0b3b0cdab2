// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package webhook verifies inbound provider deliveries by HMAC signature.
package webhook

import (
	"time"
)

// Default header names for webhook HMAC verification. Providers that use
// different headers set them on their ProviderConfig.
const (
	// DefaultSignatureHeader is the HTTP header containing the HMAC signature.
	DefaultSignatureHeader = "X-Provider-Signature"
	// DefaultTimestampHeader is the HTTP header containing the Unix timestamp.
	DefaultTimestampHeader = "X-Provider-Timestamp"
)

// DefaultTimestampTolerance is how far a delivery's timestamp may deviate
// from the gateway clock before the delivery is rejected as a replay.
const DefaultTimestampTolerance = 5 * time.Minute

// Scheme names a provider's canonicalization and HMAC algorithm.
type Scheme string

// Supported signature schemes
const (
	// SchemeTimestampSHA256 signs "timestamp.body" with HMAC-SHA256 and
	// sends "sha256=<hex>" in the signature header.
	SchemeTimestampSHA256 Scheme = "hmac-sha256"

	// SchemeFormSHA1 canonicalizes a form-encoded body by sorting key/value
	// pairs and concatenating them with the request URL, then signs with
	// HMAC-SHA1 (hex). Used by legacy automation providers.
	SchemeFormSHA1 Scheme = "form-sha1"
)

// ProviderConfig describes one webhook provider's trust settings.
type ProviderConfig struct {
	// Name identifies the provider in delivery URLs and logs.
	Name string `json:"name"`

	// Secret is the shared HMAC secret.
	Secret []byte `json:"-"`

	// Scheme selects the canonicalization and HMAC algorithm.
	Scheme Scheme `json:"scheme"`

	// SignatureHeader overrides DefaultSignatureHeader.
	SignatureHeader string `json:"signature_header,omitempty"`

	// TimestampHeader overrides DefaultTimestampHeader (only used by
	// timestamp-based schemes).
	TimestampHeader string `json:"timestamp_header,omitempty"`

	// TimestampTolerance overrides DefaultTimestampTolerance (only used by
	// timestamp-based schemes).
	TimestampTolerance time.Duration `json:"timestamp_tolerance,omitempty"`
}

func (p *ProviderConfig) signatureHeader() string {
	if p.SignatureHeader != "" {
		return p.SignatureHeader
	}
	return DefaultSignatureHeader
}

func (p *ProviderConfig) timestampHeader() string {
	if p.TimestampHeader != "" {
		return p.TimestampHeader
	}
	return DefaultTimestampHeader
}

func (p *ProviderConfig) timestampTolerance() time.Duration {
	if p.TimestampTolerance > 0 {
		return p.TimestampTolerance
	}
	return DefaultTimestampTolerance
}

// Delivery statuses
const (
	// StatusReceived is recorded for every inbound attempt before
	// verification
	StatusReceived = "received"
	// StatusValidated is recorded when the signature verifies
	StatusValidated = "validated"
	// StatusRejected is recorded when verification fails; never silently
	// upgraded to accepted
	StatusRejected = "rejected"
)

// Delivery is one inbound webhook attempt, kept for forensic replay.
type Delivery struct {
	// ID uniquely identifies the delivery attempt.
	ID string `json:"id"`

	// Provider is the provider the delivery claimed to come from.
	Provider string `json:"provider"`

	// Status is received, validated, or rejected.
	Status string `json:"status"`

	// Reason explains a rejection.
	Reason string `json:"reason,omitempty"`

	// ResponseStatus is the HTTP status returned to the provider.
	ResponseStatus int `json:"response_status,omitempty"`

	// ReceivedAt is when the delivery arrived.
	ReceivedAt time.Time `json:"received_at"`
}
