// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error taxonomy for the admission gateway.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrUnauthenticated is returned when no credential is presented or the
	// credential cannot be resolved to an identity
	ErrUnauthenticated = "unauthenticated"

	// ErrUnauthorized is returned when a valid identity lacks the roles a
	// route requires
	ErrUnauthorized = "unauthorized"

	// ErrRateLimited is returned when a caller has exhausted its quota for
	// the current window
	ErrRateLimited = "rate_limited"

	// ErrValidationFailed is returned when a request payload does not match
	// the route's schema
	ErrValidationFailed = "validation_failed"

	// ErrProtocol is returned for malformed or unregistered OAuth, OIDC, or
	// SAML requests
	ErrProtocol = "protocol_error"

	// ErrSignatureInvalid is returned when an inbound webhook signature does
	// not verify
	ErrSignatureInvalid = "signature_invalid"

	// ErrUpstreamUnavailable is returned when an identity or persistence
	// collaborator times out or fails
	ErrUpstreamUnavailable = "upstream_unavailable"
)

// Error represents an error in the gateway
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error type to the narrowest correct HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrValidationFailed, ErrProtocol, ErrSignatureInvalid:
		return http.StatusBadRequest
	case ErrUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewUnauthenticatedError creates a new unauthenticated error
func NewUnauthenticatedError(message string, cause error) *Error {
	return NewError(ErrUnauthenticated, message, cause)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, cause error) *Error {
	return NewError(ErrUnauthorized, message, cause)
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError(message string, cause error) *Error {
	return NewError(ErrRateLimited, message, cause)
}

// NewValidationFailedError creates a new validation failed error
func NewValidationFailedError(message string, cause error) *Error {
	return NewError(ErrValidationFailed, message, cause)
}

// NewProtocolError creates a new protocol error
func NewProtocolError(message string, cause error) *Error {
	return NewError(ErrProtocol, message, cause)
}

// NewSignatureInvalidError creates a new signature invalid error
func NewSignatureInvalidError(message string, cause error) *Error {
	return NewError(ErrSignatureInvalid, message, cause)
}

// NewUpstreamUnavailableError creates a new upstream unavailable error
func NewUpstreamUnavailableError(message string, cause error) *Error {
	return NewError(ErrUpstreamUnavailable, message, cause)
}

func isType(err error, errorType string) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == errorType
}

// IsUnauthenticated checks if the error is an unauthenticated error
func IsUnauthenticated(err error) bool {
	return isType(err, ErrUnauthenticated)
}

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool {
	return isType(err, ErrUnauthorized)
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	return isType(err, ErrRateLimited)
}

// IsValidationFailed checks if the error is a validation failed error
func IsValidationFailed(err error) bool {
	return isType(err, ErrValidationFailed)
}

// IsProtocol checks if the error is a protocol error
func IsProtocol(err error) bool {
	return isType(err, ErrProtocol)
}

// IsSignatureInvalid checks if the error is a signature invalid error
func IsSignatureInvalid(err error) bool {
	return isType(err, ErrSignatureInvalid)
}

// IsUpstreamUnavailable checks if the error is an upstream unavailable error
func IsUpstreamUnavailable(err error) bool {
	return isType(err, ErrUpstreamUnavailable)
}
