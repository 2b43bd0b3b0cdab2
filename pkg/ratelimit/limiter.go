// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides fixed-window admission control keyed by caller
// identity.
package ratelimit

import (
	"context"
	"time"
)

// Policy describes a route's quota: at most MaxRequests per Window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	// Allowed reports whether the request is admitted.
	Allowed bool

	// Limit is the window's request budget.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the current window expires.
	ResetAt time.Time

	// RetryAfter is how long a denied caller should wait before retrying.
	// Zero for allowed requests.
	RetryAfter time.Duration
}

// CounterStore is the pluggable counter backing a Limiter.
//
// Increment atomically bumps the counter for key, creating a fresh window
// with the given duration if none exists, and returns the new count along
// with the window's expiry. The in-process implementation is only correct
// for a single server process; multi-instance deployments must use a shared
// store (see NewRedisStore).
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
	Close() error
}

// Limiter makes fixed-window admission decisions against a CounterStore.
type Limiter struct {
	store CounterStore
}

// NewLimiter creates a Limiter backed by the given store.
func NewLimiter(store CounterStore) *Limiter {
	return &Limiter{store: store}
}

// Check records one request for key under the policy and returns the
// admission decision. Counting happens before the comparison, so two
// concurrent calls can never both observe the last free slot.
//
// Errors from the store are returned as-is; callers are expected to fail
// closed (deny) rather than admit on error.
func (l *Limiter) Check(ctx context.Context, key string, policy Policy) (*Decision, error) {
	count, resetAt, err := l.store.Increment(ctx, key, policy.Window)
	if err != nil {
		return nil, err
	}

	remaining := int64(policy.MaxRequests) - count
	if remaining < 0 {
		remaining = 0
	}

	decision := &Decision{
		Allowed:   count <= int64(policy.MaxRequests),
		Limit:     policy.MaxRequests,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
	if !decision.Allowed {
		retryAfter := time.Until(resetAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
		decision.RetryAfter = retryAfter
	}
	return decision, nil
}

// Close releases the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
