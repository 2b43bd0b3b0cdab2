// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the background cleanup evicts expired
// entries and consumed-record tombstones.
const DefaultCleanupInterval = 1 * time.Minute

// timedEntry wraps a value with its expiry for TTL tracking.
type timedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// MemoryStore implements AuthStore with in-memory maps. It is thread-safe
// and suitable for single-instance deployments, development, and testing.
//
// Consumed records leave a tombstone behind (until the record's original
// expiry) so that replaying a used code or state returns ErrAlreadyConsumed
// rather than the indistinguishable ErrNotFound.
type MemoryStore struct {
	mu sync.Mutex

	pending        map[string]*timedEntry[*PendingAuthRequest]
	consumedStates map[string]*timedEntry[bool]

	codes         map[string]*timedEntry[*AuthorizationCode]
	consumedCodes map[string]*timedEntry[bool]

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStore creates a MemoryStore and starts its background cleanup
// goroutine.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		pending:         make(map[string]*timedEntry[*PendingAuthRequest]),
		consumedStates:  make(map[string]*timedEntry[bool]),
		codes:           make(map[string]*timedEntry[*AuthorizationCode]),
		consumedCodes:   make(map[string]*timedEntry[bool]),
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// PutPendingAuth implements AuthStore.
func (s *MemoryStore) PutPendingAuth(_ context.Context, pending *PendingAuthRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[pending.State] = &timedEntry[*PendingAuthRequest]{
		value:     pending,
		expiresAt: pending.ExpiresAt,
	}
	return nil
}

// ConsumePendingAuth implements AuthStore.
func (s *MemoryStore) ConsumePendingAuth(_ context.Context, state string) (*PendingAuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[state]
	if !ok {
		if _, consumed := s.consumedStates[state]; consumed {
			return nil, ErrAlreadyConsumed
		}
		return nil, ErrNotFound
	}

	delete(s.pending, state)
	s.consumedStates[state] = &timedEntry[bool]{value: true, expiresAt: entry.expiresAt}

	if time.Now().After(entry.expiresAt) {
		return nil, ErrExpired
	}
	return entry.value, nil
}

// PutAuthorizationCode implements AuthStore.
func (s *MemoryStore) PutAuthorizationCode(_ context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[code.Code] = &timedEntry[*AuthorizationCode]{
		value:     code,
		expiresAt: code.ExpiresAt,
	}
	return nil
}

// ConsumeAuthorizationCode implements AuthStore.
func (s *MemoryStore) ConsumeAuthorizationCode(_ context.Context, code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[code]
	if !ok {
		if _, consumed := s.consumedCodes[code]; consumed {
			return nil, ErrAlreadyConsumed
		}
		return nil, ErrNotFound
	}

	delete(s.codes, code)
	s.consumedCodes[code] = &timedEntry[bool]{value: true, expiresAt: entry.expiresAt}

	if time.Now().After(entry.expiresAt) {
		return nil, ErrExpired
	}
	return entry.value, nil
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cleanupMap(s.pending, now)
	cleanupMap(s.consumedStates, now)
	cleanupMap(s.codes, now)
	cleanupMap(s.consumedCodes, now)
}

func cleanupMap[T any](m map[string]*timedEntry[T], now time.Time) {
	for key, entry := range m {
		if now.After(entry.expiresAt) {
			delete(m, key)
		}
	}
}
