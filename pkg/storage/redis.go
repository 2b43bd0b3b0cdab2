// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes for the shared store.
const (
	redisPendingPrefix       = "gatekeeper:pending:"
	redisCodePrefix          = "gatekeeper:code:"
	redisConsumedStatePrefix = "gatekeeper:pending:used:"
	redisConsumedCodePrefix  = "gatekeeper:code:used:"
)

// consumedTombstoneTTL is how long a consumed-record marker survives. It
// only needs to outlive the window in which a replay is plausible.
const consumedTombstoneTTL = 30 * time.Minute

// RedisStore implements AuthStore against a shared Redis instance, making
// single-use semantics hold across multiple gateway replicas. GETDEL gives
// atomic consume; Redis TTLs handle expiry.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a RedisStore from an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// PutPendingAuth implements AuthStore.
func (s *RedisStore) PutPendingAuth(ctx context.Context, pending *PendingAuthRequest) error {
	return s.put(ctx, redisPendingPrefix+pending.State, pending, pending.ExpiresAt)
}

// ConsumePendingAuth implements AuthStore.
func (s *RedisStore) ConsumePendingAuth(ctx context.Context, state string) (*PendingAuthRequest, error) {
	var pending PendingAuthRequest
	err := s.consume(ctx, redisPendingPrefix+state, redisConsumedStatePrefix+state, &pending)
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

// PutAuthorizationCode implements AuthStore.
func (s *RedisStore) PutAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	return s.put(ctx, redisCodePrefix+code.Code, code, code.ExpiresAt)
}

// ConsumeAuthorizationCode implements AuthStore.
func (s *RedisStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var record AuthorizationCode
	err := s.consume(ctx, redisCodePrefix+code, redisConsumedCodePrefix+code, &record)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) put(ctx context.Context, key string, value any, expiresAt time.Time) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("record already expired")
	}

	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}
	return nil
}

func (s *RedisStore) consume(ctx context.Context, key, tombstoneKey string, out any) error {
	data, err := s.rdb.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Distinguish a replayed value from one we never issued.
		exists, existsErr := s.rdb.Exists(ctx, tombstoneKey).Result()
		if existsErr == nil && exists > 0 {
			return ErrAlreadyConsumed
		}
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to consume record: %w", err)
	}

	if err := s.rdb.Set(ctx, tombstoneKey, "1", consumedTombstoneTTL).Err(); err != nil {
		return fmt.Errorf("failed to record consumption: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}
