// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces rate-limit counters in a shared Redis instance.
const redisKeyPrefix = "gatekeeper:ratelimit:"

// RedisStore is a CounterStore backed by a shared Redis instance. INCR is
// atomic server-side, so quotas hold across multiple gateway replicas.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a RedisStore from an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Increment implements CounterStore.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := time.Now()
	redisKey := redisKeyPrefix + key

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment counter: %w", err)
	}

	count := incr.Val()
	ttl := pttl.Val()

	// A key without an expiry is a fresh window (or one whose PEXPIRE was
	// lost); stamp it so the counter cannot live forever.
	if ttl < 0 {
		if err := s.rdb.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("failed to set window expiry: %w", err)
		}
		return count, now.Add(window), nil
	}

	return count, now.Add(ttl), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
