// SPDX-FileCopyrightText: Copyright 2025 Ghostlight Labs, Inc.
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the in-memory store evicts expired
// windows. Admission decisions recompute from resetAt, not sweep timing, so
// a stale window lingering up to one interval past expiry only costs memory.
const DefaultSweepInterval = 1 * time.Minute

// shardCount must be a power of two. Sharding keeps the eviction sweep from
// blocking every in-flight request behind a single full-map lock.
const shardCount = 32

type window struct {
	count   int64
	resetAt time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryStore is an in-process CounterStore. It is only correct for a
// single server process; replicas each count independently.
type MemoryStore struct {
	shards        [shardCount]*shard
	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithSweepInterval sets a custom eviction interval.
func WithSweepInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.sweepInterval = interval
	}
}

// NewMemoryStore creates a MemoryStore and starts its background sweep.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sweepInterval: DefaultSweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string]*window)}
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweepLoop()

	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()&(shardCount-1)]
}

// Increment implements CounterStore. The read-increment-compare sequence
// happens under the shard lock, so concurrent requests for the same key can
// never both claim the final slot.
func (s *MemoryStore) Increment(_ context.Context, key string, windowDur time.Duration) (int64, time.Time, error) {
	now := time.Now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(windowDur)}
		sh.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

// Close stops the background sweep.
func (s *MemoryStore) Close() error {
	close(s.stopSweep)
	<-s.sweepDone
	return nil
}

func (s *MemoryStore) sweepLoop() {
	defer close(s.sweepDone)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopSweep:
			return
		}
	}
}

// sweepExpired evicts expired windows one shard at a time so requests on
// other shards are never blocked behind the scan.
func (s *MemoryStore) sweepExpired() {
	now := time.Now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, w := range sh.windows {
			if now.After(w.resetAt) {
				delete(sh.windows, key)
			}
		}
		sh.mu.Unlock()
	}
}
