// Package query executes named queries through a policy-driven cache:
// staleness and retention bookkeeping, request coalescing, retries, optional
// persistence, and background polling.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// --- MemoryKVStore ---

// MemoryKVStore is an in-memory key-value store with TTL support. Suitable
// for testing and single-instance deployments.
type MemoryKVStore struct {
	mu      sync.RWMutex
	entries map[string]*kvEntry
}

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryKVStore creates a new in-memory store.
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{entries: make(map[string]*kvEntry)}
}

// Get returns the value for key, if present and unexpired.
func (s *MemoryKVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a value. A zero TTL means no expiry.
func (s *MemoryKVStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := &kvEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes a key.
func (s *MemoryKVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries (including expired ones). For testing.
func (s *MemoryKVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// --- RedisKVStore ---

// RedisKVStore is a Redis-backed key-value store used to persist cache
// entries between sessions.
type RedisKVStore struct {
	client redis.Cmdable
}

// NewRedisKVStore creates a new Redis-backed store.
func NewRedisKVStore(client redis.Cmdable) *RedisKVStore {
	return &RedisKVStore{client: client}
}

// Get returns the value for key.
func (s *RedisKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return raw, true, nil
}

// Set stores a value with a TTL. A zero TTL stores without expiry.
func (s *RedisKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (s *RedisKVStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}
