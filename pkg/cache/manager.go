package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

// DefaultTTL is used when the manager is constructed with a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Manager stores successful Registry GET payloads in Redis under a fixed TTL.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a cache manager with a Redis backend.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves a cached payload by key.
// Returns ErrCacheMiss if the key doesn't exist (or has expired in Redis).
func (m *Manager) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return data, nil
}

// Set stores a payload under the manager's TTL. Redis evicts the entry when
// the TTL elapses; there is no client-side expiry bookkeeping.
func (m *Manager) Set(ctx context.Context, key Key, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("cache payload cannot be empty")
	}

	if err := m.redis.Set(ctx, key.String(), payload, m.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cached payload.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// TTL returns the fixed entry lifetime the manager was configured with.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
