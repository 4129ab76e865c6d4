package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shipping-orchestrator/internal/features/guards/domain"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idem:"

// RedisIdempotencyStore implements ports.IdempotencyStore. Expiry is
// delegated to Redis TTLs, so eviction needs no sweeper of its own.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisIdempotencyStore creates a new RedisIdempotencyStore.
func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func idempotencyKey(key string) string {
	return idempotencyKeyPrefix + key
}

// Check returns the cached result for key, or nil when absent or expired.
func (s *RedisIdempotencyStore) Check(ctx context.Context, key string) (*domain.CachedResult, error) {
	data, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key %s: %w", key, err)
	}

	var result domain.CachedResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record %s: %w", key, err)
	}
	return &result, nil
}

// Store caches payload under key for ttl.
func (s *RedisIdempotencyStore) Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	record := domain.CachedResult{
		Payload:  payload,
		CachedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record %s: %w", key, err)
	}

	if err := s.client.Set(ctx, idempotencyKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency record %s: %w", key, err)
	}
	return nil
}
