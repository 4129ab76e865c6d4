package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/guards/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockKeyPrefix = "shipping_lock:"

// RedisLockStore implements ports.LockStore with SET NX. The lock value
// carries holder identity and acquisition time for the stale sweep.
type RedisLockStore struct {
	client *redis.Client
}

// NewRedisLockStore creates a new RedisLockStore.
func NewRedisLockStore(client *redis.Client) *RedisLockStore {
	return &RedisLockStore{client: client}
}

func lockKey(orderID string) string {
	return lockKeyPrefix + orderID
}

// Acquire takes the per-order lock with a single SET NX. Returns false
// when the lock is already held.
func (s *RedisLockStore) Acquire(ctx context.Context, orderID, holder string) (bool, error) {
	lock := domain.ShippingLock{
		OrderID:    orderID,
		Holder:     holder,
		AcquiredAt: time.Now().UTC(),
	}

	data, err := json.Marshal(lock)
	if err != nil {
		return false, fmt.Errorf("failed to marshal lock: %w", err)
	}

	ok, err := s.client.SetNX(ctx, lockKey(orderID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for %s: %w", orderID, err)
	}
	return ok, nil
}

// Release drops the lock unconditionally.
func (s *RedisLockStore) Release(ctx context.Context, orderID string) error {
	if err := s.client.Del(ctx, lockKey(orderID)).Err(); err != nil {
		return fmt.Errorf("failed to release lock for %s: %w", orderID, err)
	}
	return nil
}

// Get returns the current lock record, or nil when unheld.
func (s *RedisLockStore) Get(ctx context.Context, orderID string) (*domain.ShippingLock, error) {
	data, err := s.client.Get(ctx, lockKey(orderID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lock for %s: %w", orderID, err)
	}

	var lock domain.ShippingLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock for %s: %w", orderID, err)
	}
	return &lock, nil
}

// SweepStale releases every lock older than maxAge. A holder that is
// legitimately still working past the threshold loses its lock; the
// threshold must therefore exceed any expected run time.
func (s *RedisLockStore) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	released := 0
	cutoff := time.Now().UTC().Add(-maxAge)

	iter := s.client.Scan(ctx, 0, lockKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Already released between SCAN and GET.
			continue
		}

		var lock domain.ShippingLock
		if err := json.Unmarshal(data, &lock); err != nil {
			logger.Named("lock_sweep").Warn("Dropping unreadable lock",
				zap.String("key", key), zap.Error(err))
			s.client.Del(ctx, key)
			released++
			continue
		}

		if lock.AcquiredAt.Before(cutoff) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				logger.Named("lock_sweep").Error("Failed to release stale lock",
					zap.String("order_id", strings.TrimPrefix(key, lockKeyPrefix)), zap.Error(err))
				continue
			}
			logger.Named("lock_sweep").Info("Released stale lock",
				zap.String("order_id", lock.OrderID),
				zap.String("holder", lock.Holder),
				zap.Time("acquired_at", lock.AcquiredAt),
			)
			released++
		}
	}
	if err := iter.Err(); err != nil {
		return released, fmt.Errorf("failed to scan locks: %w", err)
	}
	return released, nil
}
