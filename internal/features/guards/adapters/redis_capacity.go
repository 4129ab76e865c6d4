package adapters

import (
	"context"
	"fmt"

	"shipping-orchestrator/internal/features/guards/domain"

	"github.com/redis/go-redis/v9"
)

const capacityKeyPrefix = "carrier_capacity:"

// reserveScript increments the counter iff it is below max. A single
// round trip keeps the check-and-increment atomic under concurrency.
var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local max = tonumber(ARGV[1])
if current < max then
  redis.call('INCR', KEYS[1])
  return 1
end
return 0
`)

// freeScript decrements the counter, floored at zero.
var freeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current > 0 then
  redis.call('DECR', KEYS[1])
end
return current
`)

// RedisCapacityStore implements ports.CapacityStore with Lua scripts so
// reserve and free are single atomic read-modify-write operations.
type RedisCapacityStore struct {
	client *redis.Client
}

// NewRedisCapacityStore creates a new RedisCapacityStore.
func NewRedisCapacityStore(client *redis.Client) *RedisCapacityStore {
	return &RedisCapacityStore{client: client}
}

func capacityKey(carrierID string) string {
	return capacityKeyPrefix + carrierID
}

// Reserve atomically increments the carrier's load iff below max.
func (s *RedisCapacityStore) Reserve(ctx context.Context, carrierID string, max int64) (bool, error) {
	res, err := reserveScript.Run(ctx, s.client, []string{capacityKey(carrierID)}, max).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to reserve capacity for %s: %w", carrierID, err)
	}
	return res == 1, nil
}

// Free atomically decrements the carrier's load, floored at zero.
func (s *RedisCapacityStore) Free(ctx context.Context, carrierID string) error {
	if err := freeScript.Run(ctx, s.client, []string{capacityKey(carrierID)}).Err(); err != nil {
		return fmt.Errorf("failed to free capacity for %s: %w", carrierID, err)
	}
	return nil
}

// Load returns the current counter snapshot for observability.
func (s *RedisCapacityStore) Load(ctx context.Context, carrierID string, max int64) (*domain.CapacityCounter, error) {
	current, err := s.client.Get(ctx, capacityKey(carrierID)).Int64()
	if err == redis.Nil {
		current = 0
	} else if err != nil {
		return nil, fmt.Errorf("failed to load capacity for %s: %w", carrierID, err)
	}

	return &domain.CapacityCounter{
		CarrierID:   carrierID,
		CurrentLoad: current,
		MaxCapacity: max,
	}, nil
}
