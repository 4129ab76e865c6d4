package ports

import (
	"context"
	"time"

	"shipping-orchestrator/internal/features/guards/domain"
)

// LockStore is the per-order mutual-exclusion primitive. Acquire must be
// a single atomic compare-and-set against the backing store, never a
// read-then-write pair.
type LockStore interface {
	// Acquire takes the lock for orderID iff it is currently unheld.
	// Returns false when someone else holds it. Never blocks.
	Acquire(ctx context.Context, orderID, holder string) (bool, error)

	// Release drops the lock unconditionally.
	Release(ctx context.Context, orderID string) error

	// Get returns the current lock record, or nil when unheld.
	Get(ctx context.Context, orderID string) (*domain.ShippingLock, error)

	// SweepStale releases every lock older than maxAge and returns the
	// number released.
	SweepStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// CapacityStore is the per-carrier atomic admission counter.
type CapacityStore interface {
	// Reserve atomically increments the carrier's load iff it is below
	// max. Returns false when the carrier is at capacity.
	Reserve(ctx context.Context, carrierID string, max int64) (bool, error)

	// Free atomically decrements the carrier's load, floored at zero.
	Free(ctx context.Context, carrierID string) error

	// Load returns the current counter snapshot for observability.
	Load(ctx context.Context, carrierID string, max int64) (*domain.CapacityCounter, error)
}

// IdempotencyStore caches full responses per client-supplied key.
// Callers treat failures as fail-open: a broken cache never blocks a
// request, it only forfeits the replay optimization.
type IdempotencyStore interface {
	// Check returns the cached result for key, or nil when absent.
	Check(ctx context.Context, key string) (*domain.CachedResult, error)

	// Store caches payload under key for ttl.
	Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}
