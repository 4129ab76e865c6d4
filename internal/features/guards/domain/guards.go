package domain

import "time"

// ShippingLock is the per-order mutual-exclusion record. At most one
// holder exists at a time; acquisition is a single atomic compare-and-set.
type ShippingLock struct {
	// OrderID is the locked order.
	OrderID string `json:"order_id"`
	// Holder identifies who acquired the lock.
	Holder string `json:"holder"`
	// AcquiredAt is when the lock was taken.
	AcquiredAt time.Time `json:"acquired_at"`
}

// CapacityCounter is a carrier's load snapshot. The invariant
// 0 ≤ CurrentLoad ≤ MaxCapacity holds at all observable times.
type CapacityCounter struct {
	// CarrierID is the counted carrier.
	CarrierID string `json:"carrier_id"`
	// CurrentLoad is the number of reserved slots.
	CurrentLoad int64 `json:"current_load"`
	// MaxCapacity is the admission ceiling.
	MaxCapacity int64 `json:"max_capacity"`
}

// CachedResult is a replayed idempotent response.
type CachedResult struct {
	// Payload is the exact response JSON cached on first completion.
	Payload []byte `json:"payload"`
	// CachedAt is when the payload was stored.
	CachedAt time.Time `json:"cached_at"`
}
