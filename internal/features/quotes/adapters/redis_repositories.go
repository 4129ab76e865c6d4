package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"shipping-orchestrator/internal/core/cache"
	"shipping-orchestrator/internal/features/quotes/domain"
)

const (
	quoteKeyPrefix      = "quote:"
	rejectionKeyPrefix  = "rejections:"
	carrierKeyPrefix    = "carrier:"
	assignmentKeyPrefix = "assignment:"
	orderKeyPrefix      = "order:"
)

// RedisQuoteRepository implements ports.QuoteRepository, one key per
// quote under quote:<orderID>:<quoteID>.
type RedisQuoteRepository struct {
	cache cache.Cache
}

// NewRedisQuoteRepository creates a new RedisQuoteRepository.
func NewRedisQuoteRepository(c cache.Cache) *RedisQuoteRepository {
	return &RedisQuoteRepository{cache: c}
}

func quoteKey(orderID, quoteID string) string {
	return fmt.Sprintf("%s%s:%s", quoteKeyPrefix, orderID, quoteID)
}

// Save stores a quote.
func (r *RedisQuoteRepository) Save(ctx context.Context, quote *domain.Quote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	if err := r.cache.Set(ctx, quoteKey(quote.OrderID, quote.ID), data, 0); err != nil {
		return fmt.Errorf("failed to save quote %s: %w", quote.ID, err)
	}
	return nil
}

// Get returns one quote for an order.
func (r *RedisQuoteRepository) Get(ctx context.Context, orderID, quoteID string) (*domain.Quote, error) {
	data, err := r.cache.Get(ctx, quoteKey(orderID, quoteID))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, fmt.Errorf("%w: quote %s", domain.ErrNotFound, quoteID)
		}
		return nil, fmt.Errorf("failed to get quote %s: %w", quoteID, err)
	}

	var quote domain.Quote
	if err := json.Unmarshal(data, &quote); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quote %s: %w", quoteID, err)
	}
	return &quote, nil
}

// ListByOrder returns all quotes recorded for an order, oldest first.
func (r *RedisQuoteRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Quote, error) {
	keys, err := r.cache.Keys(ctx, quoteKeyPrefix+orderID+":*")
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes for order %s: %w", orderID, err)
	}

	quotes := make([]domain.Quote, 0, len(keys))
	for _, key := range keys {
		data, err := r.cache.Get(ctx, key)
		if err != nil {
			continue
		}
		var quote domain.Quote
		if err := json.Unmarshal(data, &quote); err != nil {
			continue
		}
		quotes = append(quotes, quote)
	}

	sort.Slice(quotes, func(a, b int) bool {
		return quotes[a].CreatedAt.Before(quotes[b].CreatedAt)
	})
	return quotes, nil
}

// MarkSelected flips Selected on the given quote and clears every other
// quote of the order, keeping the one-selected-per-order invariant.
func (r *RedisQuoteRepository) MarkSelected(ctx context.Context, orderID, quoteID string) error {
	quotes, err := r.ListByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	found := false
	for i := range quotes {
		shouldSelect := quotes[i].ID == quoteID
		if shouldSelect {
			found = true
		}
		if quotes[i].Selected == shouldSelect {
			continue
		}
		quotes[i].Selected = shouldSelect
		if err := r.Save(ctx, &quotes[i]); err != nil {
			return err
		}
	}

	if !found {
		return fmt.Errorf("%w: quote %s for order %s", domain.ErrNotFound, quoteID, orderID)
	}
	return nil
}

// RedisRejectionRepository implements ports.RejectionRepository as one
// append-only JSON array per order.
type RedisRejectionRepository struct {
	cache cache.Cache
}

// NewRedisRejectionRepository creates a new RedisRejectionRepository.
func NewRedisRejectionRepository(c cache.Cache) *RedisRejectionRepository {
	return &RedisRejectionRepository{cache: c}
}

// Append records a rejection.
func (r *RedisRejectionRepository) Append(ctx context.Context, rejection *domain.Rejection) error {
	existing, err := r.ListByOrder(ctx, rejection.OrderID)
	if err != nil {
		return err
	}

	existing = append(existing, *rejection)
	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to marshal rejections: %w", err)
	}
	if err := r.cache.Set(ctx, rejectionKeyPrefix+rejection.OrderID, data, 0); err != nil {
		return fmt.Errorf("failed to append rejection for order %s: %w", rejection.OrderID, err)
	}
	return nil
}

// ListByOrder returns all rejections recorded for an order.
func (r *RedisRejectionRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Rejection, error) {
	data, err := r.cache.Get(ctx, rejectionKeyPrefix+orderID)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rejections for order %s: %w", orderID, err)
	}

	var rejections []domain.Rejection
	if err := json.Unmarshal(data, &rejections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rejections for order %s: %w", orderID, err)
	}
	return rejections, nil
}

// RedisCarrierRepository implements ports.CarrierRepository.
type RedisCarrierRepository struct {
	cache cache.Cache
}

// NewRedisCarrierRepository creates a new RedisCarrierRepository.
func NewRedisCarrierRepository(c cache.Cache) *RedisCarrierRepository {
	return &RedisCarrierRepository{cache: c}
}

// Save stores a carrier record (used by seeding and admin tooling).
func (r *RedisCarrierRepository) Save(ctx context.Context, carrier *domain.Carrier) error {
	data, err := json.Marshal(carrier)
	if err != nil {
		return fmt.Errorf("failed to marshal carrier: %w", err)
	}
	if err := r.cache.Set(ctx, carrierKeyPrefix+carrier.ID, data, 0); err != nil {
		return fmt.Errorf("failed to save carrier %s: %w", carrier.ID, err)
	}
	return nil
}

// Get returns one carrier by ID.
func (r *RedisCarrierRepository) Get(ctx context.Context, carrierID string) (*domain.Carrier, error) {
	data, err := r.cache.Get(ctx, carrierKeyPrefix+carrierID)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, fmt.Errorf("%w: carrier %s", domain.ErrNotFound, carrierID)
		}
		return nil, fmt.Errorf("failed to get carrier %s: %w", carrierID, err)
	}

	var carrier domain.Carrier
	if err := json.Unmarshal(data, &carrier); err != nil {
		return nil, fmt.Errorf("failed to unmarshal carrier %s: %w", carrierID, err)
	}
	return &carrier, nil
}

// ListActive returns all active carriers, sorted by ID for stable
// fan-out and selection ordering.
func (r *RedisCarrierRepository) ListActive(ctx context.Context) ([]domain.Carrier, error) {
	keys, err := r.cache.Keys(ctx, carrierKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list carriers: %w", err)
	}
	sort.Strings(keys)

	var carriers []domain.Carrier
	for _, key := range keys {
		data, err := r.cache.Get(ctx, key)
		if err != nil {
			continue
		}
		var carrier domain.Carrier
		if err := json.Unmarshal(data, &carrier); err != nil {
			continue
		}
		if carrier.Active {
			carriers = append(carriers, carrier)
		}
	}
	return carriers, nil
}

// RedisAssignmentRepository implements ports.AssignmentRepository, one
// record per order.
type RedisAssignmentRepository struct {
	cache cache.Cache
}

// NewRedisAssignmentRepository creates a new RedisAssignmentRepository.
func NewRedisAssignmentRepository(c cache.Cache) *RedisAssignmentRepository {
	return &RedisAssignmentRepository{cache: c}
}

// Save stores an assignment.
func (r *RedisAssignmentRepository) Save(ctx context.Context, assignment *domain.Assignment) error {
	data, err := json.Marshal(assignment)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}
	if err := r.cache.Set(ctx, assignmentKeyPrefix+assignment.OrderID, data, 0); err != nil {
		return fmt.Errorf("failed to save assignment for order %s: %w", assignment.OrderID, err)
	}
	return nil
}

// Get returns the assignment for an order, or nil when absent.
func (r *RedisAssignmentRepository) Get(ctx context.Context, orderID string) (*domain.Assignment, error) {
	data, err := r.cache.Get(ctx, assignmentKeyPrefix+orderID)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assignment for order %s: %w", orderID, err)
	}

	var assignment domain.Assignment
	if err := json.Unmarshal(data, &assignment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignment for order %s: %w", orderID, err)
	}
	return &assignment, nil
}

// ListByStates returns assignments in any of the given states, sorted by
// order ID for deterministic sweeps.
func (r *RedisAssignmentRepository) ListByStates(ctx context.Context, states ...domain.AssignmentState) ([]domain.Assignment, error) {
	keys, err := r.cache.Keys(ctx, assignmentKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	sort.Strings(keys)

	wanted := make(map[domain.AssignmentState]bool, len(states))
	for _, s := range states {
		wanted[s] = true
	}

	var assignments []domain.Assignment
	for _, key := range keys {
		data, err := r.cache.Get(ctx, key)
		if err != nil {
			continue
		}
		var assignment domain.Assignment
		if err := json.Unmarshal(data, &assignment); err != nil {
			continue
		}
		if wanted[assignment.State] {
			assignments = append(assignments, assignment)
		}
	}
	return assignments, nil
}

// orderRecord is the slice of the order document this service touches.
type orderRecord struct {
	OrderID   string                  `json:"order_id"`
	Status    domain.OrderStatus      `json:"status"`
	Request   *domain.ShippingRequest `json:"shipping_request,omitempty"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// RedisOrderStore implements ports.OrderStore against the shared cache.
// In a full deployment this adapter fronts the order service; here it
// keeps the order slice the orchestrator needs.
type RedisOrderStore struct {
	cache cache.Cache
}

// NewRedisOrderStore creates a new RedisOrderStore.
func NewRedisOrderStore(c cache.Cache) *RedisOrderStore {
	return &RedisOrderStore{cache: c}
}

func (r *RedisOrderStore) load(ctx context.Context, orderID string) (*orderRecord, error) {
	data, err := r.cache.Get(ctx, orderKeyPrefix+orderID)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}

	var record orderRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order %s: %w", orderID, err)
	}
	return &record, nil
}

func (r *RedisOrderStore) save(ctx context.Context, record *orderRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := r.cache.Set(ctx, orderKeyPrefix+record.OrderID, data, 0); err != nil {
		return fmt.Errorf("failed to save order %s: %w", record.OrderID, err)
	}
	return nil
}

// SaveShippingRequest records the shipment input for later re-drives.
func (r *RedisOrderStore) SaveShippingRequest(ctx context.Context, req *domain.ShippingRequest) error {
	record, err := r.load(ctx, req.OrderID)
	if err != nil {
		return err
	}
	if record == nil {
		record = &orderRecord{OrderID: req.OrderID, Status: domain.OrderStatusQuoting}
	}
	record.Request = req
	record.UpdatedAt = time.Now().UTC()
	return r.save(ctx, record)
}

// UpdateStatus moves the order to the given status.
func (r *RedisOrderStore) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	record, err := r.load(ctx, orderID)
	if err != nil {
		return err
	}
	if record == nil {
		record = &orderRecord{OrderID: orderID}
	}
	record.Status = status
	record.UpdatedAt = time.Now().UTC()
	return r.save(ctx, record)
}

// GetStatus returns the order's current status.
func (r *RedisOrderStore) GetStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	record, err := r.load(ctx, orderID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return record.Status, nil
}

// GetShippingRequest rebuilds the shipment input for an order.
func (r *RedisOrderStore) GetShippingRequest(ctx context.Context, orderID string) (*domain.ShippingRequest, error) {
	record, err := r.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Request == nil {
		return nil, fmt.Errorf("%w: shipping request for order %s", domain.ErrNotFound, orderID)
	}
	return record.Request, nil
}
