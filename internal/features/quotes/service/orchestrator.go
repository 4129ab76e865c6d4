package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shipping-orchestrator/internal/core/logger"
	guardports "shipping-orchestrator/internal/features/guards/ports"
	"shipping-orchestrator/internal/features/quotes/domain"
	"shipping-orchestrator/internal/features/quotes/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrchestratorConfig bounds the quote solicitation run.
type OrchestratorConfig struct {
	// QuoteTimeout caps each individual carrier call.
	QuoteTimeout time.Duration
	// MinQuotes triggers one extra fan-out pass when fewer offers arrive.
	MinQuotes int
	// IdempotencyTTL is the cached-response validity window.
	IdempotencyTTL time.Duration
	// QuoteValidity is how long an accepted quote stays actionable.
	QuoteValidity time.Duration
}

// Orchestrator runs Phase-2 multi-carrier quote solicitation: idempotency
// check, per-order lock, validated parallel fan-out, selection and atomic
// capacity reservation.
type Orchestrator struct {
	locks       guardports.LockStore
	capacity    guardports.CapacityStore
	idempotency guardports.IdempotencyStore
	carriers    ports.CarrierRepository
	gateway     ports.CarrierGateway
	policy      ports.ValidationPolicy
	selector    ports.Selector
	quotes      ports.QuoteRepository
	rejections  ports.RejectionRepository
	assignments ports.AssignmentRepository
	orders      ports.OrderStore
	cfg         OrchestratorConfig
	holderID    string
	logger      *zap.Logger
}

// NewOrchestrator creates an Orchestrator with injected collaborators.
func NewOrchestrator(
	locks guardports.LockStore,
	capacity guardports.CapacityStore,
	idempotency guardports.IdempotencyStore,
	carriers ports.CarrierRepository,
	gateway ports.CarrierGateway,
	validation ports.ValidationPolicy,
	selector ports.Selector,
	quotes ports.QuoteRepository,
	rejections ports.RejectionRepository,
	assignments ports.AssignmentRepository,
	orders ports.OrderStore,
	cfg OrchestratorConfig,
) *Orchestrator {
	return &Orchestrator{
		locks:       locks,
		capacity:    capacity,
		idempotency: idempotency,
		carriers:    carriers,
		gateway:     gateway,
		policy:      validation,
		selector:    selector,
		quotes:      quotes,
		rejections:  rejections,
		assignments: assignments,
		orders:      orders,
		cfg:         cfg,
		holderID:    "orchestrator-" + uuid.NewString(),
		logger:      logger.Named("orchestrator"),
	}
}

// GetRealShippingQuotes runs the full Phase-2 state machine for the
// request. An empty idempotencyKey disables replay caching (logged, not
// rejected).
func (o *Orchestrator) GetRealShippingQuotes(ctx context.Context, req domain.ShippingRequest, idempotencyKey string) (*domain.QuoteResult, error) {
	if req.OrderID == "" || len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order id and items are required", domain.ErrValidation)
	}

	// Step 1: idempotency check. Fail-open: a broken cache only forfeits
	// the replay, never the request.
	if idempotencyKey == "" {
		o.logger.Info("Request without idempotency key", zap.String("order_id", req.OrderID))
	} else {
		cached, err := o.idempotency.Check(ctx, idempotencyKey)
		if err != nil {
			o.logger.Warn("Idempotency check failed, proceeding without cache",
				zap.String("key", idempotencyKey), zap.Error(err))
		} else if cached != nil {
			var result domain.QuoteResult
			if err := json.Unmarshal(cached.Payload, &result); err != nil {
				o.logger.Warn("Cached payload unreadable, proceeding",
					zap.String("key", idempotencyKey), zap.Error(err))
			} else {
				result.Cached = true
				o.logger.Info("Replayed cached quote result",
					zap.String("order_id", req.OrderID),
					zap.Time("cached_at", cached.CachedAt),
				)
				return &result, nil
			}
		}
	}

	return o.solicit(ctx, req, idempotencyKey, nil, "")
}

// Resolicit re-runs carrier solicitation for an order, excluding the
// given carrier. Used by the assignment retry driver; bypasses the
// idempotency cache since a retry must produce fresh external calls.
func (o *Orchestrator) Resolicit(ctx context.Context, req domain.ShippingRequest, excludeCarrierID string) (*domain.QuoteResult, error) {
	exclude := map[string]bool{}
	if excludeCarrierID != "" {
		exclude[excludeCarrierID] = true
	}
	return o.solicit(ctx, req, "", exclude, "")
}

// ReofferCarrier re-offers the order to a single carrier, used for busy
// assignments after their cool-down.
func (o *Orchestrator) ReofferCarrier(ctx context.Context, req domain.ShippingRequest, carrierID string) (*domain.QuoteResult, error) {
	return o.solicit(ctx, req, "", nil, carrierID)
}

// solicit executes steps 2–9: lock, enumeration, fan-out, classification,
// bounded retry, selection, capacity reservation and finalize. A
// non-empty only restricts the fan-out to that single carrier.
func (o *Orchestrator) solicit(ctx context.Context, req domain.ShippingRequest, idempotencyKey string, exclude map[string]bool, only string) (*domain.QuoteResult, error) {
	// Step 2: lock acquisition. Fail-closed: a store error or a held
	// lock both stop the request before any carrier is contacted.
	acquired, err := o.locks.Acquire(ctx, req.OrderID, o.holderID)
	if err != nil {
		return nil, fmt.Errorf("lock acquisition failed for order %s: %w", req.OrderID, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: order %s is already being processed", domain.ErrConflict, req.OrderID)
	}
	defer func() {
		if err := o.locks.Release(context.WithoutCancel(ctx), req.OrderID); err != nil {
			o.logger.Error("Failed to release shipping lock",
				zap.String("order_id", req.OrderID), zap.Error(err))
		}
	}()

	// Persist the shipment input so the retry driver can re-drive this
	// order later. Fail-open: losing the record only forfeits automated
	// retries.
	if err := o.orders.SaveShippingRequest(ctx, &req); err != nil {
		o.logger.Warn("Failed to persist shipping request",
			zap.String("order_id", req.OrderID), zap.Error(err))
	}

	// Step 3: carrier enumeration. Push carriers are solicited in
	// parallel; with none available the order queues for portal (pull)
	// assignment instead.
	active, err := o.carriers.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list carriers: %w", err)
	}

	var push []domain.Carrier
	var pullNames []string
	carrierByID := make(map[string]domain.Carrier, len(active))
	for _, c := range active {
		carrierByID[c.ID] = c
		if exclude[c.ID] {
			continue
		}
		if only != "" && c.ID != only {
			continue
		}
		switch c.Mode {
		case domain.CarrierModePush:
			push = append(push, c)
		case domain.CarrierModePull:
			pullNames = append(pullNames, c.Name)
		}
	}

	if len(active) == 0 {
		return nil, fmt.Errorf("%w: no active carriers configured", domain.ErrBusinessLogic)
	}

	if len(push) == 0 {
		return o.queueForManual(ctx, req, nil, nil, pullNames, idempotencyKey)
	}

	// Steps 4–5: fan-out and classification.
	quotes, rejections := o.fanOut(ctx, push, req)

	// Step 6: one bounded retry pass when too few offers arrived,
	// re-driving only the carriers that failed transiently. Same lock,
	// same idempotency key.
	if len(quotes) < o.cfg.MinQuotes {
		retriable := transientlyFailed(push, quotes, rejections)
		if len(retriable) > 0 {
			o.logger.Info("Below minimum quotes, running one retry pass",
				zap.String("order_id", req.OrderID),
				zap.Int("quotes", len(quotes)),
				zap.Int("retriable_carriers", len(retriable)),
			)
			moreQuotes, moreRejections := o.fanOut(ctx, retriable, req)
			quotes = append(quotes, moreQuotes...)
			rejections = append(rejections, moreRejections...)
		}
	}

	if len(quotes) == 0 {
		return o.queueForManual(ctx, req, quotes, rejections, pullNames, idempotencyKey)
	}

	// Step 7: selection.
	ranked, reason := o.selector.Rank(quotes)

	// Step 8: capacity reservation with fallback down the ranking.
	// Losing the reservation race is a normal outcome, not an error.
	var winner *domain.Quote
	for i := range ranked {
		carrier, ok := carrierByID[ranked[i].CarrierID]
		if !ok {
			continue
		}
		reserved, err := o.capacity.Reserve(ctx, carrier.ID, carrier.MaxCapacity)
		if err != nil {
			return nil, fmt.Errorf("capacity reservation failed for carrier %s: %w", carrier.ID, err)
		}
		if reserved {
			// Snapshot is observability only; its failure is fail-open.
			if snap, snapErr := o.capacity.Load(ctx, carrier.ID, carrier.MaxCapacity); snapErr != nil {
				o.logger.Warn("Capacity snapshot unavailable",
					zap.String("carrier_id", carrier.ID), zap.Error(snapErr))
			} else {
				o.logger.Debug("Capacity reserved",
					zap.String("carrier_id", carrier.ID),
					zap.Int64("current_load", snap.CurrentLoad),
					zap.Int64("max_capacity", snap.MaxCapacity),
				)
			}
			winner = &ranked[i]
			if i > 0 {
				reason = domain.SelectionBestBalance
				o.logger.Info("Fell back to lower-ranked quote after capacity race",
					zap.String("order_id", req.OrderID),
					zap.String("carrier_id", carrier.ID),
					zap.Int("rank", i),
				)
			}
			break
		}
		o.logger.Info("Carrier at capacity, trying next ranked quote",
			zap.String("order_id", req.OrderID),
			zap.String("carrier_id", carrier.ID),
		)
	}

	if winner == nil {
		return o.queueForManual(ctx, req, ranked, rejections, pullNames, idempotencyKey)
	}

	// Step 9: finalize.
	return o.finalize(ctx, req, ranked, rejections, winner, reason, idempotencyKey)
}

// carrierSettle is one settled fan-out call.
type carrierSettle struct {
	quote     *domain.Quote
	rejection *domain.Rejection
}

// fanOut solicits every eligible carrier in parallel, each raced against
// the per-carrier timeout. Calls settle independently: a slow or failing
// carrier never delays or fails the others. Persists quotes and
// rejections as they classify.
func (o *Orchestrator) fanOut(ctx context.Context, carriers []domain.Carrier, req domain.ShippingRequest) ([]domain.Quote, []domain.Rejection) {
	results := make(chan carrierSettle, len(carriers))
	launched := 0

	for _, carrier := range carriers {
		// Validation policy runs before any network call.
		if rejection := o.policy.Evaluate(carrier, req); rejection != nil {
			results <- carrierSettle{rejection: rejection}
			launched++
			continue
		}

		launched++
		go o.solicitCarrier(ctx, carrier, req, results)
	}

	var quotes []domain.Quote
	var rejections []domain.Rejection
	for i := 0; i < launched; i++ {
		settle := <-results
		if settle.quote != nil {
			if err := o.quotes.Save(ctx, settle.quote); err != nil {
				o.logger.Error("Failed to persist quote",
					zap.String("quote_id", settle.quote.ID), zap.Error(err))
			}
			quotes = append(quotes, *settle.quote)
		}
		if settle.rejection != nil {
			if err := o.rejections.Append(ctx, settle.rejection); err != nil {
				o.logger.Error("Failed to persist rejection",
					zap.String("carrier_id", settle.rejection.CarrierID), zap.Error(err))
			}
			rejections = append(rejections, *settle.rejection)
		}
	}

	return quotes, rejections
}

// solicitCarrier runs one carrier call raced against the per-carrier
// timeout. The underlying call is not force-cancelled: on timeout its
// late result is still logged for audit completeness, never used.
func (o *Orchestrator) solicitCarrier(ctx context.Context, carrier domain.Carrier, req domain.ShippingRequest, results chan<- carrierSettle) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.QuoteTimeout)
	defer cancel()

	type callResult struct {
		quote     *domain.Quote
		rejection *domain.Rejection
		err       error
	}
	done := make(chan callResult, 1)

	go func() {
		quote, rejection, err := o.gateway.RequestQuote(callCtx, carrier, req)
		done <- callResult{quote: quote, rejection: rejection, err: err}
	}()

	select {
	case res := <-done:
		switch {
		case res.err != nil:
			results <- carrierSettle{rejection: &domain.Rejection{
				OrderID:    req.OrderID,
				CarrierID:  carrier.ID,
				Reason:     domain.ReasonAPIError,
				Message:    res.err.Error(),
				RecordedAt: time.Now().UTC(),
			}}
		case res.rejection != nil:
			results <- carrierSettle{rejection: res.rejection}
		case res.quote != nil:
			results <- carrierSettle{quote: res.quote}
		default:
			results <- carrierSettle{rejection: &domain.Rejection{
				OrderID:    req.OrderID,
				CarrierID:  carrier.ID,
				Reason:     domain.ReasonAPIError,
				Message:    "carrier returned neither quote nor rejection",
				RecordedAt: time.Now().UTC(),
			}}
		}
	case <-callCtx.Done():
		results <- carrierSettle{rejection: &domain.Rejection{
			OrderID:    req.OrderID,
			CarrierID:  carrier.ID,
			Reason:     domain.ReasonTimeout,
			Message:    fmt.Sprintf("no response within %s", o.cfg.QuoteTimeout),
			RecordedAt: time.Now().UTC(),
		}}
		// Drain the late result so it lands in the log, not the void.
		go func() {
			res := <-done
			fields := []zap.Field{
				zap.String("order_id", req.OrderID),
				zap.String("carrier_id", carrier.ID),
			}
			if res.err != nil {
				fields = append(fields, zap.Error(res.err))
			} else if res.quote != nil {
				// A late accepted quote never overrides a finalized
				// selection; it is recorded for audit only.
				fields = append(fields, zap.String("late_quote_id", res.quote.ID))
			}
			o.logger.Error("Carrier responded after deadline", fields...)
		}()
	}
}

// transientlyFailed returns the carriers whose only outcome this run was
// a timeout or api_error rejection, making them worth one more attempt.
func transientlyFailed(push []domain.Carrier, quotes []domain.Quote, rejections []domain.Rejection) []domain.Carrier {
	quoted := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		quoted[q.CarrierID] = true
	}

	transient := make(map[string]bool)
	for _, r := range rejections {
		if r.Reason == domain.ReasonTimeout || r.Reason == domain.ReasonAPIError {
			transient[r.CarrierID] = true
		}
	}

	var out []domain.Carrier
	for _, c := range push {
		if transient[c.ID] && !quoted[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// queueForManual records the order for portal assignment. Total quote
// absence is a user-visible outcome, not a hard failure.
func (o *Orchestrator) queueForManual(ctx context.Context, req domain.ShippingRequest, quotes []domain.Quote, rejections []domain.Rejection, pullNames []string, idempotencyKey string) (*domain.QuoteResult, error) {
	if err := o.orders.UpdateStatus(ctx, req.OrderID, domain.OrderStatusManualQueue); err != nil {
		o.logger.Error("Failed to mark order for manual queue",
			zap.String("order_id", req.OrderID), zap.Error(err))
	}

	o.logger.Info("Order queued for manual assignment",
		zap.String("order_id", req.OrderID),
		zap.Strings("pull_carriers", pullNames),
	)

	result := &domain.QuoteResult{
		OrderID:          req.OrderID,
		AcceptedQuotes:   quotes,
		RejectedCarriers: rejections,
		QueuedForManual:  true,
		PullCarriers:     pullNames,
	}
	o.cacheResult(ctx, idempotencyKey, result)
	return result, nil
}

// finalize marks the winner selected, records the assignment, caches the
// response and returns it. The lock releases via the solicit defer.
func (o *Orchestrator) finalize(ctx context.Context, req domain.ShippingRequest, ranked []domain.Quote, rejections []domain.Rejection, winner *domain.Quote, reason domain.SelectionReason, idempotencyKey string) (*domain.QuoteResult, error) {
	if err := o.quotes.MarkSelected(ctx, req.OrderID, winner.ID); err != nil {
		// The reservation already happened; undo it rather than strand a slot.
		if freeErr := o.capacity.Free(ctx, winner.CarrierID); freeErr != nil {
			o.logger.Error("Failed to free capacity after selection failure",
				zap.String("carrier_id", winner.CarrierID), zap.Error(freeErr))
		}
		return nil, fmt.Errorf("failed to mark quote selected: %w", err)
	}
	winner.Selected = true
	for i := range ranked {
		ranked[i].Selected = ranked[i].ID == winner.ID
	}

	prev, err := o.assignments.Get(ctx, req.OrderID)
	attempts := 1
	if err == nil && prev != nil {
		attempts = prev.Attempts + 1
	}

	assignment := &domain.Assignment{
		ID:         uuid.NewString(),
		OrderID:    req.OrderID,
		QuoteID:    winner.ID,
		CarrierID:  winner.CarrierID,
		State:      domain.AssignmentPending,
		ValidUntil: winner.ValidUntil,
		Attempts:   attempts,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := o.assignments.Save(ctx, assignment); err != nil {
		o.logger.Error("Failed to persist assignment",
			zap.String("order_id", req.OrderID), zap.Error(err))
	}

	if err := o.orders.UpdateStatus(ctx, req.OrderID, domain.OrderStatusCarrierChosen); err != nil {
		o.logger.Error("Failed to update order status",
			zap.String("order_id", req.OrderID), zap.Error(err))
	}

	o.logger.Info("Quote selected",
		zap.String("order_id", req.OrderID),
		zap.String("quote_id", winner.ID),
		zap.String("carrier_id", winner.CarrierID),
		zap.String("reason", string(reason)),
		zap.Float64("price", winner.Price),
	)

	result := &domain.QuoteResult{
		OrderID:          req.OrderID,
		AcceptedQuotes:   ranked,
		RejectedCarriers: rejections,
		SelectedQuoteID:  winner.ID,
		SelectionReason:  reason,
	}
	o.cacheResult(ctx, idempotencyKey, result)
	return result, nil
}

// cacheResult stores the response under the idempotency key. Fail-open.
func (o *Orchestrator) cacheResult(ctx context.Context, idempotencyKey string, result *domain.QuoteResult) {
	if idempotencyKey == "" {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		o.logger.Warn("Failed to marshal result for idempotency cache", zap.Error(err))
		return
	}
	if err := o.idempotency.Store(ctx, idempotencyKey, payload, o.cfg.IdempotencyTTL); err != nil {
		o.logger.Warn("Failed to cache result, continuing",
			zap.String("key", idempotencyKey), zap.Error(err))
	}
}

// SelectQuote manually selects a quote for an order, reserving capacity
// on its carrier. Used by the operator surface and carrier webhooks.
func (o *Orchestrator) SelectQuote(ctx context.Context, quoteID, orderID string) (*domain.Quote, error) {
	quote, err := o.quotes.Get(ctx, orderID, quoteID)
	if err != nil {
		return nil, fmt.Errorf("%w: quote %s for order %s", domain.ErrNotFound, quoteID, orderID)
	}
	if time.Now().After(quote.ValidUntil) {
		return nil, fmt.Errorf("%w: quote %s expired at %s", domain.ErrValidation, quoteID, quote.ValidUntil)
	}

	carrier, err := o.carriers.Get(ctx, quote.CarrierID)
	if err != nil {
		return nil, fmt.Errorf("%w: carrier %s", domain.ErrNotFound, quote.CarrierID)
	}

	reserved, err := o.capacity.Reserve(ctx, carrier.ID, carrier.MaxCapacity)
	if err != nil {
		return nil, fmt.Errorf("capacity reservation failed for carrier %s: %w", carrier.ID, err)
	}
	if !reserved {
		return nil, fmt.Errorf("%w: carrier %s is at capacity", domain.ErrConflict, carrier.ID)
	}

	if err := o.quotes.MarkSelected(ctx, orderID, quoteID); err != nil {
		if freeErr := o.capacity.Free(ctx, carrier.ID); freeErr != nil {
			o.logger.Error("Failed to free capacity after selection failure",
				zap.String("carrier_id", carrier.ID), zap.Error(freeErr))
		}
		return nil, fmt.Errorf("failed to mark quote selected: %w", err)
	}
	quote.Selected = true

	if err := o.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCarrierChosen); err != nil {
		o.logger.Error("Failed to update order status",
			zap.String("order_id", orderID), zap.Error(err))
	}

	return quote, nil
}
