package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"shipping-orchestrator/internal/core/logger"
	guarddomain "shipping-orchestrator/internal/features/guards/domain"
	"shipping-orchestrator/internal/features/quotes/domain"
	"shipping-orchestrator/internal/features/quotes/selection"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory collaborators ---

type memLockStore struct {
	mu    sync.Mutex
	locks map[string]*guarddomain.ShippingLock
}

func newMemLockStore() *memLockStore {
	return &memLockStore{locks: make(map[string]*guarddomain.ShippingLock)}
}

func (s *memLockStore) Acquire(_ context.Context, orderID, holder string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[orderID]; held {
		return false, nil
	}
	s.locks[orderID] = &guarddomain.ShippingLock{OrderID: orderID, Holder: holder, AcquiredAt: time.Now()}
	return true, nil
}

func (s *memLockStore) Release(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, orderID)
	return nil
}

func (s *memLockStore) Get(_ context.Context, orderID string) (*guarddomain.ShippingLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks[orderID], nil
}

func (s *memLockStore) SweepStale(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}

type memCapacityStore struct {
	mu    sync.Mutex
	loads map[string]int64
}

func newMemCapacityStore() *memCapacityStore {
	return &memCapacityStore{loads: make(map[string]int64)}
}

func (s *memCapacityStore) Reserve(_ context.Context, carrierID string, max int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loads[carrierID] >= max {
		return false, nil
	}
	s.loads[carrierID]++
	return true, nil
}

func (s *memCapacityStore) Free(_ context.Context, carrierID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loads[carrierID] > 0 {
		s.loads[carrierID]--
	}
	return nil
}

func (s *memCapacityStore) Load(_ context.Context, carrierID string, max int64) (*guarddomain.CapacityCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &guarddomain.CapacityCounter{CarrierID: carrierID, CurrentLoad: s.loads[carrierID], MaxCapacity: max}, nil
}

type memIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*guarddomain.CachedResult
	checks  int
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{records: make(map[string]*guarddomain.CachedResult)}
}

func (s *memIdempotencyStore) Check(_ context.Context, key string) (*guarddomain.CachedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	return s.records[key], nil
}

func (s *memIdempotencyStore) Store(_ context.Context, key string, payload []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = &guarddomain.CachedResult{Payload: payload, CachedAt: time.Now()}
	return nil
}

type stubCarrierRepo struct {
	carriers []domain.Carrier
}

func (r *stubCarrierRepo) ListActive(_ context.Context) ([]domain.Carrier, error) {
	return r.carriers, nil
}

func (r *stubCarrierRepo) Get(_ context.Context, carrierID string) (*domain.Carrier, error) {
	for i := range r.carriers {
		if r.carriers[i].ID == carrierID {
			return &r.carriers[i], nil
		}
	}
	return nil, fmt.Errorf("carrier not found: %s", carrierID)
}

// fakeGateway answers per carrier ID: a quote factory, a rejection, an
// error, or a hang until context expiry.
type fakeGateway struct {
	mu        sync.Mutex
	quotes    map[string]domain.Quote
	reject    map[string]domain.Rejection
	fail      map[string]error
	hang      map[string]bool
	callCount map[string]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		quotes:    make(map[string]domain.Quote),
		reject:    make(map[string]domain.Rejection),
		fail:      make(map[string]error),
		hang:      make(map[string]bool),
		callCount: make(map[string]int),
	}
}

func (g *fakeGateway) calls(carrierID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.callCount[carrierID]
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.callCount {
		total += n
	}
	return total
}

func (g *fakeGateway) RequestQuote(ctx context.Context, carrier domain.Carrier, req domain.ShippingRequest) (*domain.Quote, *domain.Rejection, error) {
	g.mu.Lock()
	g.callCount[carrier.ID]++
	hang := g.hang[carrier.ID]
	err := g.fail[carrier.ID]
	rejection, hasRejection := g.reject[carrier.ID]
	quote, hasQuote := g.quotes[carrier.ID]
	g.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	if err != nil {
		return nil, nil, err
	}
	if hasRejection {
		r := rejection
		r.OrderID = req.OrderID
		r.CarrierID = carrier.ID
		r.RecordedAt = time.Now()
		return nil, &r, nil
	}
	if hasQuote {
		q := quote
		q.ID = uuid.NewString()
		q.OrderID = req.OrderID
		q.CarrierID = carrier.ID
		q.CarrierName = carrier.Name
		q.ValidUntil = time.Now().Add(24 * time.Hour)
		q.CreatedAt = time.Now()
		return &q, nil, nil
	}
	return nil, nil, fmt.Errorf("no script for carrier %s", carrier.ID)
}

type allowAllPolicy struct{}

func (allowAllPolicy) Evaluate(_ domain.Carrier, _ domain.ShippingRequest) *domain.Rejection {
	return nil
}

type memQuoteRepo struct {
	mu     sync.Mutex
	quotes map[string]map[string]*domain.Quote
}

func newMemQuoteRepo() *memQuoteRepo {
	return &memQuoteRepo{quotes: make(map[string]map[string]*domain.Quote)}
}

func (r *memQuoteRepo) Save(_ context.Context, quote *domain.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quotes[quote.OrderID] == nil {
		r.quotes[quote.OrderID] = make(map[string]*domain.Quote)
	}
	copied := *quote
	r.quotes[quote.OrderID][quote.ID] = &copied
	return nil
}

func (r *memQuoteRepo) Get(_ context.Context, orderID, quoteID string) (*domain.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.quotes[orderID][quoteID]; ok {
		copied := *q
		return &copied, nil
	}
	return nil, fmt.Errorf("quote not found: %s", quoteID)
}

func (r *memQuoteRepo) ListByOrder(_ context.Context, orderID string) ([]domain.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Quote
	for _, q := range r.quotes[orderID] {
		out = append(out, *q)
	}
	return out, nil
}

func (r *memQuoteRepo) MarkSelected(_ context.Context, orderID, quoteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.quotes[orderID][quoteID]; !ok {
		return fmt.Errorf("quote not found: %s", quoteID)
	}
	for id, q := range r.quotes[orderID] {
		q.Selected = id == quoteID
	}
	return nil
}

func (r *memQuoteRepo) selectedCount(orderID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, q := range r.quotes[orderID] {
		if q.Selected {
			n++
		}
	}
	return n
}

type memRejectionRepo struct {
	mu         sync.Mutex
	rejections map[string][]domain.Rejection
}

func newMemRejectionRepo() *memRejectionRepo {
	return &memRejectionRepo{rejections: make(map[string][]domain.Rejection)}
}

func (r *memRejectionRepo) Append(_ context.Context, rejection *domain.Rejection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections[rejection.OrderID] = append(r.rejections[rejection.OrderID], *rejection)
	return nil
}

func (r *memRejectionRepo) ListByOrder(_ context.Context, orderID string) ([]domain.Rejection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejections[orderID], nil
}

type memAssignmentRepo struct {
	mu          sync.Mutex
	assignments map[string]*domain.Assignment
}

func newMemAssignmentRepo() *memAssignmentRepo {
	return &memAssignmentRepo{assignments: make(map[string]*domain.Assignment)}
}

func (r *memAssignmentRepo) Save(_ context.Context, assignment *domain.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *assignment
	r.assignments[assignment.OrderID] = &copied
	return nil
}

func (r *memAssignmentRepo) Get(_ context.Context, orderID string) (*domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.assignments[orderID]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (r *memAssignmentRepo) ListByStates(_ context.Context, states ...domain.AssignmentState) ([]domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[domain.AssignmentState]bool, len(states))
	for _, s := range states {
		wanted[s] = true
	}
	var out []domain.Assignment
	for _, a := range r.assignments {
		if wanted[a.State] {
			out = append(out, *a)
		}
	}
	return out, nil
}

type memOrderStore struct {
	mu       sync.Mutex
	statuses map[string]domain.OrderStatus
	requests map[string]*domain.ShippingRequest
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{
		statuses: make(map[string]domain.OrderStatus),
		requests: make(map[string]*domain.ShippingRequest),
	}
}

func (s *memOrderStore) SaveShippingRequest(_ context.Context, req *domain.ShippingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *req
	s.requests[req.OrderID] = &copied
	return nil
}

func (s *memOrderStore) UpdateStatus(_ context.Context, orderID string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[orderID] = status
	return nil
}

func (s *memOrderStore) GetStatus(_ context.Context, orderID string) (domain.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[orderID], nil
}

func (s *memOrderStore) GetShippingRequest(_ context.Context, orderID string) (*domain.ShippingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.requests[orderID]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, fmt.Errorf("%w: shipping request for order %s", domain.ErrNotFound, orderID)
}

// --- fixture ---

type orchestratorFixture struct {
	locks       *memLockStore
	capacity    *memCapacityStore
	idempotency *memIdempotencyStore
	carriers    *stubCarrierRepo
	gateway     *fakeGateway
	quotes      *memQuoteRepo
	rejections  *memRejectionRepo
	assignments *memAssignmentRepo
	orders      *memOrderStore
	orch        *Orchestrator
}

func newFixture(t *testing.T, carriers []domain.Carrier, cfg OrchestratorConfig) *orchestratorFixture {
	t.Helper()
	logger.Init("development", "error")

	if cfg.QuoteTimeout == 0 {
		cfg.QuoteTimeout = 200 * time.Millisecond
	}
	if cfg.IdempotencyTTL == 0 {
		cfg.IdempotencyTTL = time.Hour
	}
	if cfg.QuoteValidity == 0 {
		cfg.QuoteValidity = 24 * time.Hour
	}

	f := &orchestratorFixture{
		locks:       newMemLockStore(),
		capacity:    newMemCapacityStore(),
		idempotency: newMemIdempotencyStore(),
		carriers:    &stubCarrierRepo{carriers: carriers},
		gateway:     newFakeGateway(),
		quotes:      newMemQuoteRepo(),
		rejections:  newMemRejectionRepo(),
		assignments: newMemAssignmentRepo(),
		orders:      newMemOrderStore(),
	}

	reliability := make(map[string]float64, len(carriers))
	for _, c := range carriers {
		reliability[c.ID] = c.Reliability
	}

	f.orch = NewOrchestrator(
		f.locks, f.capacity, f.idempotency,
		f.carriers, f.gateway, allowAllPolicy{},
		selection.NewEngine(selection.DefaultWeights, reliability),
		f.quotes, f.rejections, f.assignments, f.orders,
		cfg,
	)
	return f
}

func pushCarrier(id string, reliability float64) domain.Carrier {
	return domain.Carrier{
		ID: id, Name: id, Mode: domain.CarrierModePush, Active: true,
		MaxCapacity: 10, Reliability: reliability,
	}
}

func solicitRequest() domain.ShippingRequest {
	return domain.ShippingRequest{
		OrderID: "ord-1",
		Items:   []domain.Item{{WeightKg: 5}},
	}
}

// --- tests ---

func TestOrchestrator_SelectsBestQuote(t *testing.T) {
	f := newFixture(t, []domain.Carrier{
		pushCarrier("cheap", 0.80),
		pushCarrier("fast", 0.80),
	}, OrchestratorConfig{MinQuotes: 1})

	f.gateway.quotes["cheap"] = domain.Quote{Price: 100, DeliveryDays: 2}
	f.gateway.quotes["fast"] = domain.Quote{Price: 120, DeliveryDays: 1}

	result, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	require.NoError(t, err)

	require.Len(t, result.AcceptedQuotes, 2)
	assert.Equal(t, "cheap", result.AcceptedQuotes[0].CarrierID)
	assert.Equal(t, result.AcceptedQuotes[0].ID, result.SelectedQuoteID)
	assert.Equal(t, domain.SelectionBestPrice, result.SelectionReason)
	assert.False(t, result.QueuedForManual)
	assert.False(t, result.Cached)

	// Winner's capacity is reserved, lock is released, status advanced.
	snap, _ := f.capacity.Load(context.Background(), "cheap", 10)
	assert.Equal(t, int64(1), snap.CurrentLoad)

	lock, _ := f.locks.Get(context.Background(), "ord-1")
	assert.Nil(t, lock)

	status, _ := f.orders.GetStatus(context.Background(), "ord-1")
	assert.Equal(t, domain.OrderStatusCarrierChosen, status)

	// One selected quote, an assignment in pending state.
	assert.Equal(t, 1, f.quotes.selectedCount("ord-1"))
	assignment, _ := f.assignments.Get(context.Background(), "ord-1")
	require.NotNil(t, assignment)
	assert.Equal(t, domain.AssignmentPending, assignment.State)
	assert.Equal(t, "cheap", assignment.CarrierID)
	assert.Equal(t, 1, assignment.Attempts)
}

func TestOrchestrator_IdempotentReplay(t *testing.T) {
	f := newFixture(t, []domain.Carrier{pushCarrier("solo", 0.80)}, OrchestratorConfig{MinQuotes: 1})
	f.gateway.quotes["solo"] = domain.Quote{Price: 50, DeliveryDays: 2}

	first, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-replay")
	require.NoError(t, err)
	callsAfterFirst := f.gateway.totalCalls()

	second, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-replay")
	require.NoError(t, err)

	// Replay: identical payload, no new carrier calls, flagged cached.
	assert.True(t, second.Cached)
	assert.Equal(t, first.SelectedQuoteID, second.SelectedQuoteID)
	assert.Equal(t, callsAfterFirst, f.gateway.totalCalls())
}

func TestOrchestrator_MissingIdempotencyKeyProceeds(t *testing.T) {
	f := newFixture(t, []domain.Carrier{pushCarrier("solo", 0.80)}, OrchestratorConfig{MinQuotes: 1})
	f.gateway.quotes["solo"] = domain.Quote{Price: 50, DeliveryDays: 2}

	result, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.SelectedQuoteID)

	// Without a key nothing is cached and a repeat run calls out again.
	calls := f.gateway.totalCalls()
	_, err = f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "")
	require.NoError(t, err)
	assert.Greater(t, f.gateway.totalCalls(), calls)
}

func TestOrchestrator_LockConflict(t *testing.T) {
	f := newFixture(t, []domain.Carrier{pushCarrier("solo", 0.80)}, OrchestratorConfig{MinQuotes: 1})
	f.gateway.quotes["solo"] = domain.Quote{Price: 50, DeliveryDays: 2}

	acquired, err := f.locks.Acquire(context.Background(), "ord-1", "someone-else")
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 0, f.gateway.totalCalls())
}

func TestOrchestrator_SlowCarrierDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, []domain.Carrier{
		pushCarrier("prompt", 0.80),
		pushCarrier("stuck", 0.80),
	}, OrchestratorConfig{MinQuotes: 1, QuoteTimeout: 100 * time.Millisecond})

	f.gateway.quotes["prompt"] = domain.Quote{Price: 80, DeliveryDays: 2}
	f.gateway.hang["stuck"] = true

	start := time.Now()
	result, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	require.NoError(t, err)

	// The run is bounded by the per-carrier timeout, not the hang.
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, result.AcceptedQuotes, 1)
	assert.Equal(t, "prompt", result.AcceptedQuotes[0].CarrierID)

	var timeoutRejection *domain.Rejection
	for i := range result.RejectedCarriers {
		if result.RejectedCarriers[i].CarrierID == "stuck" {
			timeoutRejection = &result.RejectedCarriers[i]
		}
	}
	require.NotNil(t, timeoutRejection)
	assert.Equal(t, domain.ReasonTimeout, timeoutRejection.Reason)
}

func TestOrchestrator_CapacityFallback(t *testing.T) {
	best := pushCarrier("best", 0.90)
	best.MaxCapacity = 1
	f := newFixture(t, []domain.Carrier{best, pushCarrier("backup", 0.80)},
		OrchestratorConfig{MinQuotes: 1})

	f.gateway.quotes["best"] = domain.Quote{Price: 50, DeliveryDays: 1}
	f.gateway.quotes["backup"] = domain.Quote{Price: 90, DeliveryDays: 3}

	// Fill the best carrier before the run.
	reserved, err := f.capacity.Reserve(context.Background(), "best", 1)
	require.NoError(t, err)
	require.True(t, reserved)

	result, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	require.NoError(t, err)

	// The ranked winner was full; the next quote is selected.
	winner, err := f.quotes.Get(context.Background(), "ord-1", result.SelectedQuoteID)
	require.NoError(t, err)
	assert.Equal(t, "backup", winner.CarrierID)
	assert.Equal(t, domain.SelectionBestBalance, result.SelectionReason)

	snap, _ := f.capacity.Load(context.Background(), "backup", 10)
	assert.Equal(t, int64(1), snap.CurrentLoad)
}

func TestOrchestrator_AllCarriersFullQueuesManual(t *testing.T) {
	solo := pushCarrier("solo", 0.80)
	solo.MaxCapacity = 1
	f := newFixture(t, []domain.Carrier{solo}, OrchestratorConfig{MinQuotes: 1})
	f.gateway.quotes["solo"] = domain.Quote{Price: 50, DeliveryDays: 2}

	reserved, err := f.capacity.Reserve(context.Background(), "solo", 1)
	require.NoError(t, err)
	require.True(t, reserved)

	result, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	require.NoError(t, err)
	assert.True(t, result.QueuedForManual)
	assert.Empty(t, result.SelectedQuoteID)

	status, _ := f.orders.GetStatus(context.Background(), "ord-1")
	assert.Equal(t, domain.OrderStatusManualQueue, status)
}

func TestOrchestrator_RetryPassOnTransientFailure(t *testing.T) {
	f := newFixture(t, []domain.Carrier{
		pushCarrier("reliable", 0.80),
		pushCarrier("flaky", 0.80),
	}, OrchestratorConfig{MinQuotes: 2})

	f.gateway.quotes["reliable"] = domain.Quote{Price: 70, DeliveryDays: 2}
	f.gateway.fail["flaky"] = fmt.Errorf("connection reset")

	_, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	require.NoError(t, err)

	// Below MinQuotes triggers exactly one extra pass at the flaky
	// carrier; the reliable one is not re-called.
	assert.Equal(t, 2, f.gateway.calls("flaky"))
	assert.Equal(t, 1, f.gateway.calls("reliable"))
}

func TestOrchestrator_BusinessRejectionNotRetried(t *testing.T) {
	f := newFixture(t, []domain.Carrier{
		pushCarrier("reliable", 0.80),
		pushCarrier("refusing", 0.80),
	}, OrchestratorConfig{MinQuotes: 2})

	f.gateway.quotes["reliable"] = domain.Quote{Price: 70, DeliveryDays: 2}
	f.gateway.reject["refusing"] = domain.Rejection{Reason: domain.ReasonNoColdStorage}

	_, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	require.NoError(t, err)

	// A business refusal is final: one call only.
	assert.Equal(t, 1, f.gateway.calls("refusing"))
}

func TestOrchestrator_NoQuotesQueuesManual(t *testing.T) {
	pull := domain.Carrier{ID: "portal", Name: "Portal Pool", Mode: domain.CarrierModePull, Active: true}
	f := newFixture(t, []domain.Carrier{pushCarrier("down", 0.80), pull},
		OrchestratorConfig{MinQuotes: 1})
	f.gateway.fail["down"] = fmt.Errorf("unreachable")

	result, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	require.NoError(t, err)

	assert.True(t, result.QueuedForManual)
	assert.Equal(t, []string{"Portal Pool"}, result.PullCarriers)
	assert.Empty(t, result.AcceptedQuotes)
}

func TestOrchestrator_OnlyPullCarriers(t *testing.T) {
	pull := domain.Carrier{ID: "portal", Name: "Portal Pool", Mode: domain.CarrierModePull, Active: true}
	f := newFixture(t, []domain.Carrier{pull}, OrchestratorConfig{MinQuotes: 1})

	result, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	require.NoError(t, err)
	assert.True(t, result.QueuedForManual)
	assert.Equal(t, 0, f.gateway.totalCalls())
}

func TestOrchestrator_NoActiveCarriers(t *testing.T) {
	f := newFixture(t, nil, OrchestratorConfig{MinQuotes: 1})

	_, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "key-1")
	assert.ErrorIs(t, err, domain.ErrBusinessLogic)
}

func TestOrchestrator_Validation(t *testing.T) {
	f := newFixture(t, []domain.Carrier{pushCarrier("solo", 0.80)}, OrchestratorConfig{MinQuotes: 1})

	_, err := f.orch.GetRealShippingQuotes(context.Background(), domain.ShippingRequest{}, "key-1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.orch.GetRealShippingQuotes(context.Background(),
		domain.ShippingRequest{OrderID: "ord-1"}, "key-1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOrchestrator_Resolicit_ExcludesCarrier(t *testing.T) {
	f := newFixture(t, []domain.Carrier{
		pushCarrier("failed", 0.80),
		pushCarrier("fresh", 0.80),
	}, OrchestratorConfig{MinQuotes: 1})

	f.gateway.quotes["failed"] = domain.Quote{Price: 50, DeliveryDays: 1}
	f.gateway.quotes["fresh"] = domain.Quote{Price: 90, DeliveryDays: 3}

	result, err := f.orch.Resolicit(context.Background(), solicitRequest(), "failed")
	require.NoError(t, err)

	assert.Equal(t, 0, f.gateway.calls("failed"))
	require.Len(t, result.AcceptedQuotes, 1)
	assert.Equal(t, "fresh", result.AcceptedQuotes[0].CarrierID)
}

func TestOrchestrator_ReofferCarrier_SingleTarget(t *testing.T) {
	f := newFixture(t, []domain.Carrier{
		pushCarrier("busy", 0.80),
		pushCarrier("other", 0.80),
	}, OrchestratorConfig{MinQuotes: 1})

	f.gateway.quotes["busy"] = domain.Quote{Price: 60, DeliveryDays: 2}
	f.gateway.quotes["other"] = domain.Quote{Price: 40, DeliveryDays: 1}

	result, err := f.orch.ReofferCarrier(context.Background(), solicitRequest(), "busy")
	require.NoError(t, err)

	assert.Equal(t, 1, f.gateway.calls("busy"))
	assert.Equal(t, 0, f.gateway.calls("other"))
	require.Len(t, result.AcceptedQuotes, 1)
	assert.Equal(t, "busy", result.AcceptedQuotes[0].CarrierID)
}

func TestOrchestrator_SelectQuote(t *testing.T) {
	f := newFixture(t, []domain.Carrier{pushCarrier("solo", 0.80)}, OrchestratorConfig{MinQuotes: 1})

	quote := &domain.Quote{
		ID: "q-manual", OrderID: "ord-1", CarrierID: "solo",
		Price: 42, ValidUntil: time.Now().Add(time.Hour),
	}
	require.NoError(t, f.quotes.Save(context.Background(), quote))

	selected, err := f.orch.SelectQuote(context.Background(), "q-manual", "ord-1")
	require.NoError(t, err)
	assert.True(t, selected.Selected)

	snap, _ := f.capacity.Load(context.Background(), "solo", 10)
	assert.Equal(t, int64(1), snap.CurrentLoad)

	status, _ := f.orders.GetStatus(context.Background(), "ord-1")
	assert.Equal(t, domain.OrderStatusCarrierChosen, status)
}

func TestOrchestrator_SelectQuote_Expired(t *testing.T) {
	f := newFixture(t, []domain.Carrier{pushCarrier("solo", 0.80)}, OrchestratorConfig{MinQuotes: 1})

	quote := &domain.Quote{
		ID: "q-old", OrderID: "ord-1", CarrierID: "solo",
		ValidUntil: time.Now().Add(-time.Minute),
	}
	require.NoError(t, f.quotes.Save(context.Background(), quote))

	_, err := f.orch.SelectQuote(context.Background(), "q-old", "ord-1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOrchestrator_SelectQuote_CarrierFull(t *testing.T) {
	solo := pushCarrier("solo", 0.80)
	solo.MaxCapacity = 1
	f := newFixture(t, []domain.Carrier{solo}, OrchestratorConfig{MinQuotes: 1})

	reserved, err := f.capacity.Reserve(context.Background(), "solo", 1)
	require.NoError(t, err)
	require.True(t, reserved)

	quote := &domain.Quote{
		ID: "q-1", OrderID: "ord-1", CarrierID: "solo",
		ValidUntil: time.Now().Add(time.Hour),
	}
	require.NoError(t, f.quotes.Save(context.Background(), quote))

	_, err = f.orch.SelectQuote(context.Background(), "q-1", "ord-1")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestOrchestrator_SecondAttemptIncrementsCounter(t *testing.T) {
	f := newFixture(t, []domain.Carrier{
		pushCarrier("a", 0.80),
		pushCarrier("b", 0.80),
	}, OrchestratorConfig{MinQuotes: 1})

	f.gateway.quotes["a"] = domain.Quote{Price: 50, DeliveryDays: 1}
	f.gateway.quotes["b"] = domain.Quote{Price: 70, DeliveryDays: 2}

	_, err := f.orch.GetRealShippingQuotes(context.Background(), solicitRequest(), "")
	require.NoError(t, err)

	_, err = f.orch.Resolicit(context.Background(), solicitRequest(), "a")
	require.NoError(t, err)

	assignment, _ := f.assignments.Get(context.Background(), "ord-1")
	require.NotNil(t, assignment)
	assert.Equal(t, 2, assignment.Attempts)
	assert.Equal(t, "b", assignment.CarrierID)
}
