package adapters

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/quotes/domain"
	"shipping-orchestrator/internal/features/quotes/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SimulatedCarrierGateway produces synthetic quotes for carriers without
// a real quote API. Pricing follows the carrier's reliability (better
// carriers price higher) with bounded jitter from an injectable source,
// so development and load testing run without live carrier accounts.
type SimulatedCarrierGateway struct {
	mu            sync.Mutex
	rng           *rand.Rand
	quoteValidity time.Duration
	logger        *zap.Logger
}

// NewSimulatedCarrierGateway creates a SimulatedCarrierGateway seeded
// for reproducibility.
func NewSimulatedCarrierGateway(seed int64, quoteValidity time.Duration) *SimulatedCarrierGateway {
	return &SimulatedCarrierGateway{
		rng:           rand.New(rand.NewSource(seed)),
		quoteValidity: quoteValidity,
		logger:        logger.Named("sim_gateway"),
	}
}

// RequestQuote synthesizes an offer for the carrier.
func (g *SimulatedCarrierGateway) RequestQuote(ctx context.Context, carrier domain.Carrier, req domain.ShippingRequest) (*domain.Quote, *domain.Rejection, error) {
	g.mu.Lock()
	jitter := 0.9 + g.rng.Float64()*0.2
	latency := time.Duration(50+g.rng.Intn(200)) * time.Millisecond
	days := 1 + g.rng.Intn(4)
	g.mu.Unlock()

	// Simulated network latency, honoring the caller's deadline.
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("simulated carrier %s: %w", carrier.ID, ctx.Err())
	}

	billable := req.BillableWeightKg()
	base := 10.0 + 20.0*carrier.Reliability
	perKg := 0.6 * jitter
	price := (base + billable*perKg) * jitter

	g.logger.Debug("Simulated quote produced",
		zap.String("carrier_id", carrier.ID),
		zap.Float64("price", price),
		zap.Int("delivery_days", days),
	)

	return &domain.Quote{
		ID:           uuid.NewString(),
		OrderID:      req.OrderID,
		CarrierID:    carrier.ID,
		CarrierName:  carrier.Name,
		Price:        float64(int(price*100)) / 100,
		Currency:     "USD",
		DeliveryDays: days,
		ServiceTier:  req.ServiceTier,
		ValidUntil:   time.Now().UTC().Add(g.quoteValidity),
		PriceBreakdown: map[string]float64{
			"base":   base,
			"per_kg": billable * perKg,
		},
		CreatedAt: time.Now().UTC(),
	}, nil, nil
}

// CompositeCarrierGateway routes each carrier to its real HTTP quote API
// when one is configured, and to the simulator otherwise.
type CompositeCarrierGateway struct {
	rest ports.CarrierGateway
	sim  ports.CarrierGateway
}

// NewCompositeCarrierGateway creates a CompositeCarrierGateway.
func NewCompositeCarrierGateway(rest, sim ports.CarrierGateway) *CompositeCarrierGateway {
	return &CompositeCarrierGateway{rest: rest, sim: sim}
}

// RequestQuote dispatches on the carrier's BaseURL.
func (g *CompositeCarrierGateway) RequestQuote(ctx context.Context, carrier domain.Carrier, req domain.ShippingRequest) (*domain.Quote, *domain.Rejection, error) {
	if carrier.BaseURL != "" {
		return g.rest.RequestQuote(ctx, carrier, req)
	}
	return g.sim.RequestQuote(ctx, carrier, req)
}
