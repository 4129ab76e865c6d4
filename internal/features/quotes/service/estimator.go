package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/quotes/domain"
	"shipping-orchestrator/internal/features/quotes/ports"

	"go.uber.org/zap"
)

// rateTier is one row of the distance-tiered rate table.
type rateTier struct {
	name       string
	maxKm      float64
	baseRate   float64
	perKgRate  float64
	extraDays  int
}

// rateTiers is the five-tier table: local through long-distance.
// maxKm of 0 marks the open-ended last tier.
var rateTiers = []rateTier{
	{name: "local", maxKm: 100, baseRate: 8.0, perKgRate: 0.40, extraDays: 0},
	{name: "regional", maxKm: 500, baseRate: 14.0, perKgRate: 0.55, extraDays: 1},
	{name: "zonal", maxKm: 1000, baseRate: 22.0, perKgRate: 0.70, extraDays: 2},
	{name: "national", maxKm: 2000, baseRate: 35.0, perKgRate: 0.85, extraDays: 3},
	{name: "long_distance", maxKm: 0, baseRate: 55.0, perKgRate: 1.10, extraDays: 5},
}

// costSpread is the ±15% band around the midpoint cost.
const costSpread = 0.15

// Estimator computes Phase-1 quick estimates. Side-effect free: no
// carrier is contacted and no state is mutated, so it is safe to call
// unboundedly.
type Estimator struct {
	routing ports.RoutingProvider
	logger  *zap.Logger
}

// NewEstimator creates a new Estimator.
func NewEstimator(routing ports.RoutingProvider) *Estimator {
	return &Estimator{
		routing: routing,
		logger:  logger.Named("estimator"),
	}
}

// Estimate produces a cost range, delivery-day estimate and confidence
// score for the request without contacting any carrier.
func (e *Estimator) Estimate(ctx context.Context, req domain.ShippingRequest) (*domain.Estimate, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: request has no items", domain.ErrValidation)
	}

	route, err := e.routing.GetRoute(ctx, req.Origin, req.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: routing lookup failed: %v", domain.ErrExternalService, err)
	}

	billable := req.BillableWeightKg()
	tier := tierFor(route.DistanceKm)
	cost := tier.baseRate + billable*tier.perKgRate

	confidence := confidenceFor(req, billable)
	days := deliveryDays(route.DurationMinutes, tier)

	e.logger.Debug("Estimate computed",
		zap.String("order_id", req.OrderID),
		zap.String("tier", tier.name),
		zap.Float64("distance_km", route.DistanceKm),
		zap.Float64("billable_kg", billable),
		zap.Float64("cost", cost),
	)

	return &domain.Estimate{
		Cost:             round2(cost),
		CostMin:          round2(cost * (1 - costSpread)),
		CostMax:          round2(cost * (1 + costSpread)),
		Currency:         "USD",
		DistanceKm:       route.DistanceKm,
		BillableWeightKg: billable,
		DeliveryDays:     days,
		Confidence:       confidence,
		Tier:             tier.name,
		RoutingMethod:    route.Method,
		GeneratedAt:      time.Now().UTC(),
	}, nil
}

// tierFor returns the rate tier covering the given distance.
func tierFor(distanceKm float64) rateTier {
	for _, t := range rateTiers {
		if t.maxKm > 0 && distanceKm <= t.maxKm {
			return t
		}
	}
	return rateTiers[len(rateTiers)-1]
}

// confidenceFor derives the confidence score from postal-zone proximity
// and weight tier, clamped to [0.50, 0.95].
func confidenceFor(req domain.ShippingRequest, billableKg float64) float64 {
	confidence := 0.95

	// Differing postal-zone prefixes mean less certainty about the route.
	if !samePostalZone(req.Origin.PostalCode, req.Destination.PostalCode) {
		confidence -= 0.15
	}

	// Heavy shipments price less predictably.
	switch {
	case billableKg > 100:
		confidence -= 0.30
	case billableKg > 30:
		confidence -= 0.15
	case billableKg > 10:
		confidence -= 0.05
	}

	if confidence < 0.50 {
		confidence = 0.50
	}
	return confidence
}

// samePostalZone compares the leading two characters of the postal codes.
func samePostalZone(a, b string) bool {
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	return a[:2] == b[:2]
}

// deliveryDays turns driving time plus tier handling into whole days.
func deliveryDays(durationMinutes float64, tier rateTier) int {
	days := 1 + tier.extraDays
	// Anything over a working day of driving adds a day.
	if durationMinutes > 480 {
		days++
	}
	return days
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
