package policy

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"shipping-orchestrator/internal/features/quotes/domain"
)

// RiskModel produces carrier-scoped simulated refusals. It exists to
// model heterogeneous real-world carrier behavior; a production
// deployment replaces it with contract-driven rules without touching the
// orchestrator.
type RiskModel interface {
	// Assess returns a rejection reason when the carrier would refuse
	// the shipment for route or capacity reasons, or "" to accept.
	Assess(carrier domain.Carrier, req domain.ShippingRequest) (domain.RejectionReason, string)
}

// CarrierRisk holds the per-carrier refusal probabilities.
type CarrierRisk struct {
	// RouteRefusal is the probability of a route_not_serviceable refusal.
	RouteRefusal float64
	// CapacityRefusal is the probability of an at_capacity refusal.
	CapacityRefusal float64
}

// RandomRiskModel is a RiskModel driven by per-carrier probabilities and
// an injectable random source (deterministic in tests).
type RandomRiskModel struct {
	mu       sync.Mutex
	rng      *rand.Rand
	profiles map[string]CarrierRisk
	fallback CarrierRisk
}

// NewRandomRiskModel creates a RandomRiskModel. A nil profiles map means
// every carrier uses the fallback profile.
func NewRandomRiskModel(seed int64, profiles map[string]CarrierRisk, fallback CarrierRisk) *RandomRiskModel {
	return &RandomRiskModel{
		rng:      rand.New(rand.NewSource(seed)),
		profiles: profiles,
		fallback: fallback,
	}
}

// Assess rolls the carrier's route and capacity refusal probabilities.
func (m *RandomRiskModel) Assess(carrier domain.Carrier, req domain.ShippingRequest) (domain.RejectionReason, string) {
	profile, ok := m.profiles[carrier.ID]
	if !ok {
		profile = m.fallback
	}

	m.mu.Lock()
	routeRoll := m.rng.Float64()
	capacityRoll := m.rng.Float64()
	m.mu.Unlock()

	if routeRoll < profile.RouteRefusal {
		return domain.ReasonRouteNotServiceable,
			fmt.Sprintf("%s does not service postal zone %s", carrier.Name, req.Destination.PostalCode)
	}
	if capacityRoll < profile.CapacityRefusal {
		return domain.ReasonAtCapacity,
			fmt.Sprintf("%s reported no available capacity", carrier.Name)
	}
	return "", ""
}

// CarrierPolicy implements ports.ValidationPolicy: deterministic rules
// first, then the carrier-scoped risk model.
type CarrierPolicy struct {
	risk RiskModel
}

// NewCarrierPolicy creates a CarrierPolicy with the given risk model.
func NewCarrierPolicy(risk RiskModel) *CarrierPolicy {
	return &CarrierPolicy{risk: risk}
}

// Evaluate returns a rejection when the carrier cannot take the
// shipment, or nil when it may be solicited.
func (p *CarrierPolicy) Evaluate(carrier domain.Carrier, req domain.ShippingRequest) *domain.Rejection {
	weight := req.TotalWeightKg()
	if carrier.MaxWeightKg > 0 && weight > carrier.MaxWeightKg {
		return p.reject(carrier, req, domain.ReasonWeightExceeded,
			fmt.Sprintf("shipment weight %.1fkg exceeds %s limit of %.1fkg", weight, carrier.Name, carrier.MaxWeightKg))
	}

	if req.NeedsColdChain() && !carrier.ColdChainCapable {
		return p.reject(carrier, req, domain.ReasonNoColdStorage,
			fmt.Sprintf("%s has no cold-chain capability", carrier.Name))
	}

	if p.risk != nil {
		if reason, msg := p.risk.Assess(carrier, req); reason != "" {
			return p.reject(carrier, req, reason, msg)
		}
	}

	return nil
}

func (p *CarrierPolicy) reject(carrier domain.Carrier, req domain.ShippingRequest, reason domain.RejectionReason, msg string) *domain.Rejection {
	return &domain.Rejection{
		OrderID:    req.OrderID,
		CarrierID:  carrier.ID,
		Reason:     reason,
		Message:    msg,
		RecordedAt: time.Now().UTC(),
	}
}
