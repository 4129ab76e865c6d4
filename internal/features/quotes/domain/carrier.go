package domain

import "time"

// CarrierMode distinguishes how a carrier receives work.
type CarrierMode string

const (
	// CarrierModePush means the system actively solicits quotes via the
	// carrier's API.
	CarrierModePush CarrierMode = "push"
	// CarrierModePull means the carrier claims queued orders through its
	// own portal.
	CarrierModePull CarrierMode = "pull"
)

// Carrier is a shipping provider the orchestrator can assign orders to.
type Carrier struct {
	// ID is the unique carrier identifier.
	ID string `json:"id"`
	// Name is the carrier display name.
	Name string `json:"name"`
	// Mode is push or pull.
	Mode CarrierMode `json:"mode"`
	// Active gates whether the carrier participates at all.
	Active bool `json:"active"`
	// BaseURL is the quote API endpoint for push carriers.
	BaseURL string `json:"base_url,omitempty"`
	// MaxWeightKg is the carrier's hard per-shipment weight ceiling.
	MaxWeightKg float64 `json:"max_weight_kg"`
	// ColdChainCapable indicates refrigerated-transport support.
	ColdChainCapable bool `json:"cold_chain_capable"`
	// MaxCapacity is the carrier's concurrent-assignment ceiling.
	MaxCapacity int64 `json:"max_capacity"`
	// Reliability is the static reliability score in [0,1] used by the
	// selection engine.
	Reliability float64 `json:"reliability"`
}

// AssignmentState is the lifecycle of an order-to-quote binding.
type AssignmentState string

const (
	AssignmentPending  AssignmentState = "pending"
	AssignmentAccepted AssignmentState = "accepted"
	AssignmentExpired  AssignmentState = "expired"
	AssignmentRejected AssignmentState = "rejected"
	AssignmentBusy     AssignmentState = "busy"
)

// Assignment binds an order to a winning quote. The retry driver re-drives
// assignments stuck in expired, rejected or busy states.
type Assignment struct {
	// ID is the unique assignment identifier.
	ID string `json:"id"`
	// OrderID is the bound order.
	OrderID string `json:"order_id"`
	// QuoteID is the winning quote.
	QuoteID string `json:"quote_id"`
	// CarrierID is the winning carrier.
	CarrierID string `json:"carrier_id"`
	// State is the assignment lifecycle state.
	State AssignmentState `json:"state"`
	// ValidUntil is when a still-pending assignment is considered expired.
	ValidUntil time.Time `json:"valid_until"`
	// Attempts counts how many times this order has been (re)solicited.
	Attempts int `json:"attempts"`
	// UpdatedAt is the last state transition time.
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderStatus is the order lifecycle slice the orchestrator touches.
type OrderStatus string

const (
	OrderStatusQuoting        OrderStatus = "quoting"
	OrderStatusCarrierChosen  OrderStatus = "carrier_chosen"
	OrderStatusManualQueue    OrderStatus = "manual_queue"
	OrderStatusShippingFailed OrderStatus = "shipping_failed"
)
