package domain

import "time"

// RejectionReason is the closed set of reason codes a carrier refusal
// can carry.
type RejectionReason string

const (
	ReasonWeightExceeded      RejectionReason = "weight_exceeded"
	ReasonNoColdStorage       RejectionReason = "no_cold_storage"
	ReasonRouteNotServiceable RejectionReason = "route_not_serviceable"
	ReasonAtCapacity          RejectionReason = "at_capacity"
	ReasonAPIError            RejectionReason = "api_error"
	ReasonTimeout             RejectionReason = "timeout"
)

// Quote is a carrier's accepted offer for an order. Immutable once
// created, except for the Selected flag. Exactly one quote per order
// carries Selected=true at any time.
type Quote struct {
	// ID is the unique quote identifier.
	ID string `json:"id"`
	// OrderID is the order this offer applies to.
	OrderID string `json:"order_id"`
	// CarrierID identifies the offering carrier.
	CarrierID string `json:"carrier_id"`
	// CarrierName is the display name of the carrier.
	CarrierName string `json:"carrier_name"`
	// Price is the offered price.
	Price float64 `json:"price"`
	// Currency is the ISO 4217 currency code.
	Currency string `json:"currency"`
	// DeliveryDays is the carrier's delivery-time commitment.
	DeliveryDays int `json:"delivery_days"`
	// ServiceTier is the offered service level.
	ServiceTier string `json:"service_tier"`
	// ValidUntil is the offer's validity deadline.
	ValidUntil time.Time `json:"valid_until"`
	// PriceBreakdown itemizes the price (base, per-kg, surcharges).
	PriceBreakdown map[string]float64 `json:"price_breakdown,omitempty"`
	// Selected marks the winning quote for the order.
	Selected bool `json:"selected"`
	// CreatedAt is when the quote was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// Rejection is a carrier's refusal. Append-only audit record.
type Rejection struct {
	// OrderID is the order the refusal applies to.
	OrderID string `json:"order_id"`
	// CarrierID identifies the refusing carrier.
	CarrierID string `json:"carrier_id"`
	// Reason is the machine-readable refusal code.
	Reason RejectionReason `json:"reason"`
	// Message is the free-text refusal detail.
	Message string `json:"message"`
	// RecordedAt is when the refusal was recorded.
	RecordedAt time.Time `json:"recorded_at"`
}

// SelectionReason explains why the selection engine picked a quote.
type SelectionReason string

const (
	SelectionOnlyOption  SelectionReason = "only_option"
	SelectionBestPrice   SelectionReason = "best_price"
	SelectionBestSpeed   SelectionReason = "best_speed"
	SelectionBestBalance SelectionReason = "best_balance"
)

// QuoteResult is the Phase-2 response exposed to callers.
type QuoteResult struct {
	// OrderID is the order the solicitation ran for.
	OrderID string `json:"order_id"`
	// AcceptedQuotes are the offers obtained, ranked by the selection engine.
	AcceptedQuotes []Quote `json:"accepted_quotes"`
	// RejectedCarriers are the refusals recorded during fan-out.
	RejectedCarriers []Rejection `json:"rejected_carriers"`
	// SelectedQuoteID is the winning quote, when one was chosen.
	SelectedQuoteID string `json:"selected_quote_id,omitempty"`
	// SelectionReason explains the pick.
	SelectionReason SelectionReason `json:"selection_reason,omitempty"`
	// QueuedForManual is true when no push carrier produced a usable
	// quote and the order awaits portal (pull) assignment.
	QueuedForManual bool `json:"queued_for_manual"`
	// PullCarriers lists active pull-mode carriers when queued for manual.
	PullCarriers []string `json:"pull_carriers,omitempty"`
	// Cached is true when the payload was replayed from the idempotency cache.
	Cached bool `json:"cached"`
}
