package ports

import (
	"context"

	"shipping-orchestrator/internal/features/quotes/domain"
)

// RoutingProvider resolves road distance and duration between two points.
type RoutingProvider interface {
	// GetRoute returns distance, duration and the method used.
	GetRoute(ctx context.Context, origin, destination domain.Coordinates) (*domain.RouteInfo, error)
}

// CarrierGateway solicits a real quote from a push-mode carrier.
// Implementations must honor ctx cancellation for the caller's per-call
// deadline; the underlying call itself is not force-cancelled.
type CarrierGateway interface {
	// RequestQuote asks the carrier for an offer. A business refusal is
	// returned as (*Rejection, nil); transport failures as an error.
	RequestQuote(ctx context.Context, carrier domain.Carrier, req domain.ShippingRequest) (*domain.Quote, *domain.Rejection, error)
}

// ValidationPolicy applies per-carrier acceptance rules before any
// network call is made.
type ValidationPolicy interface {
	// Evaluate returns a rejection when the carrier cannot take the
	// shipment, or nil when it may be solicited.
	Evaluate(carrier domain.Carrier, req domain.ShippingRequest) *domain.Rejection
}

// Selector ranks accepted quotes and picks a winner.
type Selector interface {
	// Rank orders quotes best-first and names the reason for the top pick.
	Rank(quotes []domain.Quote) ([]domain.Quote, domain.SelectionReason)
}

// CarrierRepository reads carrier records.
type CarrierRepository interface {
	// ListActive returns all active carriers.
	ListActive(ctx context.Context) ([]domain.Carrier, error)
	// Get returns one carrier by ID.
	Get(ctx context.Context, carrierID string) (*domain.Carrier, error)
}

// QuoteRepository persists carrier offers.
type QuoteRepository interface {
	// Save stores a quote.
	Save(ctx context.Context, quote *domain.Quote) error
	// Get returns one quote for an order.
	Get(ctx context.Context, orderID, quoteID string) (*domain.Quote, error)
	// ListByOrder returns all quotes recorded for an order.
	ListByOrder(ctx context.Context, orderID string) ([]domain.Quote, error)
	// MarkSelected flips Selected on the given quote and clears it on
	// every other quote of the order.
	MarkSelected(ctx context.Context, orderID, quoteID string) error
}

// RejectionRepository appends refusal audit records.
type RejectionRepository interface {
	// Append records a rejection.
	Append(ctx context.Context, rejection *domain.Rejection) error
	// ListByOrder returns all rejections recorded for an order.
	ListByOrder(ctx context.Context, orderID string) ([]domain.Rejection, error)
}

// AssignmentRepository persists order-to-quote bindings.
type AssignmentRepository interface {
	// Save stores an assignment.
	Save(ctx context.Context, assignment *domain.Assignment) error
	// Get returns the assignment for an order, or nil when absent.
	Get(ctx context.Context, orderID string) (*domain.Assignment, error)
	// ListByStates returns assignments in any of the given states.
	ListByStates(ctx context.Context, states ...domain.AssignmentState) ([]domain.Assignment, error)
}

// OrderStore is the generic order read-write collaborator.
type OrderStore interface {
	// SaveShippingRequest records the shipment input for later re-drives.
	SaveShippingRequest(ctx context.Context, req *domain.ShippingRequest) error
	// UpdateStatus moves the order to the given status.
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	// GetStatus returns the order's current status.
	GetStatus(ctx context.Context, orderID string) (domain.OrderStatus, error)
	// GetShippingRequest rebuilds the shipment input (addresses + items)
	// for an order, used when re-driving stuck assignments.
	GetShippingRequest(ctx context.Context, orderID string) (*domain.ShippingRequest, error)
}
