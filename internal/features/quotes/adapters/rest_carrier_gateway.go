package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"shipping-orchestrator/internal/core/httpclient"
	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/quotes/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RestCarrierGateway solicits quotes from push-mode carriers over HTTP.
// The per-call deadline comes from the caller's context; this gateway
// does not impose its own.
type RestCarrierGateway struct {
	client        *http.Client
	quoteValidity time.Duration
	logger        *zap.Logger
}

// NewRestCarrierGateway creates a new RestCarrierGateway. The client
// carries no Timeout of its own so the caller's context governs.
func NewRestCarrierGateway(proxy httpclient.ProxySettings, quoteValidity time.Duration) *RestCarrierGateway {
	return &RestCarrierGateway{
		client:        httpclient.NewProxiedClient(0, proxy),
		quoteValidity: quoteValidity,
		logger:        logger.Named("carrier_gateway"),
	}
}

// carrierQuoteRequest is the wire request sent to a carrier's quote API.
type carrierQuoteRequest struct {
	OrderID     string             `json:"order_id"`
	Origin      domain.Coordinates `json:"origin"`
	Destination domain.Coordinates `json:"destination"`
	Items       []domain.Item      `json:"items"`
	ServiceTier string             `json:"service_tier"`
}

// carrierQuoteResponse is the carrier's wire answer. A carrier either
// accepts with pricing or declines with a reason.
type carrierQuoteResponse struct {
	Accepted       bool               `json:"accepted"`
	Price          float64            `json:"price"`
	Currency       string             `json:"currency"`
	DeliveryDays   int                `json:"delivery_days"`
	ServiceTier    string             `json:"service_tier"`
	PriceBreakdown map[string]float64 `json:"price_breakdown,omitempty"`
	DeclineReason  string             `json:"decline_reason,omitempty"`
	DeclineMessage string             `json:"decline_message,omitempty"`
}

// RequestQuote posts the shipment to the carrier's quote endpoint. A
// business refusal returns (nil, *Rejection, nil); transport failures
// return an error for the orchestrator to classify.
func (g *RestCarrierGateway) RequestQuote(ctx context.Context, carrier domain.Carrier, req domain.ShippingRequest) (*domain.Quote, *domain.Rejection, error) {
	payload, err := json.Marshal(carrierQuoteRequest{
		OrderID:     req.OrderID,
		Origin:      req.Origin,
		Destination: req.Destination,
		Items:       req.Items,
		ServiceTier: req.ServiceTier,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal quote request: %w", err)
	}

	url := carrier.BaseURL + "/quotes"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build quote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("carrier %s call failed: %w", carrier.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("carrier %s returned status %d", carrier.ID, resp.StatusCode)
	}

	var body carrierQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, nil, fmt.Errorf("carrier %s response unreadable: %w", carrier.ID, err)
	}

	if !body.Accepted {
		g.logger.Debug("Carrier declined",
			zap.String("carrier_id", carrier.ID),
			zap.String("reason", body.DeclineReason),
		)
		return nil, &domain.Rejection{
			OrderID:    req.OrderID,
			CarrierID:  carrier.ID,
			Reason:     declineReason(body.DeclineReason),
			Message:    body.DeclineMessage,
			RecordedAt: time.Now().UTC(),
		}, nil
	}

	return &domain.Quote{
		ID:             uuid.NewString(),
		OrderID:        req.OrderID,
		CarrierID:      carrier.ID,
		CarrierName:    carrier.Name,
		Price:          body.Price,
		Currency:       body.Currency,
		DeliveryDays:   body.DeliveryDays,
		ServiceTier:    body.ServiceTier,
		ValidUntil:     time.Now().UTC().Add(g.quoteValidity),
		PriceBreakdown: body.PriceBreakdown,
		CreatedAt:      time.Now().UTC(),
	}, nil, nil
}

// declineReason maps a carrier's free-form decline code onto the closed
// rejection set, defaulting to route_not_serviceable.
func declineReason(code string) domain.RejectionReason {
	switch code {
	case string(domain.ReasonWeightExceeded):
		return domain.ReasonWeightExceeded
	case string(domain.ReasonNoColdStorage):
		return domain.ReasonNoColdStorage
	case string(domain.ReasonAtCapacity):
		return domain.ReasonAtCapacity
	default:
		return domain.ReasonRouteNotServiceable
	}
}
