package handler

import (
	"errors"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/quotes/domain"
	"shipping-orchestrator/internal/features/quotes/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// QuoteHandler handles HTTP requests for estimates and quote solicitation.
type QuoteHandler struct {
	estimator    *service.Estimator
	orchestrator *service.Orchestrator
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(estimator *service.Estimator, orchestrator *service.Orchestrator) *QuoteHandler {
	return &QuoteHandler{
		estimator:    estimator,
		orchestrator: orchestrator,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// rayID pulls the request identifier injected by the requestid middleware.
func rayID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrRateLimit):
		return fiber.StatusTooManyRequests
	case errors.Is(err, domain.ErrExternalService):
		return fiber.StatusBadGateway
	case errors.Is(err, domain.ErrBusinessLogic):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// GetQuickEstimate godoc
// @Summary Get a quick shipping estimate
// @Description Computes a cost range and confidence score without contacting any carrier
// @Tags shipping
// @Accept json
// @Produce json
// @Param request body domain.ShippingRequest true "Shipment details"
// @Success 200 {object} domain.Estimate
// @Failure 400 {object} ErrorResponse
// @Router /shipping/estimate [post]
func (h *QuoteHandler) GetQuickEstimate(c *fiber.Ctx) error {
	var req domain.ShippingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "invalid request body",
			RayID:   rayID(c),
		})
	}

	estimate, err := h.estimator.Estimate(c.Context(), req)
	if err != nil {
		return c.Status(statusFor(err)).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	}

	return c.JSON(estimate)
}

// GetRealShippingQuotes godoc
// @Summary Solicit real quotes from all eligible carriers
// @Description Runs the full multi-carrier solicitation, selection and capacity reservation
// @Tags shipping
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Client idempotency key"
// @Param request body domain.ShippingRequest true "Shipment details"
// @Success 200 {object} domain.QuoteResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /shipping/quotes [post]
func (h *QuoteHandler) GetRealShippingQuotes(c *fiber.Ctx) error {
	var req domain.ShippingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "invalid request body",
			RayID:   rayID(c),
		})
	}

	idempotencyKey := c.Get("Idempotency-Key")
	if idempotencyKey == "" {
		logger.Get().Info("Quote request without Idempotency-Key header",
			zap.String("order_id", req.OrderID),
			zap.String("ray_id", rayID(c)),
		)
	}

	result, err := h.orchestrator.GetRealShippingQuotes(c.Context(), req, idempotencyKey)
	if err != nil {
		return c.Status(statusFor(err)).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	}

	return c.JSON(result)
}

// SelectQuote godoc
// @Summary Manually select a quote for an order
// @Description Reserves carrier capacity and marks the quote selected
// @Tags shipping
// @Produce json
// @Param quoteId path string true "Quote ID"
// @Param order_id query string true "Order ID"
// @Success 200 {object} domain.Quote
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /shipping/quotes/{quoteId}/select [post]
func (h *QuoteHandler) SelectQuote(c *fiber.Ctx) error {
	quoteID := c.Params("quoteId")
	orderID := c.Query("order_id")
	if quoteID == "" || orderID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "quote id and order_id are required",
			RayID:   rayID(c),
		})
	}

	quote, err := h.orchestrator.SelectQuote(c.Context(), quoteID, orderID)
	if err != nil {
		return c.Status(statusFor(err)).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	}

	return c.JSON(quote)
}
