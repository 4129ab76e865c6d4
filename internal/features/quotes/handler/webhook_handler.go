package handler

import (
	"time"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/core/signature"
	"shipping-orchestrator/internal/features/quotes/domain"
	"shipping-orchestrator/internal/features/quotes/ports"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// WebhookHandler receives signed carrier callbacks and applies the
// resulting assignment state transitions.
type WebhookHandler struct {
	verifier    *signature.Verifier
	assignments ports.AssignmentRepository
	orders      ports.OrderStore
	logger      *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(verifier *signature.Verifier, assignments ports.AssignmentRepository, orders ports.OrderStore) *WebhookHandler {
	return &WebhookHandler{
		verifier:    verifier,
		assignments: assignments,
		orders:      orders,
		logger:      logger.Named("webhook"),
	}
}

// carrierEvent is the payload carriers post back after a solicitation.
type carrierEvent struct {
	OrderID   string `json:"order_id"`
	CarrierID string `json:"carrier_id"`
	Event     string `json:"event"`
}

// eventStates maps carrier callback events onto assignment states.
var eventStates = map[string]domain.AssignmentState{
	"accepted": domain.AssignmentAccepted,
	"rejected": domain.AssignmentRejected,
	"busy":     domain.AssignmentBusy,
}

// HandleCarrierEvent godoc
// @Summary Receive a carrier assignment callback
// @Description Verifies the HMAC signature and transitions the assignment state
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Signature header string true "Hex HMAC-SHA256 of timestamp + '.' + body"
// @Param X-Timestamp header string true "Unix seconds the signature was computed at"
// @Success 200 {object} domain.Assignment
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /webhooks/carrier [post]
func (h *WebhookHandler) HandleCarrierEvent(c *fiber.Ctx) error {
	sig := c.Get("X-Signature")
	timestamp := c.Get("X-Timestamp")
	body := c.Body()

	if err := h.verifier.Verify(timestamp, body, sig); err != nil {
		h.logger.Warn("Rejected carrier webhook",
			zap.String("ray_id", rayID(c)),
			zap.Error(err),
		)
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Message: "invalid signature",
			RayID:   rayID(c),
		})
	}

	var event carrierEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "invalid request body",
			RayID:   rayID(c),
		})
	}

	state, ok := eventStates[event.Event]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "unknown event: " + event.Event,
			RayID:   rayID(c),
		})
	}

	assignment, err := h.assignments.Get(c.Context(), event.OrderID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	}
	if assignment == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Message: "no assignment for order " + event.OrderID,
			RayID:   rayID(c),
		})
	}
	if event.CarrierID != "" && assignment.CarrierID != event.CarrierID {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Message: "carrier does not hold this assignment",
			RayID:   rayID(c),
		})
	}

	assignment.State = state
	assignment.UpdatedAt = time.Now().UTC()
	if err := h.assignments.Save(c.Context(), assignment); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   rayID(c),
		})
	}

	if state == domain.AssignmentAccepted {
		if err := h.orders.UpdateStatus(c.Context(), event.OrderID, domain.OrderStatusCarrierChosen); err != nil {
			h.logger.Error("Failed to update order status after acceptance",
				zap.String("order_id", event.OrderID), zap.Error(err))
		}
	}

	h.logger.Info("Carrier webhook processed",
		zap.String("order_id", event.OrderID),
		zap.String("carrier_id", assignment.CarrierID),
		zap.String("event", event.Event),
	)

	return c.JSON(assignment)
}
