package service

import (
	"context"
	"time"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/quotes/domain"
	"shipping-orchestrator/internal/features/quotes/ports"

	"go.uber.org/zap"
)

// RetryReport summarizes one retry-driver sweep.
type RetryReport struct {
	// ExpiredProcessed counts assignments re-solicited after expiry.
	ExpiredProcessed int `json:"expiredProcessed"`
	// BusyRetried counts busy assignments re-offered to the same carrier.
	BusyRetried int `json:"busyRetried"`
	// RejectedRetried counts rejected assignments re-solicited elsewhere.
	RejectedRetried int `json:"rejectedRetried"`
}

// RetryDriver re-drives non-terminal-but-stuck assignments without
// operator intervention. Expired and rejected assignments re-enter quote
// solicitation excluding the failing carrier; busy assignments get a
// re-offer to the same carrier once their cool-down has elapsed.
type RetryDriver struct {
	orchestrator *Orchestrator
	assignments  ports.AssignmentRepository
	orders       ports.OrderStore
	capacity     capacityFreer
	busyCooldown time.Duration
	logger       *zap.Logger
}

// capacityFreer is the slice of the capacity guard the driver needs to
// give a dead carrier's slot back before re-soliciting.
type capacityFreer interface {
	Free(ctx context.Context, carrierID string) error
}

// NewRetryDriver creates a RetryDriver.
func NewRetryDriver(orchestrator *Orchestrator, assignments ports.AssignmentRepository, orders ports.OrderStore, capacity capacityFreer, busyCooldown time.Duration) *RetryDriver {
	return &RetryDriver{
		orchestrator: orchestrator,
		assignments:  assignments,
		orders:       orders,
		capacity:     capacity,
		busyCooldown: busyCooldown,
		logger:       logger.Named("retry_driver"),
	}
}

// Run executes one sweep and reports what it re-drove. Individual
// assignment failures are logged and skipped, never abort the sweep.
func (d *RetryDriver) Run(ctx context.Context) (*RetryReport, error) {
	report := &RetryReport{}

	stuck, err := d.assignments.ListByStates(ctx,
		domain.AssignmentPending,
		domain.AssignmentExpired,
		domain.AssignmentRejected,
		domain.AssignmentBusy,
	)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, assignment := range stuck {
		state := assignment.State

		// A pending assignment whose validity window elapsed with no
		// carrier resolution counts as expired.
		if state == domain.AssignmentPending {
			if now.Before(assignment.ValidUntil) {
				continue
			}
			state = domain.AssignmentExpired
			assignment.State = state
			assignment.UpdatedAt = now
			if err := d.assignments.Save(ctx, &assignment); err != nil {
				d.logger.Error("Failed to mark assignment expired",
					zap.String("order_id", assignment.OrderID), zap.Error(err))
				continue
			}
		}

		switch state {
		case domain.AssignmentExpired:
			if d.resolicit(ctx, assignment) {
				report.ExpiredProcessed++
			}
		case domain.AssignmentRejected:
			if d.resolicit(ctx, assignment) {
				report.RejectedRetried++
			}
		case domain.AssignmentBusy:
			if now.Sub(assignment.UpdatedAt) < d.busyCooldown {
				continue
			}
			if d.reoffer(ctx, assignment) {
				report.BusyRetried++
			}
		}
	}

	d.logger.Info("Retry sweep finished",
		zap.Int("expired_processed", report.ExpiredProcessed),
		zap.Int("busy_retried", report.BusyRetried),
		zap.Int("rejected_retried", report.RejectedRetried),
	)
	return report, nil
}

// resolicit frees the failed carrier's slot and re-enters quote
// solicitation excluding it.
func (d *RetryDriver) resolicit(ctx context.Context, assignment domain.Assignment) bool {
	req, err := d.orders.GetShippingRequest(ctx, assignment.OrderID)
	if err != nil {
		d.logger.Error("Cannot rebuild shipping request",
			zap.String("order_id", assignment.OrderID), zap.Error(err))
		return false
	}

	if err := d.capacity.Free(ctx, assignment.CarrierID); err != nil {
		d.logger.Warn("Failed to free capacity for failed carrier",
			zap.String("carrier_id", assignment.CarrierID), zap.Error(err))
	}

	result, err := d.orchestrator.Resolicit(ctx, *req, assignment.CarrierID)
	if err != nil {
		d.logger.Error("Re-solicitation failed",
			zap.String("order_id", assignment.OrderID),
			zap.String("excluded_carrier", assignment.CarrierID),
			zap.Error(err))
		return false
	}

	d.logger.Info("Assignment re-solicited",
		zap.String("order_id", assignment.OrderID),
		zap.String("previous_state", string(assignment.State)),
		zap.Bool("queued_for_manual", result.QueuedForManual),
	)
	return true
}

// reoffer retries the same carrier after the busy cool-down.
func (d *RetryDriver) reoffer(ctx context.Context, assignment domain.Assignment) bool {
	req, err := d.orders.GetShippingRequest(ctx, assignment.OrderID)
	if err != nil {
		d.logger.Error("Cannot rebuild shipping request",
			zap.String("order_id", assignment.OrderID), zap.Error(err))
		return false
	}

	result, err := d.orchestrator.ReofferCarrier(ctx, *req, assignment.CarrierID)
	if err != nil {
		d.logger.Error("Busy re-offer failed",
			zap.String("order_id", assignment.OrderID),
			zap.String("carrier_id", assignment.CarrierID),
			zap.Error(err))
		return false
	}

	d.logger.Info("Busy assignment re-offered",
		zap.String("order_id", assignment.OrderID),
		zap.String("carrier_id", assignment.CarrierID),
		zap.Bool("queued_for_manual", result.QueuedForManual),
	)
	return true
}
