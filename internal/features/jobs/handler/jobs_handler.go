package handler

import (
	"shipping-orchestrator/internal/features/jobs/ports"
	"shipping-orchestrator/internal/features/jobs/service"

	"github.com/gofiber/fiber/v2"
)

// JobsHandler exposes worker observability endpoints.
type JobsHandler struct {
	worker *service.Worker
	queue  ports.JobQueue
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(worker *service.Worker, queue ports.JobQueue) *JobsHandler {
	return &JobsHandler{
		worker: worker,
		queue:  queue,
	}
}

// GetStatus godoc
// @Summary Get worker pool status
// @Description Reports whether the worker is running, active job count and capacity
// @Tags jobs
// @Produce json
// @Success 200 {object} domain.WorkerStatus
// @Router /jobs/status [get]
func (h *JobsHandler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(h.worker.Status())
}

// GetDeadLetters godoc
// @Summary List dead-lettered jobs
// @Description Returns jobs that exhausted their retries, with the last error retained
// @Tags jobs
// @Produce json
// @Success 200 {array} domain.Job
// @Router /jobs/dead-letters [get]
func (h *JobsHandler) GetDeadLetters(c *fiber.Ctx) error {
	jobs, err := h.queue.ListDeadLetters(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": err.Error(),
			"ray_id":  c.Locals("requestid"),
		})
	}
	return c.JSON(jobs)
}
