package ports

import (
	"context"
	"time"

	"shipping-orchestrator/internal/features/jobs/domain"
)

// JobQueue is the deferred-work persistence port.
type JobQueue interface {
	// Enqueue stores a job and makes it claimable at its scheduled time.
	Enqueue(ctx context.Context, job *domain.Job) error

	// ClaimDue atomically claims up to limit due pending jobs, marking
	// each running. A claimed job is invisible to other claimers.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)

	// Complete marks a claimed job completed.
	Complete(ctx context.Context, job *domain.Job) error

	// Fail records a handler failure: the job is re-queued while
	// attempts remain, otherwise dead-lettered with the error retained.
	Fail(ctx context.Context, job *domain.Job, handlerErr error) error

	// Get returns one job by ID.
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// ListDeadLetters returns dead-lettered jobs for inspection.
	ListDeadLetters(ctx context.Context) ([]domain.Job, error)
}

// ScheduleStore is the recurring-schedule persistence port.
type ScheduleStore interface {
	// Save stores a schedule.
	Save(ctx context.Context, schedule *domain.CronSchedule) error

	// Get returns one schedule by ID.
	Get(ctx context.Context, scheduleID string) (*domain.CronSchedule, error)

	// GetDueSchedules returns enabled schedules whose NextRun is at or
	// before now.
	GetDueSchedules(ctx context.Context, now time.Time) ([]domain.CronSchedule, error)
}

// Handler executes one job type. Registered once per type at startup.
type Handler func(ctx context.Context, job *domain.Job) error
