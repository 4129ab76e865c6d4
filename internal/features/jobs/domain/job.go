package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the job lifecycle state persisted in the queue.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobRunning    JobStatus = "running"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobDeadLetter JobStatus = "dead_letter"
)

// JobType is the closed set of work kinds the worker dispatches on.
// Handlers register one per type at startup.
type JobType string

const (
	// JobTypeRetrySweep re-drives stuck assignments.
	JobTypeRetrySweep JobType = "assignment_retry_sweep"
	// JobTypeStaleLockSweep releases forgotten shipping locks.
	JobTypeStaleLockSweep JobType = "stale_lock_sweep"
	// JobTypeIdempotencyEviction reports idempotency-cache reclaim stats.
	JobTypeIdempotencyEviction JobType = "idempotency_eviction"
	// JobTypeSLACheck flags assignments drifting past their windows.
	JobTypeSLACheck JobType = "sla_check"
)

// Job is one unit of deferred, retryable work.
type Job struct {
	// ID is the unique job identifier.
	ID string `json:"id"`
	// Type selects the registered handler.
	Type JobType `json:"type"`
	// Payload is the handler's JSON input.
	Payload []byte `json:"payload,omitempty"`
	// Priority orders jobs due at the same time; lower runs first.
	Priority int `json:"priority"`
	// ScheduledAt is the earliest run time.
	ScheduledAt time.Time `json:"scheduled_at"`
	// Status is the lifecycle state.
	Status JobStatus `json:"status"`
	// RetryCount is the number of failed attempts so far.
	RetryCount int `json:"retry_count"`
	// MaxRetries bounds re-queues before dead-lettering.
	MaxRetries int `json:"max_retries"`
	// LastError holds the most recent handler failure, kept on
	// dead-letter for operator inspection.
	LastError string `json:"last_error,omitempty"`
	// CreatedAt is when the job was enqueued.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the last state transition time.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob creates a pending job.
func NewJob(jobType JobType, payload []byte, priority int, scheduledAt time.Time, maxRetries int) *Job {
	now := time.Now().UTC()
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	return &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     payload,
		Priority:    priority,
		ScheduledAt: scheduledAt,
		Status:      JobPending,
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CronSchedule is a recurring job template. Only the scheduler mutates
// it, and LastRun advances unconditionally after each check so a single
// bad payload can never permanently stall the schedule.
type CronSchedule struct {
	// ID is the unique schedule identifier.
	ID string `json:"id"`
	// Expression is the cron expression (five fields).
	Expression string `json:"expression"`
	// JobType is the type of job this schedule enqueues.
	JobType JobType `json:"job_type"`
	// Payload is the template payload for enqueued jobs.
	Payload []byte `json:"payload,omitempty"`
	// Priority is applied to enqueued jobs.
	Priority int `json:"priority"`
	// MaxRetries is applied to enqueued jobs.
	MaxRetries int `json:"max_retries"`
	// Enabled gates the schedule.
	Enabled bool `json:"enabled"`
	// LastRun is the last time the scheduler fired this schedule.
	LastRun time.Time `json:"last_run"`
	// NextRun is the next due time.
	NextRun time.Time `json:"next_run"`
}

// WorkerStatus is the worker pool's observable state.
type WorkerStatus struct {
	// IsRunning reports whether the poll loop is live.
	IsRunning bool `json:"isRunning"`
	// ActiveJobs is the number of jobs executing right now.
	ActiveJobs int `json:"activeJobs"`
	// Capacity is the configured concurrency ceiling.
	Capacity int `json:"capacity"`
}
