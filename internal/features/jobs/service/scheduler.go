package service

import (
	"context"
	"sync"
	"time"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/jobs/domain"
	"shipping-orchestrator/internal/features/jobs/ports"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronParser accepts standard five-field cron expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun computes the next fire time for a cron expression after t.
func NextRun(expression string, t time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(expression)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t), nil
}

// Scheduler fires due cron schedules by enqueuing one job each. LastRun
// advances unconditionally, success or failure, so a malformed payload
// or a broken handler can never wedge a recurring schedule.
type Scheduler struct {
	store  ports.ScheduleStore
	queue  ports.JobQueue
	poll   time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	loopDone chan struct{}
}

// NewScheduler creates a Scheduler.
func NewScheduler(store ports.ScheduleStore, queue ports.JobQueue, pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:  store,
		queue:  queue,
		poll:   pollInterval,
		logger: logger.Named("scheduler"),
	}
}

// Start launches the due-schedule poll loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})

	go s.loop()

	s.logger.Info("Scheduler started", zap.Duration("poll_interval", s.poll))
	return nil
}

// Stop halts the poll loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	<-s.loopDone
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	s.Tick(context.Background())

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}

// Tick fires every due schedule once. Exported so tests and maintenance
// tooling can drive the scheduler without the poll loop.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	due, err := s.store.GetDueSchedules(ctx, now)
	if err != nil {
		s.logger.Error("Failed to load due schedules", zap.Error(err))
		return
	}

	for i := range due {
		schedule := due[i]

		job := domain.NewJob(schedule.JobType, schedule.Payload, schedule.Priority, now, schedule.MaxRetries)
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Error("Failed to enqueue scheduled job",
				zap.String("schedule_id", schedule.ID),
				zap.String("type", string(schedule.JobType)),
				zap.Error(err),
			)
			// Fall through: the schedule still advances below.
		} else {
			s.logger.Debug("Scheduled job enqueued",
				zap.String("schedule_id", schedule.ID),
				zap.String("job_id", job.ID),
			)
		}

		// Advance unconditionally. At-least-once, non-blocking.
		schedule.LastRun = now
		next, err := NextRun(schedule.Expression, now)
		if err != nil {
			s.logger.Error("Unparseable cron expression, deferring schedule an hour",
				zap.String("schedule_id", schedule.ID),
				zap.String("expression", schedule.Expression),
				zap.Error(err),
			)
			next = now.Add(time.Hour)
		}
		schedule.NextRun = next

		if err := s.store.Save(ctx, &schedule); err != nil {
			s.logger.Error("Failed to advance schedule",
				zap.String("schedule_id", schedule.ID), zap.Error(err))
		}
	}
}
