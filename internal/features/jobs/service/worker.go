package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/jobs/domain"
	"shipping-orchestrator/internal/features/jobs/ports"

	"go.uber.org/zap"
)

// WorkerConfig bounds the worker pool.
type WorkerConfig struct {
	// Concurrency is the number of jobs that may run at once.
	Concurrency int
	// PollInterval is the pause between pending-job polls.
	PollInterval time.Duration
	// ShutdownTimeout bounds the graceful-stop wait for active jobs.
	ShutdownTimeout time.Duration
}

// Worker polls the job queue and executes registered handlers. An
// explicit, constructible component: dependencies are injected and the
// lifecycle is Start/Stop, no module-level state.
type Worker struct {
	queue    ports.JobQueue
	handlers map[domain.JobType]ports.Handler
	cfg      WorkerConfig
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	active   int
	stop     chan struct{}
	loopDone chan struct{}
	jobs     sync.WaitGroup
}

// NewWorker creates a Worker. Handlers are registered before Start.
func NewWorker(queue ports.JobQueue, cfg WorkerConfig) *Worker {
	return &Worker{
		queue:    queue,
		handlers: make(map[domain.JobType]ports.Handler),
		cfg:      cfg,
		logger:   logger.Named("worker"),
	}
}

// Register binds a handler to a job type. The set is closed at startup;
// registering after Start or twice for one type is an error.
func (w *Worker) Register(jobType domain.JobType, handler ports.Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("cannot register handler for %s: worker already started", jobType)
	}
	if _, exists := w.handlers[jobType]; exists {
		return fmt.Errorf("handler already registered for %s", jobType)
	}
	w.handlers[jobType] = handler
	return nil
}

// Start launches the poll loop.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	w.running = true
	w.stop = make(chan struct{})
	w.loopDone = make(chan struct{})

	go w.loop()

	w.logger.Info("Worker started",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Duration("poll_interval", w.cfg.PollInterval),
	)
	return nil
}

// Stop halts polling immediately and waits up to ShutdownTimeout for
// active jobs to finish before returning.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	w.mu.Unlock()

	<-w.loopDone

	done := make(chan struct{})
	go func() {
		w.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped, all jobs drained")
	case <-time.After(w.cfg.ShutdownTimeout):
		w.logger.Warn("Worker stop timed out with jobs still active",
			zap.Duration("timeout", w.cfg.ShutdownTimeout))
	}
}

// Status returns the worker pool's observable state.
func (w *Worker) Status() domain.WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return domain.WorkerStatus{
		IsRunning:  w.running,
		ActiveJobs: w.active,
		Capacity:   w.cfg.Concurrency,
	}
}

// loop polls for due jobs until stopped.
func (w *Worker) loop() {
	defer close(w.loopDone)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	// Poll once immediately so a fresh worker picks up backlog fast.
	w.poll()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll claims up to the free slots and dispatches each claimed job.
func (w *Worker) poll() {
	w.mu.Lock()
	slots := w.cfg.Concurrency - w.active
	w.mu.Unlock()

	if slots <= 0 {
		return
	}

	ctx := context.Background()
	claimed, err := w.queue.ClaimDue(ctx, time.Now().UTC(), slots)
	if err != nil {
		w.logger.Error("Failed to claim due jobs", zap.Error(err))
		return
	}

	for i := range claimed {
		job := claimed[i]

		w.mu.Lock()
		w.active++
		w.mu.Unlock()

		w.jobs.Add(1)
		go w.run(job)
	}
}

// run executes one claimed job and settles its outcome.
func (w *Worker) run(job domain.Job) {
	defer func() {
		w.mu.Lock()
		w.active--
		w.mu.Unlock()
		w.jobs.Done()
	}()

	ctx := context.Background()

	handler, ok := w.handlers[job.Type]
	if !ok {
		w.logger.Error("No handler registered for job type",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
		)
		if err := w.queue.Fail(ctx, &job, fmt.Errorf("no handler for job type %s", job.Type)); err != nil {
			w.logger.Error("Failed to settle unhandled job", zap.Error(err))
		}
		return
	}

	err := handler(ctx, &job)
	if err != nil {
		w.logger.Warn("Job handler failed",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.Int("retry_count", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)
		if failErr := w.queue.Fail(ctx, &job, err); failErr != nil {
			w.logger.Error("Failed to settle failed job", zap.Error(failErr))
		}
		return
	}

	if err := w.queue.Complete(ctx, &job); err != nil {
		w.logger.Error("Failed to mark job completed",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	w.logger.Debug("Job completed",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
	)
}
