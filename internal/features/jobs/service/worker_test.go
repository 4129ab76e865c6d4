package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"shipping-orchestrator/internal/core/logger"
	"shipping-orchestrator/internal/features/jobs/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memJobQueue is an in-memory ports.JobQueue for worker and scheduler
// tests.
type memJobQueue struct {
	mu          sync.Mutex
	pending     []domain.Job
	completed   []string
	failed      []string
	deadLetters []domain.Job
	enqueueErr  error
}

func newMemJobQueue() *memJobQueue {
	return &memJobQueue{}
}

func (q *memJobQueue) Enqueue(_ context.Context, job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.pending = append(q.pending, *job)
	return nil
}

func (q *memJobQueue) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed []domain.Job
	var rest []domain.Job
	for _, job := range q.pending {
		if len(claimed) < limit && !job.ScheduledAt.After(now) {
			job.Status = domain.JobRunning
			claimed = append(claimed, job)
		} else {
			rest = append(rest, job)
		}
	}
	q.pending = rest
	return claimed, nil
}

func (q *memJobQueue) Complete(_ context.Context, job *domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, job.ID)
	return nil
}

func (q *memJobQueue) Fail(_ context.Context, job *domain.Job, handlerErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.LastError = handlerErr.Error()
	q.failed = append(q.failed, job.ID)
	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = domain.JobPending
		q.pending = append(q.pending, *job)
		return nil
	}
	job.Status = domain.JobDeadLetter
	q.deadLetters = append(q.deadLetters, *job)
	return nil
}

func (q *memJobQueue) Get(_ context.Context, jobID string) (*domain.Job, error) {
	return nil, fmt.Errorf("job not found: %s", jobID)
}

func (q *memJobQueue) ListDeadLetters(_ context.Context) ([]domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Job(nil), q.deadLetters...), nil
}

func (q *memJobQueue) completedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.completed)
}

func (q *memJobQueue) deadLetterCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deadLetters)
}

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:     2,
		PollInterval:    10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestWorker_ExecutesJob(t *testing.T) {
	logger.Init("development", "error")
	queue := newMemJobQueue()
	worker := NewWorker(queue, testWorkerConfig())

	var mu sync.Mutex
	var seen []string
	require.NoError(t, worker.Register(domain.JobTypeRetrySweep, func(_ context.Context, job *domain.Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		return nil
	}))

	job := domain.NewJob(domain.JobTypeRetrySweep, nil, 0, time.Now().UTC(), 3)
	require.NoError(t, queue.Enqueue(context.Background(), job))

	require.NoError(t, worker.Start())
	defer worker.Stop()

	waitFor(t, time.Second, func() bool { return queue.completedCount() == 1 })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{job.ID}, seen)
}

func TestWorker_RegisterErrors(t *testing.T) {
	logger.Init("development", "error")
	worker := NewWorker(newMemJobQueue(), testWorkerConfig())

	handler := func(_ context.Context, _ *domain.Job) error { return nil }
	require.NoError(t, worker.Register(domain.JobTypeRetrySweep, handler))

	// Duplicate registration is refused.
	err := worker.Register(domain.JobTypeRetrySweep, handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	// Registration after start is refused.
	require.NoError(t, worker.Start())
	defer worker.Stop()
	err = worker.Register(domain.JobTypeSLACheck, handler)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestWorker_FailingHandlerRetriesThenDeadLetters(t *testing.T) {
	logger.Init("development", "error")
	queue := newMemJobQueue()
	worker := NewWorker(queue, testWorkerConfig())

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, worker.Register(domain.JobTypeRetrySweep, func(_ context.Context, _ *domain.Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return fmt.Errorf("always broken")
	}))

	job := domain.NewJob(domain.JobTypeRetrySweep, nil, 0, time.Now().UTC(), 2)
	require.NoError(t, queue.Enqueue(context.Background(), job))

	require.NoError(t, worker.Start())
	defer worker.Stop()

	waitFor(t, 2*time.Second, func() bool { return queue.deadLetterCount() == 1 })

	// Initial attempt plus MaxRetries re-runs, never more.
	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()

	dead, err := queue.ListDeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "always broken", dead[0].LastError)

	// The dead-lettered job is never picked up again.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()
}

func TestWorker_UnhandledTypeFails(t *testing.T) {
	logger.Init("development", "error")
	queue := newMemJobQueue()
	worker := NewWorker(queue, testWorkerConfig())

	job := domain.NewJob(domain.JobTypeSLACheck, nil, 0, time.Now().UTC(), 0)
	require.NoError(t, queue.Enqueue(context.Background(), job))

	require.NoError(t, worker.Start())
	defer worker.Stop()

	waitFor(t, time.Second, func() bool { return queue.deadLetterCount() == 1 })

	dead, _ := queue.ListDeadLetters(context.Background())
	assert.Contains(t, dead[0].LastError, "no handler")
}

func TestWorker_ConcurrencyBound(t *testing.T) {
	logger.Init("development", "error")
	queue := newMemJobQueue()
	worker := NewWorker(queue, testWorkerConfig())

	release := make(chan struct{})
	var mu sync.Mutex
	running, peak := 0, 0

	require.NoError(t, worker.Register(domain.JobTypeRetrySweep, func(_ context.Context, _ *domain.Job) error {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		<-release
		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 6; i++ {
		job := domain.NewJob(domain.JobTypeRetrySweep, nil, 0, time.Now().UTC(), 0)
		require.NoError(t, queue.Enqueue(context.Background(), job))
	}

	require.NoError(t, worker.Start())

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 2
	})

	status := worker.Status()
	assert.True(t, status.IsRunning)
	assert.Equal(t, 2, status.ActiveJobs)
	assert.Equal(t, 2, status.Capacity)

	close(release)
	waitFor(t, 2*time.Second, func() bool { return queue.completedCount() == 6 })

	mu.Lock()
	assert.Equal(t, 2, peak)
	mu.Unlock()

	worker.Stop()
	status = worker.Status()
	assert.False(t, status.IsRunning)
}

func TestWorker_StopDrainsActiveJobs(t *testing.T) {
	logger.Init("development", "error")
	queue := newMemJobQueue()
	worker := NewWorker(queue, testWorkerConfig())

	started := make(chan struct{})
	require.NoError(t, worker.Register(domain.JobTypeRetrySweep, func(_ context.Context, _ *domain.Job) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return nil
	}))

	job := domain.NewJob(domain.JobTypeRetrySweep, nil, 0, time.Now().UTC(), 0)
	require.NoError(t, queue.Enqueue(context.Background(), job))

	require.NoError(t, worker.Start())
	<-started

	// Stop must wait for the in-flight job to finish.
	worker.Stop()
	assert.Equal(t, 1, queue.completedCount())
}

func TestWorker_StartIdempotent(t *testing.T) {
	logger.Init("development", "error")
	worker := NewWorker(newMemJobQueue(), testWorkerConfig())

	require.NoError(t, worker.Start())
	require.NoError(t, worker.Start())
	worker.Stop()
	// Stopping again must not block or panic.
	worker.Stop()
}
