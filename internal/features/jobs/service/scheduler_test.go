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

// memScheduleStore is an in-memory ports.ScheduleStore.
type memScheduleStore struct {
	mu        sync.Mutex
	schedules map[string]*domain.CronSchedule
}

func newMemScheduleStore() *memScheduleStore {
	return &memScheduleStore{schedules: make(map[string]*domain.CronSchedule)}
}

func (s *memScheduleStore) Save(_ context.Context, schedule *domain.CronSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *schedule
	s.schedules[schedule.ID] = &copied
	return nil
}

func (s *memScheduleStore) Get(_ context.Context, scheduleID string) (*domain.CronSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sched, ok := s.schedules[scheduleID]; ok {
		copied := *sched
		return &copied, nil
	}
	return nil, fmt.Errorf("schedule not found: %s", scheduleID)
}

func (s *memScheduleStore) GetDueSchedules(_ context.Context, now time.Time) ([]domain.CronSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.CronSchedule
	for _, sched := range s.schedules {
		if sched.Enabled && !sched.NextRun.After(now) {
			due = append(due, *sched)
		}
	}
	return due, nil
}

func TestNextRun(t *testing.T) {
	base := time.Date(2026, 3, 15, 10, 7, 0, 0, time.UTC)

	next, err := NextRun("*/15 * * * *", base)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 10, 15, 0, 0, time.UTC), next)

	next, err = NextRun("0 * * * *", base)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 11, 0, 0, 0, time.UTC), next)

	_, err = NextRun("not a cron", base)
	assert.Error(t, err)
}

func TestScheduler_TickFiresDueSchedule(t *testing.T) {
	logger.Init("development", "error")
	store := newMemScheduleStore()
	queue := newMemJobQueue()
	scheduler := NewScheduler(store, queue, time.Minute)

	require.NoError(t, store.Save(context.Background(), &domain.CronSchedule{
		ID: "sweep", Expression: "*/15 * * * *", JobType: domain.JobTypeRetrySweep,
		MaxRetries: 3, Enabled: true, NextRun: time.Now().UTC().Add(-time.Minute),
	}))

	scheduler.Tick(context.Background())

	// One job enqueued, carrying the schedule's template values.
	claimed, err := queue.ClaimDue(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, domain.JobTypeRetrySweep, claimed[0].Type)
	assert.Equal(t, 3, claimed[0].MaxRetries)

	// The schedule advanced: LastRun set, NextRun in the future.
	sched, err := store.Get(context.Background(), "sweep")
	require.NoError(t, err)
	assert.False(t, sched.LastRun.IsZero())
	assert.True(t, sched.NextRun.After(time.Now().UTC()))
}

func TestScheduler_TickSkipsNotDue(t *testing.T) {
	logger.Init("development", "error")
	store := newMemScheduleStore()
	queue := newMemJobQueue()
	scheduler := NewScheduler(store, queue, time.Minute)

	require.NoError(t, store.Save(context.Background(), &domain.CronSchedule{
		ID: "future", Expression: "0 * * * *", JobType: domain.JobTypeSLACheck,
		Enabled: true, NextRun: time.Now().UTC().Add(time.Hour),
	}))

	scheduler.Tick(context.Background())

	claimed, err := queue.ClaimDue(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

// TestScheduler_AdvancesDespiteEnqueueFailure pins the liveness rule: a
// broken queue must not wedge the schedule in a due state forever.
func TestScheduler_AdvancesDespiteEnqueueFailure(t *testing.T) {
	logger.Init("development", "error")
	store := newMemScheduleStore()
	queue := newMemJobQueue()
	queue.enqueueErr = fmt.Errorf("queue down")
	scheduler := NewScheduler(store, queue, time.Minute)

	require.NoError(t, store.Save(context.Background(), &domain.CronSchedule{
		ID: "sweep", Expression: "*/15 * * * *", JobType: domain.JobTypeRetrySweep,
		Enabled: true, NextRun: time.Now().UTC().Add(-time.Minute),
	}))

	scheduler.Tick(context.Background())

	sched, err := store.Get(context.Background(), "sweep")
	require.NoError(t, err)
	assert.False(t, sched.LastRun.IsZero())
	assert.True(t, sched.NextRun.After(time.Now().UTC()))

	// A second tick fires nothing: the schedule already advanced.
	scheduler.Tick(context.Background())
	sched2, err := store.Get(context.Background(), "sweep")
	require.NoError(t, err)
	assert.Equal(t, sched.NextRun, sched2.NextRun)
}

func TestScheduler_BadExpressionDefersAnHour(t *testing.T) {
	logger.Init("development", "error")
	store := newMemScheduleStore()
	queue := newMemJobQueue()
	scheduler := NewScheduler(store, queue, time.Minute)

	require.NoError(t, store.Save(context.Background(), &domain.CronSchedule{
		ID: "broken", Expression: "definitely not cron", JobType: domain.JobTypeRetrySweep,
		Enabled: true, NextRun: time.Now().UTC().Add(-time.Minute),
	}))

	before := time.Now().UTC()
	scheduler.Tick(context.Background())

	sched, err := store.Get(context.Background(), "broken")
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Hour), sched.NextRun, time.Minute)
}

func TestScheduler_StartStop(t *testing.T) {
	logger.Init("development", "error")
	store := newMemScheduleStore()
	queue := newMemJobQueue()
	scheduler := NewScheduler(store, queue, 10*time.Millisecond)

	require.NoError(t, store.Save(context.Background(), &domain.CronSchedule{
		ID: "sweep", Expression: "* * * * *", JobType: domain.JobTypeRetrySweep,
		Enabled: true, NextRun: time.Now().UTC().Add(-time.Minute),
	}))

	require.NoError(t, scheduler.Start())
	require.NoError(t, scheduler.Start())

	waitFor(t, time.Second, func() bool {
		claimed, _ := queue.ClaimDue(context.Background(), time.Now().UTC().Add(time.Hour), 10)
		return len(claimed) > 0
	})

	scheduler.Stop()
	scheduler.Stop()
}
