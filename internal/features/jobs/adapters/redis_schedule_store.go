package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"shipping-orchestrator/internal/features/jobs/domain"

	"github.com/redis/go-redis/v9"
)

const (
	scheduleKeyPrefix = "schedule:"
	scheduleSetKey    = "schedules"
)

// RedisScheduleStore implements ports.ScheduleStore.
type RedisScheduleStore struct {
	client *redis.Client
}

// NewRedisScheduleStore creates a new RedisScheduleStore.
func NewRedisScheduleStore(client *redis.Client) *RedisScheduleStore {
	return &RedisScheduleStore{client: client}
}

func scheduleKey(id string) string {
	return scheduleKeyPrefix + id
}

// Save stores a schedule and indexes it.
func (s *RedisScheduleStore) Save(ctx context.Context, schedule *domain.CronSchedule) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", schedule.ID, err)
	}
	if err := s.client.Set(ctx, scheduleKey(schedule.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
	}
	if err := s.client.SAdd(ctx, scheduleSetKey, schedule.ID).Err(); err != nil {
		return fmt.Errorf("failed to index schedule %s: %w", schedule.ID, err)
	}
	return nil
}

// Get returns one schedule by ID.
func (s *RedisScheduleStore) Get(ctx context.Context, scheduleID string) (*domain.CronSchedule, error) {
	data, err := s.client.Get(ctx, scheduleKey(scheduleID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("schedule not found: %s", scheduleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %s: %w", scheduleID, err)
	}

	var schedule domain.CronSchedule
	if err := json.Unmarshal(data, &schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", scheduleID, err)
	}
	return &schedule, nil
}

// GetDueSchedules returns enabled schedules due at or before now, sorted
// by ID for deterministic firing order.
func (s *RedisScheduleStore) GetDueSchedules(ctx context.Context, now time.Time) ([]domain.CronSchedule, error) {
	ids, err := s.client.SMembers(ctx, scheduleSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	sort.Strings(ids)

	var due []domain.CronSchedule
	for _, id := range ids {
		schedule, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		if schedule.Enabled && !schedule.NextRun.After(now) {
			due = append(due, *schedule)
		}
	}
	return due, nil
}
