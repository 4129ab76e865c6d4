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
	jobKeyPrefix   = "job:"
	pendingZSetKey = "jobs:pending"
	deadLetterKey  = "jobs:dead_letter"
)

// RedisJobQueue implements ports.JobQueue. Pending jobs live in a sorted
// set scored by scheduled time; claiming is a ZREM race, so a job is
// only ever executed by the claimer that won the removal.
type RedisJobQueue struct {
	client *redis.Client
}

// NewRedisJobQueue creates a new RedisJobQueue.
func NewRedisJobQueue(client *redis.Client) *RedisJobQueue {
	return &RedisJobQueue{client: client}
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

func (q *RedisJobQueue) save(ctx context.Context, job *domain.Job) error {
	job.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	if err := q.client.Set(ctx, jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// Enqueue stores the job and schedules it in the pending set.
func (q *RedisJobQueue) Enqueue(ctx context.Context, job *domain.Job) error {
	if err := q.save(ctx, job); err != nil {
		return err
	}
	err := q.client.ZAdd(ctx, pendingZSetKey, redis.Z{
		Score:  float64(job.ScheduledAt.Unix()),
		Member: job.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimDue claims up to limit due jobs. Each claim is a ZREM: losing the
// removal race to another worker just skips that job.
func (q *RedisJobQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := q.client.ZRangeByScore(ctx, pendingZSetKey, &redis.ZRangeBy{
		Min:   "0",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan due jobs: %w", err)
	}

	var claimed []domain.Job
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, pendingZSetKey, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("failed to claim job %s: %w", id, err)
		}
		if removed == 0 {
			// Another claimer won the race.
			continue
		}

		job, err := q.Get(ctx, id)
		if err != nil {
			continue
		}
		job.Status = domain.JobRunning
		if err := q.save(ctx, job); err != nil {
			return claimed, err
		}
		claimed = append(claimed, *job)
	}

	sort.SliceStable(claimed, func(a, b int) bool {
		if !claimed[a].ScheduledAt.Equal(claimed[b].ScheduledAt) {
			return claimed[a].ScheduledAt.Before(claimed[b].ScheduledAt)
		}
		return claimed[a].Priority < claimed[b].Priority
	})
	return claimed, nil
}

// Complete marks a claimed job completed.
func (q *RedisJobQueue) Complete(ctx context.Context, job *domain.Job) error {
	job.Status = domain.JobCompleted
	return q.save(ctx, job)
}

// Fail re-queues the job while attempts remain, otherwise dead-letters
// it with the last error retained. A dead-lettered job is never
// automatically retried again.
func (q *RedisJobQueue) Fail(ctx context.Context, job *domain.Job, handlerErr error) error {
	job.LastError = handlerErr.Error()

	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = domain.JobPending
		if err := q.save(ctx, job); err != nil {
			return err
		}
		err := q.client.ZAdd(ctx, pendingZSetKey, redis.Z{
			Score:  float64(time.Now().UTC().Unix()),
			Member: job.ID,
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		return nil
	}

	job.Status = domain.JobDeadLetter
	if err := q.save(ctx, job); err != nil {
		return err
	}
	if err := q.client.SAdd(ctx, deadLetterKey, job.ID).Err(); err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns one job by ID.
func (q *RedisJobQueue) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	data, err := q.client.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}

	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// ListDeadLetters returns dead-lettered jobs for operator inspection.
func (q *RedisJobQueue) ListDeadLetters(ctx context.Context) ([]domain.Job, error) {
	ids, err := q.client.SMembers(ctx, deadLetterKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	sort.Strings(ids)

	var jobs []domain.Job
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if err != nil {
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}
