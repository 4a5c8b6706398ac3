package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

// JobQueue stores jobs in Redis. Jobs due now go straight onto their queue
// list; later jobs wait in a sorted set scored by due time until a worker
// promotes them.
type JobQueue struct {
	client   *redis.Client
	prefix   string
	maxTries int
	now      func() time.Time
}

func NewJobQueue(client *redis.Client, prefix string) *JobQueue {
	return &JobQueue{
		client:   client,
		prefix:   prefix,
		maxTries: 3,
		now:      time.Now,
	}
}

// WithMaxTries sets how many attempts new jobs get before going to the dead
// queue.
func (q *JobQueue) WithMaxTries(n int) *JobQueue {
	if n > 0 {
		q.maxTries = n
	}
	return q
}

// WithClock replaces the time source. Used by tests.
func (q *JobQueue) WithClock(now func() time.Time) *JobQueue {
	q.now = now
	return q
}

func (q *JobQueue) queueKey(name string) string { return q.prefix + "queue:" + name }
func (q *JobQueue) scheduledKey() string        { return q.prefix + "scheduled" }
func (q *JobQueue) jobsKey() string             { return q.prefix + "jobs" }
func (q *JobQueue) deadKey() string             { return q.prefix + "dead" }

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}) (*Job, error) {
	return q.EnqueueAt(ctx, queue, jobType, payload, q.now())
}

func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) (*Job, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	job := q.newJob(id.String(), queue, jobType, payload, processAt)
	return job, q.schedule(ctx, job)
}

// ScheduleUnique schedules a job under a caller-chosen id. Scheduling the same
// id again before it runs replaces the pending job.
func (q *JobQueue) ScheduleUnique(ctx context.Context, id, queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) error {
	return q.schedule(ctx, q.newJob(id, queue, jobType, payload, processAt))
}

// Cancel drops a pending scheduled job. Jobs already on a queue list run.
func (q *JobQueue) Cancel(ctx context.Context, id string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.scheduledKey(), id)
	pipe.HDel(ctx, q.jobsKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	return nil
}

func (q *JobQueue) newJob(id, queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) *Job {
	now := q.now()
	return &Job{
		ID:        id,
		Queue:     queue,
		Type:      jobType,
		Payload:   payload,
		MaxTries:  q.maxTries,
		CreatedAt: now,
		ProcessAt: processAt,
	}
}

func (q *JobQueue) schedule(ctx context.Context, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if !job.ProcessAt.After(q.now()) {
		// A pending copy under the same id is superseded.
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.scheduledKey(), job.ID)
		pipe.HDel(ctx, q.jobsKey(), job.ID)
		pipe.RPush(ctx, q.queueKey(job.Queue), jobData)
		_, err = pipe.Exec(ctx)
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.jobsKey(), job.ID, jobData)
	pipe.ZAdd(ctx, q.scheduledKey(), redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: job.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// PromoteDue moves scheduled jobs whose time has come onto their queues and
// returns how many it moved. Concurrent callers never move the same job
// twice.
func (q *JobQueue) PromoteDue(ctx context.Context) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.scheduledKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read scheduled jobs: %w", err)
	}

	moved := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, q.scheduledKey(), id).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}

		jobData, err := q.client.HGet(ctx, q.jobsKey(), id).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return moved, err
		}

		var job Job
		if err := json.Unmarshal([]byte(jobData), &job); err != nil {
			return moved, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
		}

		pipe := q.client.TxPipeline()
		pipe.HDel(ctx, q.jobsKey(), id)
		pipe.RPush(ctx, q.queueKey(job.Queue), jobData)
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, q.queueKey(queue)).Result()
}

func (q *JobQueue) ScheduledCount(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.scheduledKey()).Result()
}

func (q *JobQueue) DeadCount(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadKey()).Result()
}

// ScheduledAt reports when the pending job id is due.
func (q *JobQueue) ScheduledAt(ctx context.Context, id string) (time.Time, bool, error) {
	score, err := q.client.ZScore(ctx, q.scheduledKey(), id).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(int64(score)), true, nil
}

func (q *JobQueue) moveToDead(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    q.now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return q.client.RPush(ctx, q.deadKey(), deadJobData).Err()
}
