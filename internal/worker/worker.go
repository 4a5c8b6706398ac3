package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

type JobType string

const (
	JobTypeDueReminder  JobType = "due_reminder"
	JobTypeTokenCleanup JobType = "token_cleanup"
)

type Job struct {
	ID        string                 `json:"id"`
	Queue     string                 `json:"queue"`
	Type      JobType                `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

// PayloadString returns the string payload value under key, or "".
func (j *Job) PayloadString(key string) string {
	v, _ := j.Payload[key].(string)
	return v
}

type JobHandler func(ctx context.Context, job *Job) error

type Worker struct {
	queue        *JobQueue
	handlers     map[JobType]JobHandler
	queueKeys    []string
	pollInterval time.Duration
	jobTimeout   time.Duration
	retryBase    time.Duration
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

type WorkerConfig struct {
	Queue        *JobQueue
	PollInterval time.Duration
	Queues       []string
	JobTimeout   time.Duration
	// RetryBase is the delay before the first retry; it doubles per attempt.
	RetryBase time.Duration
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	if config.RetryBase <= 0 {
		config.RetryBase = time.Minute
	}
	if len(config.Queues) == 0 {
		config.Queues = []string{"default"}
	}

	keys := make([]string, 0, len(config.Queues))
	for _, name := range config.Queues {
		keys = append(keys, config.Queue.queueKey(name))
	}

	return &Worker{
		queue:        config.Queue,
		handlers:     make(map[JobType]JobHandler),
		queueKeys:    keys,
		pollInterval: config.PollInterval,
		jobTimeout:   config.JobTimeout,
		retryBase:    config.RetryBase,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	log.Printf("Starting worker with %d goroutines", concurrency)

	w.wg.Add(1)
	go w.promoteLoop()

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

func (w *Worker) Stop() {
	log.Println("Stopping worker...")
	w.cancel()
	w.wg.Wait()
	log.Println("Worker stopped")
}

func (w *Worker) Stats() map[string]interface{} {
	return map[string]interface{}{
		"processed": w.processed.Load(),
		"failed":    w.failed.Load(),
		"retried":   w.retried.Load(),
	}
}

func (w *Worker) promoteLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if n, err := w.queue.PromoteDue(w.ctx); err != nil && w.ctx.Err() == nil {
			log.Printf("Error promoting scheduled jobs: %v", err)
		} else if n > 0 {
			log.Printf("Promoted %d scheduled jobs", n)
		}

		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(w.ctx); err != nil && w.ctx.Err() == nil {
				log.Printf("Error processing job: %v", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) processNextJob(ctx context.Context) error {
	result, err := w.queue.client.BLPop(ctx, w.pollInterval, w.queueKeys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		w.failed.Add(1)
		return w.queue.moveToDead(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	log.Printf("Processing job %s of type %s", job.ID, job.Type)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	err := handler(jobCtx, job)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.Printf("Job %s failed (attempt %d/%d), retrying: %v",
				job.ID, job.Attempts, job.MaxTries, err)
			w.retried.Add(1)
			return w.retryJob(ctx, job)
		}

		log.Printf("Job %s failed permanently after %d attempts: %v",
			job.ID, job.Attempts, err)
		w.failed.Add(1)
		return w.queue.moveToDead(ctx, job, err)
	}

	w.processed.Add(1)
	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := w.retryBase * time.Duration(1<<(job.Attempts-1))
	job.ProcessAt = w.queue.now().Add(delay)

	return w.queue.schedule(ctx, job)
}
