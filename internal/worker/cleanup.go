package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskflow/backend/internal/models"

	"gorm.io/gorm"
)

const tokenCleanupID = "cleanup:tokens"

// TokenCleanup deletes expired refresh-token rows and reschedules itself.
type TokenCleanup struct {
	db       *gorm.DB
	queue    *JobQueue
	interval time.Duration
}

func NewTokenCleanup(db *gorm.DB, queue *JobQueue, interval time.Duration) *TokenCleanup {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TokenCleanup{db: db, queue: queue, interval: interval}
}

func (c *TokenCleanup) Schedule(ctx context.Context) error {
	return c.queue.ScheduleUnique(ctx, tokenCleanupID, "default", JobTypeTokenCleanup, nil, c.queue.now().Add(c.interval))
}

func (c *TokenCleanup) Handle(ctx context.Context, _ *Job) error {
	result := c.db.WithContext(ctx).
		Where("expires_at <= ?", c.queue.now()).
		Delete(&models.Token{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete expired tokens: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.Printf("Deleted %d expired sessions", result.RowsAffected)
	}
	return c.Schedule(ctx)
}

func (c *TokenCleanup) Register(w *Worker) {
	w.RegisterHandler(JobTypeTokenCleanup, c.Handle)
}
