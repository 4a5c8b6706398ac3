package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"taskflow/backend/internal/cache"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/repositories"
	"taskflow/backend/internal/session"

	"github.com/gofrs/uuid"
)

// CachedTaskService reads through a cache keyed by task id and by owner.
// Every write drops both keys for the affected owner; the owner check for
// list reads happens before the cache is consulted.
//
// Each key carries a generation bumped on invalidation. A reader that loaded
// before a write finished drops what it just cached instead of pinning it.
type CachedTaskService struct {
	taskService TaskService
	cache       cache.Cache
	ttl         time.Duration
	reminders   ReminderScheduler

	mu          sync.Mutex
	generations map[string]uint64
}

func NewCachedTaskService(taskService TaskService, cacheInstance cache.Cache, ttl time.Duration) *CachedTaskService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
		ttl:         ttl,
		generations: make(map[string]uint64),
	}
}

// WithReminders makes the service schedule a due-date reminder whenever a
// task is created or its due date changes.
func (s *CachedTaskService) WithReminders(r ReminderScheduler) *CachedTaskService {
	s.reminders = r
	return s
}

func taskKey(id uuid.UUID) string {
	return fmt.Sprintf("task:%s", id)
}

func ownerKey(ownerID uuid.UUID) string {
	return fmt.Sprintf("tasks:owner:%s", ownerID)
}

func (s *CachedTaskService) ListTasks(ctx context.Context, caller *session.Identity, ownerID uuid.UUID) ([]models.Task, error) {
	if err := repositories.Authorize(caller, ownerID); err != nil {
		return nil, err
	}

	key := ownerKey(ownerID)
	var cached []models.Task
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	gen := s.generation(key)
	tasks, err := s.taskService.ListTasks(ctx, caller, ownerID)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, gen, tasks)
	return tasks, nil
}

func (s *CachedTaskService) GetTask(ctx context.Context, id uuid.UUID) (models.Task, error) {
	key := taskKey(id)
	var cached models.Task
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	gen := s.generation(key)
	task, err := s.taskService.GetTask(ctx, id)
	if err != nil {
		return task, err
	}

	s.store(ctx, key, gen, task)
	return task, nil
}

func (s *CachedTaskService) CreateTask(ctx context.Context, caller *session.Identity, ownerID uuid.UUID, fields repositories.TaskFields) (uuid.UUID, error) {
	id, err := s.taskService.CreateTask(ctx, caller, ownerID, fields)
	if err != nil {
		return uuid.Nil, err
	}

	s.invalidate(ctx, id, ownerID)
	s.scheduleReminder(ctx, id)
	return id, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, id uuid.UUID, patch repositories.TaskPatch) error {
	owner := s.ownerOf(ctx, id)

	if err := s.taskService.UpdateTask(ctx, id, patch); err != nil {
		return err
	}

	s.invalidate(ctx, id, owner)
	if patch.DueDate != nil {
		s.scheduleReminder(ctx, id)
	}
	return nil
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	owner := s.ownerOf(ctx, id)

	if err := s.taskService.DeleteTask(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, id, owner)
	return nil
}

func (s *CachedTaskService) AddSubtask(ctx context.Context, taskID uuid.UUID, subtask models.Subtask) (models.Subtask, error) {
	owner := s.ownerOf(ctx, taskID)

	added, err := s.taskService.AddSubtask(ctx, taskID, subtask)
	if err != nil {
		return added, err
	}

	s.invalidate(ctx, taskID, owner)
	return added, nil
}

func (s *CachedTaskService) ToggleSubtask(ctx context.Context, taskID uuid.UUID, subtaskID string) (models.Subtask, error) {
	owner := s.ownerOf(ctx, taskID)

	toggled, err := s.taskService.ToggleSubtask(ctx, taskID, subtaskID)
	if err != nil {
		return toggled, err
	}

	s.invalidate(ctx, taskID, owner)
	return toggled, nil
}

func (s *CachedTaskService) RemoveSubtask(ctx context.Context, taskID uuid.UUID, subtaskID string) error {
	owner := s.ownerOf(ctx, taskID)

	if err := s.taskService.RemoveSubtask(ctx, taskID, subtaskID); err != nil {
		return err
	}

	s.invalidate(ctx, taskID, owner)
	return nil
}

// ownerOf returns uuid.Nil when the task cannot be read; the write that
// follows will report the real error.
func (s *CachedTaskService) ownerOf(ctx context.Context, id uuid.UUID) uuid.UUID {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return uuid.Nil
	}
	return task.UserID
}

func (s *CachedTaskService) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}

// store caches value loaded at generation gen. If an invalidation ran in the
// meantime the entry is removed again; either the write's delete or this one
// lands after the stale Set.
func (s *CachedTaskService) store(ctx context.Context, key string, gen uint64, value interface{}) {
	if s.generation(key) != gen {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		log.Printf("cache: failed to store %s: %v", key, err)
		return
	}
	if s.generation(key) != gen {
		if err := s.cache.Delete(ctx, key); err != nil {
			log.Printf("cache: failed to drop stale %s: %v", key, err)
		}
	}
}

func (s *CachedTaskService) invalidate(ctx context.Context, id, ownerID uuid.UUID) {
	keys := []string{taskKey(id)}
	if ownerID != uuid.Nil {
		keys = append(keys, ownerKey(ownerID))
	}

	s.mu.Lock()
	for _, key := range keys {
		s.generations[key]++
	}
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Printf("cache: failed to invalidate task %s: %v", id, err)
	}
}

func (s *CachedTaskService) scheduleReminder(ctx context.Context, id uuid.UUID) {
	if s.reminders == nil {
		return
	}
	task, err := s.taskService.GetTask(ctx, id)
	if err != nil {
		log.Printf("reminders: failed to load task %s: %v", id, err)
		return
	}
	if err := s.reminders.ScheduleDueReminder(ctx, task); err != nil {
		log.Printf("reminders: failed to schedule task %s: %v", id, err)
	}
}

var _ TaskService = (*CachedTaskService)(nil)
