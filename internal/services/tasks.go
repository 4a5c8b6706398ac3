package services

import (
	"context"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/repositories"
	"taskflow/backend/internal/session"

	"github.com/gofrs/uuid"
)

// TaskService is what the HTTP layer needs from task storage.
// *repositories.TaskRepository implements it directly; CachedTaskService
// decorates it.
type TaskService interface {
	ListTasks(ctx context.Context, caller *session.Identity, ownerID uuid.UUID) ([]models.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (models.Task, error)
	CreateTask(ctx context.Context, caller *session.Identity, ownerID uuid.UUID, fields repositories.TaskFields) (uuid.UUID, error)
	UpdateTask(ctx context.Context, id uuid.UUID, patch repositories.TaskPatch) error
	DeleteTask(ctx context.Context, id uuid.UUID) error
	AddSubtask(ctx context.Context, taskID uuid.UUID, subtask models.Subtask) (models.Subtask, error)
	ToggleSubtask(ctx context.Context, taskID uuid.UUID, subtaskID string) (models.Subtask, error)
	RemoveSubtask(ctx context.Context, taskID uuid.UUID, subtaskID string) error
}

// ReminderScheduler is told about tasks whose due date was set or changed.
type ReminderScheduler interface {
	ScheduleDueReminder(ctx context.Context, task models.Task) error
}

var _ TaskService = (*repositories.TaskRepository)(nil)
