package repositories

import (
	"context"
	"strings"
	"time"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/session"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// TaskFields are the caller-supplied fields of a new task.
type TaskFields struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description"`
	DueDate     string          `json:"due_date" validate:"required,datetime=2006-01-02"`
	Priority    models.Priority `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// TaskPatch carries a partial update; nil fields are left untouched.
type TaskPatch struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	DueDate     *string          `json:"due_date"`
	Priority    *models.Priority `json:"priority"`
	Status      *models.Status   `json:"status"`
}

func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil && p.Priority == nil && p.Status == nil
}

type TaskRepository struct {
	db       *gorm.DB
	validate *validator.Validate
	now      func() time.Time
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{
		db:       db,
		validate: newValidator(),
		now:      time.Now,
	}
}

// WithClock replaces the timestamp source. Used by tests.
func (r *TaskRepository) WithClock(now func() time.Time) *TaskRepository {
	r.now = now
	return r
}

// Authorize fails with a PermissionError unless caller is signed in as ownerID.
func Authorize(caller *session.Identity, ownerID uuid.UUID) error {
	if caller == nil {
		return &PermissionError{Reason: "caller is not authenticated"}
	}
	if caller.UserID != ownerID {
		return &PermissionError{Reason: "caller does not own these tasks"}
	}
	return nil
}

func (r *TaskRepository) ListTasks(ctx context.Context, caller *session.Identity, ownerID uuid.UUID) ([]models.Task, error) {
	if err := Authorize(caller, ownerID); err != nil {
		return nil, err
	}

	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at asc").
		Find(&tasks).Error
	if err != nil {
		return nil, &TransportError{Op: "list tasks", Err: err}
	}

	for i := range tasks {
		normalizeSubtasks(&tasks[i])
	}
	return tasks, nil
}

func (r *TaskRepository) GetTask(ctx context.Context, id uuid.UUID) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return models.Task{}, storageError("get task", err)
	}
	normalizeSubtasks(&task)
	return task, nil
}

func (r *TaskRepository) CreateTask(ctx context.Context, caller *session.Identity, ownerID uuid.UUID, fields TaskFields) (uuid.UUID, error) {
	if err := Authorize(caller, ownerID); err != nil {
		return uuid.Nil, err
	}

	fields.Title = strings.TrimSpace(fields.Title)
	fields.Description = strings.TrimSpace(fields.Description)
	fields.DueDate = strings.TrimSpace(fields.DueDate)

	verr := &ValidationError{}
	collect(verr, "", r.validate.Struct(fields))
	if err := verr.orNil(); err != nil {
		return uuid.Nil, err
	}

	if fields.Priority == "" {
		fields.Priority = models.PriorityMedium
	}

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}

	now := r.now()
	task := models.Task{
		ID:          id,
		UserID:      ownerID,
		Title:       fields.Title,
		Description: fields.Description,
		DueDate:     fields.DueDate,
		Priority:    fields.Priority,
		Status:      models.StatusTodo,
		Subtasks:    []models.Subtask{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.db.WithContext(ctx).Create(&task).Error; err != nil {
		return uuid.Nil, &TransportError{Op: "create task", Err: err}
	}
	return id, nil
}

// UpdateTask merges patch into the stored task. Ownership is the caller's
// responsibility.
func (r *TaskRepository) UpdateTask(ctx context.Context, id uuid.UUID, patch TaskPatch) error {
	updates, err := r.patchColumns(patch)
	if err != nil {
		return err
	}
	updates["updated_at"] = r.now()

	result := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return &TransportError{Op: "update task", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TaskRepository) patchColumns(patch TaskPatch) (map[string]interface{}, error) {
	updates := make(map[string]interface{})
	verr := &ValidationError{}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		collect(verr, "title", r.validate.Var(title, "required,max=200"))
		updates["title"] = title
	}
	if patch.Description != nil {
		updates["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.DueDate != nil {
		due := strings.TrimSpace(*patch.DueDate)
		collect(verr, "due_date", r.validate.Var(due, "required,datetime=2006-01-02"))
		updates["due_date"] = due
	}
	if patch.Priority != nil {
		if !patch.Priority.IsValid() {
			verr.add("priority", messageFor("oneof"))
		}
		updates["priority"] = string(*patch.Priority)
	}
	if patch.Status != nil {
		if !patch.Status.IsValid() {
			verr.add("status", messageFor("oneof"))
		}
		updates["status"] = string(*patch.Status)
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return updates, nil
}

// DeleteTask succeeds whether or not the task exists.
func (r *TaskRepository) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{}).Error; err != nil {
		return &TransportError{Op: "delete task", Err: err}
	}
	return nil
}

func (r *TaskRepository) AddSubtask(ctx context.Context, taskID uuid.UUID, subtask models.Subtask) (models.Subtask, error) {
	subtask.Title = strings.TrimSpace(subtask.Title)
	if subtask.Title == "" {
		return models.Subtask{}, &ValidationError{Fields: map[string]string{"title": messageFor("required")}}
	}
	if subtask.ID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return models.Subtask{}, err
		}
		subtask.ID = id.String()
	}

	err := r.mutateSubtasks(ctx, taskID, func(current []models.Subtask) ([]models.Subtask, bool, error) {
		return append(current, subtask), true, nil
	})
	if err != nil {
		return models.Subtask{}, err
	}
	return subtask, nil
}

func (r *TaskRepository) ToggleSubtask(ctx context.Context, taskID uuid.UUID, subtaskID string) (models.Subtask, error) {
	var toggled models.Subtask
	err := r.mutateSubtasks(ctx, taskID, func(current []models.Subtask) ([]models.Subtask, bool, error) {
		for i := range current {
			if current[i].ID == subtaskID {
				current[i].Completed = !current[i].Completed
				toggled = current[i]
				return current, true, nil
			}
		}
		return nil, false, ErrSubtaskNotFound
	})
	if err != nil {
		return models.Subtask{}, err
	}
	return toggled, nil
}

// RemoveSubtask is a no-op when the subtask is already gone.
func (r *TaskRepository) RemoveSubtask(ctx context.Context, taskID uuid.UUID, subtaskID string) error {
	return r.mutateSubtasks(ctx, taskID, func(current []models.Subtask) ([]models.Subtask, bool, error) {
		kept := make([]models.Subtask, 0, len(current))
		for _, s := range current {
			if s.ID != subtaskID {
				kept = append(kept, s)
			}
		}
		return kept, len(kept) != len(current), nil
	})
}

// mutateSubtasks reads the embedded sequence, applies fn and writes the whole
// sequence back. There is no version check: two sessions editing the same
// task race and the last write wins.
func (r *TaskRepository) mutateSubtasks(ctx context.Context, taskID uuid.UUID, fn func([]models.Subtask) ([]models.Subtask, bool, error)) error {
	task, err := r.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	next, changed, err := fn(task.Subtasks)
	if err != nil || !changed {
		return err
	}
	if next == nil {
		next = []models.Subtask{}
	}

	result := r.db.WithContext(ctx).
		Model(&models.Task{ID: taskID}).
		Select("subtasks", "updated_at").
		Updates(&models.Task{Subtasks: next, UpdatedAt: r.now()})
	if result.Error != nil {
		return &TransportError{Op: "update subtasks", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeSubtasks(task *models.Task) {
	if task.Subtasks == nil {
		task.Subtasks = []models.Subtask{}
	}
}
