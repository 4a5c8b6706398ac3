// Package kanban applies drag-and-drop moves to one screen's copy of the task
// collection.
package kanban

import (
	"context"
	"sync"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type StatusWriter interface {
	UpdateTask(ctx context.Context, id uuid.UUID, patch repositories.TaskPatch) error
}

type Outcome int

const (
	// Ignored means nothing was written: unknown column, unknown task or the
	// task already sits in the target column.
	Ignored Outcome = iota
	Moved
	// Discarded means the write succeeded but the board was closed before it
	// returned, so the local copy was left alone.
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Moved:
		return "moved"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Board is one screen's in-memory task collection. The local copy changes
// only after the store confirms the write, so a failed move leaves nothing to
// roll back.
type Board struct {
	mu     sync.RWMutex
	tasks  []models.Task
	writer StatusWriter
	closed bool
}

func NewBoard(tasks []models.Task, writer StatusWriter) *Board {
	local := make([]models.Task, len(tasks))
	copy(local, tasks)
	return &Board{tasks: local, writer: writer}
}

func (b *Board) Tasks() []models.Task {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Task, len(b.tasks))
	copy(out, b.tasks)
	return out
}

// Move handles a drag completion of taskID onto column.
func (b *Board) Move(ctx context.Context, taskID uuid.UUID, column string) (Outcome, error) {
	target, ok := models.ParseStatus(column)
	if !ok {
		return Ignored, nil
	}

	b.mu.RLock()
	idx := b.indexOf(taskID)
	current := models.Status("")
	if idx >= 0 {
		current = b.tasks[idx].Status
	}
	closed := b.closed
	b.mu.RUnlock()

	if closed || idx < 0 || current == target {
		return Ignored, nil
	}

	if err := b.writer.UpdateTask(ctx, taskID, repositories.TaskPatch{Status: &target}); err != nil {
		return Ignored, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Discarded, nil
	}
	if i := b.indexOf(taskID); i >= 0 {
		b.tasks[i].Status = target
	}
	return Moved, nil
}

// Close marks the board as gone. Writes still in flight complete but their
// results are not applied.
func (b *Board) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *Board) indexOf(id uuid.UUID) int {
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			return i
		}
	}
	return -1
}
