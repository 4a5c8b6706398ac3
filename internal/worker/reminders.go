package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"taskflow/backend/internal/models"
	"taskflow/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

const ReminderQueue = "reminders"

type TaskReader interface {
	GetTask(ctx context.Context, id uuid.UUID) (models.Task, error)
}

// Notifier delivers a reminder for a task that has become due.
type Notifier interface {
	NotifyDue(ctx context.Context, task models.Task) error
}

type LogNotifier struct{}

func (LogNotifier) NotifyDue(_ context.Context, task models.Task) error {
	log.Printf("Reminder: task %s (%q) for user %s is due on %s", task.ID, task.Title, task.UserID, task.DueDate)
	return nil
}

// Reminders schedules one reminder per task at the start of its due day and
// delivers it when the day arrives, unless the task was finished, deleted or
// moved to another date in the meantime.
type Reminders struct {
	queue    *JobQueue
	tasks    TaskReader
	notifier Notifier
	loc      *time.Location
}

func NewReminders(queue *JobQueue, tasks TaskReader, notifier Notifier, loc *time.Location) *Reminders {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Reminders{queue: queue, tasks: tasks, notifier: notifier, loc: loc}
}

func reminderID(taskID uuid.UUID) string {
	return "reminder:" + taskID.String()
}

func (r *Reminders) ScheduleDueReminder(ctx context.Context, task models.Task) error {
	due, ok := task.DueTime(r.loc)
	if !ok || task.Status == models.StatusDone {
		return r.queue.Cancel(ctx, reminderID(task.ID))
	}

	return r.queue.ScheduleUnique(ctx, reminderID(task.ID), ReminderQueue, JobTypeDueReminder, map[string]interface{}{
		"task_id":  task.ID.String(),
		"due_date": task.DueDate,
	}, due)
}

func (r *Reminders) Handle(ctx context.Context, job *Job) error {
	taskID, err := uuid.FromString(job.PayloadString("task_id"))
	if err != nil {
		return fmt.Errorf("invalid task_id in job %s: %w", job.ID, err)
	}

	task, err := r.tasks.GetTask(ctx, taskID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if task.Status == models.StatusDone || task.DueDate != job.PayloadString("due_date") {
		return nil
	}
	return r.notifier.NotifyDue(ctx, task)
}

func (r *Reminders) Register(w *Worker) {
	w.RegisterHandler(JobTypeDueReminder, r.Handle)
}
