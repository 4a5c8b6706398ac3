// Package views turns a task collection into the shapes the screens render.
// Every function here is pure: the caller supplies the clock and location.
package views

import (
	"math"
	"time"

	"taskflow/backend/internal/models"
)

// Progress is the rounded share of completed subtasks, 0 when there are none.
func Progress(subtasks []models.Subtask) int {
	if len(subtasks) == 0 {
		return 0
	}
	completed := 0
	for _, s := range subtasks {
		if s.Completed {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(subtasks))))
}

// IsOverdue reports whether the due day started strictly before now and the
// task is not done. Tasks without a readable due date are never overdue.
func IsOverdue(task models.Task, now time.Time) bool {
	if task.Status == models.StatusDone {
		return false
	}
	due, ok := task.DueTime(now.Location())
	if !ok {
		return false
	}
	return due.Before(now)
}

// StartOfWeek returns local Sunday 00:00 of the week containing now.
func StartOfWeek(now time.Time) time.Time {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, -int(midnight.Weekday()))
}

type TaskCard struct {
	models.Task
	Progress int  `json:"progress"`
	Overdue  bool `json:"overdue"`
}

func Card(task models.Task, now time.Time) TaskCard {
	return TaskCard{
		Task:     task,
		Progress: Progress(task.Subtasks),
		Overdue:  IsOverdue(task, now),
	}
}

func Cards(tasks []models.Task, now time.Time) []TaskCard {
	cards := make([]TaskCard, 0, len(tasks))
	for _, t := range tasks {
		cards = append(cards, Card(t, now))
	}
	return cards
}
