package views

import (
	"time"

	"taskflow/backend/internal/models"
)

type CalendarEvent struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Start    string   `json:"start"`
	Priority string   `json:"priority"`
	Task     TaskCard `json:"task"`
}

// Calendar maps every task with a due date to an all-day event on that date.
func Calendar(tasks []models.Task, now time.Time) []CalendarEvent {
	events := make([]CalendarEvent, 0, len(tasks))
	for _, t := range tasks {
		if t.DueDate == "" {
			continue
		}
		events = append(events, CalendarEvent{
			ID:       t.ID.String(),
			Title:    t.Title,
			Start:    t.DueDate,
			Priority: string(t.Priority),
			Task:     Card(t, now),
		})
	}
	return events
}

// InMonth keeps the events whose start falls in the given month.
func InMonth(events []CalendarEvent, year int, month time.Month) []CalendarEvent {
	kept := make([]CalendarEvent, 0, len(events))
	for _, e := range events {
		d, err := time.Parse(models.DueDateLayout, e.Start)
		if err != nil {
			continue
		}
		if d.Year() == year && d.Month() == month {
			kept = append(kept, e)
		}
	}
	return kept
}
