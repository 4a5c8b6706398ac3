package views

import (
	"time"

	"taskflow/backend/internal/models"
)

type Dashboard struct {
	Total             int                     `json:"total"`
	Pending           int                     `json:"pending"`
	Overdue           int                     `json:"overdue"`
	CompletedThisWeek int                     `json:"completed_this_week"`
	ByPriority        map[models.Priority]int `json:"by_priority"`
	ByStatus          map[models.Status]int   `json:"by_status"`
	WeekStartsAt      time.Time               `json:"week_starts_at"`
}

// BuildDashboard aggregates tasks as seen at now. A task counts as completed
// this week when it is done and was last updated on or after local Sunday.
func BuildDashboard(tasks []models.Task, now time.Time) Dashboard {
	weekStart := StartOfWeek(now)

	d := Dashboard{
		Total:        len(tasks),
		ByPriority:   make(map[models.Priority]int, len(models.Priorities)),
		ByStatus:     make(map[models.Status]int, len(models.Statuses)),
		WeekStartsAt: weekStart,
	}
	for _, p := range models.Priorities {
		d.ByPriority[p] = 0
	}
	for _, s := range models.Statuses {
		d.ByStatus[s] = 0
	}

	for _, t := range tasks {
		if t.Priority.IsValid() {
			d.ByPriority[t.Priority]++
		}
		if t.Status.IsValid() {
			d.ByStatus[t.Status]++
		}
		if t.Status != models.StatusDone {
			d.Pending++
		} else if !t.UpdatedAt.Before(weekStart) {
			d.CompletedThisWeek++
		}
		if IsOverdue(t, now) {
			d.Overdue++
		}
	}
	return d
}
