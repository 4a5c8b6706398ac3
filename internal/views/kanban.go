package views

import (
	"time"

	"taskflow/backend/internal/models"
)

type Column struct {
	ID    models.Status `json:"id"`
	Title string        `json:"title"`
	Tasks []TaskCard    `json:"tasks"`
}

var columnTitles = map[models.Status]string{
	models.StatusTodo:  "A Fazer",
	models.StatusDoing: "Fazendo",
	models.StatusDone:  "Concluído",
}

// GroupByStatus partitions tasks into the three status buckets, keeping the
// input order inside each bucket. Tasks with an unknown status are dropped.
func GroupByStatus(tasks []models.Task) map[models.Status][]models.Task {
	groups := map[models.Status][]models.Task{
		models.StatusTodo:  {},
		models.StatusDoing: {},
		models.StatusDone:  {},
	}
	for _, t := range tasks {
		if _, ok := groups[t.Status]; ok {
			groups[t.Status] = append(groups[t.Status], t)
		}
	}
	return groups
}

// Board lays the grouped tasks out as ordered columns.
func Board(tasks []models.Task, now time.Time) []Column {
	groups := GroupByStatus(tasks)
	columns := make([]Column, 0, len(models.Statuses))
	for _, status := range models.Statuses {
		columns = append(columns, Column{
			ID:    status,
			Title: columnTitles[status],
			Tasks: Cards(groups[status], now),
		})
	}
	return columns
}
