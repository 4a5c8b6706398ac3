package handlers

import (
	"errors"
	"net/http"
	"time"

	"taskflow/backend/internal/kanban"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/repositories"
	"taskflow/backend/internal/services"
	"taskflow/backend/internal/session"
	"taskflow/backend/internal/views"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type TaskHandler struct {
	taskService services.TaskService
	now         func() time.Time
}

type SubtaskRequest struct {
	ID    string `json:"id"`
	Title string `json:"title" binding:"required"`
}

type MoveRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	Column string `json:"column" binding:"required"`
}

// NewTaskHandler serves the task API. now supplies the clock, in the user's
// location, for overdue flags.
func NewTaskHandler(taskService services.TaskService, now func() time.Time) *TaskHandler {
	if now == nil {
		now = time.Now
	}
	return &TaskHandler{taskService: taskService, now: now}
}

func caller(c *gin.Context) (*session.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return identity, ok
}

// ownedTask loads the task named by the :id param. Tasks of other users are
// reported as not found.
func (h *TaskHandler) ownedTask(c *gin.Context, identity *session.Identity) (models.Task, error) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		return models.Task{}, repositories.ErrNotFound
	}
	task, err := h.taskService.GetTask(c.Request.Context(), id)
	if err != nil {
		return models.Task{}, err
	}
	if task.UserID != identity.UserID {
		return models.Task{}, repositories.ErrNotFound
	}
	return task, nil
}

func (h *TaskHandler) respondTask(c *gin.Context, status int, id uuid.UUID) {
	task, err := h.taskService.GetTask(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(status, views.Card(task, h.now()))
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	tasks, err := h.taskService.ListTasks(c.Request.Context(), identity, identity.UserID)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": views.Cards(tasks, h.now()),
		"total": len(tasks),
	})
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	var fields repositories.TaskFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, err)
		return
	}

	id, err := h.taskService.CreateTask(c.Request.Context(), identity, identity.UserID, fields)
	if err != nil {
		handleError(c, err)
		return
	}
	h.respondTask(c, http.StatusCreated, id)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	task, err := h.ownedTask(c, identity)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, views.Card(task, h.now()))
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	task, err := h.ownedTask(c, identity)
	if err != nil {
		handleError(c, err)
		return
	}

	var patch repositories.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	if patch.IsEmpty() {
		c.JSON(http.StatusOK, views.Card(task, h.now()))
		return
	}

	if err := h.taskService.UpdateTask(c.Request.Context(), task.ID, patch); err != nil {
		handleError(c, err)
		return
	}
	h.respondTask(c, http.StatusOK, task.ID)
}

// DeleteTask answers 204 whether or not the task existed.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	task, err := h.ownedTask(c, identity)
	if errors.Is(err, repositories.ErrNotFound) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), task.ID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) AddSubtask(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	task, err := h.ownedTask(c, identity)
	if err != nil {
		handleError(c, err)
		return
	}

	var req SubtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if _, err := h.taskService.AddSubtask(c.Request.Context(), task.ID, models.Subtask{ID: req.ID, Title: req.Title}); err != nil {
		handleError(c, err)
		return
	}
	h.respondTask(c, http.StatusCreated, task.ID)
}

func (h *TaskHandler) ToggleSubtask(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	task, err := h.ownedTask(c, identity)
	if err != nil {
		handleError(c, err)
		return
	}

	if _, err := h.taskService.ToggleSubtask(c.Request.Context(), task.ID, c.Param("subtaskId")); err != nil {
		handleError(c, err)
		return
	}
	h.respondTask(c, http.StatusOK, task.ID)
}

func (h *TaskHandler) RemoveSubtask(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	task, err := h.ownedTask(c, identity)
	if err != nil {
		handleError(c, err)
		return
	}

	if err := h.taskService.RemoveSubtask(c.Request.Context(), task.ID, c.Param("subtaskId")); err != nil {
		handleError(c, err)
		return
	}
	h.respondTask(c, http.StatusOK, task.ID)
}

// MoveTask is the drop target of the kanban board. Drops onto an unknown
// column, onto the task's own column or of an unknown task change nothing.
func (h *TaskHandler) MoveTask(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}

	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	taskID, err := uuid.FromString(req.TaskID)
	if err != nil {
		taskID = uuid.Nil
	}

	tasks, err := h.taskService.ListTasks(c.Request.Context(), identity, identity.UserID)
	if err != nil {
		handleError(c, err)
		return
	}

	board := kanban.NewBoard(tasks, h.taskService)
	defer board.Close()

	outcome, err := board.Move(c.Request.Context(), taskID, req.Column)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome": outcome.String(),
		"columns": views.Board(board.Tasks(), h.now()),
	})
}
