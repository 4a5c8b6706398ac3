package handlers

import (
	"net/http"
	"time"

	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"
	"taskflow/backend/internal/session"
	"taskflow/backend/internal/views"

	"github.com/gin-gonic/gin"
)

// ScreenHandler renders the view model of each screen. Routes run behind
// middleware.ScreenGuard, so protected screens always have an identity.
type ScreenHandler struct {
	taskService   services.TaskService
	now           func() time.Time
	signUpEnabled bool
}

func NewScreenHandler(taskService services.TaskService, now func() time.Time, signUpEnabled bool) *ScreenHandler {
	if now == nil {
		now = time.Now
	}
	return &ScreenHandler{taskService: taskService, now: now, signUpEnabled: signUpEnabled}
}

func (h *ScreenHandler) Landing(c *gin.Context) {
	snap := middleware.SnapshotFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"screen":    "landing",
		"signed_in": snap.State == session.Authenticated,
	})
}

func (h *ScreenHandler) SignIn(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"screen": "login"})
}

func (h *ScreenHandler) SignUp(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"screen":          "register",
		"sign_up_enabled": h.signUpEnabled,
	})
}

// tasksFor loads the signed-in user's tasks, writing the error response and
// returning ok=false on failure.
func (h *ScreenHandler) tasksFor(c *gin.Context) (*session.Identity, []models.Task, bool) {
	identity, ok := caller(c)
	if !ok {
		return nil, nil, false
	}
	tasks, err := h.taskService.ListTasks(c.Request.Context(), identity, identity.UserID)
	if err != nil {
		handleError(c, err)
		return nil, nil, false
	}
	return identity, tasks, true
}

func (h *ScreenHandler) Dashboard(c *gin.Context) {
	identity, tasks, ok := h.tasksFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"screen":    "dashboard",
		"user":      identity,
		"dashboard": views.BuildDashboard(tasks, h.now()),
	})
}

func (h *ScreenHandler) Tasks(c *gin.Context) {
	_, tasks, ok := h.tasksFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"screen": "tasks",
		"tasks":  views.Cards(tasks, h.now()),
	})
}

func (h *ScreenHandler) TaskDetail(c *gin.Context) {
	identity, ok := caller(c)
	if !ok {
		return
	}
	tasks := &TaskHandler{taskService: h.taskService, now: h.now}
	task, err := tasks.ownedTask(c, identity)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"screen": "task",
		"task":   views.Card(task, h.now()),
	})
}

func (h *ScreenHandler) Kanban(c *gin.Context) {
	_, tasks, ok := h.tasksFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"screen":  "kanban",
		"columns": views.Board(tasks, h.now()),
	})
}

// Calendar lists every dated task as an event. ?month=YYYY-MM narrows the
// list to one month.
func (h *ScreenHandler) Calendar(c *gin.Context) {
	_, tasks, ok := h.tasksFor(c)
	if !ok {
		return
	}

	events := views.Calendar(tasks, h.now())
	if month := c.Query("month"); month != "" {
		m, err := time.Parse("2006-01", month)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "month must be YYYY-MM",
			})
			return
		}
		events = views.InMonth(events, m.Year(), m.Month())
	}

	c.JSON(http.StatusOK, gin.H{
		"screen": "calendar",
		"events": events,
	})
}
