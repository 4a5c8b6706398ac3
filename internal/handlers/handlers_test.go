package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/guard"
	"taskflow/backend/internal/handlers"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/repositories"
	"taskflow/backend/internal/services"
	"taskflow/backend/internal/session"
	"taskflow/backend/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const cookieName = "taskflow_session"

var fixedNow = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newRouter(t *testing.T, taskService services.TaskService) (*gin.Engine, *services.AuthServiceImpl) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	auth := services.NewAuthService(db, config.AuthConfig{
		JWTSecret:             "test-secret",
		Issuer:                "taskflow",
		AccessTokenTTL:        15 * time.Minute,
		RefreshTokenTTL:       24 * time.Hour,
		BCryptCost:            bcrypt.MinCost,
		SignUpEnabled:         true,
		SessionResolveTimeout: time.Second,
	})
	if taskService == nil {
		taskService = repositories.NewTaskRepository(db)
	}

	authHandler := handlers.NewAuthHandler(auth, handlers.CookieConfig{Name: cookieName})
	taskHandler := handlers.NewTaskHandler(taskService, clock)
	screenHandler := handlers.NewScreenHandler(taskService, clock, true)

	router := gin.New()
	router.POST("/api/auth/sign-in", authHandler.SignIn)
	router.POST("/api/auth/sign-up", authHandler.SignUp)
	router.POST("/api/auth/refresh", authHandler.Refresh)

	api := router.Group("/api")
	api.Use(middleware.RequireSession(auth, cookieName))
	api.POST("/auth/sign-out", authHandler.SignOut)
	api.GET("/me", authHandler.Me)
	api.GET("/tasks", taskHandler.ListTasks)
	api.POST("/tasks", taskHandler.CreateTask)
	api.GET("/tasks/:id", taskHandler.GetTask)
	api.PATCH("/tasks/:id", taskHandler.UpdateTask)
	api.DELETE("/tasks/:id", taskHandler.DeleteTask)
	api.POST("/tasks/:id/subtasks", taskHandler.AddSubtask)
	api.PATCH("/tasks/:id/subtasks/:subtaskId/toggle", taskHandler.ToggleSubtask)
	api.DELETE("/tasks/:id/subtasks/:subtaskId", taskHandler.RemoveSubtask)
	api.POST("/kanban/move", taskHandler.MoveTask)

	screens := router.Group("/")
	screens.Use(middleware.ScreenGuard(auth, guard.New(guard.DefaultConfig()), cookieName, time.Second))
	screens.GET("/", screenHandler.Landing)
	screens.GET("/login", screenHandler.SignIn)
	screens.GET("/register", screenHandler.SignUp)
	screens.GET("/dashboard", screenHandler.Dashboard)
	screens.GET("/tasks", screenHandler.Tasks)
	screens.GET("/tasks/:id", screenHandler.TaskDetail)
	screens.GET("/kanban", screenHandler.Kanban)
	screens.GET("/calendar", screenHandler.Calendar)

	return router, auth
}

func do(router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

var signUpBody = map[string]string{
	"name":             "Ana Souza",
	"email":            "ana@example.com",
	"password":         "Segredo123",
	"confirm_password": "Segredo123",
}

func signUp(t *testing.T, router *gin.Engine, email string) (string, string) {
	t.Helper()
	body := map[string]string{}
	for k, v := range signUpBody {
		body[k] = v
	}
	body["email"] = email

	w := do(router, "POST", "/api/auth/sign-up", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode(t, w)
	return resp["access_token"].(string), resp["refresh_token"].(string)
}

func TestAuth_SignUpSetsSessionCookie(t *testing.T) {
	router, _ := newRouter(t, nil)

	w := do(router, "POST", "/api/auth/sign-up", "", signUpBody)
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	assert.Equal(t, "Bearer", body["token_type"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "ana@example.com", user["email"])
	assert.Equal(t, "Ana Souza", user["name"])

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName, cookies[0].Name)
	assert.Equal(t, body["access_token"], cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestAuth_SignUpErrors(t *testing.T) {
	router, _ := newRouter(t, nil)
	signUp(t, router, "ana@example.com")

	w := do(router, "POST", "/api/auth/sign-up", "", signUpBody)
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "email-in-use", body["error"])
	assert.Equal(t, "Este e-mail já está cadastrado.", body["message"])

	w = do(router, "POST", "/api/auth/sign-up", "", map[string]string{
		"name":             "A",
		"email":            "bia@example.com",
		"password":         "fraca",
		"confirm_password": "outra",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "confirm_password")
}

func TestAuth_SignInInvalidCredential(t *testing.T) {
	router, _ := newRouter(t, nil)
	signUp(t, router, "ana@example.com")

	w := do(router, "POST", "/api/auth/sign-in", "", map[string]string{
		"email":    "ana@example.com",
		"password": "Errada123",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decode(t, w)
	assert.Equal(t, "invalid-credential", body["error"])
	assert.Equal(t, "E-mail ou senha inválidos.", body["message"])
	assert.NotEqual(t, "Erro ao fazer login.", body["message"])

	w = do(router, "POST", "/api/auth/sign-in", "", map[string]string{"email": "ana@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuth_SignInMeSignOut(t *testing.T) {
	router, auth := newRouter(t, nil)
	signUp(t, router, "ana@example.com")

	w := do(router, "POST", "/api/auth/sign-in", "", map[string]string{
		"email":    "ANA@example.com",
		"password": "Segredo123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	token := decode(t, w)["access_token"].(string)

	w = do(router, "GET", "/api/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana@example.com", decode(t, w)["email"])

	w = do(router, "POST", "/api/auth/sign-out", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0)

	w = do(router, "GET", "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, auth.ActiveWatchers())
}

func TestAuth_Refresh(t *testing.T) {
	router, _ := newRouter(t, nil)
	_, refresh := signUp(t, router, "ana@example.com")

	w := do(router, "POST", "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotEqual(t, refresh, body["refresh_token"])

	w = do(router, "GET", "/api/me", body["access_token"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, "POST", "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a rotated refresh token is spent")
}

func createTask(t *testing.T, router *gin.Engine, token string, fields map[string]string) map[string]interface{} {
	t.Helper()
	w := do(router, "POST", "/api/tasks", token, fields)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func TestTasks_CreateDefaults(t *testing.T) {
	router, _ := newRouter(t, nil)
	token, _ := signUp(t, router, "ana@example.com")

	task := createTask(t, router, token, map[string]string{"title": "Write report", "due_date": "2025-01-10"})
	assert.Equal(t, "todo", task["status"])
	assert.Equal(t, "medium", task["priority"])
	assert.Equal(t, []interface{}{}, task["subtasks"])
	assert.EqualValues(t, 0, task["progress"])
	assert.Equal(t, false, task["overdue"])

	w := do(router, "POST", "/api/tasks", token, map[string]string{"description": "no title"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]interface{})
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "due_date")

	w = do(router, "GET", "/api/tasks", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

func TestTasks_OtherUsersTasksAreHidden(t *testing.T) {
	router, _ := newRouter(t, nil)
	owner, _ := signUp(t, router, "ana@example.com")
	stranger, _ := signUp(t, router, "bia@example.com")

	task := createTask(t, router, owner, map[string]string{"title": "Private", "due_date": "2025-01-10"})
	path := "/api/tasks/" + task["id"].(string)

	assert.Equal(t, http.StatusNotFound, do(router, "GET", path, stranger, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(router, "PATCH", path, stranger, map[string]string{"title": "Mine"}).Code)
	assert.Equal(t, http.StatusNoContent, do(router, "DELETE", path, stranger, nil).Code)

	w := do(router, "GET", path, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Private", decode(t, w)["title"])

	assert.Equal(t, http.StatusNotFound, do(router, "GET", "/api/tasks/not-a-uuid", owner, nil).Code)
}

func TestTasks_UpdateAndDelete(t *testing.T) {
	router, _ := newRouter(t, nil)
	token, _ := signUp(t, router, "ana@example.com")
	task := createTask(t, router, token, map[string]string{"title": "Write report", "due_date": "2025-01-10"})
	path := "/api/tasks/" + task["id"].(string)

	w := do(router, "PATCH", path, token, map[string]string{"status": "doing", "priority": "high"})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode(t, w)
	assert.Equal(t, "doing", updated["status"])
	assert.Equal(t, "high", updated["priority"])

	w = do(router, "PATCH", path, token, map[string]string{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNoContent, do(router, "DELETE", path, token, nil).Code)
	assert.Equal(t, http.StatusNoContent, do(router, "DELETE", path, token, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(router, "GET", path, token, nil).Code)
}

func TestTasks_SubtaskProgress(t *testing.T) {
	router, _ := newRouter(t, nil)
	token, _ := signUp(t, router, "ana@example.com")
	task := createTask(t, router, token, map[string]string{"title": "Move house", "due_date": "2025-01-10"})
	path := "/api/tasks/" + task["id"].(string)

	for _, id := range []string{"a", "b", "c", "d"} {
		w := do(router, "POST", path+"/subtasks", token, map[string]string{"id": id, "title": "Step " + id})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(router, "PATCH", path+"/subtasks/a/toggle", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 25, decode(t, w)["progress"])

	w = do(router, "PATCH", path+"/subtasks/b/toggle", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 50, decode(t, w)["progress"])

	w = do(router, "PATCH", path+"/subtasks/zzz/toggle", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, "DELETE", path+"/subtasks/a", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["subtasks"], 3)
	assert.EqualValues(t, 33, body["progress"])

	w = do(router, "POST", path+"/subtasks", token, map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTasks_KanbanMove(t *testing.T) {
	router, _ := newRouter(t, nil)
	token, _ := signUp(t, router, "ana@example.com")
	task := createTask(t, router, token, map[string]string{"title": "Write report", "due_date": "2025-01-10"})
	id := task["id"].(string)

	w := do(router, "POST", "/api/kanban/move", token, map[string]string{"task_id": id, "column": "done"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "moved", body["outcome"])
	columns := body["columns"].([]interface{})
	require.Len(t, columns, 3)
	done := columns[2].(map[string]interface{})
	assert.Equal(t, "done", done["id"])
	assert.Len(t, done["tasks"], 1)

	for _, column := range []string{"done", "archived"} {
		w = do(router, "POST", "/api/kanban/move", token, map[string]string{"task_id": id, "column": column})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ignored", decode(t, w)["outcome"], column)
	}

	w = do(router, "POST", "/api/kanban/move", token, map[string]string{"task_id": uuid.Must(uuid.NewV4()).String(), "column": "todo"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ignored", decode(t, w)["outcome"])
}

func TestScreens(t *testing.T) {
	router, _ := newRouter(t, nil)
	token, _ := signUp(t, router, "ana@example.com")
	createTask(t, router, token, map[string]string{"title": "Late", "due_date": "2025-01-02", "priority": "high"})
	createTask(t, router, token, map[string]string{"title": "Soon", "due_date": "2025-02-10"})

	screen := func(path, token string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest("GET", path, nil)
		if token != "" {
			req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := screen("/dashboard", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = screen("/login", token)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))

	w = screen("/dashboard", token)
	require.Equal(t, http.StatusOK, w.Code)
	dashboard := decode(t, w)["dashboard"].(map[string]interface{})
	assert.EqualValues(t, 2, dashboard["total"])
	assert.EqualValues(t, 2, dashboard["pending"])
	assert.EqualValues(t, 1, dashboard["overdue"])
	assert.EqualValues(t, 1, dashboard["by_priority"].(map[string]interface{})["high"])

	w = screen("/calendar?month=2025-02", token)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode(t, w)["events"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "Soon", events[0].(map[string]interface{})["title"])

	w = screen("/calendar?month=febrero", token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = screen("/kanban", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["columns"], 3)

	w = screen("/tasks", token)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode(t, w)["tasks"].([]interface{})
	require.Len(t, tasks, 2)

	var lateID string
	for _, raw := range tasks {
		if card := raw.(map[string]interface{}); card["title"] == "Late" {
			lateID = card["id"].(string)
		}
	}
	require.NotEmpty(t, lateID)
	w = screen("/tasks/"+lateID, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["task"].(map[string]interface{})["overdue"])

	w = screen("/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["signed_in"])
}

type failingTasks struct {
	services.TaskService
}

func (failingTasks) ListTasks(context.Context, *session.Identity, uuid.UUID) ([]models.Task, error) {
	return nil, &repositories.TransportError{Op: "list tasks", Err: errors.New("connection refused")}
}

func TestTasks_StorageFailureIsGeneric(t *testing.T) {
	router, _ := newRouter(t, failingTasks{})
	token, _ := signUp(t, router, "ana@example.com")

	w := do(router, "GET", "/api/tasks", token, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "internal_error", body["error"])
	assert.Equal(t, "Erro inesperado. Tente novamente.", body["message"])
	assert.NotContains(t, w.Body.String(), "connection refused")
}
