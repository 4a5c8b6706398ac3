package api

import (
	"net/http"
	"time"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/guard"
	"taskflow/backend/internal/handlers"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/monitoring"
	"taskflow/backend/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Dependencies struct {
	Config  *config.Config
	Auth    services.AuthService
	Tasks   services.TaskService
	Monitor *monitoring.Monitor
	// Limiter is optional; nil disables rate limiting of the API.
	Limiter *middleware.RateLimiter
}

// SetupRouter wires every route: ops endpoints, the JSON API under /api and
// the guarded screens.
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	loc := cfg.Location()
	now := func() time.Time { return time.Now().In(loc) }

	router := gin.New()
	router.Use(middleware.RecoveryWithLog())
	if cfg.Server.Environment != "test" {
		router.Use(gin.Logger())
	}
	router.Use(deps.Monitor.MetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Location"},
		AllowCredentials: true,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	router.GET("/health", deps.Monitor.HealthHandler())
	router.GET("/ready", deps.Monitor.ReadinessHandler())
	router.GET("/live", deps.Monitor.LivenessHandler())
	router.GET("/metrics", deps.Monitor.MetricsHandler())

	authHandler := handlers.NewAuthHandler(deps.Auth, handlers.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
	})
	taskHandler := handlers.NewTaskHandler(deps.Tasks, now)
	screenHandler := handlers.NewScreenHandler(deps.Tasks, now, cfg.Auth.SignUpEnabled)

	api := router.Group("/api")
	if deps.Limiter != nil {
		api.Use(deps.Limiter.Middleware())
	}
	{
		api.POST("/auth/sign-in", authHandler.SignIn)
		api.POST("/auth/sign-up", authHandler.SignUp)
		api.POST("/auth/refresh", authHandler.Refresh)
	}

	protected := api.Group("")
	protected.Use(middleware.RequireSession(deps.Auth, cfg.Auth.CookieName))
	{
		protected.POST("/auth/sign-out", authHandler.SignOut)
		protected.GET("/me", authHandler.Me)

		protected.GET("/tasks", taskHandler.ListTasks)
		protected.POST("/tasks", taskHandler.CreateTask)
		protected.GET("/tasks/:id", taskHandler.GetTask)
		protected.PATCH("/tasks/:id", taskHandler.UpdateTask)
		protected.DELETE("/tasks/:id", taskHandler.DeleteTask)
		protected.POST("/tasks/:id/subtasks", taskHandler.AddSubtask)
		protected.PATCH("/tasks/:id/subtasks/:subtaskId/toggle", taskHandler.ToggleSubtask)
		protected.DELETE("/tasks/:id/subtasks/:subtaskId", taskHandler.RemoveSubtask)

		protected.POST("/kanban/move", taskHandler.MoveTask)
	}

	screens := router.Group("/")
	screens.Use(middleware.ScreenGuard(deps.Auth, guard.New(guard.DefaultConfig()), cfg.Auth.CookieName, cfg.Auth.SessionResolveTimeout))
	{
		screens.GET(guard.RouteLanding, screenHandler.Landing)
		screens.GET(guard.RouteSignIn, screenHandler.SignIn)
		screens.GET(guard.RouteSignUp, screenHandler.SignUp)
		screens.GET(guard.RouteMain, screenHandler.Dashboard)
		screens.GET("/tasks", screenHandler.Tasks)
		screens.GET("/tasks/:id", screenHandler.TaskDetail)
		screens.GET("/kanban", screenHandler.Kanban)
		screens.GET("/calendar", screenHandler.Calendar)
	}

	return router
}
