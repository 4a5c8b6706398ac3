package main

import (
	"context"
	"fmt"
	"log"

	"taskflow/backend/internal/api"
	"taskflow/backend/internal/cache"
	"taskflow/backend/internal/config"
	"taskflow/backend/internal/database"
	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/monitoring"
	"taskflow/backend/internal/repositories"
	"taskflow/backend/internal/services"
	"taskflow/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// app holds every long-lived dependency of the process.
type app struct {
	cfg     *config.Config
	pool    *database.DatabasePool
	redis   *redis.Client
	cache   *cache.MultiLevelCache
	queue   *worker.JobQueue
	auth    *services.AuthServiceImpl
	repo    *repositories.TaskRepository
	tasks   *services.CachedTaskService
	monitor *monitoring.Monitor
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newApp connects to the database (and Redis, when enabled) and builds the
// services on top. The Redis client is shared by the cache and the job queue.
func newApp(cfg *config.Config) (*app, error) {
	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, pool: pool, monitor: monitoring.NewMonitor()}

	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		a.redis = cache.NewRedisClient(&cache.CacheConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		redisCache = cache.NewRedisCacheFromClient(a.redis, cfg.Redis.KeyPrefix+"cache:")
		a.queue = worker.NewJobQueue(a.redis, cfg.Redis.KeyPrefix+"jobs:").WithMaxTries(cfg.Worker.MaxRetries)
	} else {
		log.Println("Redis disabled: using in-process cache only, reminders off")
	}

	a.cache = cache.NewMultiLevelCache(redisCache, &cache.MultiLevelConfig{
		L1MaxEntries: cfg.Cache.L1MaxEntries,
		L1TTL:        cfg.Cache.L1TTL,
	})
	a.auth = services.NewAuthService(pool.DB, cfg.Auth)
	a.repo = repositories.NewTaskRepository(pool.DB)
	a.tasks = services.NewCachedTaskService(a.repo, a.cache, cfg.Cache.TaskTTL)
	if a.queue != nil {
		a.tasks.WithReminders(a.reminders())
	}

	a.registerMonitoring()
	return a, nil
}

func (a *app) reminders() *worker.Reminders {
	return worker.NewReminders(a.queue, a.repo, worker.LogNotifier{}, a.cfg.Location())
}

func (a *app) registerMonitoring() {
	a.monitor.RegisterHealthCheck("database", a.pool.Health)
	a.monitor.RegisterStats("database", func() interface{} { return a.pool.Stats() })
	a.monitor.RegisterStats("cache", func() interface{} { return a.cache.Stats() })
	a.monitor.RegisterStats("sessions", func() interface{} {
		return map[string]int{"watchers": a.auth.ActiveWatchers()}
	})

	if a.redis != nil {
		a.monitor.RegisterHealthCheck("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
		a.monitor.RegisterStats("jobs", func() interface{} {
			ctx := context.Background()
			stats := map[string]int64{}
			for _, queue := range a.cfg.Worker.Queues {
				if n, err := a.queue.GetQueueSize(ctx, queue); err == nil {
					stats["queue_"+queue] = n
				}
			}
			if n, err := a.queue.ScheduledCount(ctx); err == nil {
				stats["scheduled"] = n
			}
			if n, err := a.queue.DeadCount(ctx); err == nil {
				stats["dead"] = n
			}
			return stats
		})
	}
}

func (a *app) router(limiter *middleware.RateLimiter) *gin.Engine {
	return api.SetupRouter(api.Dependencies{
		Config:  a.cfg,
		Auth:    a.auth,
		Tasks:   a.tasks,
		Monitor: a.monitor,
		Limiter: limiter,
	})
}

// Close releases the cache (which owns the shared Redis client) and the pool.
func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		log.Printf("Error closing cache: %v", err)
	}
	if err := a.pool.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}
