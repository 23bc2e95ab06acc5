// Package app wires configuration, storage, policies and handlers into
// one http.Handler shared by the server and serverless entrypoints.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tracker-api/internal/auth"
	"tracker-api/internal/authz"
	"tracker-api/internal/cache"
	"tracker-api/internal/db"
	"tracker-api/internal/maintenance"
	"tracker-api/internal/observability"
	"tracker-api/internal/project"
	"tracker-api/internal/stats"
	"tracker-api/internal/task"
	"tracker-api/internal/user"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Logger  *observability.Logger
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, jwtSecret)
	authService.WithTokenTTL(envHoursOrDefault("TOKEN_TTL_HOURS", 24))
	authHandler := auth.NewHandler(authService)

	if err := authService.EnsureAdmin(
		context.Background(),
		os.Getenv("ADMIN_NAME"),
		os.Getenv("ADMIN_EMAIL"),
		os.Getenv("ADMIN_PASSWORD"),
	); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	projectRepo := project.NewRepository(database)
	taskRepo := task.NewRepository(database)
	policy := authz.NewService(projectRepo, taskRepo)

	projectHandler := project.NewHandler(projectRepo, policy)
	taskHandler := task.NewHandler(taskRepo, policy)
	userHandler := user.NewHandler(user.NewRepository(database), authService, authRepo)

	responseCache := buildCache(logger)
	statsHandler := stats.NewHandler(
		stats.NewRepository(database),
		responseCache,
		envSecondsOrDefault("STATS_CACHE_TTL_SECONDS", 30),
	)

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envHoursOrDefault("LOGIN_IP_LIMIT_RETENTION_HOURS", 24),
		envIntOrDefault("SECURITY_CLEANUP_BATCH_SIZE", 500),
	)

	loginLimiter := auth.NewLoginRateLimiter(
		authRepo,
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	protect := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(jwtSecret, h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(jwtSecret, auth.RequireAdmin(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))

	mux.Handle("GET /projects", protect(projectHandler.ListProjects))
	mux.Handle("POST /projects", protect(projectHandler.CreateProject))
	mux.Handle("GET /projects/{id}", protect(projectHandler.GetProject))
	mux.Handle("PUT /projects/{id}", protect(projectHandler.UpdateProject))
	mux.Handle("DELETE /projects/{id}", protect(projectHandler.DeleteProject))

	mux.Handle("GET /tasks", protect(taskHandler.ListTasks))
	mux.Handle("POST /tasks", protect(taskHandler.CreateTask))
	mux.Handle("PUT /tasks/{id}", protect(taskHandler.UpdateTask))
	mux.Handle("PATCH /tasks/{id}/status", protect(taskHandler.UpdateTaskStatus))
	mux.Handle("DELETE /tasks/{id}", protect(taskHandler.DeleteTask))

	mux.Handle("GET /users", admin(userHandler.ListUsers))
	mux.Handle("POST /users", admin(userHandler.CreateUser))
	mux.Handle("GET /users/{id}", admin(userHandler.GetUser))
	mux.Handle("PUT /users/{id}", admin(userHandler.UpdateUser))
	mux.Handle("DELETE /users/{id}", admin(userHandler.DeleteUser))
	mux.Handle("POST /users/{id}/unlock", admin(userHandler.UnlockUser))

	mux.Handle("GET /stats/overview", protect(statsHandler.Overview))
	mux.Handle("GET /stats/charts", protect(statsHandler.Charts))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			_ = responseCache.Close()
			return database.Close()
		},
	}, nil
}

// buildCache picks Redis when configured, the in-process cache
// otherwise. A Redis that won't connect degrades to memory with a log
// line rather than failing bootstrap.
func buildCache(logger *observability.Logger) cache.Cache {
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if redisURL == "" {
		return cache.NewMemoryCache()
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		logger.Warn("redis_cache_unavailable", map[string]any{"error": err.Error()})
		return cache.NewMemoryCache()
	}

	return redisCache
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
