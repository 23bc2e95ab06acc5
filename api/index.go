// Package api exposes the tracker as a single serverless function.
// The runtime is built lazily on first invocation and reused across
// warm invocations.
package api

import (
	"net/http"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tracker-api/internal/app"
)

var (
	once     sync.Once
	runtime  *app.Runtime
	buildErr error
)

func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		runtime, buildErr = app.Build(app.Options{
			LoadDotEnv:    false,
			RunMigrations: app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
		})
	})

	if buildErr != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	runtime.Handler.ServeHTTP(w, r)
}
