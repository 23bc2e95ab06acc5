package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tracker-api/internal/app"
)

func main() {
	runtime, err := app.Build(app.Options{
		LoadDotEnv:    true,
		RunMigrations: app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", true),
	})
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			runtime.Logger.Error("shutdown_failed", map[string]any{"error": err.Error()})
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	runtime.Logger.Info("server_listening", map[string]any{"port": port})
	if err := http.ListenAndServe(":"+port, runtime.Handler); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
