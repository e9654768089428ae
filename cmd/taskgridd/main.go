// Command taskgridd runs the taskgrid coordination server: the HTTP API,
// the lease sweeper, and a Prometheus metrics endpoint. Workers are
// separate processes built on the worker package; this binary only
// coordinates.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskgrid/taskgrid"
	"github.com/taskgrid/taskgrid/api"
	"github.com/taskgrid/taskgrid/engine"
	"github.com/taskgrid/taskgrid/store/memory"
	"github.com/taskgrid/taskgrid/store/postgres"
	redisstore "github.com/taskgrid/taskgrid/store/redis"
)

const version = "1.0.0"

func main() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting taskgridd", "version", version)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	if err := store.Ping(ctx); err != nil {
		slog.Error("failed to ping store", "error", err)
		os.Exit(1)
	}
	if err := store.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	c, err := taskgrid.New(
		taskgrid.WithStore(store),
		taskgrid.WithLogger(logger),
		taskgrid.WithLeaseDuration(getEnvDuration("LEASE_DURATION", 5*time.Minute)),
		taskgrid.WithSweepInterval(getEnvDuration("SWEEP_INTERVAL", 30*time.Second)),
		taskgrid.WithDefaultMaxAttempts(getEnvInt("MAX_ATTEMPTS", 3)),
		taskgrid.WithShutdownTimeout(getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)),
	)
	if err != nil {
		slog.Error("failed to configure coordinator", "error", err)
		os.Exit(1)
	}

	eng, err := engine.Build(c)
	if err != nil {
		slog.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(ctx); err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	// Prometheus metrics + liveness on a side port.
	metricsPort := getEnv("METRICS_PORT", "9090")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  "ok",
				"version": version,
			})
		})

		addr := ":" + metricsPort
		slog.Info("metrics server listening", "addr", addr)
		if serveErr := http.ListenAndServe(addr, mux); serveErr != nil {
			slog.Error("metrics server failed", "error", serveErr)
		}
	}()

	// API server.
	apiPort := getEnv("HTTP_PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + apiPort,
		Handler:           api.New(eng, nil).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("api server listening", "addr", srv.Addr)
		if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("api server failed", "error", serveErr)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.Config().ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		slog.Error("engine shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("shutdown complete")
}

// openStore selects the persistence backend from the STORE environment
// variable: memory (default), postgres, or redis.
func openStore(ctx context.Context) (taskgrid.Storer, error) {
	switch backend := getEnv("STORE", "memory"); backend {
	case "memory":
		return memory.New(), nil
	case "postgres":
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for STORE=postgres")
		}
		return postgres.New(ctx, databaseURL)
	case "redis":
		addr := getEnv("REDIS_ADDR", "localhost:6379")
		client := goredis.NewClient(&goredis.Options{Addr: addr})
		return redisstore.New(client), nil
	default:
		return nil, fmt.Errorf("unknown STORE %q", backend)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
