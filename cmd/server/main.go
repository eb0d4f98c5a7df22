// Package main is the entrypoint for the TrainDock API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nmarwaha/traindock/internal/api"
	"github.com/nmarwaha/traindock/internal/api/handler"
	mw "github.com/nmarwaha/traindock/internal/api/middleware"
	"github.com/nmarwaha/traindock/internal/api/response"
	"github.com/nmarwaha/traindock/internal/cache"
	"github.com/nmarwaha/traindock/internal/config"
	"github.com/nmarwaha/traindock/internal/connector"
	"github.com/nmarwaha/traindock/internal/connector/local"
	"github.com/nmarwaha/traindock/internal/connector/nebula"
	"github.com/nmarwaha/traindock/internal/store"
	"github.com/nmarwaha/traindock/pkg/models"
)

const shutdownTimeout = 30 * time.Second

// localJobStep is the phase interval of the in-process simulator connector.
const localJobStep = 2 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "connectors", cfg.Connectors.Enabled, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store
	pgStore := store.NewPostgresStore(pool)

	// 6. Register connector candidates. A rejected candidate is logged and
	// skipped; the server still starts with the ones that passed.
	registry := connector.NewRegistry()
	registry.RegisterAll(candidates(cfg))
	if len(registry.List()) == 0 {
		return fmt.Errorf("no connector passed registration")
	}
	slog.Info("connectors registered", "count", len(registry.List()))

	// 7. Create tracker and manager
	tracker := connector.NewTracker(redisCache, pgStore)
	manager := connector.NewManager(registry, tracker, cfg.Dispatch.Timeout)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		ListConnectorsHandler:  handler.NewListConnectorsHandler(manager),
		ConnectorStatusHandler: handler.NewConnectorStatusHandler(manager),
		CredentialsHandler:     handler.NewCredentialsHandler(manager),
		ConnectHandler:         handler.NewConnectHandler(manager),
		DisconnectHandler:      handler.NewDisconnectHandler(manager),
		VerifyHandler:          handler.NewVerifyHandler(manager),

		SubmitJobHandler:  handler.NewSubmitJobHandler(manager),
		JobStatusHandler:  handler.NewJobStatusHandler(manager),
		CancelJobHandler:  handler.NewCancelJobHandler(manager),
		StreamLogsHandler: handler.NewStreamLogsHandler(manager),
		ListJobsHandler:   handler.NewListJobsHandler(pgStore),

		FetchArtifactHandler:  handler.NewFetchArtifactHandler(manager),
		UploadArtifactHandler: handler.NewUploadArtifactHandler(manager),

		ListResourcesHandler: handler.NewListResourcesHandler(manager),
		PricingHandler:       handler.NewPricingHandler(manager),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// candidates assembles the connector candidates enabled by configuration.
func candidates(cfg *config.Config) []connector.Candidate {
	var out []connector.Candidate
	if cfg.ConnectorEnabled("local") {
		out = append(out, connector.Candidate{
			Descriptor: local.Descriptor,
			Factory: func() models.Connector {
				return local.New(localJobStep)
			},
		})
	}
	if cfg.ConnectorEnabled("nebula") {
		out = append(out, connector.Candidate{
			Descriptor: nebula.Descriptor,
			Factory: func() models.Connector {
				return nebula.New(cfg.Connectors.Nebula)
			},
		})
	}
	return out
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
