// Package main is the entrypoint for the ramsgen API server.
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

	"github.com/voltio/ramsgen/internal/agent"
	"github.com/voltio/ramsgen/internal/api"
	"github.com/voltio/ramsgen/internal/api/handler"
	mw "github.com/voltio/ramsgen/internal/api/middleware"
	"github.com/voltio/ramsgen/internal/api/response"
	"github.com/voltio/ramsgen/internal/cache"
	"github.com/voltio/ramsgen/internal/config"
	"github.com/voltio/ramsgen/internal/embedding"
	"github.com/voltio/ramsgen/internal/jobs"
	"github.com/voltio/ramsgen/internal/orchestrator"
	"github.com/voltio/ramsgen/internal/runner"
	"github.com/voltio/ramsgen/internal/semcache"
	"github.com/voltio/ramsgen/internal/store"
)

const (
	shutdownTimeout   = 30 * time.Second
	agentProbeTimeout = 5 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

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

	// 5. Build the generation pipeline
	pgStore := store.NewPostgresStore(pool)
	embedder := embedding.NewOpenAIClient(cfg.Embedding)
	semCache := semcache.New(pgStore, embedder, cfg.Cache, logger)

	riskAgent := agent.NewHTTPRiskAgent(cfg.Agents.RiskBaseURL, cfg.Agents.Timeout)
	methodAgent := agent.NewHTTPMethodAgent(cfg.Agents.MethodBaseURL, cfg.Agents.Timeout)
	orch := orchestrator.New(riskAgent, methodAgent, cfg.Agents.Timeout)

	jobRunner := runner.New(pgStore, redisCache, semCache, orch, cfg.Runner.HeartbeatInterval, logger)
	jobService := jobs.New(pgStore, redisCache, jobRunner, logger)

	// 6. Build router with dependencies
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler:       healthHandler(pgStore, redisCache, cfg.Agents),
		CreateJobHandler:    handler.NewCreateJobHandler(jobService),
		GetJobHandler:       handler.NewGetJobHandler(jobService),
		GetJobStatusHandler: handler.NewGetJobStatusHandler(jobService),
		CancelJobHandler:    handler.NewCancelJobHandler(jobService),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
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

// healthHandler checks database, cache and agent connectivity.
func healthHandler(s store.Store, c cache.Cache, agents config.AgentsConfig) http.HandlerFunc {
	probe := &http.Client{Timeout: agentProbeTimeout}
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database":     "ok",
			"cache":        "ok",
			"risk_agent":   "ok",
			"method_agent": "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := agent.Healthy(r.Context(), probe, agents.RiskBaseURL); err != nil {
			checks["risk_agent"] = "degraded"
		}
		if err := agent.Healthy(r.Context(), probe, agents.MethodBaseURL); err != nil {
			checks["method_agent"] = "degraded"
		}

		degraded := false
		for _, status := range checks {
			if status != "ok" {
				degraded = true
				break
			}
		}
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
