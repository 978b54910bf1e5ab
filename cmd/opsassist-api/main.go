package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opsassist/opsassist/internal/api"
	"github.com/opsassist/opsassist/internal/app"
	"github.com/opsassist/opsassist/internal/auth"
	"github.com/opsassist/opsassist/internal/config"
	"github.com/opsassist/opsassist/internal/observability"
)

const sessionIdleTimeout = 30 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("opsassist-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	assistant, err := app.Build(ctx, cfg, logger, app.Overrides{})
	if err != nil {
		logger.Error("failed to build assistant", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = assistant.Close() }()

	readiness := []api.ReadinessCheck{api.CheckModelConfig(cfg)}
	if cfg.Archive.Enabled || len(cfg.DuckDB.ObjectKeys) > 0 {
		readiness = append(readiness, api.CheckObjectStoreConfig(cfg))
	}
	deps := api.Dependencies{
		Logger:            logger,
		Assistant:         assistant.Agent,
		Charts:            assistant.Charts,
		Schema:            assistant.Schema,
		Sessions:          assistant.Sessions,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go pruneSessions(ctx, assistant, logger)
	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
}

func pruneSessions(ctx context.Context, a *app.App, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := a.Sessions.Prune(now, sessionIdleTimeout); removed > 0 {
				logger.Debug("pruned idle sessions", slog.Int("removed", removed))
			}
		}
	}
}
