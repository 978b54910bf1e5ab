package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/opsassist/opsassist/internal/app"
	"github.com/opsassist/opsassist/internal/cli"
	"github.com/opsassist/opsassist/internal/config"
	"github.com/opsassist/opsassist/internal/observability"
	"github.com/opsassist/opsassist/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("opsassist")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.Options{
		Build: func(ctx context.Context) (*cli.Runtime, error) {
			a, err := app.Build(ctx, cfg, logger, app.Overrides{})
			if err != nil {
				return nil, err
			}
			return &cli.Runtime{
				Assistant:   a.Agent,
				Charts:      a.Charts,
				HistorySize: cfg.Agent.HistorySize,
				Close:       a.Close,
			}, nil
		},
		Store: func(ctx context.Context) (storage.ObjectStore, error) {
			return app.OpenObjectStore(ctx, cfg)
		},
		Database: cfg.Dataset.Database,
		Table:    cfg.Dataset.Table,
		Remote: cli.RemoteOptions{
			BaseURL: strings.TrimSpace(os.Getenv("OPSASSIST_API_URL")),
			APIKey:  strings.TrimSpace(os.Getenv("OPSASSIST_API_KEY")),
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
