// Package app wires configuration into the query engine, the model and the
// agent. Both binaries build their dependency graph here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opsassist/opsassist/internal/agent"
	"github.com/opsassist/opsassist/internal/archive"
	"github.com/opsassist/opsassist/internal/charts"
	"github.com/opsassist/opsassist/internal/config"
	"github.com/opsassist/opsassist/internal/guardrail"
	"github.com/opsassist/opsassist/internal/llm"
	"github.com/opsassist/opsassist/internal/query"
	"github.com/opsassist/opsassist/internal/query/athena"
	"github.com/opsassist/opsassist/internal/query/duckdb"
	"github.com/opsassist/opsassist/internal/query/sqldb"
	"github.com/opsassist/opsassist/internal/schema"
	"github.com/opsassist/opsassist/internal/session"
	"github.com/opsassist/opsassist/internal/storage"
	s3store "github.com/opsassist/opsassist/internal/storage/s3"
)

type App struct {
	Agent    *agent.Agent
	Charts   *charts.Service
	Schema   *schema.Enricher
	Sessions *session.Store
	// Engine is guarded; every statement passes the guardrail first.
	Engine query.Engine

	closers []func() error
}

// Overrides replace components built from configuration. Tests use them to
// avoid network calls.
type Overrides struct {
	Engine query.Engine
	Model  llm.Model
	Store  storage.ObjectStore
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, overrides Overrides) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}

	store := overrides.Store
	storeFn := func() (storage.ObjectStore, error) {
		if store != nil {
			return store, nil
		}
		s, err := OpenObjectStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = s
		return store, nil
	}

	engine := overrides.Engine
	if engine == nil {
		built, closer, err := openEngine(ctx, cfg, storeFn)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
		engine = built
	}
	engine = query.Instrument(engine, string(cfg.Engine.Backend))
	engine = query.WithTimeout(engine, cfg.Engine.QueryTimeout)
	a.Engine = query.NewGuarded(engine, guardrail.New(cfg.Dataset.AllowedTables()))

	a.Schema = schema.New(a.Engine, schema.Config{
		Enabled:   cfg.Agent.SchemaEnrichment,
		Table:     cfg.Dataset.QualifiedTable(),
		Columns:   cfg.Agent.EnrichmentColumns,
		MaxValues: cfg.Agent.EnrichmentMaxValues,
	}, logger)

	model := overrides.Model
	if model == nil {
		built, err := llm.New(cfg.AI)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("build language model: %w", err)
		}
		model = built
	}

	deps := agent.Dependencies{
		Model:  model,
		Engine: a.Engine,
		Schema: a.Schema,
		Logger: logger,
	}
	if cfg.Archive.Enabled {
		archiveStore, err := storeFn()
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open archive store: %w", err)
		}
		deps.Archiver = archive.New(archiveStore)
	}

	assistant, err := agent.New(agent.Config{
		Database:        cfg.Dataset.Database,
		Table:           cfg.Dataset.Table,
		MaxAttempts:     cfg.Agent.MaxAttempts,
		RetryOnZeroRows: cfg.Agent.RetryOnZeroRows,
		HeaderSentinel:  cfg.Agent.HeaderSentinel,
	}, deps)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Agent = assistant
	a.Charts = charts.NewService(a.Engine, cfg.Dataset.QualifiedTable())
	a.Sessions = session.NewStore(cfg.Agent.HistorySize)

	logger.Info("assistant ready",
		slog.String("backend", string(cfg.Engine.Backend)),
		slog.String("model", model.Name()),
		slog.String("table", cfg.Dataset.QualifiedTable()),
		slog.Bool("archive", cfg.Archive.Enabled),
	)
	return a, nil
}

// Close releases engine resources. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func OpenObjectStore(ctx context.Context, cfg config.Config) (*s3store.Store, error) {
	return s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
}

func openEngine(ctx context.Context, cfg config.Config, store func() (storage.ObjectStore, error)) (query.Engine, func() error, error) {
	switch cfg.Engine.Backend {
	case config.BackendAthena:
		engine, err := athena.New(ctx, athena.Config{
			Region:          cfg.Athena.Region,
			Database:        cfg.Dataset.Database,
			OutputLocation:  cfg.Athena.OutputLocation,
			WorkGroup:       cfg.Athena.WorkGroup,
			Profile:         cfg.Athena.Profile,
			AccessKeyID:     cfg.Athena.AccessKeyID,
			SecretAccessKey: cfg.Athena.SecretAccessKey,
			SessionToken:    cfg.Athena.SessionToken,
			PollInterval:    cfg.Engine.PollInterval,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open athena engine: %w", err)
		}
		return engine, nil, nil

	case config.BackendDuckDB:
		duckCfg := duckdb.Config{
			Database:   cfg.Dataset.Database,
			Table:      cfg.Dataset.Table,
			Files:      cfg.DuckDB.Files,
			ObjectKeys: cfg.DuckDB.ObjectKeys,
		}
		if len(duckCfg.ObjectKeys) > 0 {
			s, err := store()
			if err != nil {
				return nil, nil, fmt.Errorf("open dataset store: %w", err)
			}
			duckCfg.Store = s
		}
		engine, err := duckdb.Open(ctx, duckCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open duckdb engine: %w", err)
		}
		return engine, engine.Close, nil

	case config.BackendPostgres:
		db, err := sqldb.Open(ctx, sqldb.DBConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres engine: %w", err)
		}
		executor := sqldb.NewExecutor(db, "postgres")
		return executor, executor.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown engine backend %q", cfg.Engine.Backend)
	}
}
