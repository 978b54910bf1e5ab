package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/opsassist/opsassist/internal/query"
	"github.com/opsassist/opsassist/internal/query/sqldb"
	"github.com/opsassist/opsassist/internal/storage"
)

const backendName = "duckdb"

type Config struct {
	Database string
	Table    string
	// Files are local parquet paths.
	Files []string
	// ObjectKeys are parquet keys in Store. A key ending in "/" loads every
	// object below it.
	ObjectKeys []string
	Store      storage.ObjectStore
}

// Engine is an in-process DuckDB whose dataset table is a view over parquet
// files. The view is reachable as both "table" and "database"."table" so
// queries written for the Athena catalog run unchanged.
type Engine struct {
	*sqldb.Executor
	workDir string
}

func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, fmt.Errorf("table is required")
	}
	if len(cfg.Files) == 0 && len(cfg.ObjectKeys) == 0 {
		return nil, fmt.Errorf("no parquet files configured for table %q", cfg.Table)
	}
	if len(cfg.ObjectKeys) > 0 && cfg.Store == nil {
		return nil, fmt.Errorf("object store is required to load object keys")
	}

	workDir, err := os.MkdirTemp("", "opsassist-duckdb-")
	if err != nil {
		return nil, fmt.Errorf("create duckdb temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(workDir) }

	paths := make([]string, 0, len(cfg.Files)+len(cfg.ObjectKeys))
	for _, file := range cfg.Files {
		absolute, err := filepath.Abs(file)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("resolve parquet file %q: %w", file, err)
		}
		paths = append(paths, absolute)
	}

	fetched, err := fetchObjects(ctx, cfg.Store, cfg.ObjectKeys, workDir)
	if err != nil {
		cleanup()
		return nil, err
	}
	paths = append(paths, fetched...)
	if len(paths) == 0 {
		cleanup()
		return nil, fmt.Errorf("no parquet objects found for table %q", cfg.Table)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := createViews(ctx, db, cfg.Database, cfg.Table, paths); err != nil {
		_ = db.Close()
		cleanup()
		return nil, err
	}

	return &Engine{Executor: sqldb.NewExecutor(db, backendName), workDir: workDir}, nil
}

func (e *Engine) Close() error {
	err := e.Executor.Close()
	if removeErr := os.RemoveAll(e.workDir); removeErr != nil && err == nil {
		err = removeErr
	}
	return err
}

func fetchObjects(ctx context.Context, store storage.ObjectStore, keys []string, workDir string) ([]string, error) {
	var objectKeys []string
	for _, key := range keys {
		if !strings.HasSuffix(key, "/") {
			objectKeys = append(objectKeys, key)
			continue
		}
		listed, err := store.List(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", key, err)
		}
		for _, object := range listed {
			if strings.HasSuffix(object.Key, ".parquet") {
				objectKeys = append(objectKeys, object.Key)
			}
		}
	}

	paths := make([]string, 0, len(objectKeys))
	for index, key := range objectKeys {
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(filepath.Base(key)), index))
		if err := downloadObject(ctx, store, key, localPath); err != nil {
			return nil, err
		}
		paths = append(paths, localPath)
	}
	return paths, nil
}

// downloadObject copies one parquet object into the engine's work dir. A
// partially written file is removed so it never ends up behind a view.
func downloadObject(ctx context.Context, store storage.ObjectStore, key, localPath string) (err error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.OpenFile(localPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create local copy of %q: %w", key, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close local copy of %q: %w", key, closeErr)
		}
		if err != nil {
			_ = os.Remove(localPath)
		}
	}()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("download object %q to %s: %w", key, localPath, err)
	}
	return nil
}

func createViews(ctx context.Context, db *sql.DB, database, table string, paths []string) error {
	source := fmt.Sprintf("SELECT * FROM read_parquet(%s)", quoteStringArray(paths))

	statements := []string{
		fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS %s`, quoteIdent(table), source),
	}
	if database = strings.TrimSpace(database); database != "" {
		statements = append(statements,
			fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(database)),
			fmt.Sprintf(`CREATE OR REPLACE VIEW %s.%s AS %s`, quoteIdent(database), quoteIdent(table), source),
		)
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("create view for table %q: %w", table, err)
		}
	}
	return nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.TrimSuffix(value, ".parquet")
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "part"
	}
	return value
}

var _ query.Engine = (*Engine)(nil)
