// Package sqldb runs generated queries through database/sql. It backs the
// Postgres mirror and the in-process DuckDB engine.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/opsassist/opsassist/internal/query"
)

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Open opens and pings a pool. Driver defaults to pgx.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "pgx"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	return db, nil
}

// Executor returns every value as text so results look the same whichever
// backend produced them. Drivers do not echo column names as a row, so
// HeaderIncluded is always false.
type Executor struct {
	db      *sql.DB
	backend string
}

func NewExecutor(db *sql.DB, backend string) *Executor {
	return &Executor{db: db, backend: backend}
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (query.RowSet, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return query.RowSet{}, fmt.Errorf("sql is required")
	}
	start := time.Now()

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.RowSet{}, e.failure(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.RowSet{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([]query.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.RowSet{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, textRow(values))
	}
	if err := rows.Err(); err != nil {
		return query.RowSet{}, e.failure(ctx, err)
	}

	return query.RowSet{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func (e *Executor) Close() error {
	return e.db.Close()
}

func (e *Executor) failure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &query.ExecutionError{Backend: e.backend, State: query.StateFailed, Reason: err.Error()}
}

func textRow(values []any) query.Row {
	row := make(query.Row, len(values))
	for i, value := range values {
		if value == nil {
			continue
		}
		row[i] = query.Text(formatValue(value))
	}
	return row
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(typed)
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

var _ query.Engine = (*Executor)(nil)
