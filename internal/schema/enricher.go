// Package schema builds the schema description handed to the language model,
// optionally enriched with distinct values sampled from the dataset.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/opsassist/opsassist/internal/observability"
	"github.com/opsassist/opsassist/internal/prompts"
	"github.com/opsassist/opsassist/internal/query"
)

// renderedValues is how many sample values per column reach the prompt.
const renderedValues = 20

const sampleHeader = "Sample values from data (use these exact values in filters when they match the user's intent):"

type Config struct {
	Enabled bool
	// Table is the identifier used in the DISTINCT queries.
	Table     string
	Columns   []string
	MaxValues int
	// Description defaults to prompts.SchemaDescription.
	Description string
}

// Enricher memoizes sampled values for the lifetime of the value. The first
// caller of EnrichedSchema populates the cache, even if that caller gives up
// early; concurrent callers wait for it. There is no invalidation.
type Enricher struct {
	engine query.Engine
	cfg    Config
	logger *slog.Logger

	once   sync.Once
	values map[string][]string
}

func New(engine query.Engine, cfg Config, logger *slog.Logger) *Enricher {
	if cfg.Description == "" {
		cfg.Description = prompts.SchemaDescription
	}
	if cfg.MaxValues <= 0 {
		cfg.MaxValues = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{engine: engine, cfg: cfg, logger: logger}
}

// EnrichedSchema returns the static description, followed by sampled values
// when enrichment is enabled and at least one column could be fetched.
func (e *Enricher) EnrichedSchema(ctx context.Context) string {
	if !e.cfg.Enabled {
		return e.cfg.Description
	}
	values := e.load(ctx)
	if len(values) == 0 {
		return e.cfg.Description
	}

	lines := []string{strings.TrimSpace(e.cfg.Description), "", sampleHeader}
	for _, column := range e.cfg.Columns {
		vals, ok := values[column]
		if !ok {
			continue
		}
		shown := vals
		if len(shown) > renderedValues {
			shown = shown[:renderedValues]
		}
		quoted := make([]string, len(shown))
		for i, value := range shown {
			quoted[i] = quote(value)
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", column, strings.Join(quoted, ", ")))
		if len(vals) > renderedValues {
			lines = append(lines, fmt.Sprintf("  (and %d more)", len(vals)-renderedValues))
		}
	}
	return strings.Join(lines, "\n")
}

// FetchDistinctValues queries one column directly, bypassing the cache. It
// reports false for columns outside the configured list and on any failure.
func (e *Enricher) FetchDistinctValues(ctx context.Context, column string) ([]string, bool) {
	if !e.isEnrichable(column) {
		return nil, false
	}
	sql := fmt.Sprintf("SELECT DISTINCT %s FROM %s LIMIT %d", column, e.cfg.Table, e.cfg.MaxValues+10)
	rs, err := e.engine.Execute(ctx, sql)
	if err != nil {
		e.logger.WarnContext(ctx, "schema enrichment column failed",
			slog.String("column", column),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return ParseDistinctRows(rs, column, e.cfg.MaxValues), true
}

// Values returns a copy of the cache, populating it first if needed. It is
// empty when enrichment is disabled.
func (e *Enricher) Values(ctx context.Context) map[string][]string {
	out := map[string][]string{}
	if !e.cfg.Enabled {
		return out
	}
	for column, vals := range e.load(ctx) {
		out[column] = append([]string(nil), vals...)
	}
	return out
}

// load fills the cache once. The fill is detached from the caller's
// cancellation since its result outlives the request that triggered it;
// engine-level timeouts still apply.
func (e *Enricher) load(ctx context.Context) map[string][]string {
	e.once.Do(func() {
		fillCtx := context.WithoutCancel(ctx)
		cache := map[string][]string{}
		for _, column := range e.cfg.Columns {
			vals, ok := e.FetchDistinctValues(fillCtx, column)
			observability.ObserveEnrichmentColumn(ok)
			if ok && len(vals) > 0 {
				cache[column] = vals
			}
		}
		e.values = cache
		e.logger.InfoContext(ctx, "schema enrichment loaded",
			slog.Int("columns", len(cache)),
			slog.Int("configured", len(e.cfg.Columns)),
		)
	})
	return e.values
}

func (e *Enricher) isEnrichable(column string) bool {
	for _, configured := range e.cfg.Columns {
		if configured == column {
			return true
		}
	}
	return false
}

// ParseDistinctRows turns a single-column result into values: the header row
// is skipped (by the structural flag, or when the first row's cell equals
// the column name), blank and NULL cells are dropped, and the list is capped
// at maxValues.
func ParseDistinctRows(rs query.RowSet, column string, maxValues int) []string {
	values := make([]string, 0)
	for i, row := range rs.Rows {
		if i == 0 && rs.HeaderIncluded {
			continue
		}
		cell := strings.TrimSpace(query.FirstCell(row))
		if cell == "" {
			continue
		}
		if i == 0 && strings.EqualFold(cell, column) {
			continue
		}
		values = append(values, cell)
		if maxValues > 0 && len(values) >= maxValues {
			break
		}
	}
	return values
}

// quote renders a value the way a SQL literal would be written, so the model
// can paste it into a filter.
func quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
