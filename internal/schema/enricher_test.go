package schema

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/opsassist/opsassist/internal/guardrail"
	"github.com/opsassist/opsassist/internal/prompts"
	"github.com/opsassist/opsassist/internal/query"
)

type fakeEngine struct {
	mu      sync.Mutex
	results map[string]query.RowSet
	errs    map[string]error
	queries []string
}

func (f *fakeEngine) Execute(_ context.Context, sql string) (query.RowSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sql)
	for column, err := range f.errs {
		if strings.Contains(sql, "DISTINCT "+column+" ") {
			return query.RowSet{}, err
		}
	}
	for column, rs := range f.results {
		if strings.Contains(sql, "DISTINCT "+column+" ") {
			return rs, nil
		}
	}
	return query.RowSet{}, nil
}

func (f *fakeEngine) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// cancelAwareEngine fails like a real backend once its context is done.
type cancelAwareEngine struct {
	*fakeEngine
}

func (c cancelAwareEngine) Execute(ctx context.Context, sql string) (query.RowSet, error) {
	if err := ctx.Err(); err != nil {
		return query.RowSet{}, err
	}
	return c.fakeEngine.Execute(ctx, sql)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func athenaColumn(column string, values ...string) query.RowSet {
	rows := []query.Row{query.NewRow(column)}
	for _, value := range values {
		rows = append(rows, query.NewRow(value))
	}
	return query.RowSet{Columns: []string{column}, Rows: rows, HeaderIncluded: true}
}

func TestEnrichedSchemaDisabledReturnsStaticDescription(t *testing.T) {
	engine := &fakeEngine{}
	e := New(engine, Config{Enabled: false, Table: "tickets", Columns: []string{"priority"}}, discardLogger())
	if got := e.EnrichedSchema(context.Background()); got != prompts.SchemaDescription {
		t.Fatalf("EnrichedSchema() = %q", got)
	}
	if engine.count() != 0 {
		t.Fatalf("queries = %d, want 0", engine.count())
	}
}

func TestEnrichedSchemaRendersColumnsInConfiguredOrder(t *testing.T) {
	engine := &fakeEngine{results: map[string]query.RowSet{
		"priority": athenaColumn("priority", "high", "low", " ", "medium"),
		"category": athenaColumn("category", "IT Support", "Owner's Desk"),
	}}
	e := New(engine, Config{
		Enabled:     true,
		Table:       "tickets",
		Columns:     []string{"priority", "category"},
		MaxValues:   50,
		Description: "Table: tickets\n",
	}, discardLogger())

	got := e.EnrichedSchema(context.Background())
	want := strings.Join([]string{
		"Table: tickets",
		"",
		sampleHeader,
		"- priority: 'high', 'low', 'medium'",
		"- category: 'IT Support', 'Owner''s Desk'",
	}, "\n")
	if got != want {
		t.Fatalf("EnrichedSchema() = %q, want %q", got, want)
	}
	if engine.queries[0] != "SELECT DISTINCT priority FROM tickets LIMIT 60" {
		t.Fatalf("query = %q", engine.queries[0])
	}
}

func TestEnrichedSchemaCapsRenderedValues(t *testing.T) {
	values := make([]string, 25)
	for i := range values {
		values[i] = fmt.Sprintf("user%02d", i)
	}
	engine := &fakeEngine{results: map[string]query.RowSet{"assigned_to": athenaColumn("assigned_to", values...)}}
	e := New(engine, Config{Enabled: true, Table: "tickets", Columns: []string{"assigned_to"}, MaxValues: 50}, discardLogger())

	got := e.EnrichedSchema(context.Background())
	if !strings.Contains(got, "'user19'\n  (and 5 more)") {
		t.Fatalf("EnrichedSchema() = %s", got)
	}
	if strings.Contains(got, "'user20'") {
		t.Fatal("only the first 20 values should be rendered")
	}
}

func TestEnrichmentPopulatesAtMostOnce(t *testing.T) {
	engine := &fakeEngine{results: map[string]query.RowSet{"priority": athenaColumn("priority", "high")}}
	e := New(engine, Config{Enabled: true, Table: "tickets", Columns: []string{"priority"}}, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.EnrichedSchema(context.Background())
		}()
	}
	wg.Wait()
	_ = e.Values(context.Background())

	if engine.count() != 1 {
		t.Fatalf("queries = %d, want 1", engine.count())
	}
}

func TestEnrichmentSwallowsColumnFailures(t *testing.T) {
	engine := &fakeEngine{
		results: map[string]query.RowSet{"category": athenaColumn("category", "IT Support")},
		errs:    map[string]error{"priority": errors.New("athena query failed: FAILED")},
	}
	e := New(engine, Config{Enabled: true, Table: "tickets", Columns: []string{"priority", "category"}}, discardLogger())

	got := e.Values(context.Background())
	if !reflect.DeepEqual(got, map[string][]string{"category": {"IT Support"}}) {
		t.Fatalf("Values() = %#v", got)
	}
}

func TestTotalFailureDegradesToStaticDescription(t *testing.T) {
	engine := &fakeEngine{errs: map[string]error{"priority": errors.New("boom")}}
	e := New(engine, Config{Enabled: true, Table: "tickets", Columns: []string{"priority"}}, discardLogger())
	if got := e.EnrichedSchema(context.Background()); got != prompts.SchemaDescription {
		t.Fatalf("EnrichedSchema() = %q", got)
	}
}

func TestEnrichmentQueriesPassTheGuardrail(t *testing.T) {
	engine := &fakeEngine{results: map[string]query.RowSet{"priority": athenaColumn("priority", "high")}}
	guarded := query.NewGuarded(engine, guardrail.New([]string{"ops_data.tickets", "tickets"}))
	e := New(guarded, Config{Enabled: true, Table: "ops_data.tickets", Columns: []string{"priority"}}, discardLogger())

	if got := e.Values(context.Background()); len(got["priority"]) != 1 {
		t.Fatalf("Values() = %#v", got)
	}
}

func TestFetchDistinctValuesRejectsUnconfiguredColumn(t *testing.T) {
	engine := &fakeEngine{}
	e := New(engine, Config{Enabled: true, Table: "tickets", Columns: []string{"priority"}}, discardLogger())
	if _, ok := e.FetchDistinctValues(context.Background(), "description"); ok {
		t.Fatal("expected false for unconfigured column")
	}
	if engine.count() != 0 {
		t.Fatal("unconfigured column must not be queried")
	}
}

func TestParseDistinctRows(t *testing.T) {
	tests := []struct {
		name string
		rs   query.RowSet
		max  int
		want []string
	}{
		{
			name: "structural header",
			rs:   athenaColumn("priority", "high", "low"),
			max:  10,
			want: []string{"high", "low"},
		},
		{
			name: "header detected by column name",
			rs:   query.RowSet{Rows: []query.Row{query.NewRow("PRIORITY"), query.NewRow("high")}},
			max:  10,
			want: []string{"high"},
		},
		{
			name: "column name later in the result is data",
			rs:   query.RowSet{Rows: []query.Row{query.NewRow("high"), query.NewRow("priority")}},
			max:  10,
			want: []string{"high", "priority"},
		},
		{
			name: "blank and null skipped, capped",
			rs:   query.RowSet{Rows: []query.Row{{nil}, query.NewRow("  "), query.NewRow(" a "), query.NewRow("b"), query.NewRow("c")}},
			max:  2,
			want: []string{"a", "b"},
		},
	}
	for _, tt := range tests {
		got := ParseDistinctRows(tt.rs, "priority", tt.max)
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: ParseDistinctRows() = %#v, want %#v", tt.name, got, tt.want)
		}
	}
}

func TestCanceledFirstCallerStillFillsCache(t *testing.T) {
	engine := &fakeEngine{results: map[string]query.RowSet{
		"priority": athenaColumn("priority", "high", "low"),
	}}
	e := New(cancelAwareEngine{engine}, Config{
		Enabled: true,
		Table:   "tickets",
		Columns: []string{"priority"},
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	first := e.EnrichedSchema(ctx)
	second := e.EnrichedSchema(context.Background())

	for name, got := range map[string]string{"canceled caller": first, "later caller": second} {
		if !strings.Contains(got, "- priority: 'high', 'low'") {
			t.Fatalf("EnrichedSchema() for %s = %q", name, got)
		}
	}
	if engine.count() != 1 {
		t.Fatalf("queries = %d, want 1", engine.count())
	}
}
