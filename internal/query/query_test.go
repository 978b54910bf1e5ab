package query

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubEngine struct {
	calls    int
	rows     RowSet
	err      error
	deadline bool
}

func (s *stubEngine) Execute(ctx context.Context, sql string) (RowSet, error) {
	s.calls++
	_, s.deadline = ctx.Deadline()
	return s.rows, s.err
}

type rejectAll struct{ err error }

func (r rejectAll) Validate(string) error { return r.err }

func TestDataRowsDropsStructuralHeader(t *testing.T) {
	rs := RowSet{
		Columns:        []string{"category"},
		Rows:           []Row{NewRow("category"), NewRow("IT")},
		HeaderIncluded: true,
	}
	if got := rs.DataRows(); len(got) != 1 || FirstCell(got[0]) != "IT" {
		t.Fatalf("DataRows() = %v", got)
	}
	rs.HeaderIncluded = false
	if got := rs.DataRows(); len(got) != 2 {
		t.Fatalf("DataRows() without header = %v", got)
	}
}

func TestRowStringRendersNull(t *testing.T) {
	row := Row{Text("IT"), nil, Text("3")}
	if got := row.String(); got != "[IT NULL 3]" {
		t.Fatalf("String() = %q", got)
	}
	if got := FirstCell(Row{nil}); got != "" {
		t.Fatalf("FirstCell(NULL) = %q", got)
	}
}

func TestExecutionErrorMessageAndSentinel(t *testing.T) {
	err := error(&ExecutionError{Backend: "athena", State: StateFailed, Reason: "COLUMN_NOT_FOUND"})
	if got := err.Error(); got != "athena query failed: FAILED: COLUMN_NOT_FOUND" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, ErrExecution) {
		t.Fatal("expected errors.Is(err, ErrExecution)")
	}
}

func TestGuardedSkipsEngineOnRejection(t *testing.T) {
	engine := &stubEngine{}
	rejection := errors.New("nope")
	_, err := NewGuarded(engine, rejectAll{err: rejection}).Execute(context.Background(), "DROP TABLE tickets")
	if !errors.Is(err, rejection) {
		t.Fatalf("Execute() error = %v", err)
	}
	if engine.calls != 0 {
		t.Fatalf("engine calls = %d, want 0", engine.calls)
	}
}

func TestWithTimeoutSetsDeadline(t *testing.T) {
	engine := &stubEngine{}
	if WithTimeout(engine, 0) != Engine(engine) {
		t.Fatal("WithTimeout(0) should return the engine unchanged")
	}
	if _, err := WithTimeout(engine, time.Minute).Execute(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !engine.deadline {
		t.Fatal("expected a deadline on the engine context")
	}
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		err  error
		want ExecutionState
	}{
		{nil, StateSucceeded},
		{&ExecutionError{State: StateCancelled}, StateCancelled},
		{context.DeadlineExceeded, StateCancelled},
		{errors.New("boom"), StateFailed},
	}
	for _, tt := range tests {
		if got := stateOf(tt.err); got != tt.want {
			t.Fatalf("stateOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
