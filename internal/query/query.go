package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrExecution = errors.New("query execution failed")

type ExecutionState string

const (
	StateQueued    ExecutionState = "QUEUED"
	StateRunning   ExecutionState = "RUNNING"
	StateSucceeded ExecutionState = "SUCCEEDED"
	StateFailed    ExecutionState = "FAILED"
	StateCancelled ExecutionState = "CANCELLED"
)

func (s ExecutionState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ExecutionError reports a query that reached a non-success terminal state
// or could not be run at all.
type ExecutionError struct {
	Backend string
	State   ExecutionState
	Reason  string
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s query failed: %s", e.Backend, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// Cell is a nullable text value.
type Cell = *string

type Row []Cell

// RowSet is the engine-native result. When HeaderIncluded is set, Rows[0]
// repeats the column names and is not data.
type RowSet struct {
	Columns        []string
	Rows           []Row
	HeaderIncluded bool
	Duration       time.Duration
}

// DataRows returns the rows that carry data.
func (r RowSet) DataRows() []Row {
	if r.HeaderIncluded && len(r.Rows) > 0 {
		return r.Rows[1:]
	}
	return r.Rows
}

// FirstCell returns the first cell of row as text, "" for NULL or missing.
func FirstCell(row Row) string {
	if len(row) == 0 || row[0] == nil {
		return ""
	}
	return *row[0]
}

// Strings renders a row with NULL cells as "".
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, cell := range r {
		if cell != nil {
			out[i] = *cell
		}
	}
	return out
}

// String renders a row as one line, NULL cells as NULL.
func (r Row) String() string {
	parts := make([]string, len(r))
	for i, cell := range r {
		if cell == nil {
			parts[i] = "NULL"
			continue
		}
		parts[i] = *cell
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Text builds a non-null cell.
func Text(value string) Cell {
	return &value
}

// NewRow builds a row of non-null cells.
func NewRow(values ...string) Row {
	row := make(Row, len(values))
	for i, value := range values {
		row[i] = Text(value)
	}
	return row
}

type Engine interface {
	Execute(ctx context.Context, sql string) (RowSet, error)
}

// IsCanceled reports whether err came from the caller giving up rather than
// from the engine.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
