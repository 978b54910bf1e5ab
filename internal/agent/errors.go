package agent

import (
	"errors"
	"fmt"
)

var (
	ErrNoSelectFound    = errors.New("no SELECT statement found in model output")
	ErrExhaustedRetries = errors.New("exhausted sql generation attempts")

	// ErrZeroRows is fed back to the model when a query ran but matched
	// nothing.
	ErrZeroRows = errors.New("query succeeded but returned 0 rows. Consider using LIKE 'value%' for text columns " +
		"(e.g. category LIKE 'IT%') instead of exact = 'value', or check that filter values match the data.")
)

const NoRowsPlaceholder = "(No rows returned.)"

// ExhaustedRetriesError is returned when every attempt failed. Last is the
// error of the final attempt.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	last := "(unknown)"
	if e.Last != nil {
		last = e.Last.Error()
	}
	return fmt.Sprintf("could not generate valid SQL after %d attempts. Last error: %s", e.Attempts, last)
}

func (e *ExhaustedRetriesError) Is(target error) bool { return target == ErrExhaustedRetries }

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }

// ModelError is a failed language model call while generating SQL.
type ModelError struct {
	Attempt int
	Err     error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("generate sql (attempt %d): %v", e.Attempt+1, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// SummarizeError is a failed summary call. SQL is the accepted query, which
// is not run again.
type SummarizeError struct {
	SQL string
	Err error
}

func (e *SummarizeError) Error() string {
	return fmt.Sprintf("summarize results: %v", e.Err)
}

func (e *SummarizeError) Unwrap() error { return e.Err }
