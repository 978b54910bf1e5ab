// Package agent answers questions about the tickets dataset. It asks the
// model for a query, runs it through the guardrail and the engine, feeds
// failures back to the model for a bounded number of attempts, and finally
// asks the model to summarize the accepted rows.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opsassist/opsassist/internal/archive"
	"github.com/opsassist/opsassist/internal/guardrail"
	"github.com/opsassist/opsassist/internal/llm"
	"github.com/opsassist/opsassist/internal/observability"
	"github.com/opsassist/opsassist/internal/prompts"
	"github.com/opsassist/opsassist/internal/query"
	"github.com/opsassist/opsassist/internal/session"
)

type Config struct {
	Database        string
	Table           string
	MaxAttempts     int
	RetryOnZeroRows bool
	// HeaderSentinel identifies a header-only row when the engine does not
	// flag headers itself.
	HeaderSentinel string
}

// SchemaSource supplies the schema text for generation prompts.
type SchemaSource interface {
	EnrichedSchema(ctx context.Context) string
}

type Archiver interface {
	Archive(ctx context.Context, record archive.Record) (string, error)
}

type Dependencies struct {
	Model llm.Model
	// Engine must already enforce the guardrail, see query.NewGuarded.
	Engine   query.Engine
	Schema   SchemaSource
	Archiver Archiver
	Logger   *slog.Logger
}

type Options struct {
	IncludeRawRows bool
	ReturnSQL      bool
}

type Answer struct {
	Summary  string
	SQL      string
	Rows     *query.RowSet
	Attempts int
}

// Project keeps only what the caller asked for: the summary always, the SQL
// when requested or when raw rows are, and the rows when requested.
func (a Answer) Project(opts Options) Answer {
	out := Answer{Summary: a.Summary, Attempts: a.Attempts}
	if opts.ReturnSQL || opts.IncludeRawRows {
		out.SQL = a.SQL
	}
	if opts.IncludeRawRows {
		out.Rows = a.Rows
	}
	return out
}

type Agent struct {
	cfg      Config
	model    llm.Model
	engine   query.Engine
	schema   SchemaSource
	archiver Archiver
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config, deps Dependencies) (*Agent, error) {
	if deps.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1")
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, fmt.Errorf("table is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:      cfg,
		model:    deps.Model,
		engine:   deps.Engine,
		schema:   deps.Schema,
		archiver: deps.Archiver,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Answer runs the generate, execute and retry loop for question and
// summarizes the accepted result. history is read, never modified.
func (a *Agent) Answer(ctx context.Context, question string, history []session.Turn, opts Options) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("question is required")
	}
	logger := observability.LoggerWithTrace(ctx, a.logger)

	sql, rows, attempts, err := a.generate(ctx, logger, question, history)
	if err != nil {
		observability.ObserveAnswer(answerResult(err), attempts)
		return Answer{}, err
	}

	summary, err := a.Summarize(ctx, question, rows)
	if err != nil {
		observability.ObserveAnswer("summarize_error", attempts)
		return Answer{}, &SummarizeError{SQL: sql, Err: err}
	}
	observability.ObserveAnswer("answered", attempts)

	answer := Answer{Summary: summary, SQL: sql, Rows: &rows, Attempts: attempts}
	a.archive(ctx, logger, question, answer)
	return answer.Project(opts), nil
}

func (a *Agent) generate(ctx context.Context, logger *slog.Logger, question string, history []session.Turn) (string, query.RowSet, int, error) {
	input := prompts.GenerationInput{
		Database:     a.cfg.Database,
		Table:        a.cfg.Table,
		Question:     question,
		Conversation: prompts.FormatConversation(history),
	}
	if a.schema != nil {
		input.Schema = a.schema.EnrichedSchema(ctx)
	}

	var (
		sql     string
		lastErr error
	)
	for attempt := 0; attempt < a.cfg.MaxAttempts; attempt++ {
		prompt, err := a.prompt(attempt, input, sql, lastErr)
		if err != nil {
			return "", query.RowSet{}, attempt, err
		}

		raw, err := a.model.Complete(ctx, prompt)
		if err != nil {
			observability.ObserveAttempt("model_error")
			return "", query.RowSet{}, attempt + 1, &ModelError{Attempt: attempt, Err: err}
		}

		o, rows, attemptErr := a.try(ctx, raw, &sql)
		if attemptErr != nil && ctx.Err() != nil && query.IsCanceled(attemptErr) {
			return "", query.RowSet{}, attempt + 1, ctx.Err()
		}
		observability.ObserveAttempt(attemptLabel(o, attemptErr))
		logger.DebugContext(ctx, "sql attempt",
			slog.Int("attempt", attempt+1),
			slog.String("outcome", o.String()),
			slog.String("sql", sql),
			slog.Any("error", attemptErr),
		)

		switch decide(o, attempt, a.cfg.MaxAttempts, a.cfg.RetryOnZeroRows) {
		case stepAccept:
			logger.InfoContext(ctx, "sql accepted",
				slog.Int("attempts", attempt+1),
				slog.Int("rows", len(rows.DataRows())),
			)
			return sql, rows, attempt + 1, nil
		case stepRetry:
			if o == outcomeEmpty {
				lastErr = ErrZeroRows
			} else {
				lastErr = attemptErr
			}
		case stepFail:
			return "", query.RowSet{}, attempt + 1, &ExhaustedRetriesError{Attempts: a.cfg.MaxAttempts, Last: attemptErr}
		}
	}
	return "", query.RowSet{}, a.cfg.MaxAttempts, &ExhaustedRetriesError{Attempts: a.cfg.MaxAttempts, Last: lastErr}
}

// try extracts and runs one candidate. sql is only replaced when extraction
// succeeds, so a retry after an extraction failure still shows the model the
// last query it managed to write.
func (a *Agent) try(ctx context.Context, raw string, sql *string) (outcome, query.RowSet, error) {
	extracted, err := ExtractSQL(raw)
	if err != nil {
		return outcomeFailed, query.RowSet{}, err
	}
	*sql = extracted

	rows, err := a.engine.Execute(ctx, extracted)
	if err != nil {
		return outcomeFailed, query.RowSet{}, err
	}
	if IsZeroDataRows(rows, a.cfg.HeaderSentinel) {
		return outcomeEmpty, rows, nil
	}
	return outcomeRows, rows, nil
}

func (a *Agent) prompt(attempt int, input prompts.GenerationInput, previousSQL string, lastErr error) (string, error) {
	if attempt == 0 {
		return prompts.Generation(input)
	}
	retry := prompts.RetryInput{GenerationInput: input, PreviousSQL: previousSQL}
	if lastErr != nil {
		retry.LastError = lastErr.Error()
	}
	return prompts.Retry(retry)
}

// Summarize asks the model for one or two sentences about rows. It makes a
// single call and does not retry.
func (a *Agent) Summarize(ctx context.Context, question string, rows query.RowSet) (string, error) {
	prompt, err := prompts.Summary(prompts.SummaryInput{Question: question, Results: FormatRows(rows)})
	if err != nil {
		return "", err
	}
	summary, err := a.model.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

func (a *Agent) archive(ctx context.Context, logger *slog.Logger, question string, answer Answer) {
	if a.archiver == nil {
		return
	}
	record := archive.Record{
		Question:   question,
		SQL:        answer.SQL,
		Summary:    answer.Summary,
		Attempts:   answer.Attempts,
		AnsweredAt: a.now(),
	}
	if answer.Rows != nil {
		record.Columns = answer.Rows.Columns
		for _, row := range answer.Rows.DataRows() {
			record.Rows = append(record.Rows, []*string(row))
		}
	}
	key, err := a.archiver.Archive(ctx, record)
	if err != nil {
		logger.WarnContext(ctx, "archive answer failed", slog.String("error", err.Error()))
		return
	}
	logger.DebugContext(ctx, "answer archived", slog.String("key", key))
}

func attemptLabel(o outcome, err error) string {
	switch {
	case err == nil:
		return o.String()
	case errors.Is(err, ErrNoSelectFound):
		return "extract_error"
	case errors.Is(err, guardrail.ErrGuardrail):
		return "guardrail"
	default:
		return "execution_error"
	}
}

func answerResult(err error) string {
	var modelErr *ModelError
	switch {
	case errors.Is(err, ErrExhaustedRetries):
		return "exhausted"
	case errors.As(err, &modelErr):
		return "model_error"
	case query.IsCanceled(err):
		return "canceled"
	default:
		return "error"
	}
}
