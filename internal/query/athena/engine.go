package athena

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/opsassist/opsassist/internal/query"
)

const backendName = "athena"

type Config struct {
	Region          string
	Database        string
	OutputLocation  string
	WorkGroup       string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PollInterval    time.Duration
}

// API is the subset of the Athena client the engine uses.
type API interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
}

type Engine struct {
	client         API
	database       string
	outputLocation string
	workGroup      string
	pollInterval   time.Duration
}

func New(ctx context.Context, cfg Config) (*Engine, error) {
	if strings.TrimSpace(cfg.Region) == "" {
		return nil, fmt.Errorf("athena region is required")
	}

	var (
		awsCfg aws.Config
		err    error
	)
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	case cfg.Profile != "":
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.Profile),
		)
	default:
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClient(athena.NewFromConfig(awsCfg), cfg)
}

func NewWithClient(client API, cfg Config) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("athena client is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("athena database is required")
	}
	if strings.TrimSpace(cfg.OutputLocation) == "" && strings.TrimSpace(cfg.WorkGroup) == "" {
		return nil, fmt.Errorf("athena output location or workgroup is required")
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		client:         client,
		database:       strings.TrimSpace(cfg.Database),
		outputLocation: strings.TrimSpace(cfg.OutputLocation),
		workGroup:      strings.TrimSpace(cfg.WorkGroup),
		pollInterval:   interval,
	}, nil
}

// Execute submits sql, blocks polling until a terminal state and returns the
// full result. Athena repeats the column names as the first row of a SELECT
// result; the returned RowSet flags it through HeaderIncluded.
func (e *Engine) Execute(ctx context.Context, sql string) (query.RowSet, error) {
	if strings.TrimSpace(sql) == "" {
		return query.RowSet{}, fmt.Errorf("sql is required")
	}
	start := time.Now()

	input := &athena.StartQueryExecutionInput{
		QueryString:           aws.String(sql),
		QueryExecutionContext: &types.QueryExecutionContext{Database: aws.String(e.database)},
	}
	if e.outputLocation != "" {
		input.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(e.outputLocation)}
	}
	if e.workGroup != "" {
		input.WorkGroup = aws.String(e.workGroup)
	}
	started, err := e.client.StartQueryExecution(ctx, input)
	if err != nil {
		return query.RowSet{}, fmt.Errorf("start query execution: %w", err)
	}
	executionID := aws.ToString(started.QueryExecutionId)
	if executionID == "" {
		return query.RowSet{}, fmt.Errorf("start query execution: empty execution id")
	}

	state, reason, err := e.waitForTerminalState(ctx, executionID)
	if err != nil {
		return query.RowSet{}, err
	}
	if state != query.StateSucceeded {
		return query.RowSet{}, &query.ExecutionError{Backend: backendName, State: state, Reason: reason}
	}

	rowSet, err := e.fetchResults(ctx, executionID)
	if err != nil {
		return query.RowSet{}, err
	}
	rowSet.Duration = time.Since(start)
	return rowSet, nil
}

func (e *Engine) waitForTerminalState(ctx context.Context, executionID string) (query.ExecutionState, string, error) {
	for {
		out, err := e.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(executionID)})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				e.stop(executionID)
				return "", "", ctxErr
			}
			return "", "", fmt.Errorf("get query execution %q: %w", executionID, err)
		}
		state, reason := executionStatus(out)
		if state.Terminal() {
			return state, reason, nil
		}

		select {
		case <-ctx.Done():
			e.stop(executionID)
			return "", "", ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
}

// stop cancels a query whose caller gave up. It runs on a fresh context
// because the caller's is already done.
func (e *Engine) stop(executionID string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = e.client.StopQueryExecution(stopCtx, &athena.StopQueryExecutionInput{QueryExecutionId: aws.String(executionID)})
}

func (e *Engine) fetchResults(ctx context.Context, executionID string) (query.RowSet, error) {
	var (
		rowSet    query.RowSet
		nextToken *string
	)
	for {
		out, err := e.client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(executionID),
			NextToken:        nextToken,
		})
		if err != nil {
			return query.RowSet{}, fmt.Errorf("get query results %q: %w", executionID, err)
		}
		if out.ResultSet != nil {
			if rowSet.Columns == nil {
				rowSet.Columns = columnNames(out.ResultSet.ResultSetMetadata)
			}
			for _, row := range out.ResultSet.Rows {
				rowSet.Rows = append(rowSet.Rows, convertRow(row))
			}
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		nextToken = out.NextToken
	}
	rowSet.HeaderIncluded = len(rowSet.Rows) > 0 && isHeaderRow(rowSet.Rows[0], rowSet.Columns)
	return rowSet, nil
}

func executionStatus(out *athena.GetQueryExecutionOutput) (query.ExecutionState, string) {
	if out == nil || out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return query.StateQueued, ""
	}
	status := out.QueryExecution.Status
	reason := aws.ToString(status.StateChangeReason)
	switch status.State {
	case types.QueryExecutionStateSucceeded:
		return query.StateSucceeded, reason
	case types.QueryExecutionStateFailed:
		return query.StateFailed, reason
	case types.QueryExecutionStateCancelled:
		return query.StateCancelled, reason
	case types.QueryExecutionStateRunning:
		return query.StateRunning, reason
	default:
		return query.StateQueued, reason
	}
}

func columnNames(metadata *types.ResultSetMetadata) []string {
	if metadata == nil {
		return nil
	}
	names := make([]string, 0, len(metadata.ColumnInfo))
	for _, column := range metadata.ColumnInfo {
		names = append(names, aws.ToString(column.Name))
	}
	return names
}

func convertRow(row types.Row) query.Row {
	out := make(query.Row, len(row.Data))
	for i, datum := range row.Data {
		if datum.VarCharValue != nil {
			out[i] = query.Text(*datum.VarCharValue)
		}
	}
	return out
}

func isHeaderRow(row query.Row, columns []string) bool {
	if len(columns) == 0 || len(row) != len(columns) {
		return false
	}
	for i, cell := range row {
		if cell == nil || !strings.EqualFold(*cell, columns[i]) {
			return false
		}
	}
	return true
}

var _ query.Engine = (*Engine)(nil)
