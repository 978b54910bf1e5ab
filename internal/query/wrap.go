package query

import (
	"context"
	"errors"
	"time"

	"github.com/opsassist/opsassist/internal/observability"
)

// Validator is satisfied by guardrail.Validator.
type Validator interface {
	Validate(sql string) error
}

// Guarded runs every statement through a validator first. A rejected
// statement never reaches the engine.
type Guarded struct {
	engine    Engine
	validator Validator
}

func NewGuarded(engine Engine, validator Validator) *Guarded {
	return &Guarded{engine: engine, validator: validator}
}

func (g *Guarded) Execute(ctx context.Context, sql string) (RowSet, error) {
	if g.validator != nil {
		if err := g.validator.Validate(sql); err != nil {
			return RowSet{}, err
		}
	}
	return g.engine.Execute(ctx, sql)
}

// WithTimeout bounds each Execute call. A zero or negative timeout returns
// engine unchanged.
func WithTimeout(engine Engine, timeout time.Duration) Engine {
	if timeout <= 0 {
		return engine
	}
	return timeoutEngine{engine: engine, timeout: timeout}
}

type timeoutEngine struct {
	engine  Engine
	timeout time.Duration
}

func (t timeoutEngine) Execute(ctx context.Context, sql string) (RowSet, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.engine.Execute(ctx, sql)
}

// Instrument records latency per backend and terminal state.
func Instrument(engine Engine, backend string) Engine {
	return instrumentedEngine{engine: engine, backend: backend}
}

type instrumentedEngine struct {
	engine  Engine
	backend string
}

func (i instrumentedEngine) Execute(ctx context.Context, sql string) (RowSet, error) {
	start := time.Now()
	rows, err := i.engine.Execute(ctx, sql)
	observability.ObserveQuery(i.backend, string(stateOf(err)), time.Since(start))
	return rows, err
}

func stateOf(err error) ExecutionState {
	if err == nil {
		return StateSucceeded
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) && execErr.State != "" {
		return execErr.State
	}
	if IsCanceled(err) {
		return StateCancelled
	}
	return StateFailed
}
