package engine

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/ledgerwatchdog/dtre"
)

// Builder assembles an Engine with a fluent API. Build demands the
// initial state, the rule set, and the execution context, validates the
// initial state, and seals the context so rules can only observe a
// frozen world.
type Builder[S dtre.State[S], T dtre.Transaction] struct {
	initial    S
	hasInitial bool
	rules      dtre.RuleSet[S, T]
	execCtx    *dtre.ExecutionContext
	interval   int
	workers    int
	logger     *slog.Logger
}

// NewBuilder creates an empty Builder.
func NewBuilder[S dtre.State[S], T dtre.Transaction]() *Builder[S, T] {
	return &Builder[S, T]{}
}

// WithInitialState sets the state replay starts from.
func (b *Builder[S, T]) WithInitialState(state S) *Builder[S, T] {
	b.initial = state
	b.hasInitial = true
	return b
}

// WithRuleSet sets the business rules.
func (b *Builder[S, T]) WithRuleSet(rules dtre.RuleSet[S, T]) *Builder[S, T] {
	b.rules = rules
	return b
}

// WithContext sets the execution context. Build seals it.
func (b *Builder[S, T]) WithContext(ctx *dtre.ExecutionContext) *Builder[S, T] {
	b.execCtx = ctx
	return b
}

// WithTimeAndSeed is shorthand for WithContext with a fresh context
// frozen at now and seeded with seed.
func (b *Builder[S, T]) WithTimeAndSeed(now time.Time, seed uint64) *Builder[S, T] {
	b.execCtx = dtre.NewExecutionContext(now, seed)
	return b
}

// WithCheckpointInterval enables checkpointing every interval committed
// transactions. Zero disables checkpointing.
func (b *Builder[S, T]) WithCheckpointInterval(interval int) *Builder[S, T] {
	b.interval = interval
	return b
}

// WithParallelism sets the worker count for ReplayParallel. Zero means
// one worker per CPU.
func (b *Builder[S, T]) WithParallelism(workers int) *Builder[S, T] {
	b.workers = workers
	return b
}

// WithLogger sets the structured logger. Logging is informative only;
// the deterministic audit record is the trace.
func (b *Builder[S, T]) WithLogger(logger *slog.Logger) *Builder[S, T] {
	b.logger = logger
	return b
}

// Build validates the configuration and returns the engine.
func (b *Builder[S, T]) Build() (*Engine[S, T], error) {
	if b.rules == nil {
		return nil, &dtre.ValidationError{
			Kind:   dtre.KindInvalidRuleSet,
			Reason: "rule set is required",
		}
	}
	if b.rules.Version().IsZero() {
		return nil, &dtre.ValidationError{
			Kind:   dtre.KindInvalidRuleSet,
			Reason: "rule set version is required",
		}
	}
	if !b.hasInitial {
		return nil, &dtre.ValidationError{
			Kind:   dtre.KindInvalidState,
			Reason: "initial state is required",
		}
	}
	if b.execCtx == nil {
		return nil, &dtre.ValidationError{
			Kind:   dtre.KindInvalidRuleSet,
			Reason: "execution context is required",
		}
	}
	if err := b.initial.Validate(); err != nil {
		return nil, &dtre.ValidationError{
			Kind:   dtre.KindInvalidState,
			Reason: fmt.Sprintf("initial state validation failed: %v", err),
			Err:    err,
		}
	}
	if b.interval < 0 {
		return nil, &dtre.ValidationError{
			Kind:   dtre.KindInvalidRuleSet,
			Reason: "checkpoint interval must not be negative",
		}
	}

	workers := b.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	b.execCtx.Seal()

	return &Engine[S, T]{
		initial:            b.initial.Clone(),
		rules:              b.rules,
		execCtx:            b.execCtx,
		checkpointInterval: b.interval,
		parallelism:        workers,
		logger:             logger,
	}, nil
}
