package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/hasher"
)

// MetadataDigester is implemented by rule sets that carry author
// metadata. When present, the digest is recorded in the trace header.
type MetadataDigester interface {
	MetadataDigest() hasher.StateHash
}

// Engine replays a fixed transaction sequence under fixed rules and a
// sealed execution context. Construct one with a Builder.
type Engine[S dtre.State[S], T dtre.Transaction] struct {
	initial            S
	rules              dtre.RuleSet[S, T]
	execCtx            *dtre.ExecutionContext
	checkpointInterval int
	parallelism        int
	logger             *slog.Logger
}

// InitialState returns a clone of the engine's initial state.
func (e *Engine[S, T]) InitialState() S {
	return e.initial.Clone()
}

// Rules returns the engine's rule set.
func (e *Engine[S, T]) Rules() dtre.RuleSet[S, T] {
	return e.rules
}

// Context returns the engine's sealed execution context.
func (e *Engine[S, T]) Context() *dtre.ExecutionContext {
	return e.execCtx
}

// Replay processes transactions strictly in the caller's sequence
// order and returns the comprehensive result. If a checkpoint interval
// k was configured, a checkpoint is minted after every k committed
// transactions.
//
// On a processing or validation failure the returned result is non-nil
// and carries the partial trace up to the last committed transaction;
// the error describes the offending one.
func (e *Engine[S, T]) Replay(ctx context.Context, txs []T) (*ReplayResult[S], error) {
	return e.replaySequential(ctx, e.rules, txs, nil, 0, e.checkpointInterval)
}

// ReplayWithCheckpoints is Replay with an explicit checkpoint interval,
// overriding the configured one for this run.
func (e *Engine[S, T]) ReplayWithCheckpoints(ctx context.Context, txs []T, interval int) (*ReplayResult[S], error) {
	return e.replaySequential(ctx, e.rules, txs, nil, 0, interval)
}

// ReplayWithRules replays the same sequence under a different rule set
// without rebuilding the engine. Used for rule-migration analysis.
func (e *Engine[S, T]) ReplayWithRules(ctx context.Context, txs []T, rules dtre.RuleSet[S, T]) (*ReplayResult[S], error) {
	return e.replaySequential(ctx, rules, txs, nil, 0, e.checkpointInterval)
}

// ReplayFromCheckpoint restores a checkpoint and applies the remaining
// transactions. The checkpoint's state hash is verified against a
// rehash before anything runs; restoring a checkpoint minted at index k
// and applying the suffix txs[k:] yields the same final hash as a full
// replay.
func (e *Engine[S, T]) ReplayFromCheckpoint(ctx context.Context, cp Checkpoint[S], remaining []T) (*ReplayResult[S], error) {
	mgr, err := NewStateManager[S, T](cp.State)
	if err != nil {
		return nil, err
	}
	if err := mgr.RestoreCheckpoint(cp); err != nil {
		return nil, err
	}
	return e.replaySequential(ctx, e.rules, remaining, mgr, cp.Index, e.checkpointInterval)
}

// replaySequential is the single driver behind every replay entry
// point. base carries a pre-positioned state manager for
// checkpoint-resumed runs; baseIndex is the sequence index of the first
// transaction in txs.
func (e *Engine[S, T]) replaySequential(
	ctx context.Context,
	rules dtre.RuleSet[S, T],
	txs []T,
	base *StateManager[S, T],
	baseIndex int,
	interval int,
) (*ReplayResult[S], error) {
	start := time.Now()

	mgr := base
	if mgr == nil {
		var err error
		mgr, err = NewStateManager[S, T](e.initial.Clone())
		if err != nil {
			return nil, err
		}
	}

	trace := ExecutionTrace{}
	if d, ok := any(rules).(MetadataDigester); ok {
		trace.RuleSetDigest = d.MetadataDigest()
	}

	toHashes := make([]hasher.StateHash, 0, len(txs))
	var checkpoints []Checkpoint[S]

	finalize := func() *ReplayResult[S] {
		trace.ChainedHash = hasher.Chain(toHashes)
		return &ReplayResult[S]{
			FinalState:  mgr.Current().Clone(),
			FinalHash:   mgr.CurrentHash(),
			Trace:       trace,
			Metrics:     buildMetrics(len(trace.Transitions), time.Since(start)),
			Checkpoints: checkpoints,
		}
	}

	for i, tx := range txs {
		seqIndex := baseIndex + i

		select {
		case <-ctx.Done():
			perr := &dtre.ProcessingError{
				Code:          dtre.CodeCancelled,
				TransactionID: tx.ID(),
				RuleVersion:   rules.Version(),
				Index:         seqIndex,
				Reason:        "replay cancelled",
				Err:           ctx.Err(),
			}
			trace.Errors = append(trace.Errors, errorContext(perr))
			return finalize(), perr
		default:
		}

		txCtx := e.execCtx.ForTransaction(uint64(seqIndex))

		tick := time.Now()
		transition, err := mgr.ApplyTransaction(tx, rules, txCtx)
		if err != nil {
			err = withIndex(err, seqIndex)
			trace.Errors = append(trace.Errors, errorContextFor(err, tx.ID(), rules.Version(), seqIndex))
			e.logger.Error("replay halted",
				"tx", tx.ID(), "index", seqIndex, "rules", rules.Version().String(), "err", err)
			return finalize(), err
		}

		trace.Transitions = append(trace.Transitions, TransitionInfo{
			FromHash:      transition.FromHash,
			ToHash:        transition.ToHash,
			TransactionID: transition.TransactionID,
		})
		toHashes = append(toHashes, transition.ToHash)
		trace.RuleApplications = append(trace.RuleApplications, RuleApplication{
			RuleVersion:   rules.Version(),
			TransactionID: tx.ID(),
			DurationTicks: time.Since(tick).Nanoseconds(),
		})

		if interval > 0 && (i+1)%interval == 0 {
			// Count is absolute even on resumed runs: a restored manager
			// starts counting from the checkpoint's index.
			cp := mgr.CreateCheckpoint(e.execCtx.Snapshot(), hasher.Chain(toHashes))
			checkpoints = append(checkpoints, cp)
			e.logger.Debug("checkpoint minted", "index", cp.Index, "hash", cp.StateHash.String())
		}
	}

	result := finalize()
	e.logger.Info("replay complete",
		"transactions", len(result.Trace.Transitions),
		"final_hash", result.FinalHash.String(),
		"checkpoints", len(checkpoints))
	return result, nil
}

// withIndex stamps the sequence index onto processing errors that the
// state manager could only index relative to its own count.
func withIndex(err error, index int) error {
	if pe, ok := err.(*dtre.ProcessingError); ok {
		pe.Index = index
		return pe
	}
	return err
}

func errorContext(pe *dtre.ProcessingError) ErrorContext {
	return ErrorContext{
		TransactionID: pe.TransactionID,
		RuleVersion:   pe.RuleVersion,
		Index:         pe.Index,
		Message:       pe.Reason,
	}
}

func errorContextFor(err error, txID string, version dtre.Version, index int) ErrorContext {
	return ErrorContext{
		TransactionID: txID,
		RuleVersion:   version,
		Index:         index,
		Message:       fmt.Sprintf("%v", err),
	}
}
