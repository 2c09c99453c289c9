package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerwatchdog/dtre"
)

// parallelThreshold is the sequence length below which ReplayParallel
// falls back to the sequential driver. Worker startup dominates for
// short sequences.
const parallelThreshold = 100

// ReplayParallel replays the sequence on a bounded pool of workers and
// reconciles their results.
//
// Strategy: speculative replication with hash reconciliation. Every
// worker replays the full sequence against its own snapshot of the
// initial state, drawing randomness from the same per-transaction-index
// substreams as the sequential driver. The reducer then verifies that
// all workers produced identical chained hashes. Agreement means the
// replay is inside the determinism envelope and the first worker's
// result is returned; disagreement means a rule smuggled in
// non-determinism, reported as a processing error naming the first
// divergent transaction.
//
// The post-condition holds for every input and every worker count:
//
//	ReplayParallel(txs).FinalHash == Replay(txs).FinalHash
//
// A worker failure is serialized through the same error path as the
// sequential driver; the lowest worker index wins so the reported error
// is itself deterministic.
func (e *Engine[S, T]) ReplayParallel(ctx context.Context, txs []T) (*ReplayResult[S], error) {
	workers := e.parallelism
	if workers <= 1 || len(txs) < parallelThreshold {
		return e.Replay(ctx, txs)
	}

	start := time.Now()

	results := make([]*ReplayResult[S], workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			results[w], errs[w] = e.replaySequential(ctx, e.rules, txs, nil, 0, e.checkpointInterval)
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		if errs[w] != nil {
			return results[w], errs[w]
		}
	}

	first := results[0]
	for w := 1; w < workers; w++ {
		if results[w].Trace.ChainedHash.Equal(first.Trace.ChainedHash) &&
			results[w].FinalHash.Equal(first.FinalHash) {
			continue
		}
		idx, txID := firstDivergence(first, results[w], txs)
		return nil, &dtre.ProcessingError{
			Code:          dtre.CodeNonDeterministic,
			TransactionID: txID,
			RuleVersion:   e.rules.Version(),
			Index:         idx,
			Reason:        "parallel replay diverged from its replicas; rules are not pure",
		}
	}

	first.Metrics = buildMetrics(len(first.Trace.Transitions), time.Since(start))
	return first, nil
}

// firstDivergence locates the smallest transition index at which two
// replicas disagree.
func firstDivergence[S dtre.State[S], T dtre.Transaction](a, b *ReplayResult[S], txs []T) (int, string) {
	n := min(len(a.Trace.Transitions), len(b.Trace.Transitions))
	for i := 0; i < n; i++ {
		if !a.Trace.Transitions[i].ToHash.Equal(b.Trace.Transitions[i].ToHash) {
			return i, a.Trace.Transitions[i].TransactionID
		}
	}
	if n < len(txs) {
		return n, txs[n].ID()
	}
	return n - 1, a.Trace.Transitions[n-1].TransactionID
}
