package engine

import (
	"time"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/hasher"
)

// StateTransition records one committed transaction with full state
// data. The engine returns these from ApplyTransaction; the trace keeps
// only the hash-level TransitionInfo.
type StateTransition[S dtre.State[S]] struct {
	FromState     S
	ToState       S
	FromHash      hasher.StateHash
	ToHash        hasher.StateHash
	TransactionID string
}

// TransitionInfo is the hash-level record of a committed transaction.
// For every adjacent pair, ToHash equals the successor's FromHash.
type TransitionInfo struct {
	FromHash      hasher.StateHash
	ToHash        hasher.StateHash
	TransactionID string
}

// RuleApplication records one rule invocation. DurationTicks is
// measured wall time in nanoseconds; it is informative and never
// participates in any hash.
type RuleApplication struct {
	RuleVersion   dtre.Version
	TransactionID string
	DurationTicks int64
}

// ErrorContext records a replay failure with enough context for
// post-hoc audit.
type ErrorContext struct {
	TransactionID string
	RuleVersion   dtre.Version
	Index         int
	Message       string
}

// ExecutionTrace is the append-only audit log built during replay.
// ChainedHash is the fold of all transition to-hashes; it is set when
// the trace is finalized, including on the partial trace of a failed
// replay.
type ExecutionTrace struct {
	Transitions      []TransitionInfo
	RuleApplications []RuleApplication
	Errors           []ErrorContext
	RuleSetDigest    hasher.StateHash
	ChainedHash      hasher.StateHash
}

// ToHashes returns the to-hash of every transition in order.
func (t *ExecutionTrace) ToHashes() []hasher.StateHash {
	out := make([]hasher.StateHash, len(t.Transitions))
	for i, tr := range t.Transitions {
		out[i] = tr.ToHash
	}
	return out
}

// PrefixHash returns the chained hash of the first n transitions. It is
// the trace witness minted into checkpoints.
func (t *ExecutionTrace) PrefixHash(n int) hasher.StateHash {
	return hasher.Chain(t.ToHashes()[:n])
}

// PerformanceMetrics records counts and durations for a replay. Kept
// strictly outside the chained hash: including them would make the
// witness machine-dependent.
type PerformanceMetrics struct {
	TotalDuration          time.Duration
	TransactionsProcessed  int
	TransactionsPerSecond  float64
	AverageTransactionTime time.Duration
}

func buildMetrics(processed int, elapsed time.Duration) PerformanceMetrics {
	m := PerformanceMetrics{
		TotalDuration:         elapsed,
		TransactionsProcessed: processed,
	}
	if processed > 0 && elapsed > 0 {
		m.TransactionsPerSecond = float64(processed) / elapsed.Seconds()
		m.AverageTransactionTime = elapsed / time.Duration(processed)
	}
	return m
}

// Checkpoint snapshots a replay at a committed index. Restorable iff
// StateHash matches a rehash of State.
type Checkpoint[S dtre.State[S]] struct {
	Index           int
	State           S
	StateHash       hasher.StateHash
	ContextSnapshot []byte
	TracePrefixHash hasher.StateHash
}

// ReplayResult is the fully self-describing outcome of a replay,
// returned by value.
type ReplayResult[S dtre.State[S]] struct {
	FinalState  S
	FinalHash   hasher.StateHash
	Trace       ExecutionTrace
	Metrics     PerformanceMetrics
	Checkpoints []Checkpoint[S]
}
