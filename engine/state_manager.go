package engine

import (
	"fmt"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/hasher"
)

// StateManager owns the current state and its cached hash for the
// duration of a replay. All mutations go through ApplyTransaction,
// which commits only after every post-condition passes.
type StateManager[S dtre.State[S], T dtre.Transaction] struct {
	current     S
	currentHash hasher.StateHash
	count       int
}

// NewStateManager validates and installs the initial state.
func NewStateManager[S dtre.State[S], T dtre.Transaction](initial S) (*StateManager[S, T], error) {
	if err := initial.Validate(); err != nil {
		return nil, &dtre.ValidationError{
			Kind:   dtre.KindInvalidState,
			Reason: fmt.Sprintf("initial state validation failed: %v", err),
			Err:    err,
		}
	}
	h, err := hasher.SumState(initial)
	if err != nil {
		return nil, err
	}
	return &StateManager[S, T]{current: initial, currentHash: h}, nil
}

// Current returns the current state. Callers must treat it as
// read-only; the engine clones before handing states out of a replay.
func (m *StateManager[S, T]) Current() S {
	return m.current
}

// CurrentHash returns the cached hash of the current state.
func (m *StateManager[S, T]) CurrentHash() hasher.StateHash {
	return m.currentHash
}

// Count returns the number of committed transactions.
func (m *StateManager[S, T]) Count() int {
	return m.count
}

// ApplyTransaction validates tx, applies rules, validates the successor
// state, hashes it, then atomically swaps in the new state and hash.
// On any error the committed state is unchanged.
func (m *StateManager[S, T]) ApplyTransaction(tx T, rules dtre.RuleSet[S, T], ctx *dtre.ExecutionContext) (StateTransition[S], error) {
	var zero StateTransition[S]

	if err := tx.Validate(); err != nil {
		return zero, &dtre.ValidationError{
			Kind:          dtre.KindInvalidTransaction,
			Reason:        fmt.Sprintf("transaction validation failed: %v", err),
			TransactionID: tx.ID(),
			Err:           err,
		}
	}

	next, err := rules.Apply(m.current, tx, ctx)
	if err != nil {
		return zero, &dtre.ProcessingError{
			Code:          dtre.CodeRuleFailed,
			TransactionID: tx.ID(),
			RuleVersion:   rules.Version(),
			Index:         m.count,
			Reason:        err.Error(),
			Err:           err,
		}
	}

	if err := next.Validate(); err != nil {
		return zero, &dtre.ValidationError{
			Kind:          dtre.KindInvalidState,
			Reason:        fmt.Sprintf("post-transaction state validation failed: %v", err),
			TransactionID: tx.ID(),
			Err:           err,
		}
	}

	toHash, err := hasher.SumState(next)
	if err != nil {
		return zero, err
	}

	transition := StateTransition[S]{
		FromState:     m.current,
		ToState:       next,
		FromHash:      m.currentHash,
		ToHash:        toHash,
		TransactionID: tx.ID(),
	}

	m.current = next
	m.currentHash = toHash
	m.count++
	return transition, nil
}

// CreateCheckpoint snapshots the current state, its hash, the committed
// index, the context snapshot, and the chained hash of the trace
// prefix.
func (m *StateManager[S, T]) CreateCheckpoint(contextSnapshot []byte, tracePrefix hasher.StateHash) Checkpoint[S] {
	return Checkpoint[S]{
		Index:           m.count,
		State:           m.current.Clone(),
		StateHash:       m.currentHash,
		ContextSnapshot: contextSnapshot,
		TracePrefixHash: tracePrefix,
	}
}

// RestoreCheckpoint validates the checkpoint state, rehashes it, and
// installs it iff the rehash matches the recorded hash. On failure the
// current state is left in place.
func (m *StateManager[S, T]) RestoreCheckpoint(cp Checkpoint[S]) error {
	if err := cp.State.Validate(); err != nil {
		return &dtre.ValidationError{
			Kind:   dtre.KindInvalidState,
			Reason: fmt.Sprintf("checkpoint state validation failed: %v", err),
			Err:    err,
		}
	}
	rehash, err := hasher.SumState(cp.State)
	if err != nil {
		return err
	}
	if !rehash.Equal(cp.StateHash) {
		return &dtre.StateError{
			Kind:     dtre.KindCheckpointMismatch,
			Reason:   "checkpoint state hash does not match rehash",
			Expected: cp.StateHash.String(),
			Actual:   rehash.String(),
		}
	}

	m.current = cp.State.Clone()
	m.currentHash = cp.StateHash
	m.count = cp.Index
	return nil
}

// StateDiff is the hash-level difference between two states. Richer
// deltas are the caller's domain; at this level a diff is two hashes
// and their equality.
type StateDiff struct {
	FromHash hasher.StateHash
	ToHash   hasher.StateHash
	Equal    bool
}

// Diff computes the hash-level difference between the current state
// and other.
func (m *StateManager[S, T]) Diff(other S) (StateDiff, error) {
	toHash, err := hasher.SumState(other)
	if err != nil {
		return StateDiff{}, err
	}
	return StateDiff{
		FromHash: m.currentHash,
		ToHash:   toHash,
		Equal:    m.currentHash.Equal(toHash),
	}, nil
}
