package dtre

import "time"

// State is the capability bundle required of user-defined state types.
//
// The type parameter is self-referential: a concrete state type Ledger
// implements State[Ledger]. All three capabilities are demanded at engine
// build time (hashing derives from MarshalCanonical) so that a state type missing one fails to compile rather
// than fail mid-replay.
type State[S any] interface {
	// Clone returns a deep copy. Transitions never mutate prior values;
	// the engine retains old states only in traces and checkpoints.
	Clone() S

	// MarshalCanonical returns the canonical byte form of the state: a
	// deterministic encoding that depends only on logical content. The
	// hasher package's value model produces a compliant encoding. Two
	// logically-equal states MUST return identical bytes.
	MarshalCanonical() ([]byte, error)

	// Validate reports whether the state satisfies its own invariants.
	// It must be pure: calling it twice on the same value yields the
	// same result. The engine checks it on the initial state, on every
	// post-transaction state before commit, and on checkpoint restore.
	Validate() error
}

// Transaction is the capability bundle required of user-defined
// transaction types. Transactions are immutable once handed to the
// engine; the caller owns the ordered sequence.
type Transaction interface {
	// ID returns the unique identifier of this transaction.
	ID() string

	// Timestamp returns the transaction's UTC timestamp. It is carried
	// for audit; the engine never orders by it.
	Timestamp() time.Time

	// Validate reports whether the transaction is well formed. Checked
	// before rule application; a failure rejects the transaction without
	// touching state.
	Validate() error
}

// RuleSet carries the versioned business logic applied to each
// transaction. Apply MUST be referentially transparent: same
// (state, transaction, context) in, same state out, every time. The
// engine cannot prove purity; it removes the common non-determinism
// sources through the sealed ExecutionContext, and the dtretest package
// provides a purity witness that double-applies a rule and compares
// hashes.
type RuleSet[S State[S], T Transaction] interface {
	// Version identifies this rule set in traces and registries.
	Version() Version

	// Apply produces the successor state for one transaction. It must
	// not mutate its inputs, perform I/O, read clocks, or draw
	// randomness outside ctx.
	Apply(state S, tx T, ctx *ExecutionContext) (S, error)
}
