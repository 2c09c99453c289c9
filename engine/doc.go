// Package engine implements the replay drivers: the state manager that
// threads state through transactions, the sequential driver, the
// parallel driver, and the checkpoint machinery.
//
// # Single-Writer Commits
//
// During a replay the current state is exclusively owned by one state
// manager. A transaction commits only after every post-condition holds:
// the transaction validated, the rules applied cleanly, the successor
// state validated, and its hash computed. A failure at any step leaves
// the committed state untouched.
//
// # Ordering
//
// Trace transitions are appended in transaction-sequence order
// regardless of execution strategy, and each transaction at index i
// draws randomness from the private substream for i (see
// dtre.ExecutionContext). The parallel driver replays the full sequence
// on N workers against independent snapshots and reconciles their
// chained hashes; its observable output is byte-identical to the
// sequential driver's for every input and every worker count, and a
// divergence is reported as a non-deterministic-operation error naming
// the first divergent transaction.
//
// # Trace vs. Metrics
//
// Rule-application durations and throughput counters are measured but
// never hashed. The chained hash covers state transitions only, so the
// same input produces the same witness on a fast machine and a slow
// one.
package engine
