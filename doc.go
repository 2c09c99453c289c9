// Package dtre defines the determinism envelope for the Deterministic
// Transaction Replay Engine: the capability contracts user types must
// satisfy, the sealed execution context that bottles all would-be
// non-determinism, rule-set versioning, and the error taxonomy.
//
// # Determinism Envelope
//
// Replay is reproducible only if three contracts hold:
//
//  1. State serializes canonically: two logically-equal states produce
//     identical bytes regardless of allocator state or map insertion order.
//     See the hasher package for the canonical value model.
//  2. Rules are pure: the only time, randomness, and external data a rule
//     may observe come from the ExecutionContext it is handed, and the
//     context is sealed before replay begins.
//  3. The transaction sequence is fixed: the caller owns ordering; the
//     engine never reorders observably.
//
// Given those, any two executions of the same (initial state, rules, seed,
// sequence) produce byte-identical final state, identical 32-byte state
// hashes, and identical chained audit traces - on any host, under any
// permitted scheduling.
//
// The engine package contains the sequential and parallel drivers, the
// rules package the versioned registry, the compare package the
// cross-version comparator, and the checkpoint package the persistent
// checkpoint format.
package dtre
