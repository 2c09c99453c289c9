// Package hasher provides content-addressed state hashing: a canonical
// byte encoding over a closed value model, Blake3 digests of that
// encoding, and the chain combinator used to witness whole traces.
//
// The canonical form is part of the library contract. Two
// logically-equal values marshal to identical bytes regardless of map
// insertion order, allocator state, or host platform:
//
//   - object keys sorted by UTF-16 code units
//   - strings NFC-normalized, no HTML escaping
//   - integers in shortest decimal form
//   - floats in shortest round-trip decimal form; NaN and infinities
//     are rejected
//   - null is rejected
//
// Hashing itself is infallible; only serialization can fail, and it
// fails with a dtre.SerializationError.
package hasher
