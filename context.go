package dtre

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"lukechampine.com/blake3"
)

// ExecutionContext bottles every deterministic input a rule may observe:
// a frozen UTC instant, a seeded PRNG stream, and an immutable map of
// external facts.
//
// A context is Open when constructed and Sealed when the engine is
// built. Facts may only be added while Open; rules only ever observe
// Sealed contexts. The engine never consults a wall clock or an unseeded
// randomness source anywhere else.
//
// # PRNG scheme
//
// The generator is ChaCha8 with a 32-byte key. Each transaction at
// sequence index i draws from a private substream keyed by
//
//	blake3(seed_le8 || (i+1)_le8)
//
// Slot 0 (a zero second word) keys the context's own stream, so no
// transaction shares it. The stream a rule observes depends only on (seed, index), never on
// scheduling. The sequential and parallel drivers derive substreams
// identically, which is what makes their PRNG consumption orders equal.
type ExecutionContext struct {
	now    time.Time
	seed   uint64
	facts  map[string]any
	sealed bool
	stream *Rand
}

// NewExecutionContext creates an Open context with a frozen instant and
// a PRNG seed. The instant is normalized to UTC.
func NewExecutionContext(now time.Time, seed uint64) *ExecutionContext {
	return &ExecutionContext{
		now:    now.UTC(),
		seed:   seed,
		facts:  make(map[string]any),
		stream: newRand(deriveKey(seed, 0)),
	}
}

// Now returns the frozen instant. Every call returns the same value.
func (c *ExecutionContext) Now() time.Time {
	return c.now
}

// Seed returns the PRNG seed the context was constructed with.
func (c *ExecutionContext) Seed() uint64 {
	return c.seed
}

// Random returns the context's deterministic PRNG stream. Within a
// replay, the stream handed to a rule is the private substream for the
// transaction being applied.
func (c *ExecutionContext) Random() *Rand {
	return c.stream
}

// AddExternalFact records an immutable external fact under key. It is
// legal only before the context is sealed; the engine builder seals the
// context, so facts must be supplied before Build.
func (c *ExecutionContext) AddExternalFact(key string, value any) error {
	if c.sealed {
		return ErrContextSealed
	}
	c.facts[key] = value
	return nil
}

// ExternalFact returns the fact stored under key. Facts are read-only
// after sealing; callers must not mutate the returned value.
func (c *ExecutionContext) ExternalFact(key string) (any, bool) {
	v, ok := c.facts[key]
	return v, ok
}

// FactCount returns the number of stored external facts.
func (c *ExecutionContext) FactCount() int {
	return len(c.facts)
}

// Seal transitions the context from Open to Sealed. Sealing is
// idempotent and irreversible.
func (c *ExecutionContext) Seal() {
	c.sealed = true
}

// Sealed reports whether the context has been sealed.
func (c *ExecutionContext) Sealed() bool {
	return c.sealed
}

// ForTransaction returns a sealed view of the context whose PRNG is the
// private substream for the given sequence index. The view shares the
// frozen instant and the fact map. Derivation is pure: two calls with
// the same index yield identically-behaving streams.
func (c *ExecutionContext) ForTransaction(index uint64) *ExecutionContext {
	return &ExecutionContext{
		now:    c.now,
		seed:   c.seed,
		facts:  c.facts,
		sealed: true,
		stream: newRand(deriveKey(c.seed, index+1)),
	}
}

// Snapshot returns the deterministic byte form of the context captured
// in checkpoints: the frozen instant and the seed. Facts are excluded;
// they participate in no hash unless a rule reads them into state.
func (c *ExecutionContext) Snapshot() []byte {
	return fmt.Appendf(nil, `{"now":%q,"seed":%d}`,
		c.now.Format(time.RFC3339Nano), c.seed)
}

// deriveKey produces the 32-byte ChaCha8 key for a (seed, slot) pair.
// Slot 0 is the context's own stream; transaction index i uses slot i+1.
func deriveKey(seed, slot uint64) [32]byte {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	binary.LittleEndian.PutUint64(buf[8:16], slot)
	return blake3.Sum256(buf[:])
}

// Rand is the fixed deterministic PRNG handed to rules: a ChaCha8
// stream whose advancement order is determined solely by how rules
// consume it.
type Rand struct {
	r *rand.Rand
}

func newRand(key [32]byte) *Rand {
	return &Rand{r: rand.New(rand.NewChaCha8(key))}
}

// Uint64 returns the next 64 bits of the stream.
func (r *Rand) Uint64() uint64 {
	return r.r.Uint64()
}

// Int64N returns a value in [0, n). Panics if n <= 0.
func (r *Rand) Int64N(n int64) int64 {
	return r.r.Int64N(n)
}

// Float64 returns a value in [0, 1).
func (r *Rand) Float64() float64 {
	return r.r.Float64()
}

// Bool returns true with probability p.
func (r *Rand) Bool(p float64) bool {
	return r.r.Float64() < p
}
