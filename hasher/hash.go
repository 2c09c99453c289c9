package hasher

import (
	"bytes"
	"encoding/hex"

	"lukechampine.com/blake3"

	"github.com/ledgerwatchdog/dtre"
)

// Size is the width of a StateHash in bytes.
const Size = 32

// Domain prefixes for content-addressed hashing. Hashing the domain,
// a null separator, then the payload prevents cross-type collisions
// between state digests and chain digests; the version suffix enables
// future algorithm migration.
const (
	DomainState = "dtre/state/v1"
	DomainChain = "dtre/chain/v1"
	DomainRules = "dtre/rules/v1"
)

// StateHash is a 32-byte Blake3 digest of a state's canonical byte
// form. Equality is byte equality.
type StateHash [Size]byte

// String returns the lowercase hex encoding.
func (h StateHash) String() string {
	return hex.EncodeToString(h[:])
}

// Equal reports byte equality with other.
func (h StateHash) Equal(other StateHash) bool {
	return h == other
}

// IsZero reports whether h is the all-zero hash.
func (h StateHash) IsZero() bool {
	return h == StateHash{}
}

// ParseStateHash decodes a 64-character hex string.
func ParseStateHash(s string) (StateHash, error) {
	var h StateHash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, &dtre.SerializationError{Op: "ParseStateHash", Reason: err.Error(), Err: err}
	}
	if len(b) != Size {
		return h, &dtre.SerializationError{Op: "ParseStateHash", Reason: "hash must be 32 bytes"}
	}
	copy(h[:], b)
	return h, nil
}

// Sum digests canonical bytes under the state domain.
func Sum(canonical []byte) StateHash {
	return sumWithDomain(DomainState, canonical)
}

// SumState canonically serializes a state and digests it. This is the
// hash the engine commits to transitions, traces, and checkpoints.
func SumState[S dtre.State[S]](state S) (StateHash, error) {
	b, err := state.MarshalCanonical()
	if err != nil {
		return StateHash{}, err
	}
	return Sum(b), nil
}

// Chain digests the concatenation of hashes in argument order under the
// chain domain. Folding a trace's to-hashes through Chain yields the
// single witness of the whole trace.
func Chain(hashes []StateHash) StateHash {
	h := blake3.New(Size, nil)
	h.Write([]byte(DomainChain))
	h.Write([]byte{0x00})
	for i := range hashes {
		h.Write(hashes[i][:])
	}
	var out StateHash
	copy(out[:], h.Sum(nil))
	return out
}

// Extend appends one hash to an existing chain digest without
// re-hashing the full sequence. The incremental chain is its own
// digest structure; Extend-folds and flat Chain calls are not
// interchangeable.
func Extend(prev, next StateHash) StateHash {
	h := blake3.New(Size, nil)
	h.Write([]byte(DomainChain))
	h.Write([]byte{0x00})
	h.Write(prev[:])
	h.Write(next[:])
	var out StateHash
	copy(out[:], h.Sum(nil))
	return out
}

// SumDomain digests payload bytes under an explicit domain. Used for
// rule-set metadata digests and trace headers.
func SumDomain(domain string, payload []byte) StateHash {
	return sumWithDomain(domain, payload)
}

func sumWithDomain(domain string, payload []byte) StateHash {
	h := blake3.New(Size, nil)
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(payload)
	var out StateHash
	copy(out[:], h.Sum(nil))
	return out
}

// EqualBytes reports whether two canonical encodings are identical.
// Handy for purity witnesses that want byte-level evidence, not just
// digest equality.
func EqualBytes(a, b []byte) bool {
	return bytes.Equal(a, b)
}
