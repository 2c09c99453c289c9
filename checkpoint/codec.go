// Package checkpoint serializes replay checkpoints to a versioned byte
// layout and stores the resulting blobs in SQLite. Durability policy is
// the caller's choice; the engine only produces and consumes blobs.
//
// Byte layout (all integers little-endian):
//
//	magic(4)="DTRE" | format_version(2) | state_hash(32) | index(8) |
//	context_snapshot_len(4) | context_snapshot |
//	state_len(4) | state_bytes
//
// State bytes are the state's canonical serialization, so a decoded
// checkpoint can be re-verified by rehashing.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/engine"
	"github.com/ledgerwatchdog/dtre/hasher"
)

// Magic identifies a checkpoint blob.
var Magic = [4]byte{'D', 'T', 'R', 'E'}

// FormatVersion is the current blob format version.
const FormatVersion uint16 = 1

const headerLen = 4 + 2 + hasher.Size + 8 + 4

// Encode serializes a checkpoint to the versioned byte layout.
func Encode[S dtre.State[S]](cp engine.Checkpoint[S]) ([]byte, error) {
	stateBytes, err := cp.State.MarshalCanonical()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(Magic[:])
	le16 := make([]byte, 2)
	binary.LittleEndian.PutUint16(le16, FormatVersion)
	buf.Write(le16)
	buf.Write(cp.StateHash[:])
	le64 := make([]byte, 8)
	binary.LittleEndian.PutUint64(le64, uint64(cp.Index))
	buf.Write(le64)
	le32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(le32, uint32(len(cp.ContextSnapshot)))
	buf.Write(le32)
	buf.Write(cp.ContextSnapshot)
	binary.LittleEndian.PutUint32(le32, uint32(len(stateBytes)))
	buf.Write(le32)
	buf.Write(stateBytes)
	return buf.Bytes(), nil
}

// Record is a decoded checkpoint before state reconstruction. The state
// stays as canonical bytes; Restore turns a Record back into a typed
// checkpoint.
type Record struct {
	Index           int
	StateHash       hasher.StateHash
	ContextSnapshot []byte
	StateBytes      []byte
}

// Decode parses a checkpoint blob, validating magic, format version,
// and length framing.
func Decode(b []byte) (Record, error) {
	var rec Record
	if len(b) < headerLen {
		return rec, decodeErr("blob shorter than header")
	}
	if !bytes.Equal(b[:4], Magic[:]) {
		return rec, decodeErr("bad magic")
	}
	if v := binary.LittleEndian.Uint16(b[4:6]); v != FormatVersion {
		return rec, decodeErr(fmt.Sprintf("unsupported format version %d", v))
	}
	copy(rec.StateHash[:], b[6:6+hasher.Size])
	off := 6 + hasher.Size
	rec.Index = int(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8

	ctxLen := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if off+ctxLen+4 > len(b) {
		return rec, decodeErr("context snapshot overruns blob")
	}
	rec.ContextSnapshot = append([]byte(nil), b[off:off+ctxLen]...)
	off += ctxLen

	stateLen := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if off+stateLen != len(b) {
		return rec, decodeErr("state bytes do not fill blob")
	}
	rec.StateBytes = append([]byte(nil), b[off:off+stateLen]...)
	return rec, nil
}

// Restore decodes a blob and reconstructs a typed checkpoint using the
// caller's state decoder. The recorded hash is verified against a
// rehash of the decoded state's canonical form; a mismatch is a
// checkpoint-mismatch state error.
func Restore[S dtre.State[S]](b []byte, decodeState func([]byte) (S, error)) (engine.Checkpoint[S], error) {
	var cp engine.Checkpoint[S]

	rec, err := Decode(b)
	if err != nil {
		return cp, err
	}
	state, err := decodeState(rec.StateBytes)
	if err != nil {
		return cp, &dtre.SerializationError{Op: "checkpoint.Restore", Reason: err.Error(), Err: err}
	}
	rehash, err := hasher.SumState(state)
	if err != nil {
		return cp, err
	}
	if !rehash.Equal(rec.StateHash) {
		return cp, &dtre.StateError{
			Kind:     dtre.KindCheckpointMismatch,
			Reason:   "decoded state does not rehash to recorded hash",
			Expected: rec.StateHash.String(),
			Actual:   rehash.String(),
		}
	}

	cp.Index = rec.Index
	cp.State = state
	cp.StateHash = rec.StateHash
	cp.ContextSnapshot = rec.ContextSnapshot
	return cp, nil
}

func decodeErr(reason string) error {
	return &dtre.SerializationError{Op: "checkpoint.Decode", Reason: reason}
}
