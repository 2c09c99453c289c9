package engine

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ledgerwatchdog/dtre"
	"github.com/ledgerwatchdog/dtre/hasher"
)

// Trace persistent format: a stream of typed, length-prefixed records
// followed by a trailer.
//
//	record  := type(1) | payload_len(4 LE) | payload
//	trailer := 0x00 | chained_hash(32) | rule_set_digest(32)
//
// Record payloads (integers little-endian, strings u32-length-prefixed):
//
//	transition (0x01): from_hash(32) | to_hash(32) | tx_id
//	rule application (0x02): major(4) | minor(4) | patch(4) | ticks(8) | tx_id
//	error (0x03): tx_id | major(4) | minor(4) | patch(4) | index(8) | message
const (
	recTrailer         byte = 0x00
	recTransition      byte = 0x01
	recRuleApplication byte = 0x02
	recError           byte = 0x03
)

// EncodeTrace serializes a trace to its persistent byte form.
func EncodeTrace(t *ExecutionTrace) []byte {
	var buf bytes.Buffer

	for _, tr := range t.Transitions {
		var payload bytes.Buffer
		payload.Write(tr.FromHash[:])
		payload.Write(tr.ToHash[:])
		writeString(&payload, tr.TransactionID)
		writeRecord(&buf, recTransition, payload.Bytes())
	}
	for _, ra := range t.RuleApplications {
		var payload bytes.Buffer
		writeUint32(&payload, ra.RuleVersion.Major)
		writeUint32(&payload, ra.RuleVersion.Minor)
		writeUint32(&payload, ra.RuleVersion.Patch)
		writeUint64(&payload, uint64(ra.DurationTicks))
		writeString(&payload, ra.TransactionID)
		writeRecord(&buf, recRuleApplication, payload.Bytes())
	}
	for _, ec := range t.Errors {
		var payload bytes.Buffer
		writeString(&payload, ec.TransactionID)
		writeUint32(&payload, ec.RuleVersion.Major)
		writeUint32(&payload, ec.RuleVersion.Minor)
		writeUint32(&payload, ec.RuleVersion.Patch)
		writeUint64(&payload, uint64(ec.Index))
		writeString(&payload, ec.Message)
		writeRecord(&buf, recError, payload.Bytes())
	}

	buf.WriteByte(recTrailer)
	buf.Write(t.ChainedHash[:])
	buf.Write(t.RuleSetDigest[:])
	return buf.Bytes()
}

// DecodeTrace parses the persistent byte form back into a trace. The
// trailer's chained hash is verified against a refold of the decoded
// transitions, so a tampered stream does not decode silently.
func DecodeTrace(b []byte) (*ExecutionTrace, error) {
	t := &ExecutionTrace{}
	r := &reader{buf: b}

	for {
		recType, err := r.byte()
		if err != nil {
			return nil, err
		}
		if recType == recTrailer {
			break
		}
		payload, err := r.lengthPrefixed()
		if err != nil {
			return nil, err
		}
		pr := &reader{buf: payload}
		switch recType {
		case recTransition:
			var tr TransitionInfo
			if err := pr.hash(&tr.FromHash); err != nil {
				return nil, err
			}
			if err := pr.hash(&tr.ToHash); err != nil {
				return nil, err
			}
			if tr.TransactionID, err = pr.string(); err != nil {
				return nil, err
			}
			t.Transitions = append(t.Transitions, tr)
		case recRuleApplication:
			var ra RuleApplication
			if ra.RuleVersion, err = pr.version(); err != nil {
				return nil, err
			}
			ticks, err := pr.uint64()
			if err != nil {
				return nil, err
			}
			ra.DurationTicks = int64(ticks)
			if ra.TransactionID, err = pr.string(); err != nil {
				return nil, err
			}
			t.RuleApplications = append(t.RuleApplications, ra)
		case recError:
			var ec ErrorContext
			if ec.TransactionID, err = pr.string(); err != nil {
				return nil, err
			}
			if ec.RuleVersion, err = pr.version(); err != nil {
				return nil, err
			}
			index, err := pr.uint64()
			if err != nil {
				return nil, err
			}
			ec.Index = int(index)
			if ec.Message, err = pr.string(); err != nil {
				return nil, err
			}
			t.Errors = append(t.Errors, ec)
		default:
			return nil, traceErr(fmt.Sprintf("unknown record type 0x%02x", recType))
		}
	}

	if err := r.hash(&t.ChainedHash); err != nil {
		return nil, err
	}
	if err := r.hash(&t.RuleSetDigest); err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, traceErr("trailing bytes after trailer")
	}

	if refold := hasher.Chain(t.ToHashes()); !refold.Equal(t.ChainedHash) {
		return nil, traceErr("chained hash does not match refold of transitions")
	}
	return t, nil
}

func writeRecord(buf *bytes.Buffer, recType byte, payload []byte) {
	buf.WriteByte(recType)
	writeUint32(buf, uint32(len(payload)))
	buf.Write(payload)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], v)
	buf.Write(le[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], v)
	buf.Write(le[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) byte() (byte, error) {
	if r.remaining() < 1 {
		return 0, traceErr("unexpected end of stream")
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, traceErr("unexpected end of stream")
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) lengthPrefixed() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

func (r *reader) string() (string, error) {
	b, err := r.lengthPrefixed()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) hash(out *hasher.StateHash) error {
	b, err := r.take(hasher.Size)
	if err != nil {
		return err
	}
	copy(out[:], b)
	return nil
}

func (r *reader) version() (dtre.Version, error) {
	var v dtre.Version
	var err error
	if v.Major, err = r.uint32(); err != nil {
		return v, err
	}
	if v.Minor, err = r.uint32(); err != nil {
		return v, err
	}
	v.Patch, err = r.uint32()
	return v, err
}

func traceErr(reason string) error {
	return &dtre.SerializationError{Op: "DecodeTrace", Reason: reason}
}
