package hasher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"github.com/ledgerwatchdog/dtre"
)

// MarshalCanonical produces the canonical byte encoding of a value.
// This is the ONLY serialization that may feed content-addressed
// hashing.
//
// Properties beyond standard JSON marshaling:
//
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping (< > & emitted verbatim)
//  3. Strings NFC-normalized at the serialization boundary
//  4. Non-finite floats rejected
//  5. No null
func MarshalCanonical(v Value) ([]byte, error) {
	b, err := marshalValue(v)
	if err != nil {
		return nil, &dtre.SerializationError{Op: "MarshalCanonical", Reason: err.Error(), Err: err}
	}
	return b, nil
}

func marshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical form")
	case Str:
		return marshalString(string(val))
	case Int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case Bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case Float:
		return marshalFloat(float64(val))
	case Array:
		return marshalArray(val)
	case Object:
		return marshalObject(val)
	default:
		return nil, fmt.Errorf("unsupported canonical type: %T", v)
	}
}

// marshalFloat encodes a finite float in shortest round-trip decimal
// form with a lowercase exponent. NaN and infinities have no canonical
// representation and are rejected.
func marshalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite float has no canonical form: %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		// Integral values print without a fractional part or exponent.
		return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// marshalString emits a canonical JSON string: NFC-normalized, no HTML
// escaping, only control characters, backslash, and quote escaped.
func marshalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder appends a trailing newline; strip it.
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}

	// Go's encoder escapes U+2028/U+2029 for JavaScript embedding;
	// canonical JSON emits them verbatim. Escaped backslashes followed
	// by the literal text "u2028" must stay escaped.
	return unescapeLineSeparators(out), nil
}

// unescapeLineSeparators rewrites backslash-u2028 and backslash-u2029 escape sequences to
// the literal characters, preserving sequences preceded by an odd run
// of backslashes (those encode a literal backslash plus text).
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		if i+6 <= len(data) && data[i] == '\\' && data[i+1] == 'u' &&
			data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 6
				continue
			}
		}
		out = append(out, data[i])
		i++
	}
	return out
}

func marshalArray(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalObject(obj Object) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := marshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
