// Package canonical implements the order-independent, integer-only byte
// representation used as the sole input to every hash in this module:
// mappings sorted by key, no HTML escaping, no whitespace, Unicode strings
// normalized to NFC so the same logical value hashes identically regardless
// of which platform produced its UTF-8 bytes.
//
// Grounded on the teacher's pkg/canonicalize/jcs.go (recursive marshal,
// SetEscapeHTML(false), json.Number handling) and
// original_source/engine/core/canonical.py (sort_keys, ensure_ascii=False,
// tuple/list normalization).
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/rynxs/operator-core/pkg/errs"
)

// Bytes returns the canonical JSON encoding of v. A number whose JSON form
// has a fraction or an exponent is rejected as a Determinism error. A
// float32/float64 holding an integral value (below 1e21) is not rejected: it
// is encoded as that integer, exactly as an int of the same value would be.
func Bytes(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String returns the canonical JSON encoding of v as a string.
func String(v any) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Hash returns the lower-case hex SHA-256 digest of v's canonical encoding.
func Hash(v any) (string, error) {
	b, err := Bytes(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes returns the lower-case hex SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// toGeneric marshals v through the standard encoder (to respect struct
// tags) then decodes with UseNumber so integers survive as json.Number
// rather than becoming float64.
func toGeneric(v any) (any, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Determinism("canonical: marshal failed: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, errs.Determinism("canonical: decode failed: %v", err)
	}
	return generic, nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		s := t.String()
		if isFloatLiteral(s) {
			return errs.Determinism("canonical: float value %q is not representable (integer-only codec)", s)
		}
		buf.WriteString(s)
		return nil
	case string:
		return encodeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case float32, float64:
		return errs.Determinism("canonical: float value %v is not representable (integer-only codec)", t)
	default:
		return errs.Determinism("canonical: unsupported type %T", t)
	}
}

func isFloatLiteral(s string) bool {
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return true
		}
	}
	return false
}

// encodeString writes t NFC-normalized, JSON-escaped (without HTML
// escaping), matching RFC 8785 string rules.
func encodeString(buf *bytes.Buffer, t string) error {
	normalized := norm.NFC.String(t)
	var inner bytes.Buffer
	enc := json.NewEncoder(&inner)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return fmt.Errorf("canonical: string encode failed: %w", err)
	}
	buf.Write(bytes.TrimSuffix(inner.Bytes(), []byte{'\n'}))
	return nil
}

// Canonicalize recursively normalizes v into the generic shape (maps with
// string keys, slices, json.Number, string, bool, nil) used elsewhere in the
// module (e.g. before computing a spec_hash or a desired_hash), without
// producing final bytes. It rejects floats the same way Bytes does.
func Canonicalize(v any) (any, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	return canonicalizeGeneric(generic)
}

func canonicalizeGeneric(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		if isFloatLiteral(t.String()) {
			return nil, errs.Determinism("canonical: float value %q is not representable (integer-only codec)", t.String())
		}
		return t, nil
	case string:
		return norm.NFC.String(t), nil
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			c, err := canonicalizeGeneric(elem)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			c, err := canonicalizeGeneric(elem)
			if err != nil {
				return nil, err
			}
			out[norm.NFC.String(k)] = c
		}
		return out, nil
	default:
		return t, nil
	}
}
