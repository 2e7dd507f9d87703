// Package canon implements the deterministic JSON canonicalization used to
// derive content hashes for Document Content objects and to embed them
// byte-for-byte inside a sealed PDF.
package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// InvalidTypeError is returned by Canonicalize when the object graph
// contains a value that is not null, bool, number, string, array, or object.
type InvalidTypeError struct {
	Value interface{}
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("canon: unsupported value type %T", e.Value)
}

// Canonicalize produces the authoritative canonical byte encoding of obj:
// object keys sorted at every level, minimal separators, UTF-8, non-ASCII
// preserved rather than escaped, and numbers rendered as decimal strings
// with no float round-tripping.
//
// obj is expected to be the result of decoding JSON with
// json.Decoder.UseNumber (or plain Go values built from
// nil/bool/json.Number/string/[]interface{}/map[string]interface{}).
func Canonicalize(obj interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalizeJSON decodes raw JSON bytes with arbitrary-precision number
// handling and then canonicalizes the resulting tree.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canon: decode: %w", err)
	}
	return Canonicalize(v)
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return encodeNumber(buf, val)
	case string:
		return encodeString(buf, val)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
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
			if err := encodeValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return &InvalidTypeError{Value: v}
	}
	return nil
}

// encodeNumber rejects non-integer floats per the spec's "arbitrary
// precision decimal path, no float round-tripping" guarantee: json.Number
// carries the original decimal text verbatim, so we re-emit it unchanged
// rather than parsing through float64.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if s == "" {
		return &InvalidTypeError{Value: n}
	}
	buf.WriteString(s)
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	// Guard against non-canonical Unicode forms slipping into the hash
	// input; NFC normalization is a no-op for already-normalized content
	// and keeps the byte-identity invariant stable across producers that
	// emit composed vs. decomposed code points for the same glyphs.
	s = norm.NFC.String(s)
	var sbuf bytes.Buffer
	enc := json.NewEncoder(&sbuf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canon: encode string: %w", err)
	}
	buf.Write(bytes.TrimSuffix(sbuf.Bytes(), []byte("\n")))
	return nil
}

// ContentHash returns "SHA-256:" + lowercase hex of sha256(bytes).
func ContentHash(canonicalBytes []byte) string {
	sum := sha256.Sum256(canonicalBytes)
	return "SHA-256:" + hex.EncodeToString(sum[:])
}

// ParseContentHash accepts either bare lowercase hex or "ALGO:hex", and
// fails if the algorithm is anything other than SHA-256 or the hex is
// malformed.
func ParseContentHash(s string) (algo string, hexDigest string, err error) {
	if s == "" {
		return "", "", fmt.Errorf("canon: empty content hash")
	}
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		algo = s[:idx]
		hexDigest = s[idx+1:]
		if !strings.EqualFold(algo, "SHA-256") {
			return "", "", fmt.Errorf("canon: unsupported hash algorithm %q", algo)
		}
		algo = "SHA-256"
	} else {
		algo = "SHA-256"
		hexDigest = s
	}
	if len(hexDigest) != sha256.Size*2 {
		return "", "", fmt.Errorf("canon: malformed hex digest length %d", len(hexDigest))
	}
	if _, err := hex.DecodeString(hexDigest); err != nil {
		return "", "", fmt.Errorf("canon: malformed hex digest: %w", err)
	}
	return algo, strings.ToLower(hexDigest), nil
}
