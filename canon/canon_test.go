package canon

import (
	"encoding/json"
	"strings"
	"testing"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestCanonicalizeKeyOrderInvariant(t *testing.T) {
	a := decode(t, `{"b":1,"a":2,"c":{"z":1,"y":2}}`)
	b := decode(t, `{"a":2,"c":{"y":2,"z":1},"b":1}`)

	ca, err := Canonicalize(a)
	if err != nil {
		t.Fatalf("canonicalize a: %v", err)
	}
	cb, err := Canonicalize(b)
	if err != nil {
		t.Fatalf("canonicalize b: %v", err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("permutation mismatch:\n%s\n%s", ca, cb)
	}
	want := `{"a":2,"b":1,"c":{"y":2,"z":1}}`
	if string(ca) != want {
		t.Fatalf("got %s, want %s", ca, want)
	}
}

func TestCanonicalizeNonASCIINotEscaped(t *testing.T) {
	v := decode(t, `{"name":"café"}`)
	out, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(out) != `{"name":"café"}` {
		t.Fatalf("got %s", out)
	}
}

func TestCanonicalizeRejectsUnsupportedType(t *testing.T) {
	_, err := Canonicalize(map[string]interface{}{"x": struct{}{}})
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
	var ite *InvalidTypeError
	if _, ok := err.(*InvalidTypeError); !ok {
		_ = ite
		t.Fatalf("expected *InvalidTypeError, got %T", err)
	}
}

func TestContentHashAndParseRoundTrip(t *testing.T) {
	v := decode(t, `{"decision":"approved","id":"DEC-2026-0001"}`)
	bytes, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	h := ContentHash(bytes)
	algo, hex, err := ParseContentHash(h)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if algo != "SHA-256" {
		t.Fatalf("got algo %s", algo)
	}
	if len(hex) != 64 {
		t.Fatalf("got hex len %d", len(hex))
	}

	// bare hex (no prefix) is also accepted
	if _, _, err := ParseContentHash(hex); err != nil {
		t.Fatalf("bare hex should parse: %v", err)
	}

	if _, _, err := ParseContentHash("MD5:deadbeef"); err == nil {
		t.Fatal("expected rejection of non-SHA-256 algorithm")
	}
}

func TestCanonicalizeJSONPreservesDecimalText(t *testing.T) {
	out, err := CanonicalizeJSON([]byte(`{"amount":10.50}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(out) != `{"amount":10.50}` {
		t.Fatalf("decimal text not preserved verbatim: %s", out)
	}
}
