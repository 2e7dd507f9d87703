package pdfa

import (
	"bytes"
	"testing"
)

func TestPatchByteRangePreservesLength(t *testing.T) {
	placeholder := ByteRangePlaceholder()
	buf := []byte("prefix " + placeholder + " suffix")
	originalLen := len(buf)

	if err := PatchByteRange(buf, placeholder, [4]int64{0, 100, 200, 50}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if len(buf) != originalLen {
		t.Fatalf("length changed: got %d want %d", len(buf), originalLen)
	}
	if !bytes.Contains(buf, []byte("/ByteRange [0 100 200 50]")) {
		t.Fatalf("patched content missing: %s", buf)
	}
}

func TestPatchContentsPreservesLength(t *testing.T) {
	placeholder := ContentsPlaceholder(4)
	buf := []byte("/Contents" + placeholder + "/Type")
	originalLen := len(buf)

	if err := PatchContents(buf, placeholder, "deadbeef"); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if len(buf) != originalLen {
		t.Fatalf("length changed: got %d want %d", len(buf), originalLen)
	}
	if !bytes.Contains(buf, []byte("<deadbeef>")) {
		t.Fatalf("patched content missing: %s", buf)
	}
}

func TestNextObjectNumber(t *testing.T) {
	base := []byte("1 0 obj\n<<>>\nendobj\n5 0 obj\n<<>>\nendobj\n")
	if got := NextObjectNumber(base); got != 6 {
		t.Fatalf("got %d, want 6", got)
	}
}
