package pdfa

import (
	"bytes"
	"fmt"
)

// PatchByteRange finds the zero-filled "/ByteRange [ 0 0 0 0 ... ]"
// placeholder inside buf and overwrites it in place with the real values,
// padding with spaces so the replacement is exactly as long as the
// placeholder it replaces — this is essential: the file offsets computed
// before this patch must not shift afterward. Mirrors the teacher's
// sign/pdfbyterange.go technique exactly.
func PatchByteRange(buf []byte, placeholder string, values [4]int64) error {
	idx := bytes.Index(buf, []byte(placeholder))
	if idx < 0 {
		return fmt.Errorf("pdfa: ByteRange placeholder not found")
	}
	replacement := fmt.Sprintf("/ByteRange [%d %d %d %d]", values[0], values[1], values[2], values[3])
	if len(replacement) > len(placeholder) {
		return fmt.Errorf("pdfa: ByteRange replacement %d bytes longer than placeholder %d bytes", len(replacement), len(placeholder))
	}
	padded := replacement + string(bytes.Repeat([]byte(" "), len(placeholder)-len(replacement)))
	copy(buf[idx:idx+len(placeholder)], padded)
	return nil
}

// ByteRangePlaceholder builds a placeholder string wide enough to hold
// the eventual real ByteRange values without ever needing to grow —
// reserves headroom for file offsets up to 10 digits each.
func ByteRangePlaceholder() string {
	return "/ByteRange [0000000000 0000000000 0000000000 0000000000]"
}

// ContentsPlaceholder returns a zero-filled hex /Contents placeholder of
// byteLen raw signature bytes (hex-encoded, so the string is 2*byteLen
// long) bracketed by angle brackets, the hole PatchContents later fills.
func ContentsPlaceholder(byteLen int) string {
	return "<" + string(bytes.Repeat([]byte("0"), byteLen*2)) + ">"
}

// PatchContents overwrites a zero-filled /Contents<...> placeholder with
// the hex encoding of sig, left-padding sig's hex with trailing zeros up
// to the placeholder's original length so the file length never changes.
func PatchContents(buf []byte, placeholder string, sigHex string) error {
	idx := bytes.Index(buf, []byte(placeholder))
	if idx < 0 {
		return fmt.Errorf("pdfa: Contents placeholder not found")
	}
	if len(sigHex) > len(placeholder)-2 {
		return fmt.Errorf("pdfa: signature hex %d bytes longer than placeholder capacity %d", len(sigHex), len(placeholder)-2)
	}
	inner := sigHex + string(bytes.Repeat([]byte("0"), len(placeholder)-2-len(sigHex)))
	replacement := "<" + inner + ">"
	copy(buf[idx:idx+len(placeholder)], replacement)
	return nil
}
