package auditor

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sealbound/trustpipe/canon"
	"github.com/sealbound/trustpipe/pdfa"
)

// pdfBuilder assembles a minimal classic-format PDF object-by-object,
// recording each object's byte offset as it writes so the closing xref
// table can point at them. Grounded on pdfa.IncrementalWriter.Finalize's
// xref/trailer byte format (20-byte "%010d %05d n \n" entries, a
// "trailer\n<<...>>\nstartxref\n<offset>\n%%EOF\n" tail) so the documents
// built here parse the same way a document written by this module's own
// writer would.
type pdfBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int64
	order   []int
}

func newPDFBuilder() *pdfBuilder {
	b := &pdfBuilder{offsets: map[int]int64{}}
	b.buf.WriteString("%PDF-1.7\n")
	return b
}

func (b *pdfBuilder) object(num int, body string) {
	b.offsets[num] = int64(b.buf.Len())
	b.order = append(b.order, num)
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (b *pdfBuilder) streamObject(num int, dictInner string, data []byte) {
	b.offsets[num] = int64(b.buf.Len())
	b.order = append(b.order, num)
	fmt.Fprintf(&b.buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", num, dictInner, len(data))
	b.buf.Write(data)
	b.buf.WriteString("\nendstream\nendobj\n")
}

// finalize writes the classic xref table and trailer and returns the
// finished document bytes. Every fixture in this file is a single
// revision — exactly one "xref" keyword, no /Prev chain — since AIA's
// xref-sanity check (§4.4 step 4) specifically counts classic
// cross-reference sections as a proxy for "more than one incremental
// update layered on top of the signed baseline"; these fixtures model
// scenarios where the post-signing tampering is raw appended bytes, not
// a second legitimate revision.
func (b *pdfBuilder) finalize(rootObjNum int) []byte {
	maxObj := 0
	for _, n := range b.order {
		if n > maxObj {
			maxObj = n
		}
	}

	xrefStart := int64(b.buf.Len())
	b.buf.WriteString("xref\n")
	fmt.Fprintf(&b.buf, "0 %d\n", maxObj+1)
	fmt.Fprintf(&b.buf, "%010d %05d f \n", 0, 65535)
	for i := 1; i <= maxObj; i++ {
		fmt.Fprintf(&b.buf, "%010d %05d n \n", b.offsets[i], 0)
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		maxObj+1, rootObjNum, xrefStart)
	return b.buf.Bytes()
}

// canonicalPair canonicalizes contentJSON and derives its bindings.json
// the same way cmd/trustctl's generate subcommand does (canon.ContentHash
// over the canonicalized content, wrapped in a minimal bindings object).
func canonicalPair(t *testing.T, contentJSON string) (content, bindings []byte) {
	t.Helper()
	content, err := canon.CanonicalizeJSON([]byte(contentJSON))
	if err != nil {
		t.Fatalf("canonicalize content: %v", err)
	}
	bindingsSrc := fmt.Sprintf(`{"content_hash":%q,"hash_algorithm":"SHA-256","generation_mode":"final"}`,
		canon.ContentHash(content))
	bindings, err = canon.CanonicalizeJSON([]byte(bindingsSrc))
	if err != nil {
		t.Fatalf("canonicalize bindings: %v", err)
	}
	return content, bindings
}

// buildUnsignedFixture is a base, unsigned PDF/A-3b document: a one-page
// catalog with Document Content and its bindings embedded as /AF
// Filespecs (objects 4/6, /Data and /Supplement respectively) plus a
// PDF/A-3 identification XMP packet (object 8). No /AcroForm, no /Sig
// fields. Grounded on pdfa/af.go's AssociatedFiles walk and
// pdfa/xmp.go's BuildXMPPacket.
func buildUnsignedFixture(t *testing.T, contentJSON string) []byte {
	t.Helper()
	content, bindings := canonicalPair(t, contentJSON)
	xmp := pdfa.BuildXMPPacket(3, "B")

	b := newPDFBuilder()
	b.object(1, "<< /Type /Catalog /Pages 2 0 R /AF [4 0 R 6 0 R] /Metadata 8 0 R >>")
	b.object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.object(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	b.object(4, "<< /Type /Filespec /F (content.json) /UF (content.json) /AFRelationship /Data /EF << /F 5 0 R /UF 5 0 R >> >>")
	b.streamObject(5, "/Type /EmbeddedFile", content)
	b.object(6, "<< /Type /Filespec /F (bindings.json) /UF (bindings.json) /AFRelationship /Supplement /EF << /F 7 0 R /UF 7 0 R >> >>")
	b.streamObject(7, "/Type /EmbeddedFile", bindings)
	b.streamObject(8, "/Type /Metadata /Subtype /XML", xmp)

	return b.finalize(1)
}

// buildSignedFixture is the same document as buildUnsignedFixture, plus
// one /AcroForm /Sig field (object 10) carrying a DocMDP /Reference
// block, in a single revision. The signature's /Contents is an opaque
// placeholder rather than a real CMS blob: the Artifact Integrity Audit
// never inspects a signature field's cryptographic validity, only its
// ByteRange/DocMDP structure, so this exercises every AIA/coordinator
// code path these scenarios need without requiring a real signer or
// trust anchor. Grounded on the placeholder-then-patch technique
// cms/certification.go's signCertificationPlaceholders uses for the real
// certification signature.
//
// If trailingGarbage is true, extra bytes (including a second, bare
// "%%EOF" marker with no accompanying xref section) are appended after
// the patched ByteRange closes — the "tampered after signing" shape
// S5/S6/S7 need — so the signature's ByteRange[2]+ByteRange[3] falls
// short of the final file length while the document's only classic xref
// section remains the one this function writes.
func buildSignedFixture(t *testing.T, contentJSON string, trailingGarbage bool) []byte {
	t.Helper()
	content, bindings := canonicalPair(t, contentJSON)
	xmp := pdfa.BuildXMPPacket(3, "B")

	const reservedSigBytes = 256
	byteRangePH := pdfa.ByteRangePlaceholder()
	contentsPH := pdfa.ContentsPlaceholder(reservedSigBytes)

	b := newPDFBuilder()
	b.object(1, "<< /Type /Catalog /Pages 2 0 R /AF [4 0 R 6 0 R] /Metadata 8 0 R /AcroForm << /Fields [9 0 R] /SigFlags 3 >> >>")
	b.object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.object(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	b.object(4, "<< /Type /Filespec /F (content.json) /UF (content.json) /AFRelationship /Data /EF << /F 5 0 R /UF 5 0 R >> >>")
	b.streamObject(5, "/Type /EmbeddedFile", content)
	b.object(6, "<< /Type /Filespec /F (bindings.json) /UF (bindings.json) /AFRelationship /Supplement /EF << /F 7 0 R /UF 7 0 R >> >>")
	b.streamObject(7, "/Type /EmbeddedFile", bindings)
	b.streamObject(8, "/Type /Metadata /Subtype /XML", xmp)
	b.object(9, "<< /Type /Annot /Subtype /Widget /FT /Sig /T (CertificationSignature) /F 132 /Rect [0 0 0 0] /V 10 0 R >>")
	b.object(10, fmt.Sprintf(
		"<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached %s /Contents%s /Reference [ << /Type /SigRef /TransformMethod /DocMDP /TransformParams << /Type /TransformParams /P 1 /V /1.2 >> >> ] >>",
		byteRangePH, contentsPH))

	out := b.finalize(1)

	idx := bytes.Index(out, []byte(contentsPH))
	if idx < 0 {
		t.Fatalf("Contents placeholder not found in signed fixture")
	}
	contentsStart := idx
	contentsEnd := idx + len(contentsPH)
	o1, l1 := int64(0), int64(contentsStart)
	o2 := int64(contentsEnd)
	l2 := int64(len(out)) - o2

	if err := pdfa.PatchByteRange(out, byteRangePH, [4]int64{o1, l1, o2, l2}); err != nil {
		t.Fatalf("patch ByteRange: %v", err)
	}
	if err := pdfa.PatchContents(out, contentsPH, ""); err != nil {
		t.Fatalf("patch Contents: %v", err)
	}

	if trailingGarbage {
		out = append(out, []byte("\n% bytes appended after the signature's ByteRange closed\n")...)
		out = append(out, bytes.Repeat([]byte("X"), 64)...)
		out = append(out, []byte("\n%%EOF\n")...)
	}
	return out
}
