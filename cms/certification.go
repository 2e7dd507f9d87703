package cms

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/sealbound/trustpipe/pdfa"
)

// CertificationOptions configures the Rev 1 certification signature: the
// PAdES baseline signature that also carries the DocMDP permission
// governing every later revision.
type CertificationOptions struct {
	FieldName   string
	Signer      Signer
	Chain       []*x509.Certificate // chain less the signer's own leaf
	SigningTime time.Time

	// EnableLTAUpdates selects DocMDP /P: 1 (no further changes allowed,
	// used when the pipeline stops at BASELINE) or 2 (form-fill / further
	// signatures permitted, required for the LT/LTA revisions to follow).
	EnableLTAUpdates bool
}

func docMDPPermission(opts CertificationOptions) int {
	if opts.EnableLTAUpdates {
		return 2
	}
	return 1
}

// BuildCertificationRevision appends the Rev 1 certification signature to
// raw as a single incremental update and returns the fully sealed bytes.
// It performs the dry-run placeholder sizing described in §4.4 internally:
// the CMS signature is computed only after the ByteRange-covered region is
// fixed by writing a zero-filled placeholder first, so there is never a
// second round trip to the signer for sizing purposes alone.
func BuildCertificationRevision(raw []byte, doc *pdfa.Document, opts CertificationOptions) ([]byte, error) {
	if opts.FieldName == "" {
		opts.FieldName = "ArchiveSignature"
	}
	if opts.SigningTime.IsZero() {
		opts.SigningTime = time.Now().UTC()
	}

	rootOrder := doc.RootKeyOrder()
	fieldObjNum := pdfa.NextObjectNumber(raw)
	sigObjNum := fieldObjNum + 1

	acroForm := fmt.Sprintf("<< /Fields [%d 0 R] /SigFlags 3 >>", fieldObjNum)
	catalogBody, rootID, err := doc.RebuildCatalog(map[string]string{"AcroForm": acroForm}, appendUnique(rootOrder, "AcroForm"))
	if err != nil {
		return nil, fmt.Errorf("cms: rebuild catalog: %w", err)
	}

	sigDict := buildCertificationSigDict(opts)
	fieldDict := fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Sig /T (%s) /F 132 /Rect [0 0 0 0] /V %d 0 R /P %d 0 R >>",
		opts.FieldName, sigObjNum, firstPageObjNum(doc))

	w := pdfa.NewIncrementalWriter(raw)
	w.AddObject(rootID, catalogBody)
	w.AddObject(fieldObjNum, []byte(fieldDict))
	w.AddObject(sigObjNum, []byte(sigDict))

	prevXref, err := pdfa.PreviousStartXref(raw)
	if err != nil {
		return nil, fmt.Errorf("cms: locate previous xref: %w", err)
	}
	out, err := w.Finalize(prevXref, fmt.Sprintf("/Root %d 0 R", rootID))
	if err != nil {
		return nil, fmt.Errorf("cms: finalize incremental update: %w", err)
	}

	return signCertificationPlaceholders(out, opts)
}

func appendUnique(keys []string, k string) []string {
	for _, existing := range keys {
		if existing == k {
			return keys
		}
	}
	return append(append([]string{}, keys...), k)
}

// firstPageObjNum is a best-effort placeholder: a widget annotation's /P
// (owning page) is cosmetic for this system's purposes since the
// certification signature is never intended to be visually rendered. A
// real deployment wiring the optional appearance stamp would populate this
// from the actual page object number.
func firstPageObjNum(doc *pdfa.Document) uint32 {
	return 1
}

func buildCertificationSigDict(opts CertificationOptions) string {
	var buf bytes.Buffer
	buf.WriteString("<<\n")
	buf.WriteString(" /Type /Sig\n")
	buf.WriteString(" /Filter /Adobe.PPKLite\n")
	buf.WriteString(" /SubFilter /adbe.pkcs7.detached\n")
	buf.WriteString(" /M (" + pdfDate(opts.SigningTime) + ")\n")
	buf.WriteString(" " + pdfa.ByteRangePlaceholder() + "\n")
	buf.WriteString(" /Contents" + hexPlaceholder(ReservedSignatureBytes) + "\n")
	buf.WriteString(" /Reference [\n")
	buf.WriteString("  << /Type /SigRef\n")
	buf.WriteString("     /TransformMethod /DocMDP\n")
	buf.WriteString("     /TransformParams <<\n")
	buf.WriteString("        /Type /TransformParams\n")
	fmt.Fprintf(&buf, "        /P %d\n", docMDPPermission(opts))
	buf.WriteString("        /V /1.2\n")
	buf.WriteString("     >>\n")
	buf.WriteString("  >>\n")
	buf.WriteString(" ]\n")
	buf.WriteString(">>")
	return buf.String()
}

func pdfDate(t time.Time) string {
	return "D:" + t.Format("20060102150405") + "Z"
}

// signCertificationPlaceholders patches the ByteRange and signs the
// resulting ByteRange-covered bytes, then patches /Contents with the
// resulting detached CMS signature.
func signCertificationPlaceholders(buf []byte, opts CertificationOptions) ([]byte, error) {
	placeholder := pdfa.ByteRangePlaceholder()
	contentsPH := hexPlaceholder(ReservedSignatureBytes)

	idx := bytes.Index(buf, []byte(contentsPH))
	if idx < 0 {
		return nil, fmt.Errorf("cms: /Contents placeholder not found")
	}
	prefixTag := []byte("/Contents")
	contentsStart := idx + len(prefixTag) // position of the opening '<'
	contentsEnd := contentsStart + len(contentsPH)

	o1, l1 := int64(0), int64(contentsStart)
	o2 := int64(contentsEnd)
	l2 := int64(len(buf)) - o2

	if err := pdfa.PatchByteRange(buf, placeholder, [4]int64{o1, l1, o2, l2}); err != nil {
		return nil, fmt.Errorf("cms: patch byte range: %w", err)
	}

	signedContent := make([]byte, 0, l1+l2)
	signedContent = append(signedContent, buf[o1:o1+l1]...)
	signedContent = append(signedContent, buf[o2:o2+l2]...)

	der, err := buildDetachedSignature(signedContent, opts.Signer, opts.Chain, opts.SigningTime)
	if err != nil {
		return nil, err
	}
	sigHex, err := encodeHexContents(der, ReservedSignatureBytes)
	if err != nil {
		return nil, err
	}
	if err := pdfa.PatchContents(buf, contentsPH, sigHex); err != nil {
		return nil, fmt.Errorf("cms: patch contents: %w", err)
	}
	return buf, nil
}

// sha256Sum is a small helper used by tests to independently verify the
// ByteRange-covered digest matches what the signer was actually asked to
// sign over.
func sha256Sum(b []byte) [32]byte { return sha256.Sum256(b) }
