package cms

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/sealbound/trustpipe/pdfa"
	"github.com/sealbound/trustpipe/revocation"
)

// DSSOptions configures the Rev 2 DSS+VRI revision: the incremental update
// that adds long-term-validation material for the certification signature
// without adding any new signature dictionary.
type DSSOptions struct {
	Certs []*x509.Certificate
	OCSPs [][]byte
	CRLs  [][]byte

	// SignatureDigest is sha256(certification signature's /Contents hex
	// bytes), used as the VRI dictionary's key per ISO 32000-2 12.8.4.3.
	SignatureDigest []byte
}

// BuildDSSRevision appends a /DSS dictionary (with /Certs, /OCSPs, /CRLs,
// and one /VRI entry) as a single incremental update. No signature
// dictionary is added by this revision.
func BuildDSSRevision(raw []byte, doc *pdfa.Document, opts DSSOptions) ([]byte, error) {
	rootOrder := doc.RootKeyOrder()
	certsBase := pdfa.NextObjectNumber(raw)

	w := pdfa.NewIncrementalWriter(raw)

	certRefs := make([]string, len(opts.Certs))
	for i, c := range opts.Certs {
		num := certsBase + uint32(i)
		w.AddObject(num, []byte("<< /Type /Cert /Length "+fmt.Sprint(len(c.Raw))+" >>\nstream\n"+hexStream(c.Raw)+"\nendstream"))
		certRefs[i] = fmt.Sprintf("%d 0 R", num)
	}
	ocspBase := certsBase + uint32(len(opts.Certs))
	ocspRefs := make([]string, len(opts.OCSPs))
	for i, o := range opts.OCSPs {
		num := ocspBase + uint32(i)
		w.AddObject(num, []byte("<< /Type /OCSP /Length "+fmt.Sprint(len(o))+" >>\nstream\n"+hexStream(o)+"\nendstream"))
		ocspRefs[i] = fmt.Sprintf("%d 0 R", num)
	}
	crlBase := ocspBase + uint32(len(opts.OCSPs))
	crlRefs := make([]string, len(opts.CRLs))
	for i, c := range opts.CRLs {
		num := crlBase + uint32(i)
		w.AddObject(num, []byte("<< /Type /CRL /Length "+fmt.Sprint(len(c))+" >>\nstream\n"+hexStream(c)+"\nendstream"))
		crlRefs[i] = fmt.Sprintf("%d 0 R", num)
	}

	vriObjNum := crlBase + uint32(len(opts.CRLs))
	vriKey := hex.EncodeToString(opts.SignatureDigest)
	vriBody := fmt.Sprintf("<< /Type /VRI /Cert [%s] /OCSP [%s] /CRL [%s] >>",
		joinRefs(certRefs), joinRefs(ocspRefs), joinRefs(crlRefs))
	w.AddObject(vriObjNum, []byte(vriBody))

	dssObjNum := vriObjNum + 1
	dssBody := fmt.Sprintf("<< /Type /DSS /Certs [%s] /OCSPs [%s] /CRLs [%s] /VRI << /%s %d 0 R >> >>",
		joinRefs(certRefs), joinRefs(ocspRefs), joinRefs(crlRefs), vriKey, vriObjNum)
	w.AddObject(dssObjNum, []byte(dssBody))

	catalogBody, rootID, err := doc.RebuildCatalog(
		map[string]string{"DSS": fmt.Sprintf("%d 0 R", dssObjNum)},
		appendUnique(rootOrder, "DSS"),
	)
	if err != nil {
		return nil, fmt.Errorf("cms: rebuild catalog for DSS: %w", err)
	}
	w.AddObject(rootID, catalogBody)

	prevXref, err := pdfa.PreviousStartXref(raw)
	if err != nil {
		return nil, fmt.Errorf("cms: locate previous xref: %w", err)
	}
	return w.Finalize(prevXref, fmt.Sprintf("/Root %d 0 R", rootID))
}

func hexStream(b []byte) string {
	return hex.EncodeToString(b)
}

func joinRefs(refs []string) string {
	var buf bytes.Buffer
	for i, r := range refs {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(r)
	}
	return buf.String()
}

// DigestSignatureContents returns sha256 of a signature's raw /Contents
// bytes (not their hex encoding), the VRI dictionary key per ISO 32000-2.
func DigestSignatureContents(sigDER []byte) []byte {
	sum := sha256.Sum256(sigDER)
	return sum[:]
}

// BuildRevocationArchival assembles a revocation.InfoArchival from the raw
// OCSP/CRL bytes gathered for a DSS revision, for callers that also need
// the PKCS#7-shaped container (e.g. to re-check IsRevoked locally before
// handing material to STV).
func BuildRevocationArchival(ocsps, crls [][]byte) (revocation.InfoArchival, error) {
	var archival revocation.InfoArchival
	for _, o := range ocsps {
		if err := archival.AddOCSP(o); err != nil {
			return archival, err
		}
	}
	for _, c := range crls {
		if err := archival.AddCRL(c); err != nil {
			return archival, err
		}
	}
	return archival, nil
}
