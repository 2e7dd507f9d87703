package pdfa

import (
	"fmt"
	"io"
	"regexp"
)

// PDFAIdentification is the pdfaid:part/pdfaid:conformance pair read from
// the XMP metadata packet.
type PDFAIdentification struct {
	Part         string
	Conformance  string
}

var (
	partRe        = regexp.MustCompile(`pdfaid:part(?:>|="\s*)([0-9]+)`)
	conformanceRe = regexp.MustCompile(`pdfaid:conformance(?:>|="\s*)([A-Za-z]+)`)
)

// XMPIdentification reads the document's XMP metadata stream (via
// /Root/Metadata) and extracts pdfaid:part and pdfaid:conformance.
// Returns ok=false, no error, if the catalog has no /Metadata stream at
// all (absence is a structural finding for AIA to raise, not a parse
// failure here).
func (d *Document) XMPIdentification() (*PDFAIdentification, bool, error) {
	meta := d.Catalog().Key("Metadata")
	if meta.IsNull() {
		return nil, false, nil
	}
	rc := meta.Reader()
	if rc == nil {
		return nil, false, nil
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, newParseError("failed to read XMP metadata stream", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	part := matchFirst(partRe, raw)
	conformance := matchFirst(conformanceRe, raw)
	if part == "" && conformance == "" {
		return nil, true, nil
	}
	return &PDFAIdentification{Part: part, Conformance: conformance}, true, nil
}

func matchFirst(re *regexp.Regexp, raw []byte) string {
	m := re.FindSubmatch(raw)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// BuildXMPPacket builds a minimal but complete PDF/A-3 identification XMP
// packet for embedding at generation time.
func BuildXMPPacket(part int, conformance string) []byte {
	body := fmt.Sprintf("<?xpacket begin=\"\uFEFF\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n"+`<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:pdfaid="http://www.aiim.org/pdfa/ns/id/">
   <pdfaid:part>%d</pdfaid:part>
   <pdfaid:conformance>%s</pdfaid:conformance>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`, part, conformance)
	return []byte(body)
}
