// Package pdfa implements the abstract PDF/A-3 reader/writer surface the
// trust pipeline needs: incremental updates, /AcroForm/Sig fields and
// /ByteRange, the /AF array, the /Names/EmbeddedFiles name tree, XMP PDF/A
// identification, and DSS/DocumentTimeStamp dictionaries.
//
// Read operations never mutate the source and tolerate indirect-object
// indirection throughout, via github.com/digitorus/pdf's lazily-resolved
// Value API. Write operations only ever append an incremental update —
// prior bytes are never rewritten.
package pdfa

import (
	"bytes"

	pdflib "github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
)

// Document wraps the raw bytes of a PDF plus a lazily-resolving reader
// over them. Document is read-only; every write operation in this
// package takes a Document and returns a new byte slice for the
// incrementally-updated file, never mutating d.Raw.
type Document struct {
	Raw  []byte
	rdr  *pdflib.Reader
	size int64
}

// Open parses raw as a PDF. Malformed input surfaces as *ParseError,
// distinct from logic errors, per §7.
func Open(raw []byte) (*Document, error) {
	buf := filebuffer.New(raw)
	rdr, err := pdflib.NewReader(buf, int64(len(raw)))
	if err != nil {
		return nil, newParseError("failed to open PDF structure", err)
	}
	return &Document{Raw: raw, rdr: rdr, size: int64(len(raw))}, nil
}

// Reader exposes the underlying lazily-resolving reader for callers that
// need direct indirect-object access beyond this package's surface.
func (d *Document) Reader() *pdflib.Reader { return d.rdr }

// Catalog returns the document catalog (/Root).
func (d *Document) Catalog() pdflib.Value {
	return d.rdr.Trailer().Key("Root")
}

// HeaderValid reports whether the first 5 bytes are "%PDF-".
func HeaderValid(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}

// CountOccurrences returns the number of non-overlapping occurrences of
// sub in raw — used by AIA for the "%PDF-" and "%%EOF" counts.
func CountOccurrences(raw []byte, sub []byte) int {
	return bytes.Count(raw, sub)
}
