package pdfa

import (
	"bytes"
	"fmt"

	pdflib "github.com/digitorus/pdf"
)

// RebuildCatalog re-serializes the document catalog (/Root), substituting
// the literal PDF syntax given in overrides for the named keys and copying
// every other key through verbatim (indirect references stay indirect,
// direct values are re-serialized recursively). This is the generalized
// form of the teacher's sign/pdfcatalog.go createCatalog: instead of always
// overriding exactly /AcroForm, the caller supplies whichever keys this
// revision needs to replace (/AcroForm for the certification revision,
// /DSS for the DSS+VRI revision).
//
// It returns the new catalog object's body bytes (for IncrementalWriter.AddObject)
// and the existing /Root object number, which is unchanged — incremental
// updates redefine an object number's content via a new xref entry rather
// than allocating a new one.
func (d *Document) RebuildCatalog(overrides map[string]string, order []string) ([]byte, uint32, error) {
	root := d.Catalog()
	rootPtr := root.GetPtr()
	rootID := rootPtr.GetID()

	overridden := map[string]bool{}
	for k := range overrides {
		overridden[k] = true
	}

	var buf bytes.Buffer
	buf.WriteString("<<\n")

	for _, key := range order {
		lit, ok := overrides[key]
		if !ok {
			continue
		}
		fmt.Fprintf(&buf, "  /%s %s\n", key, lit)
	}

	for _, key := range root.Keys() {
		if overridden[key] {
			continue
		}
		fmt.Fprintf(&buf, "  /%s ", key)
		serializeValue(&buf, rootID, root.Key(key))
		buf.WriteString("\n")
	}
	buf.WriteString(">>")

	return buf.Bytes(), rootID, nil
}

// serializeValue writes value in literal PDF syntax: indirect references as
// "N G R", direct scalars/containers recursively. Mirrors the teacher's
// serializeCatalogEntry technique in sign/pdfcatalog.go.
func serializeValue(w *bytes.Buffer, ownerObjID uint32, value pdflib.Value) {
	if ptr := value.GetPtr(); ptr.GetID() != 0 && ptr.GetID() != ownerObjID {
		fmt.Fprintf(w, "%d %d R", ptr.GetID(), ptr.GetGen())
		return
	}

	switch value.Kind() {
	case pdflib.String:
		fmt.Fprintf(w, "(%s)", value.RawString())
	case pdflib.Null:
		w.WriteString("null")
	case pdflib.Bool:
		if value.Bool() {
			w.WriteString("true")
		} else {
			w.WriteString("false")
		}
	case pdflib.Integer:
		fmt.Fprintf(w, "%d", value.Int64())
	case pdflib.Real:
		fmt.Fprintf(w, "%f", value.Float64())
	case pdflib.Name:
		fmt.Fprintf(w, "/%s", value.Name())
	case pdflib.Dict:
		w.WriteString("<<")
		for i, k := range value.Keys() {
			if i > 0 {
				w.WriteString(" ")
			}
			fmt.Fprintf(w, "/%s ", k)
			serializeValue(w, ownerObjID, value.Key(k))
		}
		w.WriteString(">>")
	case pdflib.Array:
		w.WriteString("[")
		n := value.Len()
		for i := 0; i < n; i++ {
			if i > 0 {
				w.WriteString(" ")
			}
			serializeValue(w, ownerObjID, value.Index(i))
		}
		w.WriteString("]")
	case pdflib.Stream:
		// A stream can never appear as a direct catalog-subtree value; if
		// this is ever hit it is a logic error in the caller, not a PDF
		// parse failure, so we let it panic rather than degrade silently.
		panic("pdfa: stream value cannot be serialized as a direct catalog entry")
	}
}

// RootKeyOrder returns the catalog's current key order, for callers that
// want a stable RebuildCatalog order argument derived straight from the
// source document.
func (d *Document) RootKeyOrder() []string {
	return d.Catalog().Keys()
}

