package pdfa

import (
	"io"

	pdflib "github.com/digitorus/pdf"
)

// Filespec is one entry of the /AF array or the /Names/EmbeddedFiles name
// tree, with its embedded-file stream already read.
type Filespec struct {
	UF           string // /F or /UF — the file name, e.g. "content.json"
	Relationship string // /AFRelationship, e.g. "Data" or "Supplement"
	Data         []byte
}

// AssociatedFiles gathers every Filespec reachable from the catalog's
// /AF array, every page's /AF array, and the /Names/EmbeddedFiles name
// tree, de-duplicated by underlying object identity.
func (d *Document) AssociatedFiles() ([]Filespec, error) {
	var out []Filespec
	seen := map[string]bool{}

	add := func(fsRef pdflib.Value) {
		fs := fsRef
		key := fs.Key("UF").Text() + "|" + fs.Key("F").Text() + "|" + fs.Key("AFRelationship").Name()
		if seen[key] {
			return
		}
		seen[key] = true
		data, _ := readEmbeddedFileData(fs)
		name := fs.Key("UF").Text()
		if name == "" {
			name = fs.Key("F").Text()
		}
		out = append(out, Filespec{
			UF:           name,
			Relationship: fs.Key("AFRelationship").Name(),
			Data:         data,
		})
	}

	walkAFArray(d.Catalog().Key("AF"), add)

	numPages := d.rdr.NumPage()
	for i := 1; i <= numPages; i++ {
		page := d.rdr.Page(i)
		walkAFArray(page.V.Key("AF"), add)
	}

	names := d.Catalog().Key("Names").Key("EmbeddedFiles")
	if !names.IsNull() {
		walkNameTree(names, add)
	}

	return out, nil
}

func walkAFArray(af pdflib.Value, add func(pdflib.Value)) {
	if af.IsNull() {
		return
	}
	n := af.Len()
	for i := 0; i < n; i++ {
		add(af.Index(i))
	}
}

// walkNameTree walks a PDF name tree, recursing through /Kids and
// visiting /Names pairs (name, filespec) at leaf nodes.
func walkNameTree(node pdflib.Value, add func(pdflib.Value)) {
	if node.IsNull() {
		return
	}
	kids := node.Key("Kids")
	if !kids.IsNull() {
		n := kids.Len()
		for i := 0; i < n; i++ {
			walkNameTree(kids.Index(i), add)
		}
		return
	}
	names := node.Key("Names")
	if names.IsNull() {
		return
	}
	n := names.Len()
	// Names is an alternating [name1, value1, name2, value2, ...] array.
	for i := 1; i < n; i += 2 {
		add(names.Index(i))
	}
}

// readEmbeddedFileData reads a Filespec's bytes via /EF/UF then /EF/F,
// as the spec requires trying UF first.
func readEmbeddedFileData(fs pdflib.Value) ([]byte, error) {
	ef := fs.Key("EF")
	if ef.IsNull() {
		return nil, nil
	}
	stream := ef.Key("UF")
	if stream.IsNull() {
		stream = ef.Key("F")
	}
	if stream.IsNull() {
		return nil, nil
	}
	rc := stream.Reader()
	if rc == nil {
		return nil, nil
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
