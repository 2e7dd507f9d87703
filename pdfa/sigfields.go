package pdfa

import (
	pdflib "github.com/digitorus/pdf"
)

// SigField describes one /FT /Sig field's signature dictionary, resolved
// through indirect references.
type SigField struct {
	FieldName  string
	SubFilter  string
	ByteRange  []int64
	DocMDPPerm int // 0 if not a DocMDP-bearing (certification) signature
	Contents   []byte
}

// SignatureFields enumerates every /AcroForm.Fields entry with /FT=/Sig,
// in field order, tolerant of indirect references throughout.
func (d *Document) SignatureFields() ([]SigField, error) {
	acroForm := d.Catalog().Key("AcroForm")
	if acroForm.IsNull() {
		return nil, nil
	}
	fields := acroForm.Key("Fields")
	if fields.IsNull() {
		return nil, nil
	}

	var out []SigField
	n := fields.Len()
	for i := 0; i < n; i++ {
		field := fields.Index(i)
		if field.Key("FT").Name() != "Sig" {
			continue
		}
		v := field.Key("V")
		if v.IsNull() {
			continue
		}
		sf := SigField{
			FieldName: field.Key("T").Text(),
			SubFilter: v.Key("SubFilter").Name(),
		}
		sf.ByteRange = readIntArray(v.Key("ByteRange"))
		sf.Contents = []byte(v.Key("Contents").Text())
		sf.DocMDPPerm = readDocMDPPerm(v)
		out = append(out, sf)
	}
	return out, nil
}

func readIntArray(v pdflib.Value) []int64 {
	if v.IsNull() {
		return nil
	}
	n := v.Len()
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = v.Index(i).Int64()
	}
	return out
}

// readDocMDPPerm walks /Reference, looking for a DocMDP TransformMethod
// entry and returning its /TransformParams /P value; returns 0 when the
// signature carries no DocMDP transform (i.e. it is not the certification
// signature).
func readDocMDPPerm(sigDict pdflib.Value) int {
	ref := sigDict.Key("Reference")
	if ref.IsNull() {
		return 0
	}
	n := ref.Len()
	for i := 0; i < n; i++ {
		entry := ref.Index(i)
		if entry.Key("TransformMethod").Name() != "DocMDP" {
			continue
		}
		params := entry.Key("TransformParams")
		if params.IsNull() {
			continue
		}
		p := params.Key("P")
		if p.IsNull() {
			continue
		}
		return int(p.Int64())
	}
	return 0
}

// LastSignatureCoversFullDocument reports whether the last signature
// field's ByteRange covers the entire file length, i.e.
// ByteRange[2]+ByteRange[3] == len(raw).
//
// Per §9 Design Notes Open Question (c), this preserves an intentional
// asymmetry: a ByteRange that cannot be parsed at all is treated as
// covering the full document (conservative TRUE on parse failure), while
// a ByteRange that parses but is merely short is treated as FALSE. The
// two branches must not be unified.
func LastSignatureCoversFullDocument(fields []SigField, fileLen int64) bool {
	if len(fields) == 0 {
		return true
	}
	last := fields[len(fields)-1]
	if len(last.ByteRange) != 4 {
		// Parse failure: conservative TRUE.
		return true
	}
	return last.ByteRange[2]+last.ByteRange[3] == fileLen
}
