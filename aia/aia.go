// Package aia implements the Artifact Integrity Audit: an ordered,
// deterministic, non-cryptographic pipeline of structural and
// content-binding checks over a sealed (or unsealed) PDF artifact.
//
// Grounded on the wider pack's ordered-Gate-pipeline idiom (a frozen
// []Check slice run in literal order, since these checks are a frozen
// sequence rather than a pluggable named set) and on the teacher's
// verify/document.go field-extraction style, adapted to produce
// report.Finding values instead of verify.Signer structs.
package aia

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sealbound/trustpipe/canon"
	"github.com/sealbound/trustpipe/pdfa"
	"github.com/sealbound/trustpipe/report"
)

// ProtocolID/ProtocolVersion identify this check pipeline for finding-ID
// derivation; AIA is not versioned per-document-protocol the way semantic
// passes are, so these are fixed constants.
const (
	ProtocolID      = "artifact-integrity"
	ProtocolVersion = "1"
)

// Result is the AIA sub-result embedded in the final VerificationReport.
type Result struct {
	Passed             bool
	Findings           []report.Finding
	DocumentContent    map[string]interface{}
	Bindings           map[string]interface{}
	ContentDerivedText string
	VisibleText        string
}

// VisibleTextExtractor is an optional, best-effort hook for extracting
// human-visible page text; its absence or failure must never affect
// Passed. The core ships no default implementation (rendering page text
// is outside this module's scope), so the zero value is nil-safe.
type VisibleTextExtractor func(raw []byte) (string, error)

// Options configures one AIA run.
type Options struct {
	VisibleText VisibleTextExtractor
}

func finding(ruleID string, severity report.Severity, status report.Status, category, title, description string, requiresSTV bool, canonicalContent []byte) report.Finding {
	id := report.DeriveFindingID(ProtocolID, ProtocolVersion, "", ruleID, category, "", canonicalContent)
	return report.Finding{
		FindingID:   id,
		Source:      report.SourceArtifactIntegrity,
		ProtocolID:  ProtocolID,
		ProtocolVersion: ProtocolVersion,
		RuleID:      ruleID,
		Category:    category,
		Severity:    severity,
		Confidence:  1.0,
		Status:      status,
		Title:       title,
		Description: description,
		RequiresSTV: requiresSTV,
	}
}

// Run executes the AIA pipeline in its fixed order, aborting as soon as a
// critical (fatal) finding is produced.
func Run(raw []byte, opts Options) (Result, error) {
	var findings []report.Finding

	// 1. Header check.
	if !pdfa.HeaderValid(raw) {
		findings = append(findings, finding("AIA-CRIT-001", report.SeverityCritical, report.StatusOpen,
			"container", "Invalid PDF container",
			"The artifact does not begin with the %PDF- header required of a conforming PDF file.", false, nil))
		return Result{Passed: false, Findings: findings}, nil
	}

	// 2. Concatenation check.
	if pdfa.CountOccurrences(raw, []byte("%PDF-")) > 1 {
		findings = append(findings, finding("AIA-CRIT-002", report.SeverityCritical, report.StatusOpen,
			"container", "Concatenated PDF streams",
			"The artifact contains more than one %PDF- header, indicating concatenated PDF files rather than a single incrementally-updated document.", false, nil))
		return Result{Passed: false, Findings: findings}, nil
	}

	doc, err := pdfa.Open(raw)
	if err != nil {
		findings = append(findings, finding("AIA-CRIT-001", report.SeverityCritical, report.StatusOpen,
			"container", "Malformed PDF structure",
			fmt.Sprintf("The PDF structure could not be parsed: %v", err), false, nil))
		return Result{Passed: false, Findings: findings}, nil
	}

	// 3. Incremental-update classification.
	eofCount := pdfa.CountOccurrences(raw, []byte("%%EOF"))
	sigFields, err := doc.SignatureFields()
	if err != nil {
		return Result{}, fmt.Errorf("aia: enumerate signature fields: %w", err)
	}
	if eofCount > 1 {
		if len(sigFields) == 0 {
			findings = append(findings, finding("AIA-CRIT-002", report.SeverityCritical, report.StatusOpen,
				"container", "Unsigned incremental update",
				"The artifact contains more than one %%EOF marker (an incremental update) but carries no /Sig field to justify it.", false, nil))
			return Result{Passed: false, Findings: findings}, nil
		}
		if !pdfa.LastSignatureCoversFullDocument(sigFields, int64(len(raw))) {
			findings = append(findings, finding("AIA-MAJ-008", report.SeverityMajor, report.StatusFlaggedForHumanReview,
				"binding", "Post-signing modification detected",
				"The last signature's ByteRange does not cover the full file length; bytes were appended after signing. Resolution requires Seal Trust Verification's DocMDP diff.", true, nil))
			// Non-fatal: continue.
		}
	}

	// 4. Xref sanity (best-effort; never itself fatal on evaluation failure).
	if xrefCount := bestEffortXrefSectionCount(raw); xrefCount > 1 {
		if !pdfa.LastSignatureCoversFullDocument(sigFields, int64(len(raw))) {
			findings = append(findings, finding("AIA-CRIT-003", report.SeverityCritical, report.StatusOpen,
				"container", "Unauthorized structural modification",
				"Multiple cross-reference sections exist without full-document signature coverage.", false, nil))
			return Result{Passed: false, Findings: findings}, nil
		}
	}

	// 5. PDF/A identification.
	ident, ok, err := doc.XMPIdentification()
	if err != nil {
		return Result{}, fmt.Errorf("aia: read XMP identification: %w", err)
	}
	if !ok {
		findings = append(findings, finding("AIA-MAJ-004", report.SeverityMajor, report.StatusOpen,
			"pdfa_compliance", "Missing XMP metadata packet",
			"No XMP metadata stream was found on the document catalog.", false, nil))
	} else if ident == nil || ident.Part == "" || ident.Conformance == "" {
		findings = append(findings, finding("AIA-MAJ-005", report.SeverityMajor, report.StatusOpen,
			"pdfa_compliance", "Missing PDF/A identification",
			"The XMP metadata packet does not declare pdfaid:part and pdfaid:conformance.", false, nil))
	} else if ident.Part != "3" || !strings.EqualFold(ident.Conformance, "B") {
		findings = append(findings, finding("AIA-MAJ-006", report.SeverityMajor, report.StatusOpen,
			"pdfa_compliance", "Unexpected PDF/A conformance level",
			fmt.Sprintf("Expected pdfaid:part=3, pdfaid:conformance=B; found part=%q conformance=%q.", ident.Part, ident.Conformance), false, nil))
	}

	// 6. Content extraction.
	filespecs, err := doc.AssociatedFiles()
	if err != nil {
		return Result{}, fmt.Errorf("aia: enumerate associated files: %w", err)
	}
	var dataSpecs []pdfa.Filespec
	var supplementSpecs []pdfa.Filespec
	for _, fs := range filespecs {
		switch fs.Relationship {
		case "Data":
			dataSpecs = append(dataSpecs, fs)
		case "Supplement":
			supplementSpecs = append(supplementSpecs, fs)
		}
	}
	if len(dataSpecs) != 1 {
		findings = append(findings, finding("AIA-CRIT-020", report.SeverityCritical, report.StatusOpen,
			"content_binding", "Missing or ambiguous content.json",
			fmt.Sprintf("Expected exactly one /AFRelationship=/Data Filespec; found %d.", len(dataSpecs)), false, nil))
		return Result{Passed: false, Findings: findings}, nil
	}
	contentBytes := dataSpecs[0].Data
	if len(contentBytes) == 0 {
		findings = append(findings, finding("AIA-CRIT-021", report.SeverityCritical, report.StatusOpen,
			"content_binding", "Empty content.json",
			"The /Data Filespec's embedded stream is empty.", false, nil))
		return Result{Passed: false, Findings: findings}, nil
	}
	var documentContent interface{}
	dec := json.NewDecoder(bytes.NewReader(contentBytes))
	dec.UseNumber()
	if err := dec.Decode(&documentContent); err != nil {
		findings = append(findings, finding("AIA-CRIT-022", report.SeverityCritical, report.StatusOpen,
			"content_binding", "content.json is not valid JSON",
			fmt.Sprintf("Failed to parse content.json: %v", err), false, nil))
		return Result{Passed: false, Findings: findings}, nil
	}
	contentObj, ok := documentContent.(map[string]interface{})
	if !ok {
		findings = append(findings, finding("AIA-CRIT-023", report.SeverityCritical, report.StatusOpen,
			"content_binding", "content.json top level is not an object",
			"Document Content must be a JSON object at the top level.", false, nil))
		return Result{Passed: false, Findings: findings}, nil
	}

	var bindingsObj map[string]interface{}
	if len(supplementSpecs) > 0 {
		var parsed interface{}
		bdec := json.NewDecoder(bytes.NewReader(supplementSpecs[0].Data))
		bdec.UseNumber()
		if err := bdec.Decode(&parsed); err == nil {
			if m, ok := parsed.(map[string]interface{}); ok {
				bindingsObj = m
			}
		}
		// Malformed bindings reduce to null without error, per spec.
	}

	// 7. Cryptographic binding.
	canonicalContent, canonErr := canon.Canonicalize(documentContent)
	if contentObj == nil {
		findings = append(findings, finding("AIA-CRIT-030", report.SeverityCritical, report.StatusOpen,
			"content_binding", "Missing document content", "", false, canonicalContent))
		return Result{Passed: false, Findings: findings}, nil
	}
	if bindingsObj == nil {
		findings = append(findings, finding("AIA-CRIT-031", report.SeverityCritical, report.StatusOpen,
			"content_binding", "Missing bindings", "bindings.json is missing or malformed.", false, canonicalContent))
		return Result{Passed: false, Findings: findings}, nil
	}
	declaredHashRaw, _ := bindingsObj["content_hash"].(string)
	if declaredHashRaw == "" {
		findings = append(findings, finding("AIA-CRIT-032", report.SeverityCritical, report.StatusOpen,
			"content_binding", "Missing content hash",
			"bindings.json has no (or an empty) content_hash field.", false, canonicalContent))
		return Result{Passed: false, Findings: findings}, nil
	}
	_, declaredHex, parseErr := canon.ParseContentHash(declaredHashRaw)
	if parseErr != nil {
		findings = append(findings, finding("AIA-CRIT-035", report.SeverityCritical, report.StatusOpen,
			"content_binding", "Malformed content hash format",
			parseErr.Error(), false, canonicalContent))
		return Result{Passed: false, Findings: findings}, nil
	}
	if canonErr != nil {
		findings = append(findings, finding("AIA-CRIT-033", report.SeverityCritical, report.StatusOpen,
			"content_binding", "Canonicalization failure",
			canonErr.Error(), false, nil))
		return Result{Passed: false, Findings: findings}, nil
	}
	computedSum := sha256.Sum256(canonicalContent)
	computedHash := hex.EncodeToString(computedSum[:])
	if !strings.EqualFold(computedHash, declaredHex) {
		findings = append(findings, finding("AIA-CRIT-034", report.SeverityCritical, report.StatusOpen,
			"content_binding", "Content hash mismatch",
			fmt.Sprintf("declared=%s computed=%s", declaredHex, computedHash), false, canonicalContent))
		return Result{Passed: false, Findings: findings}, nil
	}

	// 8. Content-derived text projection.
	derivedText := contentDerivedText(contentObj)
	if derivedText == "" {
		derivedText = string(canonicalContent)
	}

	visibleText := ""
	if opts.VisibleText != nil {
		if vt, err := opts.VisibleText(raw); err == nil {
			visibleText = vt
		}
		// A failed best-effort extraction must not affect Passed.
	}

	return Result{
		Passed:             true,
		Findings:           findings,
		DocumentContent:    contentObj,
		Bindings:           bindingsObj,
		ContentDerivedText: derivedText,
		VisibleText:        visibleText,
	}, nil
}

// contentDerivedText concatenates stringified scalar values of the
// top-level object in sorted key order, newline-joined.
func contentDerivedText(obj map[string]interface{}) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var lines []string
	for _, k := range keys {
		v := obj[k]
		switch val := v.(type) {
		case string:
			lines = append(lines, val)
		case json.Number:
			lines = append(lines, val.String())
		case bool:
			lines = append(lines, fmt.Sprintf("%t", val))
		}
	}
	return strings.Join(lines, "\n")
}

// bestEffortXrefSectionCount is a tolerant heuristic for detecting
// multiple cross-reference sections; any failure to evaluate (e.g. an
// unexpected panic from malformed byte scanning) is silently absorbed —
// xref sanity is explicitly "best-effort" and has no authoritative API in
// this module.
func bestEffortXrefSectionCount(raw []byte) (count int) {
	defer func() {
		if recover() != nil {
			count = 0
		}
	}()
	return bytes.Count(raw, []byte("\nxref"))
}
