// Package lifecycle enforces the PAdES Rev 1 -> Rev 2 -> Rev 3 state
// machine (certification signature -> DSS+VRI -> document timestamp) and
// produces the final sealed PDF artifact.
//
// Grounded on the teacher's document.go (Document.Sign/Timestamp
// builder-returning methods) and execute.go (lazy builder execution),
// generalized from "apply one signature" to "thread a PDF buffer through
// up to three ordered revision builders" with copy-on-write semantics: each
// stage takes an immutable byte slice and returns a new one.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/sealbound/trustpipe/cms"
	"github.com/sealbound/trustpipe/pdfa"
)

// State names the artifact's position in the PAdES state machine.
type State string

const (
	StateRendered State = "RENDERED"
	StateBaseline State = "BASELINE"
	StateLT       State = "LT"
	StateLTA      State = "LTA"
)

// Document wraps a rendered-but-unsealed PDF/A-3b buffer and threads it
// through the lifecycle. Document is itself immutable: every transition
// method returns a *new* Document value with a new Raw buffer, never
// mutating the receiver's bytes.
type Document struct {
	Raw   []byte
	State State
}

// Open wraps raw as a freshly RENDERED artifact, ready for sealing.
func Open(raw []byte) (*Document, error) {
	if _, err := pdfa.Open(raw); err != nil {
		return nil, err
	}
	return &Document{Raw: raw, State: StateRendered}, nil
}

// ErrTerminal is returned by any lifecycle method invoked against a
// Document already in a state that forbids the requested transition.
type ErrTerminal struct {
	Current State
	Wanted  State
}

func (e *ErrTerminal) Error() string {
	return fmt.Sprintf("lifecycle: cannot transition from %s to %s", e.Current, e.Wanted)
}

// Certify applies the Rev 1 certification signature, entering BASELINE.
// enableLTAUpdates must match the value the caller intends to honor for
// the rest of this artifact's life — it is baked into the DocMDP /P value
// and cannot be changed by a later revision.
func (d *Document) Certify(opts cms.CertificationOptions) (*Document, error) {
	if d.State != StateRendered {
		return nil, &ErrTerminal{Current: d.State, Wanted: StateBaseline}
	}
	doc, err := pdfa.Open(d.Raw)
	if err != nil {
		return nil, err
	}
	out, err := cms.BuildCertificationRevision(d.Raw, doc, opts)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: certify: %w", err)
	}
	return &Document{Raw: out, State: StateBaseline}, nil
}

// AddDSS applies the Rev 2 DSS+VRI revision, entering LT. Only legal from
// BASELINE, and only when the certification signature was issued with
// EnableLTAUpdates=true (DocMDP /P=2) — the orchestrator does not itself
// re-derive that fact from the PDF bytes; callers drive the gate via
// enableLTAUpdates in Seal.
func (d *Document) AddDSS(opts cms.DSSOptions) (*Document, error) {
	if d.State != StateBaseline {
		return nil, &ErrTerminal{Current: d.State, Wanted: StateLT}
	}
	doc, err := pdfa.Open(d.Raw)
	if err != nil {
		return nil, err
	}
	out, err := cms.BuildDSSRevision(d.Raw, doc, opts)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: add DSS: %w", err)
	}
	return &Document{Raw: out, State: StateLT}, nil
}

// AddDocumentTimestamp applies the Rev 3 document timestamp revision,
// entering the terminal LTA state. Only legal from LT.
func (d *Document) AddDocumentTimestamp(ctx context.Context, opts cms.TSAOptions) (*Document, error) {
	if d.State != StateLT {
		return nil, &ErrTerminal{Current: d.State, Wanted: StateLTA}
	}
	doc, err := pdfa.Open(d.Raw)
	if err != nil {
		return nil, err
	}
	out, err := cms.BuildDocumentTimestampRevision(ctx, d.Raw, doc, opts)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: add document timestamp: %w", err)
	}
	return &Document{Raw: out, State: StateLTA}, nil
}

// SealOptions drives the full Seal pipeline: certification always runs;
// DSS and the document timestamp run only when EnableLTAUpdates is true,
// and always run together and in order — the spec forbids stopping at LT
// once LTA updates are enabled, since the timestamp is what establishes
// the "existed at or before T" witness the DSS material alone cannot.
type SealOptions struct {
	Certification     cms.CertificationOptions
	DSS                cms.DSSOptions
	Timestamp          cms.TSAOptions
	EnableLTAUpdates   bool
}

// Seal drives a RENDERED document through every revision its
// EnableLTAUpdates setting authorizes and returns the final artifact.
func Seal(ctx context.Context, raw []byte, opts SealOptions) (*Document, error) {
	opts.Certification.EnableLTAUpdates = opts.EnableLTAUpdates

	d, err := Open(raw)
	if err != nil {
		return nil, err
	}
	d, err = d.Certify(opts.Certification)
	if err != nil {
		return nil, err
	}
	if !opts.EnableLTAUpdates {
		return d, nil
	}

	d, err = d.AddDSS(opts.DSS)
	if err != nil {
		return nil, err
	}
	d, err = d.AddDocumentTimestamp(ctx, opts.Timestamp)
	if err != nil {
		return nil, err
	}
	return d, nil
}
