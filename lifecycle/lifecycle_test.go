package lifecycle

import (
	"context"
	"testing"

	"github.com/sealbound/trustpipe/cms"
)

func TestOpenRejectsMalformedPDF(t *testing.T) {
	if _, err := Open([]byte("not a pdf")); err == nil {
		t.Fatal("expected Open to reject malformed input")
	}
}

func TestCertifyRefusesNonRenderedDocument(t *testing.T) {
	d := &Document{Raw: []byte("whatever"), State: StateBaseline}
	_, err := d.Certify(cms.CertificationOptions{})
	if err == nil {
		t.Fatal("expected ErrTerminal")
	}
	terminal, ok := err.(*ErrTerminal)
	if !ok {
		t.Fatalf("expected *ErrTerminal, got %T", err)
	}
	if terminal.Current != StateBaseline || terminal.Wanted != StateBaseline {
		t.Fatalf("unexpected ErrTerminal contents: %+v", terminal)
	}
}

func TestAddDSSRefusesNonBaselineDocument(t *testing.T) {
	d := &Document{Raw: []byte("whatever"), State: StateRendered}
	_, err := d.AddDSS(cms.DSSOptions{})
	if _, ok := err.(*ErrTerminal); !ok {
		t.Fatalf("expected *ErrTerminal, got %T (%v)", err, err)
	}
}

func TestAddDSSRefusesAlreadyLTADocument(t *testing.T) {
	d := &Document{Raw: []byte("whatever"), State: StateLTA}
	_, err := d.AddDSS(cms.DSSOptions{})
	if _, ok := err.(*ErrTerminal); !ok {
		t.Fatalf("expected *ErrTerminal once LTA, got %T (%v)", err, err)
	}
}

func TestAddDocumentTimestampRefusesNonLTDocument(t *testing.T) {
	d := &Document{Raw: []byte("whatever"), State: StateBaseline}
	_, err := d.AddDocumentTimestamp(context.Background(), cms.TSAOptions{})
	if _, ok := err.(*ErrTerminal); !ok {
		t.Fatalf("expected *ErrTerminal, got %T (%v)", err, err)
	}
}

func TestErrTerminalMessageNamesStates(t *testing.T) {
	err := &ErrTerminal{Current: StateLTA, Wanted: StateBaseline}
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestSealRejectsMalformedInputBeforeAnyRevision(t *testing.T) {
	_, err := Seal(context.Background(), []byte("garbage"), SealOptions{EnableLTAUpdates: false})
	if err == nil {
		t.Fatal("expected Seal to fail fast on malformed input")
	}
}
