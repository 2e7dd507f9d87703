package report

import "testing"

func TestDeriveFindingIDDeterministic(t *testing.T) {
	content := []byte(`{"a":1}`)
	a := DeriveFindingID("artifact-integrity", "1", "", "AIA-CRIT-034", "content_binding", "", content)
	b := DeriveFindingID("artifact-integrity", "1", "", "AIA-CRIT-034", "content_binding", "", content)
	if a != b {
		t.Fatalf("expected identical finding IDs for identical inputs, got %s vs %s", a, b)
	}
}

func TestDeriveFindingIDVariesWithContent(t *testing.T) {
	a := DeriveFindingID("artifact-integrity", "1", "", "AIA-CRIT-034", "content_binding", "", []byte(`{"a":1}`))
	b := DeriveFindingID("artifact-integrity", "1", "", "AIA-CRIT-034", "content_binding", "", []byte(`{"a":2}`))
	if a == b {
		t.Fatal("expected different finding IDs for different canonical document content")
	}
}

func TestDeriveFindingIDVariesWithRuleID(t *testing.T) {
	content := []byte(`{"a":1}`)
	a := DeriveFindingID("artifact-integrity", "1", "", "AIA-CRIT-034", "content_binding", "", content)
	b := DeriveFindingID("artifact-integrity", "1", "", "AIA-CRIT-035", "content_binding", "", content)
	if a == b {
		t.Fatal("expected different finding IDs for different rule IDs")
	}
}

func TestDeriveExecutionFailureIDIgnoresDocumentContent(t *testing.T) {
	a := DeriveExecutionFailureID("protocol-x", "P3", "timeout")
	b := DeriveExecutionFailureID("protocol-x", "P3", "timeout")
	if a != b {
		t.Fatal("expected stable ID across independent calls with identical (protocol, pass, failure_type)")
	}
}

func TestDeriveExecutionFailureIDVariesWithFailureType(t *testing.T) {
	a := DeriveExecutionFailureID("protocol-x", "P3", "timeout")
	b := DeriveExecutionFailureID("protocol-x", "P3", "refusal")
	if a == b {
		t.Fatal("expected different IDs for different failure kinds")
	}
}

func TestFindingWithStatusReturnsCopy(t *testing.T) {
	original := Finding{FindingID: "abc", Status: StatusOpen}
	resolved := original.WithStatus(StatusResolved)

	if original.Status != StatusOpen {
		t.Fatalf("WithStatus must not mutate the receiver; got %s", original.Status)
	}
	if resolved.Status != StatusResolved {
		t.Fatalf("expected resolved copy to carry the new status, got %s", resolved.Status)
	}
	if resolved.FindingID != original.FindingID {
		t.Fatal("WithStatus must preserve every other field")
	}
}

func TestAllFindingsOrdersAIASemanticSTV(t *testing.T) {
	rep := VerificationReport{
		ArtifactIntegrity: ArtifactIntegrityResult{Findings: []Finding{{FindingID: "aia-1"}}},
		SemanticAudit:     SemanticAuditResult{Findings: []Finding{{FindingID: "sem-1"}}},
		SealTrust:         SealTrustResult{Findings: []Finding{{FindingID: "stv-1"}}},
	}
	got := rep.AllFindings()
	if len(got) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(got))
	}
	if got[0].FindingID != "aia-1" || got[1].FindingID != "sem-1" || got[2].FindingID != "stv-1" {
		t.Fatalf("expected AIA, semantic, STV order, got %+v", got)
	}
}
