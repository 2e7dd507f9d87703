// Package report holds the value types shared by AIA, STV, the semantic
// pipeline, and the coordinator: findings, events, and the final
// verification report. All types here are immutable by convention —
// "updating" a Finding means constructing a replacement value, never
// writing through a pointer into a shared slice element.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Source identifies which subsystem produced a Finding.
type Source string

const (
	SourceArtifactIntegrity Source = "artifact_integrity"
	SourceSemanticAudit     Source = "semantic_audit"
	SourceSealTrust         Source = "seal_trust"
)

// Severity ranks a Finding's impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityInfo     Severity = "info"
)

// Status tracks a Finding's disposition within one audit.
type Status string

const (
	StatusOpen                Status = "open"
	StatusFlaggedForHumanReview Status = "flagged_for_human_review"
	StatusResolved             Status = "resolved"
)

// Finding is an immutable record. Two Findings produced for the same
// (protocol_id, protocol_version, pass_id, rule_id, category, location,
// canonical document content bytes) MUST carry the same FindingID — see
// DeriveFindingID.
type Finding struct {
	FindingID       string
	Source          Source
	ProtocolID      string
	ProtocolVersion string
	PassID          string
	RuleID          string
	Category        string
	Severity    Severity
	Confidence  float64
	Status      Status
	Title       string
	Description string
	Impact      string
	Location    string
	Metadata    map[string]interface{}
	RequiresSTV bool
}

// WithStatus returns a copy of f with Status replaced — the whole-value
// substitution discipline §9 Design Notes requires instead of in-place
// mutation.
func (f Finding) WithStatus(s Status) Finding {
	f.Status = s
	return f
}

// DeriveFindingID derives a stable identifier from protocol_id,
// protocol_version, pass_id, rule_id, category, location, and the
// canonical Document Content bytes, so identical (repo-state,
// document-state) pairs yield identical IDs across independent runs.
func DeriveFindingID(protocolID, protocolVersion, passID, ruleID, category, location string, canonicalContent []byte) string {
	h := sha256.New()
	parts := []string{protocolID, protocolVersion, passID, ruleID, category, location}
	h.Write([]byte(strings.Join(parts, "\x1f")))
	h.Write(canonicalContent)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// DeriveExecutionFailureID derives the stable ID used for a semantic-pass
// execution-failure finding, which per spec is keyed only by
// (protocol, pass, failure_type) — it has no document dependency because
// an execution failure is a statement about the pipeline, not the
// document.
func DeriveExecutionFailureID(protocolID, passID, failureType string) string {
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{protocolID, passID, failureType}, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))[:32]
}
