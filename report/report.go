package report

import "time"

// Status is the top-level outcome of a VerificationReport.
type AuditStatus string

const (
	AuditStatusPass         AuditStatus = "pass"
	AuditStatusFail         AuditStatus = "fail"
	AuditStatusNotEvaluated AuditStatus = "not_evaluated"
)

// DeliveryRecommendation is the coordinator's mechanical recommendation,
// derived solely from AIA/STV outcome and the semantic pipeline's
// advisory_signals (never from finding prose).
type DeliveryRecommendation string

const (
	RecommendationReady               DeliveryRecommendation = "ready"
	RecommendationNotReady            DeliveryRecommendation = "not_ready"
	RecommendationExpertReviewRequired DeliveryRecommendation = "expert_review_required"
)

// ArtifactIntegrityResult is the AIA sub-result.
type ArtifactIntegrityResult struct {
	Passed            bool              `json:"passed"`
	Findings          []Finding         `json:"findings"`
	DocumentContent   map[string]interface{} `json:"document_content,omitempty"`
	ContentDerivedText string           `json:"content_derived_text,omitempty"`
	VisibleText        string           `json:"visible_text,omitempty"`
}

// SemanticAuditResult is the semantic-pipeline sub-result.
type SemanticAuditResult struct {
	Executed              bool      `json:"executed"`
	Findings              []Finding `json:"findings"`
	ExecutedPassIDs       []string  `json:"executed_pass_ids"`
	AdvisorySignals       []string  `json:"advisory_signals,omitempty"`
	DeliveryRecommendation string   `json:"delivery_recommendation,omitempty"`
}

// SealTrustResult is the STV sub-result.
type SealTrustResult struct {
	Executed              bool      `json:"executed"`
	Trusted               *bool     `json:"trusted"`
	Findings              []Finding `json:"findings"`
	ResolvedAIAFindingIDs []string  `json:"resolved_aia_finding_ids"`
}

// VerificationReport is the top-level, immutable aggregate produced by
// the coordinator.
type VerificationReport struct {
	SchemaVersion          string                  `json:"schema_version"`
	AuditID                string                  `json:"audit_id"`
	GeneratedAt            time.Time               `json:"generated_at"`
	Status                 AuditStatus             `json:"status"`
	DeliveryRecommendation DeliveryRecommendation  `json:"delivery_recommendation"`
	ArtifactIntegrity      ArtifactIntegrityResult `json:"artifact_integrity"`
	SemanticAudit          SemanticAuditResult     `json:"semantic_audit"`
	SealTrust              SealTrustResult         `json:"seal_trust"`
	Findings               []Finding               `json:"findings"`
}

// AllFindings flattens the three sub-results' findings into one slice, in
// AIA, semantic, STV order — the order the coordinator discovers them in.
func (r *VerificationReport) AllFindings() []Finding {
	out := make([]Finding, 0, len(r.ArtifactIntegrity.Findings)+len(r.SemanticAudit.Findings)+len(r.SealTrust.Findings))
	out = append(out, r.ArtifactIntegrity.Findings...)
	out = append(out, r.SemanticAudit.Findings...)
	out = append(out, r.SealTrust.Findings...)
	return out
}

const SchemaVersion = "1.0"
