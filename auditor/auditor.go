// Package auditor implements the strictly mechanical seven-step
// coordinator that sequences Artifact Integrity Audit, the semantic
// pipeline, and Seal Trust Verification into one immutable
// VerificationReport. The coordinator never inspects Document Content or
// interprets finding prose — every branch is a lookup against a finite
// set of structured fields (requires_stv, advisory_signals, trusted).
//
// Grounded on the wider pack's orchestrator Run() stage discipline (build
// a run context, execute stages in a fixed order, synthesize a
// findings-derived report) and its audit-event-logging idiom of
// bracketing each stage with a Record/Emit call, adapted from a
// certification-gate scoring run to the AIA -> STV-required gate ->
// semantic -> STV sequence this system defines.
package auditor

import (
	"context"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sealbound/trustpipe/aia"
	"github.com/sealbound/trustpipe/report"
	"github.com/sealbound/trustpipe/semantic"
	"github.com/sealbound/trustpipe/stv"
)

// STVVerifier is the capability interface the coordinator depends on,
// allowing tests to substitute a fake without needing real certificates.
type STVVerifier interface {
	Verify(raw []byte, aiaFindings []report.Finding) (stv.Result, error)
}

// stvAdapter adapts stv.Run (a plain function) to the STVVerifier
// capability interface the coordinator depends on.
type stvAdapter struct {
	TrustRoots *x509.CertPool
	Now        time.Time
}

func (a stvAdapter) Verify(raw []byte, aiaFindings []report.Finding) (stv.Result, error) {
	return stv.Run(raw, aiaFindings, stv.Options{TrustStore: stv.TrustStore{Roots: a.TrustRoots}, Now: a.Now})
}

// NewSTVVerifier builds the default STVVerifier backed by the stv
// package, trusting the given root pool.
func NewSTVVerifier(trustRoots *x509.CertPool) STVVerifier {
	return stvAdapter{TrustRoots: trustRoots}
}

// Options configures one Audit call. AIAOptions is always used; Semantic
// and STV are optional — their absence synthesizes a "not executed"
// sub-result per §4.9 step 4/5, except that an AIA finding requiring STV
// with no STV verifier configured is a hard failure (step 3).
type Options struct {
	AIA      aia.Options
	Semantic *SemanticOptions
	STV      STVVerifier
	Emitter  report.Emitter
	Now      func() time.Time
}

// SemanticOptions bundles what the coordinator needs to run the semantic
// pipeline: the protocol/executor pair. The immutable Context itself is
// never caller-supplied — per §4.8 it is "built from AIA outputs," so the
// coordinator derives it from the just-computed aia.Result after step 2.
type SemanticOptions struct {
	Protocol semantic.Protocol
	Executor semantic.PassExecutor
}

func now(opts Options) time.Time {
	if opts.Now != nil {
		return opts.Now()
	}
	return time.Now()
}

func emit(e report.Emitter, auditID string, t time.Time, eventType report.EventType, details map[string]interface{}) {
	if e == nil {
		return
	}
	e.Emit(report.NewEvent(auditID, eventType, details, t))
}

// stvRequiredFinding synthesizes AIA-CRIT-STV-REQUIRED, per §4.9 step 3:
// issuing a verdict on a PDF with unresolved structural observations that
// require cryptographic resolution would be unsound.
func stvRequiredFinding() report.Finding {
	id := report.DeriveFindingID(aia.ProtocolID, aia.ProtocolVersion, "", "AIA-CRIT-STV-REQUIRED", "container", "", nil)
	return report.Finding{
		FindingID:       id,
		Source:          report.SourceArtifactIntegrity,
		ProtocolID:      aia.ProtocolID,
		ProtocolVersion: aia.ProtocolVersion,
		RuleID:          "AIA-CRIT-STV-REQUIRED",
		Category:        "container",
		Severity:        report.SeverityCritical,
		Confidence:      1.0,
		Status:          report.StatusOpen,
		Title:           "Seal Trust Verification required but not configured",
		Description:     "One or more Artifact Integrity Audit findings require cryptographic resolution via Seal Trust Verification, but no verifier was configured for this audit.",
	}
}

func terminalReport(auditID string, t time.Time, aiaResult report.ArtifactIntegrityResult, extra ...report.Finding) report.VerificationReport {
	findings := append([]report.Finding{}, aiaResult.Findings...)
	findings = append(findings, extra...)
	return report.VerificationReport{
		SchemaVersion:          report.SchemaVersion,
		AuditID:                auditID,
		GeneratedAt:            t.UTC(),
		Status:                 report.AuditStatusFail,
		DeliveryRecommendation: report.RecommendationNotReady,
		ArtifactIntegrity:      report.ArtifactIntegrityResult{Passed: aiaResult.Passed, Findings: aiaResult.Findings, DocumentContent: aiaResult.DocumentContent, ContentDerivedText: aiaResult.ContentDerivedText, VisibleText: aiaResult.VisibleText},
		SemanticAudit:          semantic.NotExecuted(),
		SealTrust:              report.SealTrustResult{Executed: false},
		Findings:               findings,
	}
}

// Audit runs the full seven-step coordinator over raw and returns the
// immutable VerificationReport.
func Audit(ctx context.Context, raw []byte, opts Options) (report.VerificationReport, error) {
	auditID := uuid.New().String()
	t := now(opts)

	// Step 1.
	emit(opts.Emitter, auditID, t, report.EventAuditStarted, nil)

	// Step 2.
	emit(opts.Emitter, auditID, t, report.EventAIAStarted, nil)
	aiaResult, err := aia.Run(raw, opts.AIA)
	if err != nil {
		return report.VerificationReport{}, fmt.Errorf("auditor: run AIA: %w", err)
	}
	emit(opts.Emitter, auditID, t, report.EventAIACompleted, map[string]interface{}{"passed": aiaResult.Passed})

	if !aiaResult.Passed {
		rep := terminalReport(auditID, t, toArtifactIntegrityResult(aiaResult))
		emit(opts.Emitter, auditID, t, report.EventAuditCompleted, map[string]interface{}{"status": rep.Status})
		return rep, nil
	}

	// Step 3.
	var stvRequired []report.Finding
	for _, f := range aiaResult.Findings {
		if f.RequiresSTV {
			stvRequired = append(stvRequired, f)
		}
	}
	if len(stvRequired) > 0 && opts.STV == nil {
		rep := terminalReport(auditID, t, toArtifactIntegrityResult(aiaResult), stvRequiredFinding())
		emit(opts.Emitter, auditID, t, report.EventAuditCompleted, map[string]interface{}{"status": rep.Status})
		return rep, nil
	}

	// Step 4.
	var semResult report.SemanticAuditResult
	if opts.Semantic != nil {
		emit(opts.Emitter, auditID, t, report.EventSemanticAuditStarted, nil)
		semCtx := semantic.Context{
			DocumentContent:    aiaResult.DocumentContent,
			ContentDerivedText: aiaResult.ContentDerivedText,
			VisibleText:        aiaResult.VisibleText,
		}
		semResult, err = semantic.Run(ctx, semCtx, semantic.RunOptions{
			AuditID:  auditID,
			Protocol: opts.Semantic.Protocol,
			Executor: opts.Semantic.Executor,
			Emitter:  opts.Emitter,
			Now:      opts.Now,
		})
		if err != nil {
			return report.VerificationReport{}, fmt.Errorf("auditor: run semantic pipeline: %w", err)
		}
	} else {
		semResult = semantic.NotExecuted()
	}

	// Step 5.
	aiaFindings := append([]report.Finding{}, aiaResult.Findings...)
	var stvResult report.SealTrustResult
	if opts.STV != nil {
		emit(opts.Emitter, auditID, t, report.EventSealTrustStarted, nil)
		res, err := opts.STV.Verify(raw, aiaFindings)
		if err != nil {
			return report.VerificationReport{}, fmt.Errorf("auditor: run STV: %w", err)
		}
		emit(opts.Emitter, auditID, t, report.EventSealTrustCompleted, nil)

		stvResult = report.SealTrustResult{
			Executed:              res.Executed,
			Trusted:               res.Trusted,
			Findings:              res.Findings,
			ResolvedAIAFindingIDs: res.ResolvedAIAFindingIDs,
		}

		resolved := make(map[string]bool, len(res.ResolvedAIAFindingIDs))
		for _, id := range res.ResolvedAIAFindingIDs {
			resolved[id] = true
		}
		for i, f := range aiaFindings {
			if resolved[f.FindingID] {
				aiaFindings[i] = f.WithStatus(report.StatusResolved)
			}
		}
	} else {
		stvResult = report.SealTrustResult{Executed: false}
	}

	// Step 6.
	status, recommendation := determineOutcome(stvResult, semResult)

	// Step 7.
	rep := report.VerificationReport{
		SchemaVersion:          report.SchemaVersion,
		AuditID:                auditID,
		GeneratedAt:            t.UTC(),
		Status:                 status,
		DeliveryRecommendation: recommendation,
		ArtifactIntegrity: report.ArtifactIntegrityResult{
			Passed:             aiaResult.Passed,
			Findings:           aiaFindings,
			DocumentContent:    aiaResult.DocumentContent,
			ContentDerivedText: aiaResult.ContentDerivedText,
			VisibleText:        aiaResult.VisibleText,
		},
		SemanticAudit: semResult,
		SealTrust:     stvResult,
	}
	rep.Findings = rep.AllFindings()

	emit(opts.Emitter, auditID, t, report.EventAuditCompleted, map[string]interface{}{"status": rep.Status})
	return rep, nil
}

func toArtifactIntegrityResult(r aia.Result) report.ArtifactIntegrityResult {
	return report.ArtifactIntegrityResult{
		Passed:             r.Passed,
		Findings:           r.Findings,
		DocumentContent:    r.DocumentContent,
		ContentDerivedText: r.ContentDerivedText,
		VisibleText:        r.VisibleText,
	}
}

// determineOutcome implements §4.9 step 6, in order: STV untrusted fails
// the audit outright; otherwise the semantic pipeline's Pass 8
// advisory_signals (and only those, never finding prose) decide between
// not_ready, expert_review_required, and ready.
func determineOutcome(stvResult report.SealTrustResult, semResult report.SemanticAuditResult) (report.AuditStatus, report.DeliveryRecommendation) {
	if stvResult.Executed && stvResult.Trusted != nil && !*stvResult.Trusted {
		return report.AuditStatusFail, report.RecommendationNotReady
	}

	for _, signal := range semResult.AdvisorySignals {
		switch signal {
		case "DELIVERY_NOT_RECOMMENDED":
			return report.AuditStatusFail, report.RecommendationNotReady
		case "DELIVERY_REVIEW_REQUIRED":
			return report.AuditStatusPass, report.RecommendationExpertReviewRequired
		}
	}
	return report.AuditStatusPass, report.RecommendationReady
}
