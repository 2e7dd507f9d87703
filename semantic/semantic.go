// Package semantic implements the structural shell of the multi-pass
// LLM-driven audit pipeline: a frozen, protocol-scoped sequence of passes
// sharing an immutable context, a cache-stable prompt prefix contract, the
// STOP short-circuit, and execution-failure absorption into advisory
// findings. The passes' own semantic judgment is out of scope — this
// package ships a pluggable PassExecutor and a deterministic NullExecutor
// plus a generic HTTPJSONExecutor so the pipeline is exercisable end to
// end without a concrete provider.
//
// Grounded on the wider pack's ordered pipeline-engine idiom (a
// registration-ordered stage list, a run context threaded read-only to
// each stage, an evidence/event sink), adapted from gate-pipeline
// pass/fail semantics to pass-by-pass advisory-finding accumulation.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sealbound/trustpipe/canon"
	"github.com/sealbound/trustpipe/report"
)

// Context is the immutable evidence object built from AIA's outputs. Once
// constructed it is never mutated; any projection a pass needs (section
// chunking, a focus excerpt) is computed locally by that pass.
type Context struct {
	DocumentContent    map[string]interface{}
	ContentDerivedText string
	VisibleText        string
}

// snapshot renders the canonical JSON of document_content +
// content_derived_text that every pass's prompt prefix embeds verbatim.
func (c Context) snapshot() ([]byte, error) {
	obj := map[string]interface{}{
		"document_content":     c.DocumentContent,
		"content_derived_text": c.ContentDerivedText,
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("semantic: marshal snapshot: %w", err)
	}
	return canon.CanonicalizeJSON(raw)
}

// PassSpec names one frozen pass in a protocol's ordered sequence.
type PassSpec struct {
	ID              string
	Task            string // the pass-specific task layer of the prompt; opaque here
	ProtocolID      string
	ProtocolVersion string
}

// Protocol is a frozen, ordered pass sequence plus its identity for
// finding-ID derivation.
type Protocol struct {
	ID      string
	Version string
	Passes  []PassSpec
}

// ExecutionFailureKind enumerates the LLM-layer failure modes the pipeline
// absorbs into advisory findings instead of letting propagate.
type ExecutionFailureKind string

const (
	FailureTimeout         ExecutionFailureKind = "timeout"
	FailureRetryExhausted  ExecutionFailureKind = "retry_exhausted"
	FailureSchemaViolation ExecutionFailureKind = "schema_violation"
	FailureRefusal         ExecutionFailureKind = "refusal"
	FailureUnexpectedError ExecutionFailureKind = "unexpected_error"
)

// ExecutionFailure is the diagnostic a PassExecutor returns instead of a
// successful PassResult when the remote call itself failed.
type ExecutionFailure struct {
	Kind    ExecutionFailureKind
	Message string
}

func (e *ExecutionFailure) Error() string { return fmt.Sprintf("semantic: %s: %s", e.Kind, e.Message) }

// PassResult is what one executed pass contributes to the run.
type PassResult struct {
	Findings               []report.Finding
	TokenMetrics           map[string]int
	AdvisorySignals        []string
	DeliveryRecommendation string
}

// PassExecutor is the pluggable remote-call boundary: build the prompt
// from prefix+task+focus, call the provider, parse its structured
// response into a PassResult. Any failure is returned as
// *ExecutionFailure, never a bare error, so the pipeline can classify it.
type PassExecutor interface {
	Execute(ctx context.Context, spec PassSpec, prefix []byte, semCtx Context) (PassResult, *ExecutionFailure)
}

// NullExecutor always reports a clean, empty pass — useful for exercising
// the pipeline's plumbing (STOP handling, finding accumulation, event
// emission) without any provider configured.
type NullExecutor struct{}

func (NullExecutor) Execute(ctx context.Context, spec PassSpec, prefix []byte, semCtx Context) (PassResult, *ExecutionFailure) {
	return PassResult{}, nil
}

// RunOptions configures one semantic-pipeline run.
type RunOptions struct {
	AuditID  string
	Protocol Protocol
	Executor PassExecutor
	Emitter  report.Emitter
	Now      func() time.Time // for event timestamps; defaults to time.Now
}

func findingForFailure(protocolID, passID string, f *ExecutionFailure) report.Finding {
	var severity report.Severity
	var category string
	switch f.Kind {
	case FailureTimeout:
		severity, category = report.SeverityMinor, "timeout"
	case FailureRetryExhausted:
		severity, category = report.SeverityMajor, "retry_exhausted"
	case FailureSchemaViolation:
		severity, category = report.SeverityMajor, "structure"
	case FailureRefusal:
		severity, category = report.SeverityInfo, "ethical"
	default:
		severity, category = report.SeverityMajor, "unexpected_error"
	}
	id := report.DeriveExecutionFailureID(protocolID, passID, string(f.Kind))
	return report.Finding{
		FindingID:       id,
		Source:          report.SourceSemanticAudit,
		ProtocolID:      protocolID,
		PassID:          passID,
		RuleID:          "SEMANTIC-EXECUTION-FAILURE",
		Category:        category,
		Severity:        severity,
		Confidence:      1.0,
		Status:          report.StatusOpen,
		Title:           fmt.Sprintf("Semantic pass execution failure: %s", f.Kind),
		Description:     f.Message,
	}
}

func emit(e report.Emitter, auditID string, now time.Time, eventType report.EventType, details map[string]interface{}) {
	if e == nil {
		return
	}
	e.Emit(report.NewEvent(auditID, eventType, details, now))
}

func stopRequested(findings []report.Finding) bool {
	for _, f := range findings {
		if f.Source != report.SourceSemanticAudit {
			continue
		}
		if v, ok := f.Metadata["stop_condition"]; ok {
			if b, ok := v.(bool); ok && b {
				return true
			}
		}
	}
	return false
}

// Run executes the protocol's frozen pass sequence against semCtx,
// returning the semantic sub-result. STOP short-circuits remaining
// passes (recorded executed=false, no findings); execution failures never
// propagate past their pass boundary.
func Run(ctx context.Context, semCtx Context, opts RunOptions) (report.SemanticAuditResult, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	executor := opts.Executor
	if executor == nil {
		executor = NullExecutor{}
	}

	prefix, err := semCtx.snapshot()
	if err != nil {
		return report.SemanticAuditResult{}, fmt.Errorf("semantic: build cache-stable prefix: %w", err)
	}

	emit(opts.Emitter, opts.AuditID, now(), report.EventSemanticAuditStarted, nil)

	var (
		allFindings []report.Finding
		executedIDs []string
		stopped     bool
		p8Advisory  []string
		p8Delivery  string
	)

	for _, spec := range opts.Protocol.Passes {
		if stopped {
			continue
		}
		spec.ProtocolID = opts.Protocol.ID
		spec.ProtocolVersion = opts.Protocol.Version

		emit(opts.Emitter, opts.AuditID, now(), report.EventSemanticPassStarted, map[string]interface{}{"pass_id": spec.ID})

		passPrefix, prefixErr := semCtx.snapshot()
		if prefixErr != nil {
			return report.SemanticAuditResult{}, fmt.Errorf("semantic: re-derive prefix for pass %s: %w", spec.ID, prefixErr)
		}
		if !bytes.Equal(prefix, passPrefix) {
			return report.SemanticAuditResult{}, fmt.Errorf("semantic: cache-stable prefix drifted before pass %s", spec.ID)
		}

		emit(opts.Emitter, opts.AuditID, now(), report.EventLLMExecutionStarted, map[string]interface{}{"pass_id": spec.ID})
		result, failure := executor.Execute(ctx, spec, prefix, semCtx)
		emit(opts.Emitter, opts.AuditID, now(), report.EventLLMExecutionCompleted, map[string]interface{}{"pass_id": spec.ID})

		var passFindings []report.Finding
		if failure != nil {
			passFindings = []report.Finding{findingForFailure(opts.Protocol.ID, spec.ID, failure)}
		} else {
			passFindings = result.Findings
			if spec.ID == "P8" {
				p8Advisory = result.AdvisorySignals
				p8Delivery = result.DeliveryRecommendation
			}
		}

		allFindings = append(allFindings, passFindings...)
		executedIDs = append(executedIDs, spec.ID)

		for _, f := range passFindings {
			emit(opts.Emitter, opts.AuditID, now(), report.EventFindingDiscovered, map[string]interface{}{"pass_id": spec.ID, "rule_id": f.RuleID})
		}

		emit(opts.Emitter, opts.AuditID, now(), report.EventSemanticPassCompleted, map[string]interface{}{"pass_id": spec.ID})

		if stopRequested(passFindings) {
			stopped = true
		}
	}

	emit(opts.Emitter, opts.AuditID, now(), report.EventSemanticAuditCompleted, nil)

	return report.SemanticAuditResult{
		Executed:               true,
		Findings:               allFindings,
		ExecutedPassIDs:        executedIDs,
		AdvisorySignals:        p8Advisory,
		DeliveryRecommendation: p8Delivery,
	}, nil
}

// NotExecuted synthesizes the "semantic audit not configured" result the
// coordinator substitutes when no protocol/executor is configured.
func NotExecuted() report.SemanticAuditResult {
	return report.SemanticAuditResult{Executed: false}
}

// DefaultProtocol is the frozen eight-pass sequence named as the worked
// example throughout §4.8/§4.9 ("P1..P8 for one protocol", "Pass 8
// (if present) carries advisory_signals"). A concrete deployment's pass
// tasks are out of this module's scope; this gives cmd/trustctl and tests
// a real, ordered pass timeline to execute against any PassExecutor.
var DefaultProtocol = Protocol{
	ID:      "default-audit-protocol",
	Version: "1",
	Passes: []PassSpec{
		{ID: "P1", Task: "structural_consistency"},
		{ID: "P2", Task: "obligations_extraction"},
		{ID: "P3", Task: "party_identity_consistency"},
		{ID: "P4", Task: "monetary_terms_consistency"},
		{ID: "P5", Task: "date_and_deadline_consistency"},
		{ID: "P6", Task: "cross_reference_consistency"},
		{ID: "P7", Task: "ethical_and_policy_screen"},
		{ID: "P8", Task: "delivery_recommendation"},
	},
}

