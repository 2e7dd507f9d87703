package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sealbound/trustpipe/report"
)

// HTTPJSONExecutor calls a generic JSON-over-HTTPS pass execution
// endpoint: POST {prefix, task, focus} and decode a PassResult back. No
// concrete provider wire format is specified by this system; this is the
// generic shape every provider-specific executor in a real deployment
// would wrap.
type HTTPJSONExecutor struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type httpPassRequest struct {
	Prefix []byte `json:"prefix"`
	Task   string `json:"task"`
}

type httpPassResponse struct {
	Findings []struct {
		RuleID      string                 `json:"rule_id"`
		Category    string                 `json:"category"`
		Severity    string                 `json:"severity"`
		Title       string                 `json:"title"`
		Description string                 `json:"description"`
		Location    string                 `json:"location"`
		Metadata    map[string]interface{} `json:"metadata"`
	} `json:"findings"`
	AdvisorySignals        []string       `json:"advisory_signals"`
	DeliveryRecommendation string         `json:"delivery_recommendation"`
	TokenMetrics           map[string]int `json:"token_metrics"`
}

func (e *HTTPJSONExecutor) Execute(ctx context.Context, spec PassSpec, prefix []byte, semCtx Context) (PassResult, *ExecutionFailure) {
	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(httpPassRequest{Prefix: prefix, Task: spec.Task})
	if err != nil {
		return PassResult{}, &ExecutionFailure{Kind: FailureUnexpectedError, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return PassResult{}, &ExecutionFailure{Kind: FailureUnexpectedError, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return PassResult{}, &ExecutionFailure{Kind: FailureTimeout, Message: err.Error()}
		}
		return PassResult{}, &ExecutionFailure{Kind: FailureUnexpectedError, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return PassResult{}, &ExecutionFailure{Kind: FailureUnexpectedError, Message: err.Error()}
	}

	if resp.StatusCode == http.StatusForbidden {
		return PassResult{}, &ExecutionFailure{Kind: FailureRefusal, Message: string(respBody)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PassResult{}, &ExecutionFailure{Kind: FailureUnexpectedError, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody))}
	}

	var parsed httpPassResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return PassResult{}, &ExecutionFailure{Kind: FailureSchemaViolation, Message: err.Error()}
	}

	result := PassResult{
		AdvisorySignals:        parsed.AdvisorySignals,
		DeliveryRecommendation: parsed.DeliveryRecommendation,
		TokenMetrics:           parsed.TokenMetrics,
	}
	for _, f := range parsed.Findings {
		result.Findings = append(result.Findings, findingFromHTTPResponse(spec, f.RuleID, f.Category, f.Severity, f.Title, f.Description, f.Location, f.Metadata))
	}
	return result, nil
}

func findingFromHTTPResponse(spec PassSpec, ruleID, category, severity, title, description, location string, metadata map[string]interface{}) report.Finding {
	id := report.DeriveFindingID(spec.ProtocolID, spec.ProtocolVersion, spec.ID, ruleID, category, location, nil)
	return report.Finding{
		FindingID:       id,
		Source:          report.SourceSemanticAudit,
		ProtocolID:      spec.ProtocolID,
		ProtocolVersion: spec.ProtocolVersion,
		PassID:          spec.ID,
		RuleID:          ruleID,
		Category:        category,
		Severity:        report.Severity(severity),
		Confidence:      1.0,
		Status:          report.StatusOpen,
		Title:           title,
		Description:     description,
		Location:        location,
		Metadata:        metadata,
	}
}
