package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brianmills2718/osint-deep-research/execlog"
	"github.com/brianmills2718/osint-deep-research/integration"
)

var synthesisSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"executive_summary", "limitations"},
	"properties": map[string]interface{}{
		"executive_summary": map[string]interface{}{"type": "string"},
		"limitations":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
}

type synthesisResponse struct {
	ExecutiveSummary string   `json:"executive_summary"`
	Limitations      []string `json:"limitations"`
}

// synthesize composes the final report: one LLM call over every
// subtask's findings produces the executive summary and limitations;
// everything else (citations, entity roster, critical-source failures)
// is assembled deterministically from what the run actually recorded, so
// a synthesis failure degrades to a bare-bones report rather than losing
// the run's evidence entirely.
func (e *Engine) synthesize(ctx context.Context, question Question, subtasks []*subtaskState, entities []Entity, criticalFailures []CriticalSourceFailure, logger *execlog.Logger) *Report {
	findings := make([]SubtaskFinding, 0, len(subtasks))
	var allCitations []string
	for _, st := range subtasks {
		st.mu.Lock()
		citations := citationsOf(st.acceptedItems)
		summary := summarize(st.acceptedItems)
		st.mu.Unlock()

		findings = append(findings, SubtaskFinding{
			SubtaskID: st.id,
			Summary:   summary,
			Citations: citations,
		})
		allCitations = append(allCitations, citations...)
	}

	report := &Report{
		PerSubtaskFindings: findings,
		EntityRoster:       entities,
		Citations:          dedupeCitations(allCitations),
	}

	for _, f := range criticalFailures {
		report.Limitations = append(report.Limitations, fmt.Sprintf("critical source %q failed after %d attempt(s): %s", f.SourceID, f.Attempts, f.ErrorKind))
	}

	rendered, err := e.prompts.Render("synthesis", struct {
		Question string
		Findings []SubtaskFinding
	}{
		Question: question.Text,
		Findings: findings,
	})
	if err != nil {
		logger.Log("synthesis.render_failed", "", "", 0, map[string]interface{}{"error": err.Error()})
		report.Limitations = append(report.Limitations, "executive summary unavailable: prompt render failed")
		return report
	}

	resp, err := e.gateway.Complete(ctx, llmRequest("synthesis", rendered, synthesisSchema))
	if err != nil {
		logger.Log("synthesis.failed", "", "", 0, map[string]interface{}{"error": err.Error()})
		report.Limitations = append(report.Limitations, "executive summary unavailable: "+err.Error())
		return report
	}

	var parsed synthesisResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		logger.Log("synthesis.unparseable", "", "", 0, map[string]interface{}{"error": err.Error()})
		report.Limitations = append(report.Limitations, "executive summary unavailable: malformed model response")
		return report
	}

	report.ExecutiveSummary = parsed.ExecutiveSummary
	report.Limitations = append(report.Limitations, parsed.Limitations...)
	logger.Log("synthesis.completed", "", "", 0, map[string]interface{}{"citation_count": len(report.Citations)})
	return report
}

func citationsOf(items []integration.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item.URL != "" {
			out = append(out, item.URL)
		}
	}
	return out
}

func dedupeCitations(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
