package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/brianmills2718/osint-deep-research/execlog"
	"github.com/brianmills2718/osint-deep-research/llm"
)

type sourceDescriptor struct {
	ID          string
	Description string
}

var decompositionSchema = map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"description": map[string]interface{}{"type": "string"},
			"source_hint": map[string]interface{}{"type": "string"},
		},
		"required":             []interface{}{"description", "source_hint"},
		"additionalProperties": false,
	},
}

type decompositionItem struct {
	Description string `json:"description"`
	SourceHint  string `json:"source_hint"`
}

// decompose breaks question into 3-8 subtasks via one LLM call. Fewer than
// two returned subtasks is treated as a decomposition that didn't actually
// decompose anything, so the whole question becomes a single subtask
// instead (spec.md §4.6.1).
func (e *Engine) decompose(ctx context.Context, question Question, logger *execlog.Logger) ([]*subtaskState, error) {
	available := e.availableSources()

	rendered, err := e.prompts.Render("decomposition", struct {
		Question         string
		Sensitivity      string
		Today            string
		RecentWindowDays int
		AvailableSources []sourceDescriptor
		MaxTasks         int
	}{
		Question:         question.Text,
		Sensitivity:      string(question.Sensitivity),
		Today:            e.prompts.Today(),
		RecentWindowDays: e.prompts.RecentWindowDays(),
		AvailableSources: available,
		MaxTasks:         e.cfg.Execution.MaxTasks,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: rendering decomposition prompt: %w", err)
	}

	resp, err := e.gateway.Complete(ctx, llmRequest("decomposition", rendered, decompositionSchema))
	if err != nil {
		return wrapAsSingleSubtask(question), nil
	}

	var items []decompositionItem
	if err := json.Unmarshal([]byte(resp.Content), &items); err != nil || len(items) < 2 {
		logger.Log("decomposition.fallback_single_subtask", "", "", 0, map[string]interface{}{
			"reason": "fewer than two subtasks returned",
		})
		return wrapAsSingleSubtask(question), nil
	}

	if len(items) > 8 {
		items = items[:8]
	}

	subtasks := make([]*subtaskState, 0, len(items))
	for _, it := range items {
		subtasks = append(subtasks, &subtaskState{
			id:          uuid.New().String(),
			description: it.Description,
			sourceHint:  it.SourceHint,
			sensitivity: question.Sensitivity,
		})
	}
	logger.Log("decomposition.completed", "", "", 0, map[string]interface{}{"subtask_count": len(subtasks)})
	return subtasks, nil
}

func wrapAsSingleSubtask(question Question) []*subtaskState {
	return []*subtaskState{{
		id:          uuid.New().String(),
		description: question.Text,
		sensitivity: question.Sensitivity,
	}}
}

// withoutBrowserScraper drops the browser-scraper source from an
// available-source list; selectSources applies it to follow-up subtasks
// when browser scraping is not allowed for them, mirroring the
// source-hint blanking collectFollowups already does for its fallback path.
func withoutBrowserScraper(in []sourceDescriptor) []sourceDescriptor {
	out := make([]sourceDescriptor, 0, len(in))
	for _, d := range in {
		if d.ID == "browser-scraper" {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (e *Engine) availableSources() []sourceDescriptor {
	var out []sourceDescriptor
	for _, id := range e.registry.IDs() {
		integ, err := e.registry.Get(id)
		if err != nil {
			continue
		}
		out = append(out, sourceDescriptor{ID: id, Description: integ.Describe()})
	}
	return out
}

var sourceSelectionSchema = map[string]interface{}{
	"type":  "array",
	"items": map[string]interface{}{"type": "string"},
}

// selectSources asks the model to rank available sources for one subtask.
// Selection is advisory: the engine intersects the model's ordering with
// what's actually registered and available, preserving the model's order
// (spec.md §4.6.3). A follow-up subtask never even sees browser-scraper
// as an option when the feature flag is off, rather than relying on the
// model to honor a prompt hint it was never forced to obey.
func (e *Engine) selectSources(ctx context.Context, st *subtaskState, logger *execlog.Logger) {
	available := e.availableSources()
	if st.isFollowup && !e.cfg.Engine.FollowupsAllowBrowserScraper {
		available = withoutBrowserScraper(available)
	}
	byID := make(map[string]bool, len(available))
	for _, d := range available {
		byID[d.ID] = true
	}

	rendered, err := e.prompts.Render("source_selection", struct {
		SubtaskDescription string
		AvailableSources   []sourceDescriptor
	}{
		SubtaskDescription: st.description,
		AvailableSources:   available,
	})
	if err != nil {
		st.sources = adviseBySourceHint(st, byID)
		return
	}

	resp, err := e.gateway.Complete(ctx, llmRequest("source_selection", rendered, sourceSelectionSchema))
	if err != nil {
		logger.Log("source_selection.fallback", st.id, "", 0, map[string]interface{}{"error": err.Error()})
		st.sources = adviseBySourceHint(st, byID)
		return
	}

	var ranked []string
	if err := json.Unmarshal([]byte(resp.Content), &ranked); err != nil {
		st.sources = adviseBySourceHint(st, byID)
		return
	}

	var intersected []string
	for _, id := range ranked {
		if byID[id] {
			intersected = append(intersected, id)
		}
	}
	if len(intersected) == 0 {
		intersected = adviseBySourceHint(st, byID)
	}
	st.sources = intersected
	logger.Log("source_selection.completed", st.id, "", 0, map[string]interface{}{"sources": intersected})
}

// adviseBySourceHint is the fallback used when the selection call itself
// fails: fall back to the decomposition step's own source_hint, or every
// available source if that hint isn't registered.
func adviseBySourceHint(st *subtaskState, byID map[string]bool) []string {
	if byID[st.sourceHint] {
		return []string{st.sourceHint}
	}
	var all []string
	for id := range byID {
		all = append(all, id)
	}
	return all
}

func llmRequest(operation, userPrompt string, schema map[string]interface{}) llm.Request {
	return llm.Request{Operation: operation, UserPrompt: userPrompt, Schema: schema}
}
