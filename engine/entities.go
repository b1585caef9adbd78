package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/brianmills2718/osint-deep-research/execlog"
	"github.com/brianmills2718/osint-deep-research/integration"
)

var entitySchema = map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string"},
			"type": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"person", "organization", "program", "location", "event", "concept"},
			},
			"attributes":    map[string]interface{}{"type": "object"},
			"relationships": map[string]interface{}{"type": "array"},
		},
		"required": []interface{}{"name", "type"},
	},
}

type entityResponse struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Relationships []struct {
		Target string `json:"target"`
		Kind   string `json:"kind"`
	} `json:"relationships"`
}

// extractEntities runs one LLM call across a sample of accepted items
// from every subtask, bounded by config.Engine.EntitySampleSize so the
// prompt stays within token limits regardless of run size. Extraction
// failure yields an empty roster rather than aborting the run (spec.md
// §4.6.6: entity extraction failures are non-fatal).
func (e *Engine) extractEntities(ctx context.Context, subtasks []*subtaskState, logger *execlog.Logger) []Entity {
	findings := sampleFindings(subtasks, e.cfg.Engine.EntitySampleSize)
	if len(findings) == 0 {
		return nil
	}

	rendered, err := e.prompts.Render("entity_extraction", struct {
		Findings     []string
		RichEntities bool
	}{
		Findings:     findings,
		RichEntities: e.cfg.Engine.RichEntities,
	})
	if err != nil {
		logger.Log("entity_extraction.render_failed", "", "", 0, map[string]interface{}{"error": err.Error()})
		return nil
	}

	resp, err := e.gateway.Complete(ctx, llmRequest("entity_extraction", rendered, entitySchema))
	if err != nil {
		logger.Log("entity_extraction.failed", "", "", 0, map[string]interface{}{"error": err.Error()})
		return nil
	}

	var parsed []entityResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		logger.Log("entity_extraction.unparseable", "", "", 0, map[string]interface{}{"error": err.Error()})
		return nil
	}

	entities := make([]Entity, 0, len(parsed))
	for _, p := range parsed {
		ent := Entity{Name: p.Name, Type: EntityType(p.Type)}
		if e.cfg.Engine.RichEntities {
			ent.Attributes = p.Attributes
			for _, rel := range p.Relationships {
				ent.Relationships = append(ent.Relationships, EntityRelationship{Target: rel.Target, Kind: rel.Kind})
			}
		}
		entities = append(entities, ent)
	}
	logger.Log("entity_extraction.completed", "", "", 0, map[string]interface{}{"entity_count": len(entities)})
	return entities
}

// sampleFindings flattens accepted items across subtasks into short
// strings for the extraction prompt, truncated to sampleSize so a large
// run doesn't blow the token budget.
func sampleFindings(subtasks []*subtaskState, sampleSize int) []string {
	if sampleSize <= 0 {
		sampleSize = 40
	}
	var out []string
	for _, st := range subtasks {
		st.mu.Lock()
		items := st.acceptedItems
		st.mu.Unlock()
		for _, item := range items {
			out = append(out, fmt.Sprintf("%s: %s", item.Title, item.Snippet))
			if len(out) >= sampleSize {
				return out
			}
		}
	}
	return out
}

var followupSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"warranted"},
	"properties": map[string]interface{}{
		"warranted":   map[string]interface{}{"type": "boolean"},
		"description": map[string]interface{}{"type": "string"},
		"source_hint": map[string]interface{}{"type": "string"},
	},
}

type followupResponse struct {
	Warranted   bool   `json:"warranted"`
	Description string `json:"description"`
	SourceHint  string `json:"source_hint"`
}

// collectFollowups considers one follow-up subtask per existing subtask
// that accepted items, bounded by budget (the remaining max_tasks slots).
// Follow-ups inherit the parent subtask's sensitivity (spec.md §4.6.7).
func (e *Engine) collectFollowups(ctx context.Context, subtasks []*subtaskState, entities []Entity, budget int, logger *execlog.Logger) []*subtaskState {
	if budget <= 0 {
		return nil
	}

	var followups []*subtaskState
	for _, st := range subtasks {
		if len(followups) >= budget {
			break
		}
		st.mu.Lock()
		hasFindings := len(st.acceptedItems) > 0
		summary := summarize(st.acceptedItems)
		st.mu.Unlock()
		if !hasFindings {
			continue
		}

		rendered, err := e.prompts.Render("followup", struct {
			Summary              string
			Entities              []Entity
			AllowBrowserScraper   bool
		}{
			Summary:             summary,
			Entities:            entities,
			AllowBrowserScraper: e.cfg.Engine.FollowupsAllowBrowserScraper,
		})
		if err != nil {
			continue
		}

		resp, err := e.gateway.Complete(ctx, llmRequest("followup", rendered, followupSchema))
		if err != nil {
			logger.Log("followup.failed", st.id, "", 0, map[string]interface{}{"error": err.Error()})
			continue
		}

		var parsed followupResponse
		if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil || !parsed.Warranted {
			continue
		}

		sourceHint := parsed.SourceHint
		if !e.cfg.Engine.FollowupsAllowBrowserScraper && sourceHint == "browser-scraper" {
			sourceHint = ""
		}

		followups = append(followups, &subtaskState{
			id:          uuid.New().String(),
			description: parsed.Description,
			sourceHint:  sourceHint,
			sensitivity: st.sensitivity,
			isFollowup:  true,
		})
		logger.Log("followup.generated", st.id, "", 0, map[string]interface{}{"description": parsed.Description})
	}
	return followups
}

func summarize(items []integration.Item) string {
	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	return strings.Join(titles, "; ")
}
