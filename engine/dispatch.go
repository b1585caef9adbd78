package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brianmills2718/osint-deep-research/execlog"
	"github.com/brianmills2718/osint-deep-research/executor"
	"github.com/brianmills2718/osint-deep-research/integration"
)

var genericFreeTextSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"free_text"},
	"properties": map[string]interface{}{
		"free_text": map[string]interface{}{"type": "string"},
	},
}

var relevanceSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"score", "reason"},
	"properties": map[string]interface{}{
		"score":  map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 10},
		"reason": map[string]interface{}{"type": "string"},
	},
}

type priorAttempt struct {
	Query          string
	RelevanceScore int
}

type relevanceVerdict struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// dispatchBatch selects sources and dispatches every subtask in subtasks,
// stopping early if the run deadline or cost budget is hit partway
// through. Subtasks already processed keep whatever they accepted.
func (e *Engine) dispatchBatch(ctx context.Context, subtasks []*subtaskState, logger *execlog.Logger, dedupe *dedupeSet, onCriticalFailure func(CriticalSourceFailure)) {
	for _, st := range subtasks {
		if ctx.Err() != nil {
			logger.Log("run.deadline_exceeded", st.id, "", 0, nil)
			return
		}
		if e.budgetExhausted() {
			logger.Log("run.budget_exhausted", st.id, "", 0, nil)
			return
		}
		e.selectSources(ctx, st, logger)
		e.dispatchSubtask(ctx, st, logger, dedupe, onCriticalFailure)
	}
}

// dispatchSubtask runs every selected source for st concurrently, each
// with its own reformulation loop, and merges accepted items into st.
func (e *Engine) dispatchSubtask(ctx context.Context, st *subtaskState, logger *execlog.Logger, dedupe *dedupeSet, onCriticalFailure func(CriticalSourceFailure)) {
	if len(st.sources) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sourceID := range st.sources {
		sourceID := sourceID
		g.Go(func() error {
			e.runSourceLoop(gctx, st, sourceID, logger, dedupe, onCriticalFailure)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) runSourceLoop(ctx context.Context, st *subtaskState, sourceID string, logger *execlog.Logger, dedupe *dedupeSet, onCriticalFailure func(CriticalSourceFailure)) {
	integ, err := e.registry.Get(sourceID)
	if err != nil {
		logger.Log("source.unavailable", st.id, sourceID, 0, map[string]interface{}{"error": err.Error()})
		return
	}

	sourceCfg := e.cfg.Sources[sourceID]
	timeout := sourceCfg.Timeout
	resultLimit := e.cfg.Execution.DefaultResultLimit

	var prior *priorAttempt
	var lastErr error
	attemptsFailed := 0

	maxAttempts := e.cfg.Execution.MaxRefinements + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		params, err := e.generateQuery(ctx, st, sourceID, integ.QuerySchema(), prior, resultLimit)
		if err != nil {
			logger.Log("query_generation.opted_out", st.id, sourceID, attempt, map[string]interface{}{"error": err.Error()})
			return
		}

		outcome := e.exec.Execute(ctx, []executor.SourceCall{{SourceID: sourceID, Params: params, Timeout: timeout}})[0]
		e.storeRaw(logger, st.id, sourceID, attempt, outcome)

		if outcome.Err != nil {
			lastErr = outcome.Err
			attemptsFailed++
			e.registry.ReportResult(sourceID, "", outcome.Err)
			logger.Log("source.query_failed", st.id, sourceID, attempt, map[string]interface{}{"error": outcome.Err.Error()})
			break
		}
		e.registry.ReportResult(sourceID, "closed", nil)

		if outcome.Result == nil || len(outcome.Result.Items) == 0 {
			if !e.bumpRetry(st) {
				break
			}
			prior = &priorAttempt{Query: queryEchoOf(outcome), RelevanceScore: 0}
			continue
		}

		score, reason := e.scoreRelevance(ctx, st, sourceID, outcome.Result.Items)
		threshold := e.thresholdFor(st.sensitivity)

		logger.Log("relevance.scored", st.id, sourceID, attempt, map[string]interface{}{
			"score":     score,
			"reason":    reason,
			"threshold": threshold,
		})

		if score >= threshold {
			fresh := dedupe.acceptNew(outcome.Result.Items)
			st.mu.Lock()
			st.acceptedItems = append(st.acceptedItems, fresh...)
			st.succeededFrom = append(st.succeededFrom, sourceID)
			st.mu.Unlock()
			return
		}

		if !e.bumpRetry(st) {
			break
		}
		prior = &priorAttempt{Query: queryEchoOf(outcome), RelevanceScore: score}
	}

	if attemptsFailed > 0 {
		if critical, ok := integ.(integration.CriticalSource); ok && critical.IsCritical() {
			onCriticalFailure(CriticalSourceFailure{
				SourceID: sourceID,
				ErrorKind: errorKind(lastErr),
				Attempts:  attemptsFailed,
			})
		}
	}
}

func queryEchoOf(outcome executor.Outcome) string {
	if outcome.Result == nil {
		return ""
	}
	return outcome.Result.QueryEcho
}

// errorKind classifies err into spec.md's error-kind taxonomy
// (RateLimited, Timeout, AntiBotChallenge, UpstreamMalformed) via
// errors.Is against the integration package's shared sentinels, falling
// back to the error text for anything a concrete integration didn't
// classify.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, integration.ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, integration.ErrTimeout):
		return "Timeout"
	case errors.Is(err, integration.ErrAntiBotChallenge):
		return "AntiBotChallenge"
	case errors.Is(err, integration.ErrUpstreamMalformed):
		return "UpstreamMalformed"
	default:
		return err.Error()
	}
}

// bumpRetry increments the subtask's shared retry counter if doing so
// stays within max_retries_per_task, returning whether another attempt is
// allowed. The counter is shared across every source dispatched for this
// subtask, matching spec.md §4.6.5's single retry_count per subtask.
func (e *Engine) bumpRetry(st *subtaskState) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.retryCount >= e.cfg.Execution.MaxRetriesPerTask {
		return false
	}
	st.retryCount++
	return true
}

func (e *Engine) storeRaw(logger *execlog.Logger, subtaskID, sourceID string, attempt int, outcome executor.Outcome) {
	payload, err := json.Marshal(outcome.Result)
	if err != nil || payload == nil {
		return
	}
	_ = logger.StoreRaw(subtaskID, sourceID, attempt, payload)
}

// generateQuery asks the model to produce QueryParams matching schema (or
// a generic free-text schema when the source accepts free text only).
// prior, when non-nil, tells the model its previous attempt scored below
// threshold so it can reformulate rather than repeat itself.
func (e *Engine) generateQuery(ctx context.Context, st *subtaskState, sourceID string, schema integration.QuerySchema, prior *priorAttempt, resultLimit int) (integration.QueryParams, error) {
	effectiveSchema := map[string]interface{}(schema)
	constraints := "Free text only; phrase the query as you would type it into a search box."
	if schema != nil {
		raw, _ := json.MarshalIndent(map[string]interface{}(schema), "", "  ")
		constraints = string(raw)
	} else {
		effectiveSchema = genericFreeTextSchema
	}

	rendered, err := e.prompts.Render("query_generation", struct {
		SourceID           string
		SubtaskDescription string
		Today              string
		QueryConstraints   string
		PriorAttempt       *priorAttempt
	}{
		SourceID:           sourceID,
		SubtaskDescription: st.description,
		Today:              e.prompts.Today(),
		QueryConstraints:   constraints,
		PriorAttempt:       prior,
	})
	if err != nil {
		return integration.QueryParams{}, fmt.Errorf("engine: rendering query_generation prompt: %w", err)
	}

	operation := "query_generation"
	if prior != nil {
		operation = "reformulation"
	}
	resp, err := e.gateway.Complete(ctx, llmRequest(operation, rendered, effectiveSchema))
	if err != nil {
		return integration.QueryParams{}, fmt.Errorf("engine: generating query for %q: %w", sourceID, err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(resp.Content), &raw); err != nil {
		return integration.QueryParams{}, fmt.Errorf("engine: parsing generated query for %q: %w", sourceID, err)
	}

	return paramsFromModelJSON(raw, resultLimit), nil
}

func paramsFromModelJSON(raw map[string]interface{}, resultLimit int) integration.QueryParams {
	params := integration.QueryParams{Structured: raw, ResultLimit: resultLimit}

	switch {
	case asString(raw["free_text"]) != "":
		params.FreeText = asString(raw["free_text"])
	case asString(raw["keywords"]) != "":
		params.FreeText = asString(raw["keywords"])
	case asString(raw["term"]) != "":
		params.FreeText = asString(raw["term"])
	case len(asStringSlice(raw["phrases"])) > 0:
		params.FreeText = strings.Join(asStringSlice(raw["phrases"]), " OR ")
	}

	if t, ok := parseDate(raw["date_from"]); ok {
		params.DateFrom = t
	}
	if t, ok := parseDate(raw["date_to"]); ok {
		params.DateTo = t
	}
	return params
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseDate(v interface{}) (time.Time, bool) {
	s := asString(v)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// scoreRelevance asks the model to score an accepted result set on a
// 0-10 scale, judged by its first item only: the title and snippet of
// items[0] are rendered into the relevance prompt and the other items are
// not shown to the model. A scoring failure defaults to 0
// (reject/reformulate) rather than silently accepting unscored items.
func (e *Engine) scoreRelevance(ctx context.Context, st *subtaskState, sourceID string, items []integration.Item) (int, string) {
	top := items[0]

	rendered, err := e.prompts.Render("relevance", struct {
		SubtaskDescription string
		ItemTitle          string
		ItemSnippet        string
		SourceID           string
	}{
		SubtaskDescription: st.description,
		ItemTitle:          top.Title,
		ItemSnippet:        top.Snippet,
		SourceID:           sourceID,
	})
	if err != nil {
		return 0, "relevance prompt render failed"
	}

	resp, err := e.gateway.Complete(ctx, llmRequest("relevance", rendered, relevanceSchema))
	if err != nil {
		return 0, "relevance scoring failed: " + err.Error()
	}

	var verdict relevanceVerdict
	if err := json.Unmarshal([]byte(resp.Content), &verdict); err != nil {
		return 0, "relevance response unparseable"
	}
	return verdict.Score, verdict.Reason
}
