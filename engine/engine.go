// Package engine implements DeepResearchEngine: it turns a natural-language
// question into a structured, cited report.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brianmills2718/osint-deep-research/config"
	"github.com/brianmills2718/osint-deep-research/execlog"
	"github.com/brianmills2718/osint-deep-research/executor"
	"github.com/brianmills2718/osint-deep-research/integration"
	"github.com/brianmills2718/osint-deep-research/llm"
	"github.com/brianmills2718/osint-deep-research/logging"
	"github.com/brianmills2718/osint-deep-research/prompt"
	"github.com/brianmills2718/osint-deep-research/registry"
)

// Engine is the investigative loop: decompose, detect sensitivity, select
// sources, dispatch, score relevance and reformulate, extract entities,
// propose follow-ups, synthesize a report, all under budget enforcement.
// It mirrors the teacher's StandardOrchestrator composition of router,
// executor, and synthesizer behind one facade.
type Engine struct {
	gateway  *llm.Gateway
	prompts  *prompt.Store
	registry *registry.Registry
	exec     *executor.ParallelExecutor
	cfg      *config.Config
	logger   logging.Logger

	outputRoot string
}

// New builds an Engine from a fully merged configuration. reg must already
// have every configured source registered (research.Run does this with
// registerSources before calling New); exec should be sized from
// cfg.Execution.
func New(cfg *config.Config, gateway *llm.Gateway, prompts *prompt.Store, reg *registry.Registry, exec *executor.ParallelExecutor, logger logging.Logger) *Engine {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	for id, sc := range cfg.Sources {
		if sc.MaxConcurrent > 0 {
			exec.SetPerSourceLimit(id, sc.MaxConcurrent)
			// A source throttled below the default concurrency also gets
			// a correspondingly tighter steady-state rate: one call every
			// MaxConcurrent seconds rather than the default 1/sec, since
			// a single-connection source (e.g. gov-media) is exactly the
			// kind that also enforces a per-minute quota server-side.
			exec.SetPerSourceRateLimit(id, 1.0/float64(sc.MaxConcurrent), sc.MaxConcurrent)
		}
	}
	return &Engine{
		gateway:    gateway,
		prompts:    prompts,
		registry:   reg,
		exec:       exec,
		cfg:        cfg,
		logger:     logger,
		outputRoot: cfg.OutputRoot,
	}
}

// subtaskState is the engine's mutable working record for one subtask
// across decomposition, dispatch, and follow-up generation. SubtaskRecord
// is its terminal, serializable projection.
type subtaskState struct {
	id          string
	description string
	sourceHint  string
	sensitivity Sensitivity
	isFollowup  bool

	mu            sync.Mutex
	retryCount    int
	sources       []string
	succeededFrom []string
	acceptedItems []integration.Item
}

func (s *subtaskState) snapshot() SubtaskRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := "failed"
	if len(s.succeededFrom) > 0 {
		state = "succeeded"
	}
	return SubtaskRecord{
		ID:          s.id,
		Description: s.description,
		SourceHint:  s.sourceHint,
		RetryCount:  s.retryCount,
		State:       state,
		Sources:     append([]string(nil), s.succeededFrom...),
	}
}

type runIDKey struct{}

// WithRunID attaches a caller-chosen run id to ctx. A caller that needs to
// know the run id before Run returns (e.g. an HTTP handler that must hand
// the id back to the client immediately so it can start polling
// StreamProgress while the run is still in flight) generates one and
// passes it in this way; Run falls back to generating its own id when
// none is present, so direct/test callers don't need to think about it.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(runIDKey{}).(string)
	return v, ok && v != ""
}

// Run executes one full research run for question and returns its terminal
// record. Partial results are always returned alongside a nil error; Run
// only returns an error when the execution log cannot be opened. A
// decomposition failure is logged and yields a record with no subtasks and
// a nil error.
func (e *Engine) Run(ctx context.Context, question Question) (*RunRecord, error) {
	runID, ok := runIDFromContext(ctx)
	if !ok {
		runID = uuid.New().String()
	}
	startedAt := time.Now()

	if question.Sensitivity == "" {
		question.Sensitivity = detectSensitivity(question.Text)
	}

	deadline := time.Duration(e.cfg.Execution.MaxTimeMinutes) * time.Minute
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	logger, err := execlog.New(e.outputRoot, runID, nil, e.logger)
	if err != nil {
		return nil, fmt.Errorf("engine: opening execution log: %w", err)
	}
	defer logger.Close()

	logger.Log("run.started", "", "", 0, map[string]interface{}{
		"question":    question.Text,
		"sensitivity": string(question.Sensitivity),
	})

	record := &RunRecord{
		RunID:     runID,
		StartedAt: startedAt,
		Question:  question,
	}

	subtasks, err := e.decompose(runCtx, question, logger)
	if err != nil {
		logger.Log("run.decomposition_failed", "", "", 0, map[string]interface{}{"error": err.Error()})
		record.FinishedAt = time.Now()
		return record, nil
	}

	dedupe := newDedupeSet()
	var criticalFailures []CriticalSourceFailure
	var criticalMu sync.Mutex
	recordFailure := func(failure CriticalSourceFailure) {
		criticalMu.Lock()
		defer criticalMu.Unlock()
		criticalFailures = append(criticalFailures, failure)
	}

	maxTasks := e.cfg.Execution.MaxTasks
	all := subtasks
	e.dispatchBatch(runCtx, all, logger, dedupe, recordFailure)

	entities := e.extractEntities(runCtx, all, logger)

	if len(all) < maxTasks && runCtx.Err() == nil && !e.budgetExhausted() {
		followups := e.collectFollowups(runCtx, all, entities, maxTasks-len(all), logger)
		if len(followups) > 0 {
			all = append(all, followups...)
			e.dispatchBatch(runCtx, followups, logger, dedupe, recordFailure)
			entities = e.extractEntities(runCtx, all, logger)
		}
	}

	report := e.synthesize(runCtx, question, all, entities, criticalFailures, logger)

	record.ConfigSnapshot = e.configSnapshot()
	for _, st := range all {
		record.Subtasks = append(record.Subtasks, st.snapshot())
	}
	record.CriticalSourceFailures = criticalFailures
	record.Report = report
	snap := e.gateway.CostSnapshot()
	record.CostBreakdown = CostBreakdown{PerModel: snap.PerModel, TotalUSD: snap.TotalUSD, CallCount: snap.CallCount}
	record.FinishedAt = time.Now()

	logger.Log("run.finished", "", "", 0, map[string]interface{}{
		"subtasks_succeeded": countSucceeded(all),
		"total_cost_usd":     record.CostBreakdown.TotalUSD,
	})

	return record, nil
}

func (e *Engine) budgetExhausted() bool {
	if e.cfg.Cost.MaxCostPerRun <= 0 {
		return false
	}
	return e.gateway.CostSnapshot().TotalUSD >= e.cfg.Cost.MaxCostPerRun
}

func (e *Engine) thresholdFor(s Sensitivity) int {
	if s == SensitivitySensitive {
		return e.cfg.Engine.RelevanceThresholdSensitive
	}
	return e.cfg.Engine.RelevanceThresholdPublic
}

func (e *Engine) configSnapshot() map[string]interface{} {
	return map[string]interface{}{
		"max_tasks":              e.cfg.Execution.MaxTasks,
		"max_retries_per_task":   e.cfg.Execution.MaxRetriesPerTask,
		"max_time_minutes":       e.cfg.Execution.MaxTimeMinutes,
		"max_cost_usd":           e.cfg.Cost.MaxCostPerRun,
		"relevance_threshold_public":    e.cfg.Engine.RelevanceThresholdPublic,
		"relevance_threshold_sensitive": e.cfg.Engine.RelevanceThresholdSensitive,
	}
}

func countSucceeded(subtasks []*subtaskState) int {
	n := 0
	for _, st := range subtasks {
		st.mu.Lock()
		if len(st.succeededFrom) > 0 {
			n++
		}
		st.mu.Unlock()
	}
	return n
}

// dedupeSet is the run-wide dedupe set, keyed on an item's URL (or on its
// ID when the URL is empty; items with neither are dropped), shared across
// every subtask and source so the same article found via two integrations
// is only accepted once.
type dedupeSet struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newDedupeSet() *dedupeSet {
	return &dedupeSet{seen: make(map[string]bool)}
}

func (d *dedupeSet) acceptNew(items []integration.Item) []integration.Item {
	d.mu.Lock()
	defer d.mu.Unlock()
	var fresh []integration.Item
	for _, item := range items {
		key := item.URL
		if key == "" {
			key = item.ID
		}
		if key == "" || d.seen[key] {
			continue
		}
		d.seen[key] = true
		fresh = append(fresh, item)
	}
	return fresh
}
