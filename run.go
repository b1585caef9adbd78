// Package research implements an investigative-journalism research engine
// that turns a natural-language question into a structured, cited report.
//
// The domain types and the DeepResearchEngine implementation live in the
// engine subpackage; this package is the thin public facade SPEC_FULL.md
// §6 describes (Run, StreamProgress, ListSources), wiring config, llm,
// prompt, registry, and executor together for each call.
package research

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brianmills2718/osint-deep-research/config"
	"github.com/brianmills2718/osint-deep-research/engine"
	"github.com/brianmills2718/osint-deep-research/execlog"
	"github.com/brianmills2718/osint-deep-research/executor"
	"github.com/brianmills2718/osint-deep-research/llm"
	"github.com/brianmills2718/osint-deep-research/logging"
	"github.com/brianmills2718/osint-deep-research/prompt"
	"github.com/brianmills2718/osint-deep-research/registry"
)

// Run executes one full research run for question: it loads configuration
// (environment plus overrides), builds a fresh gateway/registry/executor,
// and delegates to engine.Engine.Run. Each call is independent — nothing
// is cached across calls except what the operating system caches (the
// registry's lazily-constructed integration clients die with the call).
func Run(ctx context.Context, question Question, overrides *config.Overrides) (*RunRecord, error) {
	cfg, err := config.Load("", overrides)
	if err != nil {
		return nil, fmt.Errorf("research: loading config: %w", err)
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	reg, err := registry.New(cfg.Registry.RedisURL, logger)
	if err != nil {
		return nil, fmt.Errorf("research: building registry: %w", err)
	}
	registerSources(reg, cfg, logger)

	// 30 days is the decomposition prompt's notion of "recent" (distinct
	// from any one source's own default lookback window).
	promptStore, err := prompt.New(30)
	if err != nil {
		return nil, fmt.Errorf("research: building prompt store: %w", err)
	}

	provider := llm.NewOpenAICompatibleProvider(os.Getenv(cfg.LLM.APIKeyEnv), cfg.LLM.BaseURL, cfg.LLM.RequestTimeout)
	gateway := llm.New(provider, cfg.LLM, cfg.Cost.MaxCostPerRun, logger)

	exec := executor.New(cfg.Execution.MaxConcurrentTotal, cfg.Execution.MaxConcurrentPerSource, cfg.Timeouts.APIRequest, reg.Get)

	eng := engine.New(cfg, gateway, promptStore, reg, exec, logger)
	return eng.Run(ctx, question)
}

// StreamProgress tails the execution log for an in-flight or completed
// run, emitting each event as it's durably written. The channel closes
// once the log's "run.finished" or "run.decomposition_failed" event is
// seen, or after 30 minutes without a new line in
// outputRoot/runID/events.jsonl. Callers
// that need a different output root than the environment default should
// set RESEARCH_OUTPUT_ROOT before calling Run.
func StreamProgress(runID string) (<-chan execlog.Event, error) {
	cfg, err := config.Load("", nil)
	if err != nil {
		return nil, fmt.Errorf("research: loading config: %w", err)
	}

	path := filepath.Join(cfg.OutputRoot, runID, "events.jsonl")
	deadline := time.Now().Add(2 * time.Second)
	var f *os.File
	for {
		f, err = os.Open(path)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("research: run %q has no execution log yet: %w", runID, err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	out := make(chan execlog.Event, 64)
	go tailEvents(f, out)
	return out, nil
}

func tailEvents(f *os.File, out chan<- execlog.Event) {
	defer close(out)
	defer f.Close()

	reader := bufio.NewReader(f)
	lastData := time.Now()
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var ev execlog.Event
			if json.Unmarshal(line, &ev) == nil {
				out <- ev
				if ev.Kind == "run.finished" || ev.Kind == "run.decomposition_failed" {
					return
				}
			}
			lastData = time.Now()
			continue
		}
		if err != nil {
			// No new line yet; a run can go quiet for minutes between
			// events during a long LLM call, so this backstop is far
			// longer than any single event gap is expected to be — it
			// only fires if the writer died without ever logging
			// run.finished.
			if time.Since(lastData) > 30*time.Minute {
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// ListSources reports the availability of every integration reg knows
// about. Unlike registry.Registry.IDs, this only reflects sources that
// have actually been probed (constructed or executed against) at least
// once; a source registered but never selected by any run won't appear
// until it is.
func ListSources(reg *registry.Registry) []registry.Status {
	return reg.ListStatus()
}
