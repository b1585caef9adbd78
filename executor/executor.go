// Package executor implements ParallelExecutor: bounded fan-out of one
// subtask's dispatch across the selected integrations, with a global
// concurrency cap and a per-source cap (multiple subtasks may target the
// same source concurrently, but never past its configured limit), a
// per-source steady-state rate limit, a per-source timeout, and a
// stable, insertion-order result map.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/brianmills2718/osint-deep-research/integration"
)

// SourceCall is one dispatch target: an integration plus the query
// parameters the engine generated for it.
type SourceCall struct {
	SourceID string
	Params   integration.QueryParams
	Timeout  time.Duration
}

// Outcome is one source's result or error, keyed by SourceID.
type Outcome struct {
	SourceID string
	Result   *integration.QueryResult
	Err      error
	Duration time.Duration
}

// Lookup resolves a source id to its Integration, isolating registry
// concerns from the executor.
type Lookup func(sourceID string) (integration.Integration, error)

// ParallelExecutor dispatches a batch of SourceCalls concurrently, never
// exceeding maxConcurrentTotal in flight across the whole batch nor
// maxConcurrentPerSource in flight against any one source id (guarding
// against two subtasks hammering the same rate-limited upstream at once).
type ParallelExecutor struct {
	global            *semaphore.Weighted
	perSourceLimit    int64
	perSourceOverride map[string]int64
	perSource         map[string]*semaphore.Weighted
	perSourceMu       sync.Mutex
	lookup            Lookup
	defaultTimeout    time.Duration

	rateLimiterMu       sync.Mutex
	rateLimiterOverride map[string]*rate.Limiter
	rateLimiters        map[string]*rate.Limiter
}

// defaultEventsPerSecond throttles a source with no configured
// per-source concurrency override to one request per second, a polite
// default crawl rate that still lets a burst of 2 through immediately.
const defaultEventsPerSecond = 1.0

// New builds a ParallelExecutor.
func New(maxConcurrentTotal, maxConcurrentPerSource int, defaultTimeout time.Duration, lookup Lookup) *ParallelExecutor {
	if maxConcurrentTotal <= 0 {
		maxConcurrentTotal = 8
	}
	if maxConcurrentPerSource <= 0 {
		maxConcurrentPerSource = 2
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 20 * time.Second
	}
	return &ParallelExecutor{
		global:         semaphore.NewWeighted(int64(maxConcurrentTotal)),
		perSourceLimit: int64(maxConcurrentPerSource),
		perSource:      make(map[string]*semaphore.Weighted),
		lookup:         lookup,
		defaultTimeout: defaultTimeout,
		rateLimiters:   make(map[string]*rate.Limiter),
	}
}

func (e *ParallelExecutor) semaphoreFor(sourceID string) *semaphore.Weighted {
	e.perSourceMu.Lock()
	defer e.perSourceMu.Unlock()
	sem, ok := e.perSource[sourceID]
	if !ok {
		limit := e.perSourceLimit
		if override, ok := e.perSourceOverride[sourceID]; ok && override > 0 {
			limit = override
		}
		sem = semaphore.NewWeighted(limit)
		e.perSource[sourceID] = sem
	}
	return sem
}

// SetPerSourceLimit overrides the per-source concurrency cap for one
// source id (e.g. a government media API that throttles to a single
// concurrent request). Must be called before the first Execute touching
// that source; it has no effect once that source's semaphore has been
// created lazily.
func (e *ParallelExecutor) SetPerSourceLimit(sourceID string, limit int) {
	e.perSourceMu.Lock()
	defer e.perSourceMu.Unlock()
	if e.perSourceOverride == nil {
		e.perSourceOverride = make(map[string]int64)
	}
	e.perSourceOverride[sourceID] = int64(limit)
}

// SetPerSourceRateLimit overrides the steady-state request rate for one
// source id, independent of its concurrency cap: a source can be limited
// to one concurrent call yet still need its calls spaced out (e.g. a
// government media API enforcing a per-minute quota on top of a
// single-connection limit). Must be called before the first Execute
// touching that source.
func (e *ParallelExecutor) SetPerSourceRateLimit(sourceID string, eventsPerSecond float64, burst int) {
	e.rateLimiterMu.Lock()
	defer e.rateLimiterMu.Unlock()
	if e.rateLimiterOverride == nil {
		e.rateLimiterOverride = make(map[string]*rate.Limiter)
	}
	e.rateLimiterOverride[sourceID] = rate.NewLimiter(rate.Limit(eventsPerSecond), burst)
}

func (e *ParallelExecutor) rateLimiterFor(sourceID string) *rate.Limiter {
	e.rateLimiterMu.Lock()
	defer e.rateLimiterMu.Unlock()
	if limiter, ok := e.rateLimiterOverride[sourceID]; ok {
		return limiter
	}
	limiter, ok := e.rateLimiters[sourceID]
	if !ok {
		limiter = rate.NewLimiter(defaultEventsPerSecond, 2)
		e.rateLimiters[sourceID] = limiter
	}
	return limiter
}

// Execute runs every call in calls concurrently, bounded by the global
// and per-source semaphores, and returns one Outcome per call in the
// same order calls was given (not completion order), so callers can zip
// results back to the SourceCall that produced them without a second
// lookup.
func (e *ParallelExecutor) Execute(ctx context.Context, calls []SourceCall) []Outcome {
	outcomes := make([]Outcome, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for idx, call := range calls {
		idx, call := idx, call
		g.Go(func() error {
			if err := e.global.Acquire(gctx, 1); err != nil {
				outcomes[idx] = Outcome{SourceID: call.SourceID, Err: fmt.Errorf("executor: acquiring global slot: %w", err)}
				return nil
			}
			defer e.global.Release(1)

			sourceSem := e.semaphoreFor(call.SourceID)
			if err := sourceSem.Acquire(gctx, 1); err != nil {
				outcomes[idx] = Outcome{SourceID: call.SourceID, Err: fmt.Errorf("executor: acquiring source slot: %w", err)}
				return nil
			}
			defer sourceSem.Release(1)

			outcomes[idx] = e.runOne(gctx, call)
			return nil
		})
	}
	// Execute never propagates per-call errors through the errgroup —
	// each call's outcome is captured individually so one source's
	// failure never cancels sibling in-flight calls.
	_ = g.Wait()

	return outcomes
}

func (e *ParallelExecutor) runOne(ctx context.Context, call SourceCall) Outcome {
	start := time.Now()

	integ, err := e.lookup(call.SourceID)
	if err != nil {
		return Outcome{SourceID: call.SourceID, Err: fmt.Errorf("executor: resolving source %q: %w", call.SourceID, err), Duration: time.Since(start)}
	}

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := e.rateLimiterFor(call.SourceID).Wait(callCtx); err != nil {
		return Outcome{SourceID: call.SourceID, Err: translateTimeout(err), Duration: time.Since(start)}
	}

	result, err := integ.Execute(callCtx, call.Params)
	return Outcome{SourceID: call.SourceID, Result: result, Err: translateTimeout(err), Duration: time.Since(start)}
}

// translateTimeout maps a context deadline expiry (ours, from the
// per-source timeout above, or the integration's own internal context
// use) onto integration.ErrTimeout, so engine.dispatch can classify it
// without matching on context's own error text.
func translateTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", integration.ErrTimeout, err)
	}
	return err
}
