// Package integration defines the polymorphic Integration interface every
// data source implements, and the shared types engine code passes across
// that boundary regardless of which upstream a concrete integration
// queries.
package integration

import (
	"context"
	"time"
)

// Item is one normalized search result returned by an integration,
// regardless of upstream shape.
type Item struct {
	ID        string
	Title     string
	Snippet   string
	URL       string
	Source    string
	Published time.Time
	Raw       map[string]interface{}
}

// QueryParams is the generic envelope an integration receives. Concrete
// integrations interpret Structured according to their own query schema
// (e.g. contracts expects a date window and NAICS code, media expects at
// most two OR-quoted phrases); FreeText is always available as a
// fallback for integrations that don't support structured queries.
type QueryParams struct {
	FreeText    string
	Structured  map[string]interface{}
	DateFrom    time.Time
	DateTo      time.Time
	ResultLimit int
}

// QueryResult is what Execute returns: the normalized items plus metadata
// the engine needs for relevance scoring and reformulation decisions.
type QueryResult struct {
	Items         []Item
	TotalUpstream int
	Truncated     bool
	QueryEcho     string
}

// QuerySchema is the JSON Schema a query-generation LLM call must produce
// a document matching, scoped per integration (spec.md §4.4's
// per-source query contract — e.g. "simple boolean only" for federal
// jobs, "≤2 OR-quoted phrases" for government media).
type QuerySchema map[string]interface{}

// Status reports an integration's health for registry/status endpoints.
type Status struct {
	ID              string
	Available       bool
	CircuitState    string
	LastError       string
	LastSuccessAt   time.Time
}

// Integration is the polymorphic interface every concrete data source
// implements. ID is stable and used as the registry key and the
// dedupe/citation namespace.
type Integration interface {
	ID() string
	// Describe returns a short human-readable summary used in
	// decomposition prompts to let the planner pick source hints.
	Describe() string
	// QuerySchema returns the JSON Schema the query-generation step must
	// satisfy for this source, or nil if it accepts free text only.
	QuerySchema() QuerySchema
	// Execute runs one search against the upstream. Implementations are
	// responsible for their own upstream-specific retry/backoff inside
	// the provided context deadline; ParallelExecutor enforces the
	// outer per-source timeout.
	Execute(ctx context.Context, params QueryParams) (*QueryResult, error)
}

// CriticalSource marks an integration whose failure is escalated rather
// than merely degrading its subtask: the engine records it as a
// CriticalSourceFailure and lists it in the report's limitations, and the
// run continues. Integrations that don't implement this are treated as
// non-critical.
type CriticalSource interface {
	IsCritical() bool
}
