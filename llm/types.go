// Package llm implements LLMGateway: the single point through which every
// engine operation (decomposition, query generation, relevance scoring,
// entity extraction, synthesis) calls a language model. It enforces
// structured-output validation, per-run cost tracking, and a fallback-model
// walk on transport failure.
package llm

import (
	"context"
)

// Request describes one completion call.
type Request struct {
	// Operation names the calling engine step (e.g. "decomposition",
	// "query_generation") and selects the model/temperature from
	// config.LLMConfig.PerOperationModel when Model is empty.
	Operation   string
	SystemPrompt string
	UserPrompt  string
	Model       string
	Temperature float64
	// Schema, when non-nil, is a JSON Schema the response content must
	// validate against. A response failing validation is treated as a
	// parse failure and retried per RetryConfig before falling back to
	// the next model.
	Schema map[string]interface{}
}

// Response is one successful completion.
type Response struct {
	Content      string
	Model        string
	PromptTokens int
	CompletionTokens int
	TotalTokens  int
	CostUSD      float64
}

// Provider is the transport-level interface a concrete backend (OpenAI,
// Anthropic, or any OpenAI-compatible endpoint) implements. Gateway
// orchestrates retries, fallback, validation, and cost tracking above it.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CostSnapshot reports cumulative spend for a run.
type CostSnapshot struct {
	PerModel  map[string]float64
	TotalUSD  float64
	CallCount int
}
