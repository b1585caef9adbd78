package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/brianmills2718/osint-deep-research/config"
	"github.com/brianmills2718/osint-deep-research/logging"
	"github.com/brianmills2718/osint-deep-research/resilience"
)

// ErrBudgetExceeded is returned by Complete when cumulative cost has already
// reached the configured ceiling before the call is made.
var ErrBudgetExceeded = errors.New("llm: run cost budget exceeded")

// ErrSchemaValidation is returned when a model's response fails validation
// against Request.Schema after exhausting the retry budget.
var ErrSchemaValidation = errors.New("llm: response failed schema validation")

// Gateway is the single entry point engine code uses to call a language
// model. It resolves per-operation model selection, retries transient
// transport failures, walks the configured fallback-model list on
// persistent failure, validates structured output against a JSON Schema,
// and tracks cumulative spend against a configurable run budget.
type Gateway struct {
	provider   Provider
	cfg        config.LLMConfig
	maxCostUSD float64
	logger     logging.Logger

	mu        sync.Mutex
	perModel  map[string]float64
	totalUSD  float64
	callCount int64
}

// New builds a Gateway. maxCostUSD is the hard ceiling for one run
// (config.CostConfig.MaxCostPerRun).
func New(provider Provider, cfg config.LLMConfig, maxCostUSD float64, logger logging.Logger) *Gateway {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Gateway{
		provider:   provider,
		cfg:        cfg,
		maxCostUSD: maxCostUSD,
		logger:     logger,
		perModel:   make(map[string]float64),
	}
}

// Complete resolves the model for req.Operation, then calls the provider,
// retrying transient errors and walking the fallback-model list on
// persistent failure. If req.Schema is set, the response content must parse
// as JSON and validate against it; a response that doesn't is treated the
// same as a transport failure for retry/fallback purposes.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		req.Model = g.modelFor(req.Operation)
	}
	if req.Temperature == 0 {
		if t, ok := g.cfg.TemperaturePerOp[req.Operation]; ok {
			req.Temperature = t
		} else {
			req.Temperature = 0.2
		}
	}

	models := append([]string{req.Model}, g.cfg.FallbackModels...)

	var lastErr error
	for i, model := range models {
		if i > 0 {
			g.logger.Warn("falling back to next model", map[string]interface{}{
				"operation":    req.Operation,
				"failed_model": models[i-1],
				"next_model":   model,
			})
		}

		attemptReq := req
		attemptReq.Model = model

		resp, err := g.completeWithRetry(ctx, attemptReq)
		if err == nil {
			g.recordCost(resp.Model, resp.CostUSD)
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, ErrBudgetExceeded) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("llm: all models exhausted for operation %q: %w", req.Operation, lastErr)
}

func (g *Gateway) completeWithRetry(ctx context.Context, req Request) (*Response, error) {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.MaxAttempts = g.cfg.MaxRetries + 1
	if retryCfg.MaxAttempts < 1 {
		retryCfg.MaxAttempts = 1
	}

	if err := g.checkBudget(); err != nil {
		return nil, err
	}

	var resp *Response
	var lastErr error
	err := resilience.Retry(ctx, retryCfg, func() error {
		r, err := g.provider.Complete(ctx, req)
		if err != nil {
			lastErr = err
			return err
		}
		if req.Schema != nil {
			if verr := validateAgainstSchema(r.Content, req.Schema); verr != nil {
				lastErr = fmt.Errorf("%w: %v", ErrSchemaValidation, verr)
				return lastErr
			}
		}
		resp = r
		return nil
	})
	if err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return resp, nil
}

func (g *Gateway) modelFor(operation string) string {
	if m, ok := g.cfg.PerOperationModel[operation]; ok && m != "" {
		return m
	}
	return g.cfg.DefaultModel
}

func (g *Gateway) checkBudget() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.maxCostUSD > 0 && g.totalUSD >= g.maxCostUSD {
		return ErrBudgetExceeded
	}
	return nil
}

func (g *Gateway) recordCost(model string, costUSD float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.perModel[model] += costUSD
	g.totalUSD += costUSD
	atomic.AddInt64(&g.callCount, 1)
}

// CostSnapshot reports cumulative spend for the run so far.
func (g *Gateway) CostSnapshot() CostSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	snap := CostSnapshot{
		PerModel:  make(map[string]float64, len(g.perModel)),
		TotalUSD:  g.totalUSD,
		CallCount: int(atomic.LoadInt64(&g.callCount)),
	}
	for k, v := range g.perModel {
		snap.PerModel[k] = v
	}
	return snap
}

// ResetCost zeroes the cost counters, used between independent runs sharing
// one Gateway instance.
func (g *Gateway) ResetCost() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.perModel = make(map[string]float64)
	g.totalUSD = 0
	atomic.StoreInt64(&g.callCount, 0)
}

func validateAgainstSchema(content string, schemaDoc map[string]interface{}) error {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return fmt.Errorf("parsing schema: %w", err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolving schema: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(content), &value); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}

	if err := resolved.Validate(value); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
