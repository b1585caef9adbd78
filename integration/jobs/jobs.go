// Package jobs implements an Integration against a federal jobs listing
// API that only understands a single boolean operator per query —
// parentheses and mixed AND/OR/NOT syntax yield zero results upstream.
// Composite OR queries are split term-by-term and unioned client-side
// via integration.ExecuteBooleanHostile.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brianmills2718/osint-deep-research/integration"
	"github.com/brianmills2718/osint-deep-research/resilience"
)

const (
	ID          = "federal-jobs"
	defaultBase = "https://data.usajobs.example.gov/api/v1"
)

// Integration queries the federal jobs listing API.
type Integration struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New builds the jobs integration. apiKey may be empty for upstreams
// offering anonymous read access; Execute still works, just at a lower
// rate limit tier.
func New(apiKey string, timeout time.Duration) (*Integration, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Integration{
		apiKey:     apiKey,
		baseURL:    defaultBase,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (i *Integration) ID() string { return ID }

func (i *Integration) Describe() string {
	return "Federal government job postings by keyword, location, and agency."
}

func (i *Integration) QuerySchema() integration.QuerySchema {
	return integration.QuerySchema{
		"type":     "object",
		"required": []interface{}{"keywords"},
		"properties": map[string]interface{}{
			"keywords": map[string]interface{}{
				"type":        "string",
				"description": "A single boolean expression using at most one of AND, OR, NOT. No parentheses.",
			},
			"location": map[string]interface{}{"type": "string"},
		},
	}
}

// Execute runs the query, falling back to a per-term OR split if the
// composite query comes back empty (the upstream's failure mode for
// unsupported syntax is silent zero-results, not an error).
func (i *Integration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	if strings.ContainsAny(params.FreeText, "()") {
		return nil, fmt.Errorf("jobs: query must not contain parentheses")
	}

	var lastTotal int
	var lastEcho string
	items, err := integration.ExecuteBooleanHostile(params.FreeText, func(term string) ([]integration.Item, bool, error) {
		result, err := i.queryWithRetry(ctx, term, params.ResultLimit)
		if err != nil {
			return nil, false, err
		}
		lastTotal = result.TotalUpstream
		lastEcho = result.QueryEcho
		return result.Items, result.TotalUpstream == 0, nil
	})
	if err != nil {
		return nil, err
	}

	return &integration.QueryResult{
		Items:         items,
		TotalUpstream: lastTotal,
		QueryEcho:     lastEcho,
	}, nil
}

// queryWithRetry retries a rate-limited attempt against one boolean term
// with bounded exponential backoff before giving up.
func (i *Integration) queryWithRetry(ctx context.Context, term string, limit int) (*integration.QueryResult, error) {
	var result *integration.QueryResult
	var lastErr error
	retryErr := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		result, lastErr = i.query(ctx, term, limit)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, integration.ErrRateLimited) {
			return lastErr
		}
		return resilience.Permanent(lastErr)
	})
	if retryErr != nil {
		return nil, lastErr
	}
	return result, nil
}

func (i *Integration) query(ctx context.Context, keywords string, limit int) (*integration.QueryResult, error) {
	if limit <= 0 {
		limit = 25
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("jobs: building request: %w", err)
	}
	q := req.URL.Query()
	q.Set("keywords", keywords)
	q.Set("limit", fmt.Sprintf("%d", limit))
	req.URL.RawQuery = q.Encode()
	if i.apiKey != "" {
		req.Header.Set("Authorization-Key", i.apiKey)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jobs: transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jobs: reading response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("jobs: %w", integration.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jobs: upstream status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Results []struct {
			ID       string `json:"id"`
			Title    string `json:"title"`
			Agency   string `json:"agency"`
			Location string `json:"location"`
			URL      string `json:"url"`
			Summary  string `json:"summary"`
		} `json:"results"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("jobs: %w: %v", integration.ErrUpstreamMalformed, err)
	}

	items := make([]integration.Item, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		items = append(items, integration.Item{
			ID:      r.ID,
			Title:   fmt.Sprintf("%s (%s, %s)", r.Title, r.Agency, r.Location),
			Snippet: r.Summary,
			URL:     r.URL,
			Source:  ID,
		})
	}

	return &integration.QueryResult{
		Items:         items,
		TotalUpstream: parsed.Total,
		QueryEcho:     keywords,
	}, nil
}
