// Package media implements an Integration against a government
// public-affairs media API (press releases, imagery captions, unit news)
// that accepts at most two OR-quoted phrases per query and rejects
// anything more complex outright. A single upstream credential is shared
// across all callers, so the executor throttles this source to at most
// one in-flight request at a time (its config entry sets MaxConcurrent to
// 1, which engine.New applies).
package media

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
	ID           = "gov-media"
	defaultBase  = "https://api.media.example.mil/v2"
	maxORPhrases = 2
)

// Integration queries the government media API.
type Integration struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New builds the media integration. apiKey is required.
func New(apiKey string, timeout time.Duration) (*Integration, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("media: credential required")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Integration{
		apiKey:     apiKey,
		baseURL:    defaultBase,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (i *Integration) ID() string { return ID }

func (i *Integration) Describe() string {
	return "Official government media releases, imagery captions, and unit news."
}

func (i *Integration) QuerySchema() integration.QuerySchema {
	return integration.QuerySchema{
		"type":     "object",
		"required": []interface{}{"phrases"},
		"properties": map[string]interface{}{
			"phrases": map[string]interface{}{
				"type":        "array",
				"maxItems":    maxORPhrases,
				"items":       map[string]interface{}{"type": "string"},
				"description": "At most two quoted phrases, OR'd together.",
			},
		},
	}
}

// Execute enforces the two-phrase limit client-side and splits on " OR "
// if the composite is refused upstream.
func (i *Integration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	phrases := integration.SplitDisjunction(params.FreeText)
	if len(phrases) > maxORPhrases {
		phrases = phrases[:maxORPhrases]
	}

	result, err := i.queryWithRetry(ctx, phrases, params.ResultLimit)
	if err != nil {
		return nil, err
	}

	// The upstream's failure mode for rejected composites is a silent
	// empty result, not an error. Retry each phrase individually and
	// union when the composite attempt came back empty and there was
	// more than one phrase to split.
	if result.TotalUpstream == 0 && len(phrases) > 1 {
		var all [][]integration.Item
		for _, p := range phrases {
			single, err := i.queryWithRetry(ctx, []string{p}, params.ResultLimit)
			if err != nil {
				continue
			}
			all = append(all, single.Items)
		}
		result.Items = integration.MergeByID(all...)
	}

	result.QueryEcho = strings.Join(phrases, " OR ")
	return result, nil
}

// queryWithRetry retries a rate-limited attempt with bounded exponential
// backoff before giving up.
func (i *Integration) queryWithRetry(ctx context.Context, phrases []string, limit int) (*integration.QueryResult, error) {
	var result *integration.QueryResult
	var lastErr error
	retryErr := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		result, lastErr = i.query(ctx, phrases, limit)
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

func (i *Integration) query(ctx context.Context, phrases []string, limit int) (*integration.QueryResult, error) {
	if limit <= 0 {
		limit = 25
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("media: building request: %w", err)
	}
	q := req.URL.Query()
	for _, p := range phrases {
		q.Add("phrase", p)
	}
	q.Set("limit", fmt.Sprintf("%d", limit))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+i.apiKey)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("media: reading response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("media: %w", integration.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media: upstream status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Items []struct {
			ID      string    `json:"id"`
			Title   string    `json:"title"`
			Caption string    `json:"caption"`
			URL     string    `json:"url"`
			Date    time.Time `json:"date"`
		} `json:"items"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("media: %w: %v", integration.ErrUpstreamMalformed, err)
	}

	items := make([]integration.Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		items = append(items, integration.Item{
			ID:        it.ID,
			Title:     it.Title,
			Snippet:   it.Caption,
			URL:       it.URL,
			Source:    ID,
			Published: it.Date,
		})
	}

	return &integration.QueryResult{Items: items, TotalUpstream: parsed.Total}, nil
}
