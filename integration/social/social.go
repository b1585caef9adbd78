// Package social implements an Integration against a generic Twitter-like
// social platform API. Per spec.md's credential mapping, this source uses
// a generic third-party bearer token rather than a source-specific key.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brianmills2718/osint-deep-research/integration"
	"github.com/brianmills2718/osint-deep-research/resilience"
)

const (
	ID          = "social-twlike"
	defaultBase = "https://api.social-platform.example.com/2"
)

// Integration queries a Twitter-like social platform's recent-search
// endpoint.
type Integration struct {
	bearerToken string
	baseURL     string
	httpClient  *http.Client
}

// New builds the social integration. bearerToken is required.
func New(bearerToken string, timeout time.Duration) (*Integration, error) {
	if bearerToken == "" {
		return nil, fmt.Errorf("social: credential required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Integration{
		bearerToken: bearerToken,
		baseURL:     defaultBase,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

func (i *Integration) ID() string { return ID }

func (i *Integration) Describe() string {
	return "Public posts from a Twitter-like social platform, recent-search only."
}

func (i *Integration) QuerySchema() integration.QuerySchema {
	return integration.QuerySchema{
		"type":     "object",
		"required": []interface{}{"query"},
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
	}
}

// Execute calls the platform's recent-search endpoint, retrying a
// rate-limited attempt with bounded exponential backoff before giving up.
func (i *Integration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	var result *integration.QueryResult
	var lastErr error
	retryErr := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		result, lastErr = i.query(ctx, params)
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

func (i *Integration) query(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	limit := params.ResultLimit
	if limit <= 0 {
		limit = 25
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+"/tweets/search/recent", nil)
	if err != nil {
		return nil, fmt.Errorf("social: building request: %w", err)
	}
	q := req.URL.Query()
	q.Set("query", params.FreeText)
	q.Set("max_results", fmt.Sprintf("%d", limit))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+i.bearerToken)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("social: transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("social: reading response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("social: %w", integration.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("social: upstream status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Data []struct {
			ID        string    `json:"id"`
			Text      string    `json:"text"`
			AuthorID  string    `json:"author_id"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"data"`
		Meta struct {
			ResultCount int `json:"result_count"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("social: %w: %v", integration.ErrUpstreamMalformed, err)
	}

	items := make([]integration.Item, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		items = append(items, integration.Item{
			ID:        d.ID,
			Title:     fmt.Sprintf("post by %s", d.AuthorID),
			Snippet:   d.Text,
			URL:       fmt.Sprintf("https://social-platform.example.com/i/status/%s", d.ID),
			Source:    ID,
			Published: d.CreatedAt,
		})
	}

	return &integration.QueryResult{
		Items:         items,
		TotalUpstream: parsed.Meta.ResultCount,
		QueryEcho:     params.FreeText,
	}, nil
}
