// Package register implements an Integration against the federal
// register (rules, proposed rules, and notices), a standard paged JSON
// API with no unusual query restrictions.
package register

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
	ID          = "federal-register"
	defaultBase = "https://www.federalregister.example.gov/api/v1"
)

// Integration queries the federal register.
type Integration struct {
	baseURL    string
	httpClient *http.Client
}

// New builds the register integration. No credential is required; the
// upstream is publicly readable.
func New(timeout time.Duration) (*Integration, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Integration{
		baseURL:    defaultBase,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (i *Integration) ID() string { return ID }

func (i *Integration) Describe() string {
	return "Federal Register rules, proposed rules, and notices, full text searchable."
}

func (i *Integration) QuerySchema() integration.QuerySchema {
	return integration.QuerySchema{
		"type":     "object",
		"required": []interface{}{"term"},
		"properties": map[string]interface{}{
			"term":   map[string]interface{}{"type": "string"},
			"agency": map[string]interface{}{"type": "string"},
		},
	}
}

// Execute pages through results until ResultLimit is satisfied or the
// upstream runs out of pages.
func (i *Integration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	limit := params.ResultLimit
	if limit <= 0 {
		limit = 25
	}

	var items []integration.Item
	var total int
	page := 1
	const perPage = 20

	for len(items) < limit {
		var parsed *registerPage
		var lastErr error
		retryErr := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			parsed, lastErr = i.fetchPage(ctx, params.FreeText, page, perPage)
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

		total = parsed.Count
		if len(parsed.Results) == 0 {
			break
		}
		for _, r := range parsed.Results {
			items = append(items, integration.Item{
				ID:        r.DocumentNumber,
				Title:     r.Title,
				Snippet:   r.Abstract,
				URL:       r.HTMLURL,
				Source:    ID,
				Published: r.PublicationDate,
			})
			if len(items) >= limit {
				break
			}
		}
		if len(parsed.Results) < perPage {
			break
		}
		page++
	}

	return &integration.QueryResult{
		Items:         items,
		TotalUpstream: total,
		Truncated:     total > len(items),
		QueryEcho:     params.FreeText,
	}, nil
}

type registerPage struct {
	Results []struct {
		DocumentNumber  string    `json:"document_number"`
		Title           string    `json:"title"`
		Abstract        string    `json:"abstract"`
		HTMLURL         string    `json:"html_url"`
		PublicationDate time.Time `json:"publication_date"`
	} `json:"results"`
	Count int `json:"count"`
}

func (i *Integration) fetchPage(ctx context.Context, term string, page, perPage int) (*registerPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+"/documents.json", nil)
	if err != nil {
		return nil, fmt.Errorf("register: building request: %w", err)
	}
	q := req.URL.Query()
	q.Set("conditions[term]", term)
	q.Set("per_page", fmt.Sprintf("%d", perPage))
	q.Set("page", fmt.Sprintf("%d", page))
	req.URL.RawQuery = q.Encode()

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("register: transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("register: reading response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("register: %w", integration.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("register: upstream status %d: %s", resp.StatusCode, string(body))
	}

	var parsed registerPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("register: %w: %v", integration.ErrUpstreamMalformed, err)
	}
	return &parsed, nil
}
