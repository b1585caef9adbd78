// Package contracts implements an Integration against a government
// contract-award REST API. The upstream enforces a mandatory date window
// of at most one year and rate-limits aggressively; the date window is
// clamped client-side, and an upstream 429 is surfaced as a clear
// RateLimited error rather than a generic transport failure.
package contracts

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
	ID          = "gov-contracts"
	maxWindow   = 365 * 24 * time.Hour
	defaultBase = "https://api.contracts.example.gov/v1"
)

// Integration queries the government contract-award API.
type Integration struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// New builds the contracts integration. apiKey is required; New returns
// an error if it is empty, so no request that the upstream would reject
// is ever issued.
func New(apiKey string, timeout time.Duration) (*Integration, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("contracts: credential required")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Integration{
		apiKey:     apiKey,
		baseURL:    defaultBase,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    resilience.New(resilience.DefaultConfig(ID)),
	}, nil
}

func (i *Integration) ID() string { return ID }

func (i *Integration) Describe() string {
	return "Federal contract award records: awardee, agency, value, date, NAICS code."
}

func (i *Integration) QuerySchema() integration.QuerySchema {
	return integration.QuerySchema{
		"type": "object",
		"required": []interface{}{"keywords", "date_from", "date_to"},
		"properties": map[string]interface{}{
			"keywords":  map[string]interface{}{"type": "string"},
			"date_from": map[string]interface{}{"type": "string", "format": "date"},
			"date_to":   map[string]interface{}{"type": "string", "format": "date"},
			"naics":     map[string]interface{}{"type": "string"},
		},
	}
}

// Execute clamps the requested window to maxWindow, then issues the
// request through the breaker so a sustained 429 streak opens the
// circuit rather than retrying indefinitely. A single rate-limited
// attempt is retried with bounded exponential backoff (spec.md's 2s,
// 4s, 8s) before giving up; any other failure is permanent.
func (i *Integration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	from, to := params.DateFrom, params.DateTo
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() || to.Sub(from) > maxWindow {
		from = to.Add(-maxWindow)
	}

	if !i.breaker.Allow() {
		return nil, fmt.Errorf("contracts: %w", resilience.ErrCircuitOpen)
	}

	var result *integration.QueryResult
	var lastErr error
	retryErr := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		result, lastErr = i.query(ctx, params.FreeText, from, to, params.ResultLimit)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, integration.ErrRateLimited) {
			return lastErr
		}
		return resilience.Permanent(lastErr)
	})
	i.breaker.RecordResult(retryErr)
	if retryErr != nil {
		return nil, lastErr
	}
	return result, nil
}

func (i *Integration) query(ctx context.Context, keywords string, from, to time.Time, limit int) (*integration.QueryResult, error) {
	if limit <= 0 {
		limit = 25
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.baseURL+"/awards", nil)
	if err != nil {
		return nil, fmt.Errorf("contracts: building request: %w", err)
	}
	q := req.URL.Query()
	q.Set("keywords", keywords)
	q.Set("date_from", from.Format("2006-01-02"))
	q.Set("date_to", to.Format("2006-01-02"))
	q.Set("limit", fmt.Sprintf("%d", limit))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+i.apiKey)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contracts: transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("contracts: reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("contracts: %w", integration.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contracts: upstream status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Awards []struct {
			ID       string    `json:"id"`
			Awardee  string    `json:"awardee"`
			Agency   string    `json:"agency"`
			ValueUSD float64   `json:"value_usd"`
			Date     time.Time `json:"date"`
			URL      string    `json:"url"`
			Summary  string    `json:"summary"`
		} `json:"awards"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("contracts: %w: %v", integration.ErrUpstreamMalformed, err)
	}

	items := make([]integration.Item, 0, len(parsed.Awards))
	for _, a := range parsed.Awards {
		items = append(items, integration.Item{
			ID:        a.ID,
			Title:     fmt.Sprintf("%s — %s", a.Awardee, a.Agency),
			Snippet:   a.Summary,
			URL:       a.URL,
			Source:    ID,
			Published: a.Date,
		})
	}

	return &integration.QueryResult{
		Items:         items,
		TotalUpstream: parsed.Total,
		Truncated:     parsed.Total > len(items),
		QueryEcho:     keywords,
	}, nil
}

// IsCritical marks this source critical: a failure here on a
// contract-focused question is a reportable limitation, not silent data
// loss (spec.md's critical-source escalation path).
func (i *Integration) IsCritical() bool { return true }
