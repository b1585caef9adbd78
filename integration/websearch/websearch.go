// Package websearch implements an Integration that fetches a search
// engine's result page with colly and extracts result links/snippets
// with goquery, rather than depending on a paid search API for every
// deployment.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/brianmills2718/osint-deep-research/integration"
	"github.com/brianmills2718/osint-deep-research/resilience"
)

const (
	ID            = "web-search"
	defaultEngine = "https://www.bing.com/search"
)

// Integration runs free-text queries against a general web search engine.
type Integration struct {
	apiKey    string
	engineURL string
	timeout   time.Duration
	userAgent string
}

// New builds the websearch integration. apiKey is optional: some search
// backends require an API key passed as a query parameter, others (a
// scraped HTML results page) do not.
func New(apiKey string, timeout time.Duration) (*Integration, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Integration{
		apiKey:    apiKey,
		engineURL: defaultEngine,
		timeout:   timeout,
		userAgent: "research-engine/1.0 (+https://example.org/research-bot)",
	}, nil
}

func (i *Integration) ID() string { return ID }

func (i *Integration) Describe() string {
	return "General web search across the open internet, for context not covered by structured government sources."
}

func (i *Integration) QuerySchema() integration.QuerySchema {
	return nil // free-text only
}

// Execute fetches the engine's result page for params.FreeText and
// extracts result entries via goquery, retrying a rate-limited attempt
// with bounded exponential backoff before giving up.
func (i *Integration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	if params.FreeText == "" {
		return nil, fmt.Errorf("websearch: empty query")
	}
	limit := params.ResultLimit
	if limit <= 0 {
		limit = 25
	}

	var items []integration.Item
	var lastErr error
	retryErr := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		items, lastErr = i.fetch(ctx, params.FreeText, limit)
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

	return &integration.QueryResult{
		Items:     items,
		QueryEcho: params.FreeText,
	}, nil
}

func (i *Integration) fetch(ctx context.Context, query string, limit int) ([]integration.Item, error) {
	var items []integration.Item
	var fetchErr error

	c := colly.NewCollector(colly.UserAgent(i.userAgent))
	c.SetRequestTimeout(i.timeout)

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode == http.StatusTooManyRequests {
			fetchErr = fmt.Errorf("websearch: %w", integration.ErrRateLimited)
			return
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(r.Body)))
		if err != nil {
			fetchErr = fmt.Errorf("websearch: parsing results page: %w", err)
			return
		}
		doc.Find("li.b_algo, div.g").Each(func(idx int, s *goquery.Selection) {
			if len(items) >= limit {
				return
			}
			link := s.Find("a").First()
			href, _ := link.Attr("href")
			title := strings.TrimSpace(link.Text())
			snippet := strings.TrimSpace(s.Find("p, .b_caption p").First().Text())
			if href == "" || title == "" {
				return
			}
			items = append(items, integration.Item{
				ID:      href,
				Title:   title,
				Snippet: snippet,
				URL:     href,
				Source:  ID,
			})
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode == http.StatusTooManyRequests {
			fetchErr = fmt.Errorf("websearch: %w", integration.ErrRateLimited)
			return
		}
		fetchErr = fmt.Errorf("websearch: fetching results: %w", err)
	})

	reqURL, err := i.buildURL(query)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Visit(reqURL)
		c.Wait()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	if fetchErr != nil {
		return nil, fetchErr
	}
	return items, nil
}

func (i *Integration) buildURL(query string) (string, error) {
	u, err := url.Parse(i.engineURL)
	if err != nil {
		return "", fmt.Errorf("websearch: invalid engine URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	if i.apiKey != "" {
		q.Set("key", i.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
