// Package browser implements an Integration that scrapes individual
// pages behind anti-bot protections colly's plain HTTP transport can't
// get past reliably (JS challenges, rate-limited fingerprinting). It
// operates behind a feature flag and must surface an AntiBotChallenge
// promptly rather than retrying into a hang. New checks only that flag;
// it does not probe the environment for a working scrape path.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/brianmills2718/osint-deep-research/integration"
)

const ID = "browser-scraper"

// ErrUnavailable is returned by New when the feature flag is off, so the
// registry marks this source unavailable rather than failing at
// first-use time.
var ErrUnavailable = errors.New("browser: scraping disabled by feature flag")

var antiBotMarkers = []string{
	"captcha",
	"checking your browser",
	"cf-challenge",
	"enable javascript and cookies",
	"access denied",
}

// Integration scrapes individual pages named in QueryParams.FreeText
// (treated as a direct URL, not a search query — this integration is
// invoked with a specific target page, typically from a follow-up task).
type Integration struct {
	enabled   bool
	timeout   time.Duration
	userAgent string
}

// New builds the browser integration. If enabled is false, it returns
// ErrUnavailable so the caller can mark the source unavailable without
// treating it as a hard startup failure.
func New(enabled bool, timeout time.Duration) (*Integration, error) {
	if !enabled {
		return nil, ErrUnavailable
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Integration{
		enabled:   enabled,
		timeout:   timeout,
		userAgent: "research-engine/1.0 (+https://example.org/research-bot)",
	}, nil
}

func (i *Integration) ID() string { return ID }

func (i *Integration) Describe() string {
	return "Direct page scraping for sites that block simple HTTP clients. High latency, feature-flagged."
}

func (i *Integration) QuerySchema() integration.QuerySchema { return nil }

// Execute fetches params.FreeText as a URL and extracts the page's main
// text and title. It returns integration.ErrAntiBotChallenge immediately
// on a detected challenge page rather than retrying.
func (i *Integration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	targetURL := strings.TrimSpace(params.FreeText)
	if targetURL == "" {
		return nil, fmt.Errorf("browser: empty target URL")
	}

	var item *integration.Item
	var fetchErr error

	c := colly.NewCollector(colly.UserAgent(i.userAgent))
	c.SetRequestTimeout(i.timeout)

	c.OnResponse(func(r *colly.Response) {
		body := string(r.Body)
		if isAntiBotChallenge(body) {
			fetchErr = fmt.Errorf("browser: %w", integration.ErrAntiBotChallenge)
			return
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			fetchErr = fmt.Errorf("browser: parsing page: %w", err)
			return
		}

		title := strings.TrimSpace(doc.Find("title").First().Text())
		text := strings.TrimSpace(doc.Find("body").Text())
		if len(text) > 2000 {
			text = text[:2000]
		}

		item = &integration.Item{
			ID:      targetURL,
			Title:   title,
			Snippet: text,
			URL:     targetURL,
			Source:  ID,
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && (r.StatusCode == 403 || r.StatusCode == 429) {
			fetchErr = fmt.Errorf("browser: %w", integration.ErrAntiBotChallenge)
			return
		}
		fetchErr = fmt.Errorf("browser: fetching page: %w", err)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Visit(targetURL)
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
	if item == nil {
		return &integration.QueryResult{}, nil
	}

	return &integration.QueryResult{Items: []integration.Item{*item}}, nil
}

func isAntiBotChallenge(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range antiBotMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
