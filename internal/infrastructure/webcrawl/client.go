package webcrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	cb "github.com/sony/gobreaker"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

// ErrEmptyPage is returned when a retrieved page carries no main content.
var ErrEmptyPage = errors.New("scraped page has no content")

// Client implements ports.WebSearcher against a search-and-scrape API.
// Every call passes through one circuit breaker so a failing provider is
// skipped quickly instead of stalling each category.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *cb.CircuitBreaker
	logger  *slog.Logger
}

var _ ports.WebSearcher = (*Client)(nil)

// NewClient wires the HTTP client and breaker from configuration.
func NewClient(cfg config.WebSearchConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	settings := cb.Settings{
		Name:        "webcrawl",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts cb.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to cb.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			}
		},
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		breaker: cb.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

type searchRequest struct {
	Query   string   `json:"query"`
	Limit   int      `json:"limit"`
	Sources []string `json:"sources"`
}

type searchResponse struct {
	Data json.RawMessage `json:"data"`
}

// Search runs a web search and returns at most limit hits.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	var resp searchResponse
	err := c.post(ctx, "/v2/search", searchRequest{Query: query, Limit: limit, Sources: []string{"web"}}, &resp)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	hits, err := decodeHits(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// decodeHits accepts both a bare array and an object with a "web" array.
func decodeHits(raw json.RawMessage) ([]domain.SearchHit, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var hits []domain.SearchHit
	if err := json.Unmarshal(raw, &hits); err == nil {
		return hits, nil
	}

	var grouped struct {
		Web []domain.SearchHit `json:"web"`
	}
	if err := json.Unmarshal(raw, &grouped); err != nil {
		return nil, fmt.Errorf("decode search hits: %w", err)
	}
	return grouped.Web, nil
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Data struct {
		Markdown string `json:"markdown"`
		HTML     string `json:"html"`
		Metadata struct {
			Title     string `json:"title"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

// Scrape retrieves the main content of one page as markdown plus raw HTML.
func (c *Client) Scrape(ctx context.Context, url string) (domain.ScrapedPage, error) {
	var resp scrapeResponse
	err := c.post(ctx, "/v2/scrape", scrapeRequest{
		URL:             url,
		Formats:         []string{"markdown", "html"},
		OnlyMainContent: true,
	}, &resp)
	if err != nil {
		return domain.ScrapedPage{}, fmt.Errorf("scrape %s: %w", url, err)
	}

	if strings.TrimSpace(resp.Data.Markdown) == "" && strings.TrimSpace(resp.Data.HTML) == "" {
		return domain.ScrapedPage{}, fmt.Errorf("scrape %s: %w", url, ErrEmptyPage)
	}

	finalURL := resp.Data.Metadata.SourceURL
	if finalURL == "" {
		finalURL = url
	}

	return domain.ScrapedPage{
		URL:      finalURL,
		Title:    strings.TrimSpace(resp.Data.Metadata.Title),
		Markdown: resp.Data.Markdown,
		HTML:     resp.Data.HTML,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	if c.apiKey == "" {
		return fmt.Errorf("web search client misconfigured: missing api key")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
		}

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return nil, nil
	})
	return err
}
