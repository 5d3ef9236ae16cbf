package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
	"sunkelo/internal/scanner"
)

// TrustedScannerName is the registry key of TrustedScanner.
const TrustedScannerName = "trusted-search"

const defaultCategoryLimit = 3

// TrustedScanner searches one category's allow-listed domains and retrieves the
// best-looking review pages.
type TrustedScanner struct {
	web    ports.WebSearcher
	logger *slog.Logger
}

var _ scanner.Scanner = (*TrustedScanner)(nil)

// NewTrustedScanner wires a web searcher.
func NewTrustedScanner(web ports.WebSearcher, logger *slog.Logger) *TrustedScanner {
	return &TrustedScanner{web: web, logger: logger}
}

// Name identifies the strategy inside the registry.
func (s *TrustedScanner) Name() string {
	return TrustedScannerName
}

// Scan searches, filters to trusted domains, and retrieves up to Limit pages.
// Pages that fail to load are skipped; only a failed search fails the scan.
func (s *TrustedScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.ScrapedSource, error) {
	cat := req.Category
	if len(cat.Domains) == 0 {
		return nil, fmt.Errorf("category %s has no trusted domains", cat.Name)
	}
	limit := cat.Limit
	if limit <= 0 {
		limit = defaultCategoryLimit
	}

	hits, err := s.search(ctx, req.Product, cat, limit)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", cat.Name, err)
	}

	candidates := PreferReviewHits(FilterTrusted(hits, cat.Domains), cat.Type)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	s.debug("category candidates", "category", cat.Name, "hits", len(hits), "candidates", len(candidates))

	return s.retrieve(ctx, req.Product, cat, candidates), nil
}

// search runs the primary query and, only when it returns nothing, the
// broadened fallbacks. Results are merged and deduplicated by URL.
func (s *TrustedScanner) search(ctx context.Context, product string, cat scanner.Category, limit int) ([]domain.SearchHit, error) {
	searchLimit := limit * 2
	queries := BuildQueries(product, cat)

	hits, err := s.web.Search(ctx, queries[0], searchLimit)
	if err != nil {
		return nil, err
	}
	if len(FilterTrusted(hits, cat.Domains)) > 0 {
		return hits, nil
	}

	seen := map[string]struct{}{}
	merged := make([]domain.SearchHit, 0, searchLimit)
	for _, hit := range hits {
		seen[hit.URL] = struct{}{}
		merged = append(merged, hit)
	}

	for _, query := range queries[1:] {
		more, err := s.web.Search(ctx, query, searchLimit)
		if err != nil {
			s.debug("fallback query failed", "category", cat.Name, "query", query, "error", err)
			continue
		}
		for _, hit := range more {
			if _, ok := seen[hit.URL]; ok {
				continue
			}
			seen[hit.URL] = struct{}{}
			merged = append(merged, hit)
		}
	}

	return merged, nil
}

// BuildQueries returns the primary query followed by up to three distinct fallbacks.
func BuildQueries(product string, cat scanner.Category) []string {
	sites := make([]string, 0, len(cat.Domains))
	for _, d := range cat.Domains {
		sites = append(sites, "site:"+d)
	}
	siteFilter := strings.Join(sites, " OR ")

	hint := strings.TrimSpace(cat.QueryHint)
	if hint == "" {
		hint = "review"
	}

	candidates := []string{
		fmt.Sprintf("%q %s %s", product, hint, siteFilter),
		fmt.Sprintf("%q review %s", product, siteFilter),
		fmt.Sprintf("%s %s %s", product, hint, siteFilter),
		fmt.Sprintf("%s reviews", product),
	}

	queries := make([]string, 0, len(candidates))
	seen := map[string]struct{}{}
	for _, q := range candidates {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}

func (s *TrustedScanner) retrieve(ctx context.Context, product string, cat scanner.Category, hits []domain.SearchHit) []domain.ScrapedSource {
	results := make([]*domain.ScrapedSource, len(hits))

	var wg sync.WaitGroup
	for i, hit := range hits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			source, err := s.retrieveOne(ctx, product, cat, hit)
			if err != nil {
				s.debug("skip source", "category", cat.Name, "url", hit.URL, "error", err)
				return
			}
			results[i] = source
		}()
	}
	wg.Wait()

	seen := map[string]struct{}{}
	sources := make([]domain.ScrapedSource, 0, len(results))
	for _, source := range results {
		if source == nil {
			continue
		}
		if _, ok := seen[source.URL]; ok {
			continue
		}
		seen[source.URL] = struct{}{}
		sources = append(sources, *source)
	}
	return sources
}

func (s *TrustedScanner) retrieveOne(ctx context.Context, product string, cat scanner.Category, hit domain.SearchHit) (*domain.ScrapedSource, error) {
	page, err := s.web.Scrape(ctx, hit.URL)
	if err != nil {
		return nil, err
	}

	finalURL := page.URL
	if finalURL == "" {
		finalURL = hit.URL
	}
	if !domain.IsTrustedURL(finalURL, cat.Domains) {
		return nil, fmt.Errorf("retrieved url %s left the trusted domains", finalURL)
	}

	raw := page.Markdown
	if strings.TrimSpace(raw) == "" {
		raw = HTMLText(page.HTML)
	}
	content := CleanMarkdown(raw)
	if content == "" {
		return nil, fmt.Errorf("no usable content")
	}

	title := firstNonEmpty(page.Title, hit.Title, product)
	source := &domain.ScrapedSource{
		URL:     finalURL,
		Title:   title,
		Type:    cat.Type,
		Content: content,
	}
	if cat.Type == domain.SourceEcommerce {
		source.Overview = ExtractEcommerceOverview(finalURL, title, content, page.HTML)
	}
	return source, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (s *TrustedScanner) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
