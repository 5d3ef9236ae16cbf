package parser

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
	"sunkelo/internal/scanner"
)

// StrategySource implements SourceAcquirer via registered scanner strategies.
type StrategySource struct {
	registry   *scanner.Registry
	categories []config.SourceConfig
	logger     *slog.Logger
}

var _ ports.SourceAcquirer = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined source categories.
func NewStrategySource(reg *scanner.Registry, categories []config.SourceConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry:   reg,
		categories: categories,
		logger:     log,
	}
}

// Acquire runs every category concurrently. A category that fails contributes
// nothing; the others are still returned. Sources keep category order and are
// unique by URL.
func (s *StrategySource) Acquire(ctx context.Context, productName string) ([]domain.ScrapedSource, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("acquire sources", "product", productName, "categories", len(s.categories))

	perCategory := make([][]domain.ScrapedSource, len(s.categories))
	var g errgroup.Group
	for i, cat := range s.categories {
		strategy, err := s.registry.Resolve(cat.Scanner)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat.Name, err)
		}

		req := scanner.Request{
			Product:  productName,
			Category: toScannerCategory(cat),
		}

		g.Go(func() error {
			results, err := strategy.Scan(ctx, req)
			if err != nil {
				s.warn("category failed", "category", cat.Name, "error", err)
				return nil
			}
			s.debug("category produced sources", "category", cat.Name, "count", len(results))
			perCategory[i] = results
			return nil
		})
	}
	_ = g.Wait()

	seen := map[string]struct{}{}
	var aggregated []domain.ScrapedSource
	for _, results := range perCategory {
		for _, source := range results {
			if _, ok := seen[source.URL]; ok {
				continue
			}
			seen[source.URL] = struct{}{}
			aggregated = append(aggregated, source)
		}
	}

	s.debug("strategy source done", "total_sources", len(aggregated))
	return aggregated, nil
}

func toScannerCategory(cfg config.SourceConfig) scanner.Category {
	sourceType := domain.SourceType(cfg.Type)
	if !sourceType.Valid() {
		sourceType = domain.SourceBlog
	}
	return scanner.Category{
		Name:      cfg.Name,
		Type:      sourceType,
		Domains:   cfg.Domains,
		QueryHint: cfg.QueryHint,
		Limit:     cfg.Limit,
	}
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
