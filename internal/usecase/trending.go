package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sunkelo/internal/ports"
)

const trendingLimit = 5

// DefaultSuggestions are offered when the catalogue has no trending products yet.
var DefaultSuggestions = []string{"Redmi Note 15", "MacBook Air M3", "Sony WH-1000XM5"}

// TrendingSuggestions keeps a short, periodically refreshed list of product names.
type TrendingSuggestions struct {
	products ports.ProductRepository
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	names    []string
	loadedAt time.Time
}

var _ ports.TrendingSource = (*TrendingSuggestions)(nil)

// NewTrendingSuggestions wires the product store. products may be nil.
func NewTrendingSuggestions(products ports.ProductRepository, ttl time.Duration, logger *slog.Logger) *TrendingSuggestions {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TrendingSuggestions{products: products, ttl: ttl, logger: logger, now: time.Now}
}

// Trending returns the cached list, refreshing it when stale. The list is never empty.
func (t *TrendingSuggestions) Trending(ctx context.Context) ([]string, error) {
	t.mu.RLock()
	names, loadedAt := t.names, t.loadedAt
	t.mu.RUnlock()

	if len(names) > 0 && t.now().Sub(loadedAt) < t.ttl {
		return names, nil
	}
	if err := t.Refresh(ctx); err != nil {
		if len(names) > 0 {
			return names, nil
		}
		return DefaultSuggestions, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.names, nil
}

// Refresh reloads trending products from the store.
func (t *TrendingSuggestions) Refresh(ctx context.Context) error {
	names := DefaultSuggestions
	if t.products != nil {
		products, err := t.products.ListTrending(ctx, trendingLimit)
		if err != nil {
			return fmt.Errorf("list trending: %w", err)
		}
		if len(products) > 0 {
			names = make([]string, 0, len(products))
			for _, p := range products {
				if name := p.DisplayName(); name != "" {
					names = append(names, name)
				}
			}
		}
		if len(names) == 0 {
			names = DefaultSuggestions
		}
	}

	t.mu.Lock()
	t.names = names
	t.loadedAt = t.now()
	t.mu.Unlock()

	if t.logger != nil {
		t.logger.Debug("trending suggestions refreshed", "count", len(names))
	}
	return nil
}
