package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

const entitySystemPrompt = `You are a product entity extractor. Return ONLY JSON with shape ` +
	`{"intent":"product_review"|"unsupported","brand":"string|null","model":"string|null","variant":"string|null"}. ` +
	`If the query is not asking for a review, opinion, or comparison of a purchasable product, return ` +
	`{"intent":"unsupported","brand":null,"model":null,"variant":null}.`

type entityResponse struct {
	Intent  string  `json:"intent"`
	Brand   *string `json:"brand"`
	Model   *string `json:"model"`
	Variant *string `json:"variant"`
}

// EntityResolver turns a transcript into a product and its canonical slug.
type EntityResolver struct {
	chat     ports.ChatClient
	cache    ports.ReviewCache
	products ports.ProductRepository
	logger   *slog.Logger
}

// NewEntityResolver wires the resolver. cache and products may be nil.
func NewEntityResolver(chat ports.ChatClient, cache ports.ReviewCache, products ports.ProductRepository, logger *slog.Logger) *EntityResolver {
	return &EntityResolver{chat: chat, cache: cache, products: products, logger: logger}
}

// Extract classifies the query and names the product it is about.
func (r *EntityResolver) Extract(ctx context.Context, query string) (domain.ExtractedEntity, error) {
	content, err := r.chat.Complete(ctx, domain.ChatRequest{
		Temperature: 0.1,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: entitySystemPrompt},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return domain.ExtractedEntity{}, fmt.Errorf("extract entity: %w", err)
	}

	raw, err := firstJSONObject(content)
	if err != nil {
		return domain.ExtractedEntity{}, fmt.Errorf("extract entity: %w", err)
	}

	var resp entityResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return domain.ExtractedEntity{}, fmt.Errorf("decode entity: %w", err)
	}
	return buildEntity(resp, query)
}

func buildEntity(resp entityResponse, query string) (domain.ExtractedEntity, error) {
	switch domain.Intent(resp.Intent) {
	case domain.IntentUnsupported:
		return domain.ExtractedEntity{Intent: domain.IntentUnsupported}, nil
	case domain.IntentProductReview:
	default:
		return domain.ExtractedEntity{}, fmt.Errorf("decode entity: unknown intent %q", resp.Intent)
	}

	brand := trimmedPtr(resp.Brand)
	model := trimmedPtr(resp.Model)
	variant := trimmedPtr(resp.Variant)

	var parts []string
	for _, p := range []*string{brand, model, variant} {
		if p != nil {
			parts = append(parts, *p)
		}
	}
	name := strings.Join(parts, " ")

	slug := domain.ToSlug(name)
	if name == "" {
		slug = domain.ToSlug(query)
	}

	return domain.ExtractedEntity{
		Intent:      domain.IntentProductReview,
		Brand:       brand,
		Model:       model,
		Variant:     variant,
		Slug:        domain.StringPtr(slug),
		ProductName: domain.StringPtr(name),
	}, nil
}

// ResolveCanonicalSlug prefers a remembered alias for the transcript, then a
// stored product with the extracted slug, then the extracted slug itself.
func (r *EntityResolver) ResolveCanonicalSlug(ctx context.Context, transcript, extractedSlug string) string {
	if r.cache != nil {
		alias, err := r.cache.GetAlias(ctx, domain.ToSlug(transcript))
		if err != nil {
			r.debug("alias lookup failed", "error", err)
		} else if alias != "" {
			return alias
		}
	}

	if r.products != nil {
		product, err := r.products.GetBySlug(ctx, extractedSlug)
		if err != nil {
			r.warn("product lookup failed", "slug", extractedSlug, "error", err)
		} else if product != nil {
			return product.Slug
		}
	}

	return extractedSlug
}

// RememberAlias maps the transcript to slug so a repeated query resolves the same way.
func (r *EntityResolver) RememberAlias(ctx context.Context, transcript, slug string) {
	if r.cache == nil {
		return
	}
	key := domain.ToSlug(transcript)
	if key == "" || key == slug {
		return
	}
	if err := r.cache.SetAlias(ctx, key, slug); err != nil {
		r.debug("alias write failed", "error", err)
	}
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return domain.StringPtr(*s)
}

func (r *EntityResolver) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *EntityResolver) warn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
