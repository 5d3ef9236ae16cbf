package usecase

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

const normalizeConcurrency = 4

var errNoTranslator = errors.New("translator is not configured")

// SourceNormalizer brings source content into the base language.
type SourceNormalizer struct {
	translator ports.Translator
	logger     *slog.Logger
}

// NewSourceNormalizer wires a translator. translator may be nil, in which case
// non-base sources are kept untranslated.
func NewSourceNormalizer(translator ports.Translator, logger *slog.Logger) *SourceNormalizer {
	return &SourceNormalizer{translator: translator, logger: logger}
}

// Normalize translates every non-base source concurrently. A failed translation
// keeps the original content and is reported as degraded; it never fails the batch.
func (n *SourceNormalizer) Normalize(ctx context.Context, sources []domain.ScrapedSource) []domain.Result[domain.NormalizedSource] {
	results := make([]domain.Result[domain.NormalizedSource], len(sources))

	var g errgroup.Group
	g.SetLimit(normalizeConcurrency)
	for i, source := range sources {
		g.Go(func() error {
			results[i] = n.normalizeOne(ctx, source)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// NormalizedValues unwraps usable results and counts degraded ones.
func NormalizedValues(results []domain.Result[domain.NormalizedSource]) ([]domain.NormalizedSource, int) {
	out := make([]domain.NormalizedSource, 0, len(results))
	degraded := 0
	for _, r := range results {
		if !r.Usable() {
			continue
		}
		if r.Outcome == domain.OutcomeDegraded {
			degraded++
		}
		out = append(out, r.Value)
	}
	return out, degraded
}

func (n *SourceNormalizer) normalizeOne(ctx context.Context, source domain.ScrapedSource) domain.Result[domain.NormalizedSource] {
	lang := domain.DetectScriptLanguage(source.Content)
	normalized := domain.NormalizedSource{ScrapedSource: source, OriginalLanguageCode: lang}
	if lang == domain.BaseLanguage {
		return domain.OK(normalized)
	}
	if n.translator == nil {
		return domain.Degraded(normalized, errNoTranslator)
	}

	translated, err := n.translator.TranslateLong(ctx, source.Content, lang, domain.BaseLanguage)
	if err != nil {
		if n.logger != nil {
			n.logger.Warn("source translation failed", "url", source.URL, "language", lang, "error", err)
		}
		return domain.Degraded(normalized, err)
	}

	normalized.Content = translated
	normalized.TranslatedToEnglish = true
	return domain.OK(normalized)
}
