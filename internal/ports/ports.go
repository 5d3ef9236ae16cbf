package ports

import (
	"context"
	"time"

	"sunkelo/internal/domain"
)

// SourceAcquirer pulls trusted evidence pages for a product.
type SourceAcquirer interface {
	Acquire(ctx context.Context, productName string) ([]domain.ScrapedSource, error)
}

// WebSearcher runs web searches and retrieves page bodies.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
	Scrape(ctx context.Context, url string) (domain.ScrapedPage, error)
}

// ChatClient sends chat completion requests to an LLM API.
type ChatClient interface {
	Complete(ctx context.Context, req domain.ChatRequest) (string, error)
}

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
	// TranslateLong splits text at sentence boundaries and reassembles the translated chunks in order.
	TranslateLong(ctx context.Context, text, source, target string) (string, error)
}

// LanguageDetector identifies the language of a short text.
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// SpeechToText transcribes recorded audio.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte) (domain.Transcription, error)
}

// SpeechSynthesizer renders text as WAV audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, languageCode string) ([]byte, error)
}

// ReviewCache stores synthesized and localized reviews plus transcript aliases.
// A missing entry is reported as nil (or "") with a nil error.
type ReviewCache interface {
	GetReview(ctx context.Context, slug string) (*domain.CachedReview, error)
	SetReview(ctx context.Context, slug string, review domain.CachedReview) error
	GetLocalized(ctx context.Context, slug, languageCode string) (*domain.CachedLocalized, error)
	SetLocalized(ctx context.Context, slug, languageCode string, entry domain.CachedLocalized) error
	GetAlias(ctx context.Context, transcriptSlug string) (string, error)
	SetAlias(ctx context.Context, transcriptSlug, slug string) error
}

// RateCounter increments a per-caller windowed counter and reports its remaining lifetime.
type RateCounter interface {
	Increment(ctx context.Context, callerHash string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// ProductRepository persists the product catalogue.
type ProductRepository interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Product, error)
	UpsertBySlug(ctx context.Context, product domain.Product) (int64, error)
	ListTrending(ctx context.Context, limit int) ([]domain.Product, error)
}

// ReviewRepository persists synthesized reviews and their translations.
type ReviewRepository interface {
	CreateReview(ctx context.Context, productID int64, languageCode string, review domain.SynthesizedReview) (int64, error)
	UpsertTranslation(ctx context.Context, translation domain.ReviewTranslation) error
}

// QueryLogRepository records handled queries.
type QueryLogRepository interface {
	InsertLog(ctx context.Context, entry domain.QueryLog) error
}

// AudioAssetRepository keeps narrated audio inside the relational store.
type AudioAssetRepository interface {
	SaveAsset(ctx context.Context, asset domain.AudioAsset) error
	GetAsset(ctx context.Context, key string) (*domain.AudioAsset, error)
}

// BlobStore uploads binary objects and returns a URL they can be fetched from.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// TrendingSource lists product names to suggest when a query cannot be answered.
type TrendingSource interface {
	Trending(ctx context.Context) ([]string, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Scheduler controls when background jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
