package domain

import "time"

// SourceType classifies where a piece of evidence came from.
type SourceType string

const (
	SourceBlog      SourceType = "blog"
	SourceEcommerce SourceType = "ecommerce"
	SourceYouTube   SourceType = "youtube"
)

// Valid reports whether the type is one of the known source kinds.
func (t SourceType) Valid() bool {
	switch t {
	case SourceBlog, SourceEcommerce, SourceYouTube:
		return true
	default:
		return false
	}
}

// SentimentBreakdown counts review samples by tone.
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
	Mixed    int `json:"mixed"`
}

// EcommerceOverview is storefront metadata recovered from a product listing.
type EcommerceOverview struct {
	Site                string              `json:"site,omitempty"`
	ProductTitle        string              `json:"productTitle,omitempty"`
	Price               *float64            `json:"price,omitempty"`
	Currency            string              `json:"currency,omitempty"`
	OverallRating       *float64            `json:"overallRating,omitempty"`
	RatingsCount        *int                `json:"ratingsCount,omitempty"`
	ReviewsCount        *int                `json:"reviewsCount,omitempty"`
	ReviewSampleCount   *int                `json:"reviewSampleCount,omitempty"`
	AverageReviewRating *float64            `json:"averageReviewRating,omitempty"`
	SentimentBreakdown  *SentimentBreakdown `json:"sentimentBreakdown,omitempty"`
}

// ScrapedSource is one retrieved page. URL is unique within an acquisition run.
type ScrapedSource struct {
	URL      string             `json:"url"`
	Title    string             `json:"title"`
	Type     SourceType         `json:"type"`
	Content  string             `json:"content"`
	Overview *EcommerceOverview `json:"overview,omitempty"`
}

// NormalizedSource is a scraped source whose content is in the base language when possible.
type NormalizedSource struct {
	ScrapedSource
	OriginalLanguageCode string `json:"originalLanguageCode"`
	TranslatedToEnglish  bool   `json:"translatedToEnglish"`
}

// ReviewEvidence summarises how much first-hand buyer evidence a source set carries.
type ReviewEvidence struct {
	TotalSources          int      `json:"totalSources"`
	EcommerceSourceCount  int      `json:"ecommerceSourceCount"`
	EcommerceDomains      []string `json:"ecommerceDomains"`
	ReviewSignalCount     int      `json:"reviewSignalCount"`
	HasUserReviewEvidence bool     `json:"hasUserReviewEvidence"`
}

// EvidencePolicy tunes the strict evidence gate.
type EvidencePolicy struct {
	Enabled             bool
	MinEcommerceSources int
	MinReviewSignals    int
}

// Verdict is the final buying recommendation.
type Verdict string

const (
	VerdictBuy  Verdict = "buy"
	VerdictSkip Verdict = "skip"
	VerdictWait Verdict = "wait"
)

// ParseVerdict maps free text to a verdict.
func ParseVerdict(value string) (Verdict, bool) {
	switch Verdict(value) {
	case VerdictBuy, VerdictSkip, VerdictWait:
		return Verdict(value), true
	default:
		return "", false
	}
}

// ReviewSource is a citation attached to a synthesized review.
type ReviewSource struct {
	Title string     `json:"title"`
	URL   string     `json:"url"`
	Type  SourceType `json:"type"`
	*EcommerceOverview
}

// SynthesizedReview is the structured verdict produced from the evidence.
type SynthesizedReview struct {
	Verdict         Verdict        `json:"verdict"`
	Pros            []string       `json:"pros"`
	Cons            []string       `json:"cons"`
	BestFor         string         `json:"bestFor"`
	Summary         string         `json:"summary"`
	TLDR            string         `json:"tldr"`
	ConfidenceScore float64        `json:"confidenceScore"`
	Sources         []ReviewSource `json:"sources"`
}

// Review bounds.
const (
	MaxListItems     = 5
	MinSummaryLength = 100
	MaxSummaryLength = 2000
	MinTLDRLength    = 30
	MaxTLDRLength    = 500
)

// LocalizedReview is a synthesized review rendered for one output language.
type LocalizedReview struct {
	Review          SynthesizedReview `json:"review"`
	LanguageCode    string            `json:"languageCode"`
	TTSLanguageCode string            `json:"ttsLanguageCode"`
	AudioURL        *string           `json:"audioUrl"`
	DurationSeconds *float64          `json:"durationSeconds"`
}

// CachedReview is the base-language cache entry keyed by product slug.
type CachedReview struct {
	SynthesizedReview
	ReviewID  int64 `json:"reviewId"`
	ProductID int64 `json:"productId"`
}

// CachedLocalized is the per-language cache entry.
type CachedLocalized struct {
	Review          SynthesizedReview `json:"review"`
	AudioURL        *string           `json:"audioUrl"`
	DurationSeconds *float64          `json:"durationSeconds"`
	TTSLanguageCode string            `json:"ttsLanguageCode"`
}

// Product is the persisted catalogue row.
type Product struct {
	ID         int64
	Brand      string
	Model      string
	Slug       string
	PriceRange string
	IsTrending bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName joins brand and model for user-facing suggestions.
func (p Product) DisplayName() string {
	switch {
	case p.Brand == "":
		return p.Model
	case p.Model == "":
		return p.Brand
	default:
		return p.Brand + " " + p.Model
	}
}

// ReviewTranslation persists a localized summary for a stored review.
type ReviewTranslation struct {
	ReviewID     int64
	LanguageCode string
	Summary      string
	TLDR         string
	AudioURL     string
}

// QueryLog is an audit row for one handled query.
type QueryLog struct {
	IPHash       string
	Transcript   string
	LanguageCode string
	Intent       string
	ProductID    *int64
	CacheHit     bool
	LatencyMs    int64
}

// AudioAsset is narrated audio kept in the relational store.
type AudioAsset struct {
	AudioKey        string
	ReviewID        *int64
	LanguageCode    string
	MimeType        string
	Data            []byte
	ByteSize        int
	DurationSeconds *float64
}
