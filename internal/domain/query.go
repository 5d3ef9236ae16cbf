package domain

import "strings"

// QueryInput is one caller request as accepted by the transport.
type QueryInput struct {
	CallerHash string
	Text       string
	Audio      []byte
	// InputError is set when the request body could not be turned into a query.
	InputError error
}

// HasAudio reports whether the query should go through speech recognition.
func (q QueryInput) HasAudio() bool {
	return len(q.Audio) > 0
}

// Intent classifies what the caller asked for.
type Intent string

const (
	IntentProductReview Intent = "product_review"
	IntentUnsupported   Intent = "unsupported"
)

// ExtractedEntity is the product the caller is asking about.
type ExtractedEntity struct {
	Intent      Intent
	Brand       *string
	Model       *string
	Variant     *string
	Slug        *string
	ProductName *string
}

// Supported reports whether the entity names a reviewable product.
func (e ExtractedEntity) Supported() bool {
	return e.Intent == IntentProductReview && e.Slug != nil && *e.Slug != ""
}

// Name returns the product name or an empty string.
func (e ExtractedEntity) Name() string {
	if e.ProductName == nil {
		return ""
	}
	return *e.ProductName
}

// Transcription is the speech recognizer's output.
type Transcription struct {
	Transcript          string
	LanguageCode        string
	LanguageProbability *float64
}

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a chat completion call.
type ChatRequest struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []ChatMessage
}

// SearchHit is a single web search result.
type SearchHit struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ScrapedPage is the retrieved body of one URL.
type ScrapedPage struct {
	URL      string
	Title    string
	Markdown string
	HTML     string
}

// StringPtr returns a pointer to a trimmed copy of s or nil when it is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
