package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"sunkelo/internal/domain"
)

type chatFunc func(req domain.ChatRequest) (string, error)

func (f chatFunc) Complete(_ context.Context, req domain.ChatRequest) (string, error) {
	return f(req)
}

func systemPrompt(req domain.ChatRequest) string {
	for _, m := range req.Messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

// routedChat answers each pipeline prompt with a canned response.
type routedChat struct {
	mu        sync.Mutex
	entity    string
	synthesis string
	textForm  string
	narration string
	err       error
	calls     map[string]int
}

func (c *routedChat) Complete(_ context.Context, req domain.ChatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}

	prompt := systemPrompt(req)
	switch {
	case prompt == entitySystemPrompt:
		c.calls["entity"]++
		return c.entity, c.err
	case prompt == synthesisSystemPrompt:
		c.calls["synthesis"]++
		return c.synthesis, c.err
	case prompt == textFormatSystemPrompt:
		c.calls["text"]++
		return c.textForm, c.err
	case strings.Contains(prompt, "audio script"):
		c.calls["narration"]++
		if c.narration == "" {
			return "", errors.New("no narration")
		}
		return c.narration, nil
	default:
		c.calls["other"]++
		return "", errors.New("unexpected prompt")
	}
}

func (c *routedChat) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[kind]
}

type memCache struct {
	mu        sync.Mutex
	reviews   map[string]domain.CachedReview
	localized map[string]domain.CachedLocalized
	aliases   map[string]string
}

func newMemCache() *memCache {
	return &memCache{
		reviews:   map[string]domain.CachedReview{},
		localized: map[string]domain.CachedLocalized{},
		aliases:   map[string]string{},
	}
}

func (c *memCache) GetReview(_ context.Context, slug string) (*domain.CachedReview, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.reviews[slug]; ok {
		return &v, nil
	}
	return nil, nil
}

func (c *memCache) SetReview(_ context.Context, slug string, review domain.CachedReview) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reviews[slug] = review
	return nil
}

func (c *memCache) GetLocalized(_ context.Context, slug, lang string) (*domain.CachedLocalized, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.localized[slug+":"+lang]; ok {
		return &v, nil
	}
	return nil, nil
}

func (c *memCache) SetLocalized(_ context.Context, slug, lang string, entry domain.CachedLocalized) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.localized[slug+":"+lang] = entry
	return nil
}

func (c *memCache) GetAlias(_ context.Context, transcriptSlug string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aliases[transcriptSlug], nil
}

func (c *memCache) SetAlias(_ context.Context, transcriptSlug, slug string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aliases[transcriptSlug] = slug
	return nil
}

type fakeCounter struct {
	mu      sync.Mutex
	count   int64
	ttl     time.Duration
	err     error
	callers []string
}

func (f *fakeCounter) Increment(_ context.Context, callerHash string, _ time.Duration) (int64, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	f.callers = append(f.callers, callerHash)
	f.count++
	return f.count, f.ttl, nil
}

type fakeProducts struct {
	mu       sync.Mutex
	bySlug   map[string]domain.Product
	trending []domain.Product
	upserted []domain.Product
	err      error
}

func (f *fakeProducts) GetBySlug(_ context.Context, slug string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.bySlug[slug]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeProducts) UpsertBySlug(_ context.Context, product domain.Product) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.upserted = append(f.upserted, product)
	return int64(len(f.upserted)), nil
}

func (f *fakeProducts) ListTrending(_ context.Context, limit int) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.trending[:min(limit, len(f.trending))], nil
}

type fakeReviews struct {
	mu           sync.Mutex
	created      []domain.SynthesizedReview
	translations []domain.ReviewTranslation
}

func (f *fakeReviews) CreateReview(_ context.Context, _ int64, _ string, review domain.SynthesizedReview) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, review)
	return int64(100 + len(f.created)), nil
}

func (f *fakeReviews) UpsertTranslation(_ context.Context, translation domain.ReviewTranslation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.translations = append(f.translations, translation)
	return nil
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []domain.QueryLog
}

func (f *fakeLogs) InsertLog(_ context.Context, entry domain.QueryLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	sources []domain.ScrapedSource
	err     error
	calls   int
}

func (f *fakeSource) Acquire(context.Context, string) ([]domain.ScrapedSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.sources, f.err
}

// fakeTranslator tags text with the target language unless it is told to fail.
type fakeTranslator struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeTranslator) Translate(ctx context.Context, text, source, target string) (string, error) {
	return f.TranslateLong(ctx, text, source, target)
}

func (f *fakeTranslator) TranslateLong(_ context.Context, text, source, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, source+">"+target)
	if f.err != nil {
		return "", f.err
	}
	return "[" + target + "] " + text, nil
}

type fakeTTS struct {
	mu        sync.Mutex
	err       error
	languages []string
	scripts   []string
}

func (f *fakeTTS) Synthesize(_ context.Context, text, languageCode string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages = append(f.languages, languageCode)
	f.scripts = append(f.scripts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("RIFF-audio"), nil
}

type fakeBlobs struct {
	mu   sync.Mutex
	err  error
	keys []string
}

func (f *fakeBlobs) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

type fakeSTT struct {
	result domain.Transcription
	err    error
	panics bool
}

func (f *fakeSTT) Transcribe(context.Context, []byte) (domain.Transcription, error) {
	if f.panics {
		panic("decoder crashed")
	}
	return f.result, f.err
}

func sampleSources() []domain.ScrapedSource {
	return []domain.ScrapedSource{
		{
			URL:     "https://www.amazon.in/dp/B0TEST",
			Title:   "Redmi Note 15 on Amazon",
			Type:    domain.SourceEcommerce,
			Content: "Customer reviews: battery lasts two days. Verified Purchase. Value for money.",
		},
		{
			URL:     "https://www.flipkart.com/redmi-note-15/p/itm1",
			Title:   "Redmi Note 15 on Flipkart",
			Type:    domain.SourceEcommerce,
			Content: "4.3 ratings from buyers, delivery was quick and build quality is fine.",
		},
		{
			URL:     "https://www.gsmarena.com/redmi_note_15-review.php",
			Title:   "Redmi Note 15 review",
			Type:    domain.SourceBlog,
			Content: "The display is bright and the camera is average in low light.",
		},
	}
}

const sampleReviewJSON = `Here you go:
{"verdict":"buy","pros":["Two-day battery","Bright display"],"cons":["Average low-light camera"],
"bestFor":"Budget buyers who want battery life",
"summary":"Buyers on Amazon and Flipkart praise the battery and the display, while expert reviews point at a camera that struggles in low light. Overall it is a safe budget pick.",
"tldr":"Great battery and screen for the price, weak night camera.",
"confidenceScore":0.82,
"sources":[{"title":"Amazon listing","url":"https://www.amazon.in/dp/B0TEST","type":"blog"}]}`
