package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
)

func TestFirstJSONObject(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`},
		{"brace in string", `note: {"text":"use } carefully"} trailing {}`, `{"text":"use } carefully"}`},
		{"escaped quote", `{"text":"say \"}\" now"}`, `{"text":"say \"}\" now"}`},
	}
	for _, tc := range cases {
		got, err := firstJSONObject(tc.raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}

	if _, err := firstJSONObject("no object {"); !errors.Is(err, errNoJSONObject) {
		t.Fatalf("expected errNoJSONObject, got %v", err)
	}
}

func TestRateGovernor(t *testing.T) {
	t.Parallel()

	counter := &fakeCounter{ttl: time.Hour}
	gov := NewRateGovernor(counter, config.RateLimitConfig{DailyQuota: 2}, true)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	gov.now = func() time.Time { return now }

	for i, want := range []struct {
		allowed   bool
		remaining int64
	}{{true, 1}, {true, 0}, {false, 0}} {
		got, err := gov.Check(context.Background(), "abc")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if got.Allowed != want.allowed || got.Remaining != want.remaining {
			t.Fatalf("check %d: unexpected decision %+v", i, got)
		}
		if !got.ResetAt.Equal(now.Add(time.Hour)) {
			t.Fatalf("check %d: unexpected reset %v", i, got.ResetAt)
		}
	}
	if counter.callers[0] != "abc" {
		t.Fatalf("unexpected caller: %s", counter.callers[0])
	}
}

func TestRateGovernorBypassOutsideProduction(t *testing.T) {
	t.Parallel()

	counter := &fakeCounter{err: errors.New("must not be called")}
	got, err := NewRateGovernor(counter, config.RateLimitConfig{}, false).Check(context.Background(), "abc")
	if err != nil || !got.Allowed || got.Remaining != 5 {
		t.Fatalf("unexpected decision %+v err %v", got, err)
	}
}

func TestRateGovernorCounterError(t *testing.T) {
	t.Parallel()

	counter := &fakeCounter{err: errors.New("redis down")}
	if _, err := NewRateGovernor(counter, config.RateLimitConfig{}, true).Check(context.Background(), "abc"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEntityExtract(t *testing.T) {
	t.Parallel()

	var captured domain.ChatRequest
	chat := chatFunc(func(req domain.ChatRequest) (string, error) {
		captured = req
		return "```json\n{\"intent\":\"product_review\",\"brand\":\" Apple \",\"model\":\"iPhone 16\",\"variant\":\"Pro Max\"}\n```", nil
	})

	entity, err := NewEntityResolver(chat, nil, nil, nil).Extract(context.Background(), "iphone 16 pro max kaisa hai")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if captured.Temperature != 0.1 {
		t.Fatalf("unexpected temperature %v", captured.Temperature)
	}
	if !entity.Supported() || *entity.Slug != "apple-iphone-16-pro-max" || entity.Name() != "Apple iPhone 16 Pro Max" {
		t.Fatalf("unexpected entity: %+v", entity)
	}
	if *entity.Brand != "Apple" {
		t.Fatalf("brand should be trimmed: %q", *entity.Brand)
	}
}

func TestEntityExtractUnsupportedAndInvalid(t *testing.T) {
	t.Parallel()

	unsupported := chatFunc(func(domain.ChatRequest) (string, error) {
		return `{"intent":"unsupported","brand":null,"model":null,"variant":null}`, nil
	})
	entity, err := NewEntityResolver(unsupported, nil, nil, nil).Extract(context.Background(), "hello")
	if err != nil || entity.Supported() || entity.Intent != domain.IntentUnsupported {
		t.Fatalf("unexpected entity %+v err %v", entity, err)
	}

	unknown := chatFunc(func(domain.ChatRequest) (string, error) {
		return `{"intent":"shopping"}`, nil
	})
	if _, err := NewEntityResolver(unknown, nil, nil, nil).Extract(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for unknown intent")
	}

	prose := chatFunc(func(domain.ChatRequest) (string, error) { return "I cannot help", nil })
	if _, err := NewEntityResolver(prose, nil, nil, nil).Extract(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for missing JSON")
	}
}

func TestEntityExtractFallsBackToQuerySlug(t *testing.T) {
	t.Parallel()

	chat := chatFunc(func(domain.ChatRequest) (string, error) {
		return `{"intent":"product_review","brand":null,"model":"  ","variant":null}`, nil
	})
	entity, err := NewEntityResolver(chat, nil, nil, nil).Extract(context.Background(), "Best earbuds?")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if *entity.Slug != "best-earbuds" || entity.Name() != "" {
		t.Fatalf("unexpected entity: %+v", entity)
	}
}

func TestResolveCanonicalSlug(t *testing.T) {
	t.Parallel()

	cache := newMemCache()
	products := &fakeProducts{bySlug: map[string]domain.Product{
		"samsung-galaxy-s24": {Slug: "samsung-galaxy-s24"},
	}}
	resolver := NewEntityResolver(nil, cache, products, nil)
	ctx := context.Background()

	if got := resolver.ResolveCanonicalSlug(ctx, "galaxy s24", "samsung-galaxy-s24"); got != "samsung-galaxy-s24" {
		t.Fatalf("stored product should win: %s", got)
	}
	if got := resolver.ResolveCanonicalSlug(ctx, "pixel 9", "google-pixel-9"); got != "google-pixel-9" {
		t.Fatalf("extracted slug should be kept: %s", got)
	}

	resolver.RememberAlias(ctx, "s24 review", "samsung-galaxy-s24")
	if got := resolver.ResolveCanonicalSlug(ctx, "S24 Review", "samsung-s24"); got != "samsung-galaxy-s24" {
		t.Fatalf("alias should win: %s", got)
	}

	resolver.RememberAlias(ctx, "google pixel 9", "google-pixel-9")
	if _, ok := cache.aliases["google-pixel-9"]; ok {
		t.Fatalf("alias equal to slug should not be stored")
	}
}

func TestResolveCanonicalSlugStoreError(t *testing.T) {
	t.Parallel()

	resolver := NewEntityResolver(nil, nil, &fakeProducts{err: errors.New("db down")}, nil)
	if got := resolver.ResolveCanonicalSlug(context.Background(), "x", "oneplus-12"); got != "oneplus-12" {
		t.Fatalf("store error should keep extracted slug: %s", got)
	}
}

func TestQueryLanguageDetector(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := NewQueryLanguageDetector(nil, nil).Detect(ctx, "நல்ல போன்"); got != "ta-IN" {
		t.Fatalf("expected Tamil from script, got %s", got)
	}
	remote := detectorFunc(func(string) (string, error) { return "ur-IN", nil })
	if got := NewQueryLanguageDetector(remote, nil).Detect(ctx, "acha phone"); got != "ur-IN" {
		t.Fatalf("expected remote answer, got %s", got)
	}
	for _, text := range []string{
		"iPhone 16 Pro’s camera review",
		"Samsung Galaxy S24 – worth it?",
		"café machine review",
	} {
		if got := NewQueryLanguageDetector(nil, nil).Detect(ctx, text); got != domain.BaseLanguage {
			t.Fatalf("Detect(%q) = %s, want base language", text, got)
		}
	}
	down := detectorFunc(func(string) (string, error) { return "", errors.New("timeout") })
	if got := NewQueryLanguageDetector(down, nil).Detect(ctx, "Redmi Note 15 ka review"); got != domain.BaseLanguage {
		t.Fatalf("failed remote detection should fall back to base, got %s", got)
	}
	bogus := detectorFunc(func(string) (string, error) { return "fr-FR", nil })
	if got := NewQueryLanguageDetector(bogus, nil).Detect(ctx, "bon telephone"); got != domain.BaseLanguage {
		t.Fatalf("unsupported remote answer should fall back, got %s", got)
	}
}

type detectorFunc func(text string) (string, error)

func (f detectorFunc) DetectLanguage(_ context.Context, text string) (string, error) {
	return f(text)
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	chat := chatFunc(func(req domain.ChatRequest) (string, error) {
		if req.Temperature != 0 {
			return "", errors.New("expected deterministic translation")
		}
		return " सीमा पूरी हुई ", nil
	})

	if got := NewErrorMessages(chat).Message(ctx, domain.ErrRateLimited, "hi-IN"); got != "सीमा पूरी हुई" {
		t.Fatalf("unexpected translation: %q", got)
	}
	if got := NewErrorMessages(chat).Message(ctx, domain.ErrRateLimited, domain.BaseLanguage); got != domain.ErrRateLimited.Message() {
		t.Fatalf("base language should not translate: %q", got)
	}
	failing := chatFunc(func(domain.ChatRequest) (string, error) { return "", errors.New("down") })
	if got := NewErrorMessages(failing).Message(ctx, domain.ErrNoReviews, "ta-IN"); got != domain.ErrNoReviews.Message() {
		t.Fatalf("failure should fall back to English: %q", got)
	}
	var nilMessages *ErrorMessages
	if got := nilMessages.Message(ctx, domain.ErrSTTFailed, "ta-IN"); got != domain.ErrSTTFailed.Message() {
		t.Fatalf("nil messages should fall back to English: %q", got)
	}
}
