package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sunkelo/internal/domain"
)

func normalizedSamples() []domain.NormalizedSource {
	var out []domain.NormalizedSource
	for _, s := range sampleSources() {
		out = append(out, domain.NormalizedSource{ScrapedSource: s, OriginalLanguageCode: domain.BaseLanguage})
	}
	rating := 4.3
	out[0].Overview = &domain.EcommerceOverview{Site: "amazon.in", OverallRating: &rating}
	return out
}

func TestSynthesizeJSON(t *testing.T) {
	t.Parallel()

	var temperatures []float64
	chat := chatFunc(func(req domain.ChatRequest) (string, error) {
		temperatures = append(temperatures, req.Temperature)
		return sampleReviewJSON, nil
	})

	review, err := NewReviewSynthesizer(chat, nil).Synthesize(context.Background(), "Redmi Note 15", normalizedSamples())
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if len(temperatures) != 1 || temperatures[0] != 0.3 {
		t.Fatalf("expected a single call at 0.3, got %v", temperatures)
	}
	if review.Verdict != domain.VerdictBuy || review.ConfidenceScore != 0.82 {
		t.Fatalf("unexpected review: %+v", review)
	}
	src := review.Sources[0]
	if src.Type != domain.SourceEcommerce || src.EcommerceOverview == nil || *src.OverallRating != 4.3 {
		t.Fatalf("citation should recover input metadata: %+v", src)
	}
}

func TestSynthesizeTextFallback(t *testing.T) {
	t.Parallel()

	calls := 0
	chat := chatFunc(func(req domain.ChatRequest) (string, error) {
		calls++
		if systemPrompt(req) == synthesisSystemPrompt {
			return `{"verdict": "buy", "pros": [`, nil
		}
		if req.Temperature != 0 {
			return "", errors.New("fallback must be deterministic")
		}
		return strings.Join([]string{
			"VERDICT: Wait",
			"CONFIDENCE: 1.7",
			"BEST_FOR: Students",
			"SUMMARY: Battery is the headline feature according to buyers.",
			"TLDR: Wait for a price drop.",
			"PROS:",
			"- Battery",
			"- Display",
			"CONS:",
			"- Camera",
			"SOURCES:",
			"- Flipkart | https://www.flipkart.com/redmi-note-15/p/itm1 | blog",
			"- broken line without url",
		}, "\n"), nil
	})

	review, err := NewReviewSynthesizer(chat, nil).Synthesize(context.Background(), "Redmi Note 15", normalizedSamples())
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two calls, got %d", calls)
	}
	if review.Verdict != domain.VerdictWait || review.ConfidenceScore != 1 || review.BestFor != "Students" {
		t.Fatalf("unexpected review: %+v", review)
	}
	if n := runeLen(review.Summary); n < domain.MinSummaryLength || n > domain.MaxSummaryLength {
		t.Fatalf("summary length %d out of bounds", n)
	}
	if len(review.Pros) != 2 || len(review.Cons) != 1 {
		t.Fatalf("unexpected lists: %v %v", review.Pros, review.Cons)
	}
	if len(review.Sources) != 1 || review.Sources[0].Type != domain.SourceEcommerce {
		t.Fatalf("unexpected sources: %+v", review.Sources)
	}
}

func TestSynthesizeFailures(t *testing.T) {
	t.Parallel()

	down := chatFunc(func(domain.ChatRequest) (string, error) { return "", errors.New("503") })
	_, err := NewReviewSynthesizer(down, nil).Synthesize(context.Background(), "X", normalizedSamples())
	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) || synthErr.Stage != StageInitialChat {
		t.Fatalf("expected initial chat failure, got %v", err)
	}

	calls := 0
	fallbackDown := chatFunc(func(domain.ChatRequest) (string, error) {
		calls++
		if calls == 1 {
			return "not json", nil
		}
		return "", errors.New("503")
	})
	_, err = NewReviewSynthesizer(fallbackDown, nil).Synthesize(context.Background(), "X", normalizedSamples())
	if !errors.As(err, &synthErr) || synthErr.Stage != StageFallbackChat {
		t.Fatalf("expected fallback chat failure, got %v", err)
	}

	noCitations := chatFunc(func(domain.ChatRequest) (string, error) { return "VERDICT: buy", nil })
	_, err = NewReviewSynthesizer(noCitations, nil).Synthesize(context.Background(), "X", nil)
	if !errors.As(err, &synthErr) || synthErr.Stage != StageFallbackText || len(synthErr.Issues) == 0 {
		t.Fatalf("expected text validation failure, got %v", err)
	}
	if synthErr.Issues[0].Path != "sources" {
		t.Fatalf("unexpected issues: %+v", synthErr.Issues)
	}
}

func TestCoerceReviewRepairsShape(t *testing.T) {
	t.Parallel()

	review, issues := coerceReview(map[string]any{
		"verdict":          "MAYBE",
		"pros":             "fast, light,, cheap",
		"cons":             []any{"", "heavy", "loud", "hot", "slow", "dim", "old"},
		"best_for":         "Gamers",
		"summary":          strings.Repeat("x", 2400),
		"tl_dr":            "",
		"confidence_score": "0.4",
		"sources": []any{
			map[string]any{"title": "No scheme", "url": "www.example.com/x"},
			map[string]any{"title": "", "url": "https://example.com/untitled"},
			map[string]any{"title": "Video", "url": "https://youtube.com/watch?v=1", "type": "blog"},
		},
	}, []domain.NormalizedSource{{ScrapedSource: domain.ScrapedSource{
		URL: "https://youtube.com/watch?v=1", Title: "Hands-on video", Type: domain.SourceYouTube,
	}}})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
	if review.Verdict != domain.VerdictWait {
		t.Fatalf("unknown verdict should become wait: %s", review.Verdict)
	}
	if len(review.Pros) != 3 || len(review.Cons) != domain.MaxListItems || review.Cons[0] != "heavy" {
		t.Fatalf("unexpected lists: %v %v", review.Pros, review.Cons)
	}
	if review.BestFor != "Gamers" || review.ConfidenceScore != 0.4 {
		t.Fatalf("unexpected scalar fields: %+v", review)
	}
	if runeLen(review.Summary) != domain.MaxSummaryLength {
		t.Fatalf("summary should be clipped, got %d", runeLen(review.Summary))
	}
	if review.TLDR != tldrFiller {
		t.Fatalf("empty tldr should use filler: %q", review.TLDR)
	}
	if len(review.Sources) != 1 || review.Sources[0].Type != domain.SourceYouTube || review.Sources[0].Title != "Video" {
		t.Fatalf("unexpected sources: %+v", review.Sources)
	}
}

func TestCoerceReviewDropsUnknownCitations(t *testing.T) {
	t.Parallel()

	inputs := normalizedSamples()
	review, issues := coerceReview(map[string]any{
		"verdict": "buy",
		"sources": []any{
			map[string]any{"title": "Made up", "url": "https://evil.example.com/fake"},
			map[string]any{"title": "", "url": "https://www.flipkart.com/redmi-note-15/p/itm1/"},
		},
	}, inputs)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}
	if len(review.Sources) != 1 {
		t.Fatalf("only the known citation should remain: %+v", review.Sources)
	}
	kept := review.Sources[0]
	if kept.URL != inputs[1].URL || kept.Title != inputs[1].Title || kept.Type != domain.SourceEcommerce {
		t.Fatalf("unexpected citation: %+v", kept)
	}

	review, _ = coerceReview(map[string]any{
		"sources": []any{map[string]any{"title": "Made up", "url": "https://evil.example.com/fake"}},
	}, inputs)
	if len(review.Sources) != len(inputs) {
		t.Fatalf("unknown citations should fall back to the inputs: %+v", review.Sources)
	}
	for i, src := range review.Sources {
		if src.URL != inputs[i].URL {
			t.Fatalf("source %d should come from the inputs: %s", i, src.URL)
		}
	}
}

func TestFitLengthCountsRunes(t *testing.T) {
	t.Parallel()

	hindi := strings.Repeat("अ", 40)
	if got := fitLength(hindi, 30, 500, tldrFiller); got != hindi {
		t.Fatalf("40 runes should be kept as is")
	}
	if got := fitLength("short", 30, 500, tldrFiller); runeLen(got) < 30 || !strings.HasPrefix(got, "short ") {
		t.Fatalf("short text should be padded: %q", got)
	}
}

func TestCompactSourcesRespectsBudget(t *testing.T) {
	t.Parallel()

	var sources []domain.NormalizedSource
	for i := 0; i < 12; i++ {
		sources = append(sources, domain.NormalizedSource{ScrapedSource: domain.ScrapedSource{
			URL:     "https://example.com/" + string(rune('a'+i)),
			Type:    domain.SourceBlog,
			Content: strings.Repeat("word ", 400),
		}})
	}
	sources[0].Content = "tiny"

	compacted, stats := compactSources(sources)
	if stats.compacted > sourceTotalChars {
		t.Fatalf("compacted %d exceeds budget", stats.compacted)
	}
	if compacted[0].content != "tiny" || compacted[0].truncated {
		t.Fatalf("short source should be untouched: %+v", compacted[0])
	}
	for i, ps := range compacted[1:] {
		if runeLen(ps.content) < sourceFloorChars-1 || runeLen(ps.content) > sourceCapChars {
			t.Fatalf("source %d has %d chars", i+1, runeLen(ps.content))
		}
		if !ps.truncated {
			t.Fatalf("source %d should be marked truncated", i+1)
		}
	}

	prompt, _ := buildSynthesisPrompt("Phone", sources)
	if !strings.Contains(prompt, "…[truncated]") || !strings.Contains(prompt, "- Context: EXPERT_OR_CONTENT") {
		t.Fatalf("prompt is missing markers")
	}
}

func TestParseTextReview(t *testing.T) {
	t.Parallel()

	got := parseTextReview("verdict: skip\nPROS:\n- a\nnoise\n- b\nCONS:\n- c\nSOURCES:\n- T | https://x.com | YouTube")
	if got["verdict"] != "skip" {
		t.Fatalf("unexpected verdict: %v", got["verdict"])
	}
	if pros := got["pros"].([]any); len(pros) != 2 {
		t.Fatalf("unexpected pros: %v", pros)
	}
	sources := got["sources"].([]any)
	if len(sources) != 1 || sources[0].(map[string]any)["type"] != "youtube" {
		t.Fatalf("unexpected sources: %v", sources)
	}
}
