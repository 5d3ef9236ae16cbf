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

// Prompt budget, in characters.
const (
	sourceFloorChars      = 120
	sourceCapChars        = 900
	sourceTotalChars      = 8000
	targetUserPromptChars = 12000
)

const synthesisSystemPrompt = `You are a product review synthesizer.
Given a product and multiple review sources, produce a balanced response as STRICT JSON.
Never include markdown fences, commentary, or extra keys.

Output shape:
{
  "verdict": "buy" | "skip" | "wait",
  "pros": string[] (1 to 5 items),
  "cons": string[] (1 to 5 items),
  "bestFor": string,
  "summary": string (100 to 2000 chars),
  "tldr": string (30 to 500 chars),
  "confidenceScore": number (0 to 1),
  "sources": [{"title": string, "url": string, "type": "blog" | "ecommerce" | "youtube"}]
}

Rules:
- Use only evidence from provided sources.
- Keep claims grounded and avoid invented specs.
- Match sources to the final citations list.
- If ecommerce sources are present, prioritize user-review sentiment from those sources in summary/pros/cons.
- Treat blog/youtube sources as expert context and ecommerce sources as user sentiment context.`

const textFormatSystemPrompt = `You produce a structured review in plain text (NOT JSON).
Return EXACTLY this format and headings:

VERDICT: <buy|skip|wait>
CONFIDENCE: <0 to 1>
BEST_FOR: <single line>
SUMMARY: <single paragraph, at least 100 chars>
TLDR: <single paragraph, at least 30 chars>
PROS:
- <item 1>
- <item 2>
CONS:
- <item 1>
- <item 2>
SOURCES:
- <title> | <url> | <blog|ecommerce|youtube>

Rules:
- No markdown code fences.
- Keep headings exactly as written.
- Provide at least 1 pro, 1 con, and 1 source.`

// Synthesis stages reported by SynthesisError.
const (
	StageInitialChat    = "initial_chat"
	StageJSONValidation = "json_validation"
	StageFallbackChat   = "fallback_chat"
	StageFallbackText   = "fallback_text_parse"
)

// ReviewSynthesizer asks the chat model for a structured verdict over the evidence.
type ReviewSynthesizer struct {
	chat   ports.ChatClient
	logger *slog.Logger
}

// NewReviewSynthesizer wires the chat client.
func NewReviewSynthesizer(chat ports.ChatClient, logger *slog.Logger) *ReviewSynthesizer {
	return &ReviewSynthesizer{chat: chat, logger: logger}
}

// Synthesize produces a validated review. A malformed JSON answer is retried
// once in the heading format; both failing yields a *SynthesisError.
func (s *ReviewSynthesizer) Synthesize(ctx context.Context, productName string, sources []domain.NormalizedSource) (domain.SynthesizedReview, error) {
	prompt, stats := buildSynthesisPrompt(productName, sources)
	s.log(ctx, slog.LevelInfo, "synthesis prompt",
		"product", productName,
		"sources", len(sources),
		"prompt_chars", runeLen(prompt),
		"source_chars", stats.compacted,
		"original_source_chars", stats.original,
	)
	if runeLen(prompt) > targetUserPromptChars {
		s.log(ctx, slog.LevelWarn, "synthesis prompt above target after compaction",
			"product", productName, "prompt_chars", runeLen(prompt), "target", targetUserPromptChars)
	}

	content, err := s.chat.Complete(ctx, domain.ChatRequest{
		Temperature: 0.3,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return domain.SynthesizedReview{}, &SynthesisError{Stage: StageInitialChat, Err: err}
	}

	review, err := decodeJSONReview(content, sources)
	if err == nil {
		return review, nil
	}
	s.log(ctx, slog.LevelWarn, "json synthesis unusable, trying text format", "product", productName, "error", err)

	fallback, err := s.chat.Complete(ctx, domain.ChatRequest{
		Temperature: 0,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: textFormatSystemPrompt},
			{Role: "user", Content: strings.Join([]string{
				"Product: " + productName,
				"",
				"Context:",
				content,
				"",
				"If context is malformed, still produce best-effort structured output.",
			}, "\n")},
		},
	})
	if err != nil {
		return domain.SynthesizedReview{}, &SynthesisError{Stage: StageFallbackChat, Err: err}
	}

	review, issues := coerceReview(parseTextReview(fallback), sources)
	if len(issues) > 0 {
		return domain.SynthesizedReview{}, &SynthesisError{Stage: StageFallbackText, Issues: issues}
	}
	s.log(ctx, slog.LevelInfo, "text format synthesis succeeded", "product", productName, "sources", len(review.Sources))
	return review, nil
}

func decodeJSONReview(content string, sources []domain.NormalizedSource) (domain.SynthesizedReview, error) {
	raw, err := firstJSONObject(content)
	if err != nil {
		return domain.SynthesizedReview{}, err
	}
	var candidate map[string]any
	if err := json.Unmarshal([]byte(raw), &candidate); err != nil {
		return domain.SynthesizedReview{}, fmt.Errorf("decode review json: %w", err)
	}
	review, issues := coerceReview(candidate, sources)
	if len(issues) > 0 {
		return domain.SynthesizedReview{}, &SynthesisError{Stage: StageJSONValidation, Issues: issues}
	}
	return review, nil
}

type promptStats struct {
	original  int
	compacted int
}

type promptSource struct {
	source    domain.NormalizedSource
	content   string
	truncated bool
}

// compactSources gives every source a small floor first, then tops sources up
// in order to the per-source cap until the total budget is spent.
func compactSources(sources []domain.NormalizedSource) ([]promptSource, promptStats) {
	cleaned := make([][]rune, len(sources))
	var stats promptStats
	for i, s := range sources {
		cleaned[i] = []rune(strings.Join(strings.Fields(s.Content), " "))
		stats.original += len(cleaned[i])
	}

	remaining := sourceTotalChars
	assigned := make([]int, len(sources))
	for i, c := range cleaned {
		assigned[i] = min(len(c), sourceFloorChars, remaining)
		remaining -= assigned[i]
	}
	for i, c := range cleaned {
		room := max(0, min(len(c), sourceCapChars)-assigned[i])
		extra := min(room, remaining)
		assigned[i] += extra
		remaining -= extra
	}

	out := make([]promptSource, len(sources))
	for i, s := range sources {
		content := strings.TrimSpace(string(cleaned[i][:assigned[i]]))
		stats.compacted += runeLen(content)
		out[i] = promptSource{source: s, content: content, truncated: assigned[i] < len(cleaned[i])}
	}
	return out, stats
}

func buildSynthesisPrompt(productName string, sources []domain.NormalizedSource) (string, promptStats) {
	compacted, stats := compactSources(sources)

	blocks := make([]string, 0, len(compacted))
	for i, ps := range compacted {
		tag := "EXPERT_OR_CONTENT"
		if ps.source.Type == domain.SourceEcommerce {
			tag = "USER_REVIEWS"
		}
		content := ps.content
		if ps.truncated {
			content += " …[truncated]"
		}
		blocks = append(blocks, strings.Join([]string{
			fmt.Sprintf("Source %d:", i+1),
			"- Context: " + tag,
			"- Title: " + ps.source.Title,
			"- URL: " + ps.source.URL,
			"- Type: " + string(ps.source.Type),
			"- Content: " + content,
		}, "\n"))
	}

	prompt := strings.Join([]string{
		"Product: " + productName,
		"",
		"Use the following sources:",
		strings.Join(blocks, "\n\n"),
	}, "\n")
	return prompt, stats
}

func (s *ReviewSynthesizer) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(ctx, level, msg, args...)
	}
}
