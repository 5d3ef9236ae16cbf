package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

// Narrator writes the spoken script for a review.
type Narrator interface {
	Write(ctx context.Context, review domain.SynthesizedReview, productName, languageCode string) (string, error)
}

// ScriptWriter asks the chat model for a short conversational narration.
type ScriptWriter struct {
	chat ports.ChatClient
	cfg  config.NarrationConfig
}

var _ Narrator = (*ScriptWriter)(nil)

// NewScriptWriter wires the chat client with narration settings.
func NewScriptWriter(chat ports.ChatClient, cfg config.NarrationConfig) *ScriptWriter {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 300
	}
	return &ScriptWriter{chat: chat, cfg: cfg}
}

// Write returns a script entirely in the requested language.
func (w *ScriptWriter) Write(ctx context.Context, review domain.SynthesizedReview, productName, languageCode string) (string, error) {
	if w.chat == nil {
		return "", fmt.Errorf("narration chat client is not configured")
	}

	language := domain.LanguageName(languageCode)
	script, err := w.chat.Complete(ctx, domain.ChatRequest{
		Model:       w.cfg.Model,
		Temperature: w.cfg.Temperature,
		MaxTokens:   w.cfg.MaxTokens,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: narrationPrompt(language)},
			{Role: "user", Content: narrationContext(review, productName)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("write narration: %w", err)
	}
	if script = strings.TrimSpace(script); script == "" {
		return "", fmt.Errorf("write narration: empty script")
	}
	return script, nil
}

func narrationPrompt(language string) string {
	return strings.Join([]string{
		"You are writing a short, conversational audio script summarizing a product review for a listener.",
		"Write as if you're a knowledgeable friend explaining the product: natural, warm, opinionated.",
		fmt.Sprintf("IMPORTANT: Write the ENTIRE script in %s. The listener speaks %s.", language, language),
		"",
		"Rules:",
		"- Keep it under 150 words (roughly 60 seconds when spoken).",
		`- Start with the product verdict and why. Don't say "Here is a review" or anything robotic.`,
		"- Mention 2-3 key pros and 1-2 key cons naturally in sentences, not as lists.",
		"- End with who it's best for.",
		"- Do NOT use bullet points, headings, or markdown. This is spoken text.",
		"- Do NOT mention source names, URLs, or scores.",
		fmt.Sprintf("- The ENTIRE output must be in %s. Do NOT mix languages.", language),
	}, "\n")
}

func narrationContext(review domain.SynthesizedReview, productName string) string {
	return strings.Join([]string{
		"Product: " + productName,
		"Verdict: " + string(review.Verdict),
		fmt.Sprintf("Confidence: %d%%", int(math.Round(review.ConfidenceScore*100))),
		"Summary: " + review.Summary,
		"Pros: " + strings.Join(review.Pros, ", "),
		"Cons: " + strings.Join(review.Cons, ", "),
		"Best for: " + review.BestFor,
	}, "\n")
}

// NarrationTemplate is the deterministic script used when the writer fails.
func NarrationTemplate(review domain.SynthesizedReview) string {
	text := strings.Join([]string{
		"Here is a plain-language review summary.",
		review.Summary,
		fmt.Sprintf("Quick verdict: %s.", review.Verdict),
		fmt.Sprintf("What works well: %s.", sentenceList(review.Pros)),
		fmt.Sprintf("What may disappoint: %s.", sentenceList(review.Cons)),
		fmt.Sprintf("Best suited for: %s.", review.BestFor),
		"That is the full review summary.",
	}, " ")
	return strings.Join(strings.Fields(text), " ")
}

func sentenceList(items []string) string {
	if len(items) == 0 {
		return "not enough repeated signals"
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.TrimSpace(strings.TrimSuffix(item, ".")))
	}
	return strings.Join(out, ". ")
}
