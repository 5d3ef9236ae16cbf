package speech

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"sunkelo/internal/domain"
)

const (
	maxTranslationChunk = 1000
	chunkConcurrency    = 4

	mayuraModel          = "mayura:v1"
	sarvamTranslateModel = "sarvam-translate:v1"
)

type translateRequest struct {
	Input              string `json:"input"`
	SourceLanguageCode string `json:"source_language_code"`
	TargetLanguageCode string `json:"target_language_code"`
	Model              string `json:"model"`
	Mode               string `json:"mode,omitempty"`
}

type translateResponse struct {
	TranslatedText     string `json:"translated_text"`
	Translation        string `json:"translation"`
	Output             string `json:"output"`
	SourceLanguageCode string `json:"source_language_code"`
}

func (r translateResponse) text() string {
	for _, candidate := range []string{r.TranslatedText, r.Translation, r.Output} {
		if candidate != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

// chooseModel prefers the formal-register model when both ends are speech languages.
func chooseModel(source, target string) (model, mode string) {
	if domain.IsSpeechSupported(source) && domain.IsSpeechSupported(target) {
		return mayuraModel, "formal"
	}
	return sarvamTranslateModel, ""
}

// Translate converts one chunk of text.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	if strings.TrimSpace(text) == "" || source == target {
		return text, nil
	}

	model, mode := chooseModel(source, target)
	var resp translateResponse
	err := c.postJSON(ctx, "/translate", translateRequest{
		Input:              text,
		SourceLanguageCode: source,
		TargetLanguageCode: target,
		Model:              model,
		Mode:               mode,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("translate %s->%s: %w", source, target, err)
	}

	translated := resp.text()
	if translated == "" {
		return "", fmt.Errorf("translate %s->%s: empty translation", source, target)
	}
	return translated, nil
}

// TranslateLong translates arbitrarily long text chunk by chunk and joins the
// pieces in their original order.
func (c *Client) TranslateLong(ctx context.Context, text, source, target string) (string, error) {
	chunks := SplitTranslationChunks(text, maxTranslationChunk)
	if len(chunks) == 0 || source == target {
		return strings.TrimSpace(text), nil
	}

	translated := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			out, err := c.Translate(gctx, chunk, source, target)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i+1, err)
			}
			translated[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(translated, " "), nil
}

// DetectLanguage asks the translation endpoint to auto-detect the source language.
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	input := []rune(strings.TrimSpace(text))
	if len(input) == 0 {
		return "", nil
	}
	if len(input) > maxTranslationChunk {
		input = input[:maxTranslationChunk]
	}

	var resp translateResponse
	err := c.postJSON(ctx, "/translate", translateRequest{
		Input:              string(input),
		SourceLanguageCode: "auto",
		TargetLanguageCode: domain.BaseLanguage,
		Model:              sarvamTranslateModel,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}
	return strings.TrimSpace(resp.SourceLanguageCode), nil
}

// SplitTranslationChunks normalises whitespace and packs whole sentences into
// chunks of at most maxRunes runes. A sentence longer than the limit is cut
// into fixed-size pieces.
func SplitTranslationChunks(input string, maxRunes int) []string {
	normalized := strings.Join(strings.Fields(input), " ")
	if normalized == "" {
		return nil
	}
	if runeLen(normalized) <= maxRunes {
		return []string{normalized}
	}

	var (
		chunks  []string
		current string
	)
	flush := func() {
		if s := strings.TrimSpace(current); s != "" {
			chunks = append(chunks, s)
		}
		current = ""
	}

	for _, sentence := range splitSentences(normalized) {
		if runeLen(sentence) > maxRunes {
			flush()
			runes := []rune(sentence)
			for offset := 0; offset < len(runes); offset += maxRunes {
				end := min(offset+maxRunes, len(runes))
				if piece := strings.TrimSpace(string(runes[offset:end])); piece != "" {
					chunks = append(chunks, piece)
				}
			}
			continue
		}

		next := sentence
		if current != "" {
			next = current + " " + sentence
		}
		if runeLen(next) > maxRunes {
			flush()
			current = sentence
		} else {
			current = next
		}
	}
	flush()

	return chunks
}

// splitSentences cuts after '.', '!' or '?' when followed by a space.
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				sentences = append(sentences, text[start:i+1])
				start = i + 2
				i++
			}
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func runeLen(s string) int {
	return len([]rune(s))
}
