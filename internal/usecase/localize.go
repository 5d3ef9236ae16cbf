package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sunkelo/internal/domain"
	"sunkelo/internal/metrics"
	"sunkelo/internal/ports"
)

const audioContentType = "audio/wav"

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// LocalizeInput is one review to render for a caller.
type LocalizeInput struct {
	ReviewID     int64
	ProductSlug  string
	ProductName  string
	Review       domain.SynthesizedReview
	LanguageCode string
}

// LocalizerDeps wires the localization collaborators. Any of them may be nil.
type LocalizerDeps struct {
	Translator  ports.Translator
	Narrator    Narrator
	Synthesizer ports.SpeechSynthesizer
	Blobs       ports.BlobStore
	Reviews     ports.ReviewRepository
	Metrics     *metrics.Pipeline
	Logger      *slog.Logger
}

// Localizer translates a review, narrates it, and publishes the audio.
type Localizer struct {
	translator  ports.Translator
	narrator    Narrator
	synthesizer ports.SpeechSynthesizer
	blobs       ports.BlobStore
	reviews     ports.ReviewRepository
	metrics     *metrics.Pipeline
	logger      *slog.Logger
	newSuffix   func() string
}

// NewLocalizer constructs the localization engine.
func NewLocalizer(deps LocalizerDeps) *Localizer {
	return &Localizer{
		translator:  deps.Translator,
		narrator:    deps.Narrator,
		synthesizer: deps.Synthesizer,
		blobs:       deps.Blobs,
		reviews:     deps.Reviews,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		newSuffix:   uuid.NewString,
	}
}

// Localize never fails: every step that cannot complete degrades to English
// text or to a review without audio.
func (l *Localizer) Localize(ctx context.Context, in LocalizeInput) domain.LocalizedReview {
	target := in.LanguageCode
	if target == "" {
		target = domain.BaseLanguage
	}
	needsTranslation := target != domain.BaseLanguage
	ttsLanguage := domain.TTSLanguageFor(target)

	localized := in.Review
	translated := false
	if needsTranslation {
		summary, tldr := l.translatePair(ctx, in.Review.Summary, in.Review.TLDR, target)
		localized.Summary = summary.Value
		localized.TLDR = tldr.Value
		translated = summary.Outcome == domain.OutcomeOK || tldr.Outcome == domain.OutcomeOK
	}

	l.debug("localize", "product", in.ProductName, "target", target, "tts_language", ttsLanguage, "translated", translated)

	result := domain.LocalizedReview{
		Review:          localized,
		LanguageCode:    target,
		TTSLanguageCode: ttsLanguage,
	}

	script := l.script(ctx, localized, in.ProductName, target, ttsLanguage)
	audio := l.speak(ctx, script, ttsLanguage)
	if audio.Usable() {
		url := l.publish(ctx, in, target, audio.Value)
		result.AudioURL = &url
		result.DurationSeconds = domain.WAVDurationSeconds(audio.Value)
	}

	if needsTranslation && translated && in.ReviewID > 0 && l.reviews != nil {
		row := domain.ReviewTranslation{
			ReviewID:     in.ReviewID,
			LanguageCode: target,
			Summary:      localized.Summary,
			TLDR:         localized.TLDR,
		}
		if result.AudioURL != nil && !strings.HasPrefix(*result.AudioURL, "data:") {
			row.AudioURL = *result.AudioURL
		}
		if err := l.reviews.UpsertTranslation(ctx, row); err != nil {
			l.warn("persist translation failed", "review_id", in.ReviewID, "language", target, "error", err)
		}
	}

	return result
}

func (l *Localizer) translatePair(ctx context.Context, summary, tldr, target string) (domain.Result[string], domain.Result[string]) {
	var summaryRes, tldrRes domain.Result[string]
	var g errgroup.Group
	g.Go(func() error {
		summaryRes = l.translate(ctx, summary, domain.BaseLanguage, target)
		return nil
	})
	g.Go(func() error {
		tldrRes = l.translate(ctx, tldr, domain.BaseLanguage, target)
		return nil
	})
	_ = g.Wait()
	return summaryRes, tldrRes
}

func (l *Localizer) translate(ctx context.Context, text, source, target string) domain.Result[string] {
	if l.translator == nil {
		return domain.Degraded(text, errNoTranslator)
	}
	out, err := l.translator.TranslateLong(ctx, text, source, target)
	if err != nil || strings.TrimSpace(out) == "" {
		if err == nil {
			err = errors.New("empty translation")
		}
		l.metrics.Degraded("translate")
		l.warn("translation failed, keeping source text", "source", source, "target", target, "error", err)
		return domain.Degraded(text, err)
	}
	return domain.OK(out)
}

// script prefers the narrator in the TTS language. The template fallback is
// written from the localized review, so it is translated back to the base
// language when TTS cannot speak the target.
func (l *Localizer) script(ctx context.Context, review domain.SynthesizedReview, productName, target, ttsLanguage string) string {
	if l.narrator != nil {
		script, err := l.narrator.Write(ctx, review, productName, ttsLanguage)
		if err == nil {
			return script
		}
		l.warn("narration failed, using template", "product", productName, "error", err)
	}
	l.metrics.Degraded("narration")

	script := NarrationTemplate(review)
	if ttsLanguage != target {
		script = l.translate(ctx, script, target, domain.BaseLanguage).Value
	}
	return script
}

func (l *Localizer) speak(ctx context.Context, script, languageCode string) domain.Result[[]byte] {
	if l.synthesizer == nil {
		return domain.Failed[[]byte](errors.New("speech synthesizer is not configured"))
	}
	audio, err := l.synthesizer.Synthesize(ctx, script, languageCode)
	if err == nil && len(audio) == 0 {
		err = errors.New("empty audio")
	}
	if err != nil {
		l.metrics.Degraded("tts")
		l.warn("speech synthesis failed, review will have no audio", "language", languageCode, "error", err)
		return domain.Failed[[]byte](err)
	}
	return domain.OK(audio)
}

func (l *Localizer) publish(ctx context.Context, in LocalizeInput, target string, audio []byte) string {
	if l.blobs != nil {
		url, err := l.blobs.Put(ctx, AudioObjectKey(in.ProductSlug, in.ReviewID, target, l.newSuffix()), audio, audioContentType)
		if err == nil {
			return url
		}
		l.warn("audio upload failed, inlining audio", "slug", in.ProductSlug, "error", err)
	}
	l.metrics.Degraded("upload")
	return DataURL(audio)
}

// AudioObjectKey names the uploaded narration.
func AudioObjectKey(slug string, reviewID int64, languageCode, suffix string) string {
	safe := unsafeKeyChars.ReplaceAllString(languageCode, "-")
	return fmt.Sprintf("tts/%s/%d-%s-%s.wav", slug, reviewID, safe, suffix)
}

// DataURL inlines WAV audio.
func DataURL(audio []byte) string {
	return "data:" + audioContentType + ";base64," + base64.StdEncoding.EncodeToString(audio)
}

func (l *Localizer) debug(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

func (l *Localizer) warn(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}
