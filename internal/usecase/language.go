package usecase

import (
	"context"
	"log/slog"

	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

// QueryLanguageDetector picks the language of a typed query.
type QueryLanguageDetector struct {
	detector ports.LanguageDetector
	logger   *slog.Logger
}

// NewQueryLanguageDetector wires a remote detector. detector may be nil.
func NewQueryLanguageDetector(detector ports.LanguageDetector, logger *slog.Logger) *QueryLanguageDetector {
	return &QueryLanguageDetector{detector: detector, logger: logger}
}

// Detect asks the remote detector first and falls back to the Indic script of
// the text. Latin or mixed text is the base language. The result is always in
// the query-language set.
func (d *QueryLanguageDetector) Detect(ctx context.Context, text string) string {
	if d.detector != nil {
		code, err := d.detector.DetectLanguage(ctx, text)
		if err == nil && domain.IsQueryLanguage(code) {
			return code
		}
		if err != nil && d.logger != nil {
			d.logger.Debug("remote language detection failed", "error", err)
		}
	}

	if code, ok := domain.ScriptLanguage(text); ok {
		return code
	}
	return domain.BaseLanguage
}
