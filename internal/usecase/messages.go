package usecase

import (
	"context"
	"fmt"
	"strings"

	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

const translatorSystemPrompt = "You are an expert translator. Return only translated text with no quotes and no extra explanation."

// ErrorMessages renders error codes in the caller's language.
type ErrorMessages struct {
	chat ports.ChatClient
}

// NewErrorMessages wires the chat client used for translation. chat may be nil.
func NewErrorMessages(chat ports.ChatClient) *ErrorMessages {
	return &ErrorMessages{chat: chat}
}

// Message returns the localized message, or the English one when translation fails.
func (m *ErrorMessages) Message(ctx context.Context, code domain.ErrorCode, languageCode string) string {
	fallback := code.Message()
	if m == nil || m.chat == nil || languageCode == "" || languageCode == domain.BaseLanguage {
		return fallback
	}

	translated, err := m.chat.Complete(ctx, domain.ChatRequest{
		Temperature: 0,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: translatorSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Translate this error message from English to %s: %s", languageCode, fallback)},
		},
	})
	if err != nil {
		return fallback
	}
	if translated = strings.TrimSpace(translated); translated == "" {
		return fallback
	}
	return translated
}
