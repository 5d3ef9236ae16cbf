package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"sunkelo/internal/domain"
)

type transcribeResponse struct {
	Transcript          string   `json:"transcript"`
	LanguageCode        string   `json:"language_code"`
	LanguageProbability *float64 `json:"language_probability"`
}

// Transcribe uploads recorded audio and returns the transcript with its detected language.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (domain.Transcription, error) {
	if len(audio) == 0 {
		return domain.Transcription{}, fmt.Errorf("transcribe: empty audio")
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile("file", "query.webm")
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return domain.Transcription{}, fmt.Errorf("transcribe: write audio: %w", err)
	}
	if err := writer.WriteField("model", c.sttModel); err != nil {
		return domain.Transcription{}, fmt.Errorf("transcribe: write model: %w", err)
	}
	if err := writer.WriteField("language_code", "unknown"); err != nil {
		return domain.Transcription{}, fmt.Errorf("transcribe: write language: %w", err)
	}
	if err := writer.Close(); err != nil {
		return domain.Transcription{}, fmt.Errorf("transcribe: close form: %w", err)
	}

	payload := form.Bytes()
	contentType := writer.FormDataContentType()

	var resp transcribeResponse
	err = c.do(ctx, "/speech-to-text", func() (io.Reader, string) {
		return bytes.NewReader(payload), contentType
	}, &resp)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("transcribe: %w", err)
	}

	transcript := strings.TrimSpace(resp.Transcript)
	if transcript == "" {
		return domain.Transcription{}, fmt.Errorf("transcribe: empty transcript")
	}

	language := strings.TrimSpace(resp.LanguageCode)
	if language == "" {
		language = domain.BaseLanguage
	}

	return domain.Transcription{
		Transcript:          transcript,
		LanguageCode:        language,
		LanguageProbability: resp.LanguageProbability,
	}, nil
}

type synthesizeRequest struct {
	Text               string `json:"text"`
	TargetLanguageCode string `json:"target_language_code"`
	Model              string `json:"model"`
	Speaker            string `json:"speaker,omitempty"`
}

type synthesizeResponse struct {
	Audios []string `json:"audios"`
}

// Synthesize renders text as WAV audio in the given language.
func (c *Client) Synthesize(ctx context.Context, text, languageCode string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("synthesize: empty text")
	}

	var resp synthesizeResponse
	err := c.postJSON(ctx, "/text-to-speech", synthesizeRequest{
		Text:               text,
		TargetLanguageCode: languageCode,
		Model:              c.ttsModel,
		Speaker:            c.speaker,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	clips := make([][]byte, 0, len(resp.Audios))
	for i, encoded := range resp.Audios {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("synthesize: decode clip %d: %w", i, err)
		}
		clips = append(clips, decoded)
	}
	audio := domain.ConcatWAV(clips)
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesize: no audio returned")
	}
	return audio, nil
}
