package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sunkelo/internal/config"
	"sunkelo/internal/ports"
)

// Client talks to the speech platform for transcription, translation, and synthesis.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	retryDelay time.Duration
	sttModel   string
	ttsModel   string
	speaker    string
	logger     *slog.Logger
}

var (
	_ ports.SpeechToText      = (*Client)(nil)
	_ ports.SpeechSynthesizer = (*Client)(nil)
	_ ports.Translator        = (*Client)(nil)
	_ ports.LanguageDetector  = (*Client)(nil)
)

// StatusError is a non-2xx answer from the speech platform.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("speech api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("speech api returned %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the request is worth repeating once.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusInternalServerError || e.StatusCode == http.StatusServiceUnavailable
}

// NewClient creates a reusable HTTP client.
func NewClient(cfg config.SpeechConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: timeout},
		retryDelay: cfg.RetryDelay,
		sttModel:   cfg.STTModel,
		ttsModel:   cfg.TTSModel,
		speaker:    cfg.Speaker,
		logger:     logger,
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.do(ctx, path, func() (io.Reader, string) {
		return bytes.NewReader(body), "application/json"
	}, v)
}

// do issues a POST and decodes the JSON answer, repeating once after a fixed
// delay when the platform answers 500 or 503.
func (c *Client) do(ctx context.Context, path string, body func() (io.Reader, string), v any) error {
	if c.apiKey == "" {
		return fmt.Errorf("speech client misconfigured: missing api key")
	}

	attempt := 0
	op := func() error {
		attempt++
		reader, contentType := body()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("new request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("api-subscription-key", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("do request: %w", err))
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			if closeErr := resp.Body.Close(); closeErr != nil {
				c.debug("close error body", "path", path, "error", closeErr)
			}
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
			if statusErr.Transient() {
				c.debug("transient speech api failure", "path", path, "status", resp.StatusCode, "attempt", attempt)
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			_ = resp.Body.Close()
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}

		if err := resp.Body.Close(); err != nil {
			return backoff.Permanent(fmt.Errorf("close response body: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), 1), ctx)
	return backoff.Retry(op, policy)
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
