package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

// ErrRateLimited is returned when the chat API answers 429.
var ErrRateLimited = errors.New("chat api rate limit exceeded")

// StatusError is a non-2xx answer from the chat API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat api error %d: %s", e.StatusCode, e.Body)
}

// ChatClient implements ports.ChatClient backed by OpenAI-compatible APIs.
type ChatClient struct {
	endpoint   string
	model      string
	apiKey     string
	retryDelay time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.ChatClient = (*ChatClient)(nil)

// NewChatClient builds a client from configuration.
func NewChatClient(cfg config.ChatConfig, logger *slog.Logger) *ChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatClient{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type chatPayload struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete posts the conversation and returns the first choice's trimmed content.
// A 500 or 503 answer is retried once after the configured delay.
func (c *ChatClient) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chat client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" {
		return "", fmt.Errorf("chat client misconfigured")
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("chat request has no messages")
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(chatPayload{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	var content string
	op := func() error {
		out, err := c.send(ctx, body)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) &&
				(statusErr.StatusCode == http.StatusInternalServerError || statusErr.StatusCode == http.StatusServiceUnavailable) {
				c.debug("transient chat failure", "status", statusErr.StatusCode)
				return err
			}
			return backoff.Permanent(err)
		}
		content = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), 1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", err
	}
	return content, nil
}

func (c *ChatClient) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("chat response is empty")
	}
	return content, nil
}

func (c *ChatClient) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
