package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"RegisterDigest/internal/config"
	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/ports"
)

// ChatCompleter is the subset of *openai.Client the adapter needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient implements ports.CompletionClient backed by OpenAI-compatible APIs.
type OpenAIClient struct {
	api ChatCompleter
}

var _ ports.CompletionClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration.
func NewOpenAIClient(cfg config.CompletionConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("completion api key is empty")
	}

	transport := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		transport.BaseURL = cfg.BaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	transport.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{api: openai.NewClientWithConfig(transport)}, nil
}

// NewWithCompleter wraps an existing completer, e.g. a test double.
func NewWithCompleter(api ChatCompleter) *OpenAIClient {
	return &OpenAIClient{api: api}
}

// Complete issues one chat completion and returns the first choice's text.
// Rate limits, timeouts and 5xx responses are wrapped with
// domain.ErrSummarizationTransient.
func (c *OpenAIClient) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	if c == nil || c.api == nil {
		return "", fmt.Errorf("openai client is nil")
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		PresencePenalty:  req.PresencePenalty,
		FrequencyPenalty: req.FrequencyPenalty,
	})
	if err != nil {
		if IsTransient(err) {
			return "", fmt.Errorf("%w: %w", domain.ErrSummarizationTransient, err)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", domain.ErrSummarizationTransient)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// IsTransient reports whether err is a rate limit, timeout or server failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
}
