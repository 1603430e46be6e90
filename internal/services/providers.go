package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"support-chat-backend/internal/config"
	"support-chat-backend/internal/models"
)

// Provider sends one fully built chat request to an LLM API and returns the
// reply text. Failures are reported as *TransportError, *ParseError or
// *UnsupportedProviderError.
type Provider interface {
	Name() string
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// NewProvider maps the configured provider name to its implementation.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderGroq, config.ProviderOpenAI:
		return NewOpenAICompatibleProvider(cfg), nil
	case config.ProviderGemini:
		return &GeminiProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// OpenAICompatibleProvider talks to any /chat/completions endpoint that
// follows the OpenAI wire format (Groq and OpenAI).
type OpenAICompatibleProvider struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAICompatibleProvider(cfg config.LLMConfig) *OpenAICompatibleProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAICompatibleProvider{
		name:        cfg.Provider,
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (p *OpenAICompatibleProvider) Name() string { return p.name }

func (p *OpenAICompatibleProvider) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ParseError{Err: errors.New("response contained no choices")}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &ParseError{Err: errors.New("response contained an empty message")}
	}
	return content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &TransportError{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &TransportError{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Timeout: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransportError{Timeout: netErr.Timeout(), Err: err}
	}
	return &ParseError{Err: err}
}

// GeminiProvider is selectable by configuration but has no transport.
type GeminiProvider struct{}

func (p *GeminiProvider) Name() string { return config.ProviderGemini }

func (p *GeminiProvider) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	return "", &UnsupportedProviderError{Provider: config.ProviderGemini}
}
