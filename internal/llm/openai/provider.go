// Package openai adapts the go-openai client to the unified llm.Provider
// interface.
package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/oyvinds78/morningdigest/internal/llm"
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Requests per second allowed against the API.
	RateLimit float64
}

// Provider implements llm.Provider for OpenAI-compatible endpoints.
type Provider struct {
	client  *openai.Client
	config  Config
	limiter *llm.Limiter
}

// NewProvider creates a new OpenAI provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, &llm.ProviderError{Code: llm.ErrAuth, Message: "openai api key is required"}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}

	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:  openai.NewClientWithConfig(openaiConfig),
		config:  cfg,
		limiter: llm.NewLimiter(cfg.RateLimit, 1),
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return "openai" }

// Complete performs a completion request.
func (p *Provider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, normalizeError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &llm.ProviderError{Code: llm.ErrUnknown, Message: "completion returned no choices"}
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// normalizeError converts go-openai errors to the shared taxonomy.
func normalizeError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := llm.ErrUnknown
		switch {
		case apiErr.HTTPStatusCode == 429:
			code = llm.ErrRateLimited
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			code = llm.ErrAuth
		case apiErr.HTTPStatusCode == 400:
			code = llm.ErrInvalidRequest
		case apiErr.HTTPStatusCode >= 500:
			code = llm.ErrUnavailable
		}
		return &llm.ProviderError{
			Code:       code,
			Message:    apiErr.Message,
			HTTPStatus: apiErr.HTTPStatusCode,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return &llm.ProviderError{Code: llm.ErrUnavailable, Message: err.Error()}
}
