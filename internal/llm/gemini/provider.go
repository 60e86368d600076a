// Package gemini adapts the Google genai client to the unified llm.Provider
// interface.
package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/oyvinds78/morningdigest/internal/llm"
)

// Config holds Gemini provider configuration.
type Config struct {
	APIKey    string
	Model     string
	RateLimit float64
}

// Provider implements llm.Provider for the Gemini API.
type Provider struct {
	client  *genai.Client
	config  Config
	limiter *llm.Limiter
}

// NewProvider creates a new Gemini provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, &llm.ProviderError{Code: llm.ErrAuth, Message: "gemini api key is required"}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &llm.ProviderError{Code: llm.ErrUnavailable, Message: err.Error()}
	}

	return &Provider{
		client:  client,
		config:  cfg,
		limiter: llm.NewLimiter(cfg.RateLimit, 1),
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return "gemini" }

// Complete performs a completion request.
func (p *Provider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	var contents []*genai.Content
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			cfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
		default:
			contents = append(contents, &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
				Role:  string(m.Role),
			})
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, normalizeError(err)
	}

	text := resp.Text()
	usage := llm.TokenUsage{TotalTokens: llm.EstimateTokens(text)}
	if resp.UsageMetadata != nil {
		usage = llm.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return &llm.CompletionResponse{Content: text, Usage: usage}, nil
}

// normalizeError maps genai errors onto the shared taxonomy. The genai
// client wraps HTTP failures as APIError with a status code.
func normalizeError(err error) error {
	msg := err.Error()
	code := llm.ErrUnavailable
	switch {
	case strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "resource_exhausted"):
		code = llm.ErrRateLimited
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		code = llm.ErrAuth
	case strings.Contains(msg, "400"):
		code = llm.ErrInvalidRequest
	}
	return &llm.ProviderError{Code: code, Message: msg}
}
