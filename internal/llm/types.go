// Package llm defines the unified completion interface the digest agents
// talk to, plus the normalized error taxonomy shared by all providers.
package llm

import (
	"context"
	"errors"
)

// Role defines the role of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a chat message sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest represents a request to complete.
type CompletionRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float32
}

// TokenUsage tracks token consumption for budget accounting.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse represents the response from a completion call.
type CompletionResponse struct {
	Content string
	Usage   TokenUsage
}

// Provider is the unified interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// ErrorCode defines normalized error codes across providers.
type ErrorCode string

const (
	ErrRateLimited    ErrorCode = "rate_limited"
	ErrOverloaded     ErrorCode = "overloaded"
	ErrTimeout        ErrorCode = "timeout"
	ErrAuth           ErrorCode = "auth"
	ErrInvalidRequest ErrorCode = "invalid_request"
	ErrUnavailable    ErrorCode = "service_unavailable"
	ErrUnknown        ErrorCode = "unknown"
)

// ProviderError represents a normalized error from any provider.
type ProviderError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
}

func (e *ProviderError) Error() string { return e.Message }

// IsTransient reports whether an error is worth retrying. Context
// cancellation is not transient: the run deadline has already passed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Code {
		case ErrRateLimited, ErrOverloaded, ErrTimeout, ErrUnavailable:
			return true
		}
	}
	return false
}

// EstimateTokens gives a rough token count for text when the provider
// cannot be asked. Roughly 4 characters per token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 4
}
