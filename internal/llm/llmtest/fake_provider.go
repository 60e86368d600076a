// Package llmtest provides a scripted fake provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oyvinds78/morningdigest/internal/llm"
)

// FakeProvider implements llm.Provider for testing. Responses, delays and
// error sequences are keyed by a substring matched against the first user
// message of each request.
type FakeProvider struct {
	mu        sync.Mutex
	responses map[string]*llm.CompletionResponse
	delays    map[string]time.Duration
	errQueues map[string][]error
	callLog   []string
	calls     int
}

// NewFakeProvider creates a new fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		responses: make(map[string]*llm.CompletionResponse),
		delays:    make(map[string]time.Duration),
		errQueues: make(map[string][]error),
	}
}

// AddResponse sets the canned response for requests matching key.
func (fp *FakeProvider) AddResponse(key string, resp *llm.CompletionResponse) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.responses[key] = resp
}

// AddDelay delays requests matching key before responding.
func (fp *FakeProvider) AddDelay(key string, d time.Duration) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.delays[key] = d
}

// QueueErrors makes the next len(errs) matching requests fail in order,
// after which the canned or default response is returned.
func (fp *FakeProvider) QueueErrors(key string, errs ...error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.errQueues[key] = append(fp.errQueues[key], errs...)
}

// Calls returns the number of Complete invocations.
func (fp *FakeProvider) Calls() int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.calls
}

// CallLog returns the matched keys (or raw prompts) in invocation order.
func (fp *FakeProvider) CallLog() []string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	out := make([]string, len(fp.callLog))
	copy(out, fp.callLog)
	return out
}

// Name returns the provider name.
func (fp *FakeProvider) Name() string { return "fake" }

// Complete performs a scripted completion.
func (fp *FakeProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var prompt string
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser && m.Content != "" {
			prompt = m.Content
			break
		}
	}

	fp.mu.Lock()
	fp.calls++

	var key string
	for k := range fp.responses {
		if strings.Contains(prompt, k) {
			key = k
		}
	}
	for k := range fp.errQueues {
		if strings.Contains(prompt, k) {
			key = k
		}
	}
	for k := range fp.delays {
		if strings.Contains(prompt, k) {
			key = k
		}
	}
	if key == "" {
		key = prompt
	}
	fp.callLog = append(fp.callLog, key)

	var queued error
	if q := fp.errQueues[key]; len(q) > 0 {
		queued = q[0]
		fp.errQueues[key] = q[1:]
	}
	delay := fp.delays[key]
	resp := fp.responses[key]
	fp.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if queued != nil {
		return nil, queued
	}
	if resp != nil {
		return resp, nil
	}

	return &llm.CompletionResponse{
		Content: fmt.Sprintf("fake response for: %s", key),
		Usage: llm.TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	}, nil
}
