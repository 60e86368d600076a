// Package agents implements the specialized summarization agents of the
// digest pipeline. Each agent consumes one collector snapshot (the
// synthesis agent consumes the other agents' results instead), makes a
// single LLM completion call and returns a structured Result.
package agents

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oyvinds78/morningdigest/internal/digest"
	"github.com/oyvinds78/morningdigest/internal/llm"
)

// Role identifies an agent in the fixed pipeline.
type Role string

const (
	RoleNews       Role = "news"
	RoleTech       Role = "tech"
	RoleCalendar   Role = "calendar"
	RoleNewsletter Role = "newsletter"
	RoleSynthesis  Role = "synthesis"
)

// Roles lists the non-synthesis roles in pipeline order.
var Roles = []Role{RoleNews, RoleTech, RoleCalendar, RoleNewsletter}

// State is the lifecycle state of one agent call. Terminal states are
// StateSuccess, StateFailed and StateSkipped; there are no backward
// transitions.
type State string

const (
	StatePending  State = "pending"
	StateSkipped  State = "skipped"
	StateRunning  State = "running"
	StateRetrying State = "retrying"
	StateSuccess  State = "success"
	StateFailed   State = "failed"
)

// Terminal reports whether s is an end state.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateSkipped
}

// Input carries everything an agent may consume: the snapshot for its
// source, the prior results (synthesis only) and the user profile used to
// slant the prompts.
type Input struct {
	Snapshot *digest.Snapshot
	Prior    []Result
	Profile  map[string]string
}

// Result is the outcome of one agent call.
type Result struct {
	Role       Role           `json:"role"`
	State      State          `json:"state"`
	Summary    string         `json:"summary,omitempty"`
	Highlights []string       `json:"highlights,omitempty"`
	Usage      llm.TokenUsage `json:"usage"`
	Reason     string         `json:"reason,omitempty"`
	Duration   time.Duration  `json:"duration"`
	Attempts   int            `json:"attempts"`
}

// Agent is one summarization step of the pipeline.
type Agent interface {
	Role() Role
	// Estimate returns the expected total token cost of executing with
	// the given input, including the completion cap. The coordinator
	// reserves this amount before the call.
	Estimate(in *Input) int
	Execute(ctx context.Context, in *Input) (*Result, error)
}

// complete performs the single LLM call shared by all agents and shapes
// the response into a Result.
func complete(ctx context.Context, provider llm.Provider, role Role, system, prompt string, maxTokens int) (*Result, error) {
	start := time.Now()

	resp, err := provider.Complete(ctx, &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(resp.Content)
	return &Result{
		Role:       role,
		State:      StateSuccess,
		Summary:    content,
		Highlights: extractHighlights(content),
		Usage:      resp.Usage,
		Duration:   time.Since(start),
	}, nil
}

// estimate combines a per-role base cost with a size adjustment and the
// completion cap.
func estimate(base int, in *Input, maxTokens int) int {
	n := 0
	if in != nil && in.Snapshot != nil {
		n = len(in.Snapshot.Items)
	}
	return base + n*50 + maxTokens
}

// extractHighlights pulls bullet lines out of a model response so the
// render step can show them as a list.
func extractHighlights(content string) []string {
	var highlights []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range []string{"- ", "* ", "• "} {
			if strings.HasPrefix(line, marker) {
				highlights = append(highlights, strings.TrimSpace(strings.TrimPrefix(line, marker)))
				break
			}
		}
	}
	return highlights
}

// truncate caps item text so a single long article cannot dominate the
// prompt budget. The cut backs off to a rune boundary so multi-byte text
// is never split mid-sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
