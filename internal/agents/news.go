package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/oyvinds78/morningdigest/internal/llm"
)

const (
	newsBaseEstimate = 800
	newsMaxTokens    = 1000
	newsMaxItems     = 25
)

// NewsAgent summarizes the general news snapshot.
type NewsAgent struct {
	provider llm.Provider
}

// NewNewsAgent creates a news agent backed by the given provider.
func NewNewsAgent(provider llm.Provider) *NewsAgent {
	return &NewsAgent{provider: provider}
}

// Role returns the agent role.
func (a *NewsAgent) Role() Role { return RoleNews }

// Estimate returns the expected token cost for the input.
func (a *NewsAgent) Estimate(in *Input) int {
	return estimate(newsBaseEstimate, in, newsMaxTokens)
}

// Execute summarizes the news snapshot into the news section.
func (a *NewsAgent) Execute(ctx context.Context, in *Input) (*Result, error) {
	return complete(ctx, a.provider, RoleNews, newsSystemPrompt, a.buildPrompt(in), newsMaxTokens)
}

func (a *NewsAgent) buildPrompt(in *Input) string {
	var b strings.Builder

	b.WriteString("Summarize the news below for the morning digest.\n")
	if loc := in.Profile["location"]; loc != "" {
		fmt.Fprintf(&b, "The reader is in %s; stories from there are local.\n", loc)
	}
	b.WriteString("\nArticles, highest priority first:\n\n")

	for i, item := range in.Snapshot.Items {
		if i >= newsMaxItems {
			break
		}
		fmt.Fprintf(&b, "[%s", item.Source)
		if item.Priority != "" {
			fmt.Fprintf(&b, ", %s priority", item.Priority)
		}
		fmt.Fprintf(&b, "] %s\n", item.Title)
		if item.Text != "" {
			fmt.Fprintf(&b, "%s\n", truncate(item.Text, 300))
		}
		b.WriteString("\n")
	}

	return b.String()
}
