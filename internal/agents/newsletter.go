package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/oyvinds78/morningdigest/internal/llm"
)

const (
	newsletterBaseEstimate = 700
	newsletterMaxTokens    = 800
	newsletterMaxItems     = 15
)

// NewsletterAgent extracts insights from the newsletter mail snapshot.
type NewsletterAgent struct {
	provider llm.Provider
}

// NewNewsletterAgent creates a newsletter agent backed by the given provider.
func NewNewsletterAgent(provider llm.Provider) *NewsletterAgent {
	return &NewsletterAgent{provider: provider}
}

// Role returns the agent role.
func (a *NewsletterAgent) Role() Role { return RoleNewsletter }

// Estimate returns the expected token cost for the input.
func (a *NewsletterAgent) Estimate(in *Input) int {
	return estimate(newsletterBaseEstimate, in, newsletterMaxTokens)
}

// Execute summarizes the newsletter snapshot into the newsletter section.
func (a *NewsletterAgent) Execute(ctx context.Context, in *Input) (*Result, error) {
	return complete(ctx, a.provider, RoleNewsletter, newsletterSystemPrompt, a.buildPrompt(in), newsletterMaxTokens)
}

func (a *NewsletterAgent) buildPrompt(in *Input) string {
	var b strings.Builder

	b.WriteString("Newsletter items from the last window:\n\n")
	for i, item := range in.Snapshot.Items {
		if i >= newsletterMaxItems {
			break
		}
		fmt.Fprintf(&b, "From %s: %s\n", item.Source, item.Title)
		if item.Text != "" {
			fmt.Fprintf(&b, "%s\n", truncate(item.Text, 400))
		}
		b.WriteString("\n")
	}
	b.WriteString("Extract the genuinely useful points.")

	return b.String()
}
