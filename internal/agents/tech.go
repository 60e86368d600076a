package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/oyvinds78/morningdigest/internal/llm"
)

const (
	techBaseEstimate = 600
	techMaxTokens    = 800
	techMaxItems     = 20
)

// TechAgent summarizes the tech article snapshot.
type TechAgent struct {
	provider llm.Provider
}

// NewTechAgent creates a tech agent backed by the given provider.
func NewTechAgent(provider llm.Provider) *TechAgent {
	return &TechAgent{provider: provider}
}

// Role returns the agent role.
func (a *TechAgent) Role() Role { return RoleTech }

// Estimate returns the expected token cost for the input.
func (a *TechAgent) Estimate(in *Input) int {
	return estimate(techBaseEstimate, in, techMaxTokens)
}

// Execute summarizes the tech snapshot into the tech section.
func (a *TechAgent) Execute(ctx context.Context, in *Input) (*Result, error) {
	return complete(ctx, a.provider, RoleTech, techSystemPrompt, a.buildPrompt(in), techMaxTokens)
}

func (a *TechAgent) buildPrompt(in *Input) string {
	var b strings.Builder

	b.WriteString("Pick and summarize the most relevant articles below.\n")
	if interests := in.Profile["interests"]; interests != "" {
		fmt.Fprintf(&b, "The reader's interests: %s.\n", interests)
	}
	b.WriteString("\nArticles:\n\n")

	for i, item := range in.Snapshot.Items {
		if i >= techMaxItems {
			break
		}
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, item.Title, item.Source)
		if item.Text != "" {
			fmt.Fprintf(&b, "   %s\n", truncate(item.Text, 250))
		}
	}

	return b.String()
}
