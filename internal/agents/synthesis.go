package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/oyvinds78/morningdigest/internal/llm"
)

const (
	synthesisBaseEstimate = 1200
	synthesisMaxTokens    = 1200
)

// SynthesisAgent is the terminal pipeline step. It consumes the results of
// all prior agents and writes the morning briefing that leads the digest.
type SynthesisAgent struct {
	provider llm.Provider
}

// NewSynthesisAgent creates a synthesis agent backed by the given provider.
func NewSynthesisAgent(provider llm.Provider) *SynthesisAgent {
	return &SynthesisAgent{provider: provider}
}

// Role returns the agent role.
func (a *SynthesisAgent) Role() Role { return RoleSynthesis }

// Estimate returns the expected token cost for the input. It scales with
// the combined size of the prior summaries rather than snapshot items.
func (a *SynthesisAgent) Estimate(in *Input) int {
	cost := synthesisBaseEstimate + synthesisMaxTokens
	if in != nil {
		for _, r := range in.Prior {
			cost += llm.EstimateTokens(r.Summary)
		}
	}
	return cost
}

// Execute merges the prior agent results into the briefing section.
func (a *SynthesisAgent) Execute(ctx context.Context, in *Input) (*Result, error) {
	return complete(ctx, a.provider, RoleSynthesis, synthesisSystemPrompt, a.buildPrompt(in), synthesisMaxTokens)
}

func (a *SynthesisAgent) buildPrompt(in *Input) string {
	var b strings.Builder

	var succeeded, failed []string
	for _, r := range in.Prior {
		if r.State == StateSuccess {
			succeeded = append(succeeded, string(r.Role))
		} else {
			failed = append(failed, string(r.Role))
		}
	}

	b.WriteString("Section summaries from the specialist agents:\n\n")
	for _, r := range in.Prior {
		if r.State != StateSuccess {
			continue
		}
		fmt.Fprintf(&b, "== %s ==\n%s\n\n", r.Role, r.Summary)
	}

	if len(succeeded) == 0 {
		b.WriteString("No section produced a summary this run.\n")
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "Unavailable sections: %s.\n", strings.Join(failed, ", "))
	}
	if loc := in.Profile["location"]; loc != "" {
		fmt.Fprintf(&b, "The reader starts their day in %s.\n", loc)
	}
	b.WriteString("\nWrite the morning briefing.")

	return b.String()
}
