package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/oyvinds78/morningdigest/internal/llm"
)

const (
	calendarBaseEstimate = 400
	calendarMaxTokens    = 500
)

// CalendarAgent turns the calendar snapshot into a schedule rundown.
type CalendarAgent struct {
	provider llm.Provider
}

// NewCalendarAgent creates a calendar agent backed by the given provider.
func NewCalendarAgent(provider llm.Provider) *CalendarAgent {
	return &CalendarAgent{provider: provider}
}

// Role returns the agent role.
func (a *CalendarAgent) Role() Role { return RoleCalendar }

// Estimate returns the expected token cost for the input.
func (a *CalendarAgent) Estimate(in *Input) int {
	return estimate(calendarBaseEstimate, in, calendarMaxTokens)
}

// Execute summarizes the calendar snapshot into the schedule section.
func (a *CalendarAgent) Execute(ctx context.Context, in *Input) (*Result, error) {
	return complete(ctx, a.provider, RoleCalendar, calendarSystemPrompt, a.buildPrompt(in), calendarMaxTokens)
}

func (a *CalendarAgent) buildPrompt(in *Input) string {
	var b strings.Builder

	if len(in.Snapshot.Items) == 0 {
		b.WriteString("The calendar has no upcoming events in the window. Say so briefly and note the day is open.\n")
		return b.String()
	}

	b.WriteString("Today's events, in order:\n\n")
	for _, item := range in.Snapshot.Items {
		fmt.Fprintf(&b, "- %s: %s\n", item.Published.Format("15:04"), item.Title)
		if item.Text != "" {
			fmt.Fprintf(&b, "  %s\n", truncate(item.Text, 200))
		}
	}

	return b.String()
}
