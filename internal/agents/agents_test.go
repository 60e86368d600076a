package agents

import (
	"context"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oyvinds78/morningdigest/internal/digest"
	"github.com/oyvinds78/morningdigest/internal/llm"
	"github.com/oyvinds78/morningdigest/internal/llm/llmtest"
)

func snapshotWith(items ...digest.Item) *digest.Snapshot {
	return &digest.Snapshot{
		Source:      "news",
		Items:       items,
		Status:      digest.StatusOK,
		CollectedAt: time.Now(),
	}
}

func TestEstimateScalesWithItems(t *testing.T) {
	agent := NewNewsAgent(llmtest.NewFakeProvider())

	empty := agent.Estimate(&Input{Snapshot: snapshotWith()})
	assert.Equal(t, newsBaseEstimate+newsMaxTokens, empty)

	three := agent.Estimate(&Input{Snapshot: snapshotWith(
		digest.Item{Title: "a"}, digest.Item{Title: "b"}, digest.Item{Title: "c"},
	)})
	assert.Equal(t, newsBaseEstimate+3*50+newsMaxTokens, three)
}

func TestNewsPromptCarriesPriorityAndLocation(t *testing.T) {
	agent := NewNewsAgent(llmtest.NewFakeProvider())
	prompt := agent.buildPrompt(&Input{
		Snapshot: snapshotWith(digest.Item{Title: "Flood warning", Source: "yr", Priority: "high"}),
		Profile:  map[string]string{"location": "Bergen"},
	})

	assert.Contains(t, prompt, "Flood warning")
	assert.Contains(t, prompt, "high priority")
	assert.Contains(t, prompt, "Bergen")
}

func TestTechPromptCapsItems(t *testing.T) {
	items := make([]digest.Item, techMaxItems+5)
	for i := range items {
		items[i] = digest.Item{Title: "article"}
	}
	agent := NewTechAgent(llmtest.NewFakeProvider())
	prompt := agent.buildPrompt(&Input{Snapshot: snapshotWith(items...)})

	assert.Contains(t, prompt, "20. article")
	assert.NotContains(t, prompt, "21. article")
}

func TestCalendarPromptHandlesEmptyDay(t *testing.T) {
	agent := NewCalendarAgent(llmtest.NewFakeProvider())
	prompt := agent.buildPrompt(&Input{Snapshot: snapshotWith()})
	assert.Contains(t, prompt, "no upcoming events")
}

func TestCalendarPromptListsEventsWithTimes(t *testing.T) {
	start := time.Date(2026, 8, 23, 9, 30, 0, 0, time.Local)
	agent := NewCalendarAgent(llmtest.NewFakeProvider())
	prompt := agent.buildPrompt(&Input{Snapshot: snapshotWith(
		digest.Item{Title: "Dentist", Published: start},
	)})

	assert.Contains(t, prompt, "09:30: Dentist")
}

func TestSynthesisPromptJoinsResultsAndNamesFailures(t *testing.T) {
	agent := NewSynthesisAgent(llmtest.NewFakeProvider())
	prompt := agent.buildPrompt(&Input{
		Prior: []Result{
			{Role: RoleNews, State: StateSuccess, Summary: "Quiet news day."},
			{Role: RoleTech, State: StateFailed, Reason: "provider error"},
			{Role: RoleCalendar, State: StateSkipped, Reason: "budget"},
		},
	})

	assert.Contains(t, prompt, "== news ==")
	assert.Contains(t, prompt, "Quiet news day.")
	assert.Contains(t, prompt, "Unavailable sections: tech, calendar")
	assert.NotContains(t, prompt, "provider error", "failure details stay out of the prompt")
}

func TestSynthesisPromptWithNothingToSummarize(t *testing.T) {
	agent := NewSynthesisAgent(llmtest.NewFakeProvider())
	prompt := agent.buildPrompt(&Input{
		Prior: []Result{
			{Role: RoleNews, State: StateFailed},
			{Role: RoleTech, State: StateFailed},
		},
	})
	assert.Contains(t, prompt, "No section produced a summary")
}

func TestExecuteBuildsResult(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	fake.AddResponse("Summarize the news below", &llm.CompletionResponse{
		Content: "Headline roundup.\n- Flood warning issued\n- Election tallies close",
		Usage:   llm.TokenUsage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
	})

	agent := NewNewsAgent(fake)
	res, err := agent.Execute(context.Background(), &Input{
		Snapshot: snapshotWith(digest.Item{Title: "Flood warning"}),
	})

	require.NoError(t, err)
	assert.Equal(t, RoleNews, res.Role)
	assert.Equal(t, StateSuccess, res.State)
	assert.Equal(t, 140, res.Usage.TotalTokens)
	assert.Equal(t, []string{"Flood warning issued", "Election tallies close"}, res.Highlights)
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateSuccess.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateSkipped.Terminal())
	assert.False(t, StatePending.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.False(t, StateRetrying.Terminal())
}

func TestExtractHighlights(t *testing.T) {
	content := "Intro line\n- first\n* second\n• third\nplain tail"
	assert.Equal(t, []string{"first", "second", "third"}, extractHighlights(content))
	assert.Nil(t, extractHighlights("no bullets here"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "longer te…", truncate("longer text than allowed", 9))
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	// "å" is two bytes; a byte-offset cut at 3 would split it.
	assert.Equal(t, "bl…", truncate("blåbærsyltetøy", 3))
	assert.Equal(t, "blå…", truncate("blåbærsyltetøy", 4))

	for max := 1; max < 14; max++ {
		out := truncate("blåbærsyltetøy", max)
		assert.True(t, utf8.ValidString(out), "max=%d produced invalid UTF-8: %q", max, out)
	}
}
