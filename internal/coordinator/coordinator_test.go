package coordinator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oyvinds78/morningdigest/internal/agents"
	"github.com/oyvinds78/morningdigest/internal/budget"
	"github.com/oyvinds78/morningdigest/internal/digest"
	"github.com/oyvinds78/morningdigest/internal/llm"
	"github.com/oyvinds78/morningdigest/internal/llm/llmtest"
)

// Prompt fragments unique to each agent, used to script the fake provider.
const (
	newsKey       = "Summarize the news below"
	techKey       = "most relevant articles"
	calendarKey   = "Today's events"
	newsletterKey = "Newsletter items"
	synthesisKey  = "specialist agents"
)

func unlimitedBudget() *budget.Budget {
	return budget.New(budget.Ceilings{Daily: -1, Hourly: -1, PerRequest: -1})
}

func newTestCoordinator(fake *llmtest.FakeProvider, b *budget.Budget) *Coordinator {
	return New(fake, b, zerolog.Nop(),
		WithRetryDelay(time.Millisecond),
		WithCallTimeout(time.Second),
	)
}

func testSnapshots() map[string]*digest.Snapshot {
	now := time.Now()
	snap := func(source string, titles ...string) *digest.Snapshot {
		items := make([]digest.Item, 0, len(titles))
		for _, title := range titles {
			items = append(items, digest.Item{Title: title, Source: source, Published: now})
		}
		return &digest.Snapshot{Source: source, Items: items, Status: digest.StatusOK, CollectedAt: now}
	}
	return map[string]*digest.Snapshot{
		"news":     snap("news", "Election results", "Storm warning"),
		"tech":     snap("tech", "New database release"),
		"calendar": snap("calendar", "Standup"),
		"mail":     snap("mail", "Weekly newsletter"),
	}
}

func TestRunAllSuccess(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	c := newTestCoordinator(fake, unlimitedBudget())

	out := c.Run(context.Background(), testSnapshots(), nil)

	require.Len(t, out.Results, 5)
	for role, res := range out.Results {
		assert.Equal(t, agents.StateSuccess, res.State, "role %s", role)
		assert.Equal(t, 1, res.Attempts, "role %s", role)
		assert.NotEmpty(t, res.Summary, "role %s", role)
	}
	// Five calls at 30 tokens each from the fake's default usage.
	assert.Equal(t, 150, out.TokensUsed)
	assert.Equal(t, 5, fake.Calls())
}

func TestSynthesisRunsAfterAllSections(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	c := newTestCoordinator(fake, unlimitedBudget())

	c.Run(context.Background(), testSnapshots(), nil)

	log := fake.CallLog()
	require.Len(t, log, 5)
	assert.Contains(t, log[4], synthesisKey, "synthesis must be the last call")
	// The join is real: synthesis consumes the section summaries.
	assert.Contains(t, log[4], "== news ==")
	assert.Contains(t, log[4], "== newsletter ==")
}

func TestTransientErrorsRetriedThenSucceed(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	transient := &llm.ProviderError{Code: llm.ErrRateLimited, Message: "429 too many requests"}
	fake.QueueErrors(newsKey, transient, transient)

	c := newTestCoordinator(fake, unlimitedBudget())
	out := c.Run(context.Background(), testSnapshots(), nil)

	res := out.Results[agents.RoleNews]
	require.NotNil(t, res)
	assert.Equal(t, agents.StateSuccess, res.State)
	assert.Equal(t, 3, res.Attempts)
}

func TestTransientErrorsExhaustRetries(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	transient := &llm.ProviderError{Code: llm.ErrOverloaded, Message: "overloaded"}
	fake.QueueErrors(techKey, transient, transient, transient)

	c := newTestCoordinator(fake, unlimitedBudget())
	out := c.Run(context.Background(), testSnapshots(), nil)

	res := out.Results[agents.RoleTech]
	require.NotNil(t, res)
	assert.Equal(t, agents.StateFailed, res.State)
	assert.Equal(t, 3, res.Attempts)
	assert.Contains(t, res.Reason, "overloaded")
}

func TestPermanentErrorFailsImmediately(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	fake.QueueErrors(newsKey, &llm.ProviderError{Code: llm.ErrInvalidRequest, Message: "bad request"})

	c := newTestCoordinator(fake, unlimitedBudget())
	out := c.Run(context.Background(), testSnapshots(), nil)

	res := out.Results[agents.RoleNews]
	require.NotNil(t, res)
	assert.Equal(t, agents.StateFailed, res.State)
	assert.Equal(t, 1, res.Attempts)

	calls := 0
	for _, key := range fake.CallLog() {
		if strings.Contains(key, newsKey) {
			calls++
		}
	}
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestFailedSiblingDoesNotBlockOthers(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	fake.QueueErrors(newsKey, &llm.ProviderError{Code: llm.ErrInvalidRequest, Message: "bad request"})

	c := newTestCoordinator(fake, unlimitedBudget())
	out := c.Run(context.Background(), testSnapshots(), nil)

	assert.Equal(t, agents.StateFailed, out.Results[agents.RoleNews].State)
	assert.Equal(t, agents.StateSuccess, out.Results[agents.RoleTech].State)
	assert.Equal(t, agents.StateSuccess, out.Results[agents.RoleSynthesis].State)

	// Synthesis reports the degradation it worked around.
	log := fake.CallLog()
	assert.Contains(t, log[len(log)-1], "Unavailable sections: news")
}

func TestZeroBudgetSkipsEveryCall(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	c := newTestCoordinator(fake, budget.New(budget.Ceilings{}))

	out := c.Run(context.Background(), testSnapshots(), nil)

	require.Len(t, out.Results, 5)
	for role, res := range out.Results {
		assert.Equal(t, agents.StateSkipped, res.State, "role %s", role)
		assert.NotEmpty(t, res.Reason, "role %s", role)
	}
	assert.Zero(t, fake.Calls(), "no provider call may happen under a zero budget")
	assert.Zero(t, out.TokensUsed)
}

func TestFailedCollectorFailsAgentWithoutCall(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	c := newTestCoordinator(fake, unlimitedBudget())

	snapshots := testSnapshots()
	snapshots["news"] = digest.Failed("news", "all 3 feeds failed")

	out := c.Run(context.Background(), snapshots, nil)

	res := out.Results[agents.RoleNews]
	require.NotNil(t, res)
	assert.Equal(t, agents.StateFailed, res.State)
	assert.Contains(t, res.Reason, "all 3 feeds failed")
	for _, key := range fake.CallLog() {
		assert.NotContains(t, key, newsKey)
	}
}

func TestFailedCallRefundsReservation(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	fake.QueueErrors(newsKey, &llm.ProviderError{Code: llm.ErrInvalidRequest, Message: "bad request"})

	b := budget.New(budget.Ceilings{Daily: 100000, Hourly: -1, PerRequest: -1})
	c := newTestCoordinator(fake, b)

	snap := testSnapshots()["news"]
	res, err := c.RunOne(context.Background(), agents.RoleNews, &agents.Input{Snapshot: snap})
	require.NoError(t, err)
	assert.Equal(t, agents.StateFailed, res.State)
	assert.Zero(t, b.Usage().DailyUsed, "a failed call must not consume budget")
}

func TestCallTimeoutDegradesToFailed(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	fake.AddDelay(newsKey, 500*time.Millisecond)

	c := New(fake, unlimitedBudget(), zerolog.Nop(),
		WithRetryDelay(time.Millisecond),
		WithCallTimeout(20*time.Millisecond),
	)

	out := c.Run(context.Background(), testSnapshots(), nil)

	res := out.Results[agents.RoleNews]
	require.NotNil(t, res)
	assert.Equal(t, agents.StateFailed, res.State)
	assert.Equal(t, 3, res.Attempts, "per-call deadline is transient while the run is alive")
	assert.Contains(t, res.Reason, "deadline exceeded")

	// The stuck call never hangs or drags down its siblings.
	assert.Equal(t, agents.StateSuccess, out.Results[agents.RoleTech].State)
	assert.Equal(t, agents.StateSuccess, out.Results[agents.RoleSynthesis].State)
}

func TestCancelledRunFailsWithoutRetry(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	for _, key := range []string{newsKey, techKey, calendarKey, newsletterKey, synthesisKey} {
		fake.AddDelay(key, 10*time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCoordinator(fake, unlimitedBudget())
	out := c.Run(ctx, testSnapshots(), nil)

	require.Len(t, out.Results, 5)
	for role, res := range out.Results {
		assert.Equal(t, agents.StateFailed, res.State, "role %s", role)
		assert.Equal(t, 1, res.Attempts, "cancellation is not retried (role %s)", role)
		assert.Contains(t, res.Reason, "canceled", "role %s", role)
	}
	assert.Zero(t, out.TokensUsed)
}

func TestRunOneUnknownRole(t *testing.T) {
	c := newTestCoordinator(llmtest.NewFakeProvider(), unlimitedBudget())
	_, err := c.RunOne(context.Background(), agents.Role("oracle"), &agents.Input{})
	assert.Error(t, err)
}

func TestRunIsDeterministicForSameInputs(t *testing.T) {
	run := func() map[agents.Role]agents.State {
		fake := llmtest.NewFakeProvider()
		fake.QueueErrors(calendarKey, &llm.ProviderError{Code: llm.ErrInvalidRequest, Message: "bad request"})
		c := newTestCoordinator(fake, unlimitedBudget())

		out := c.Run(context.Background(), testSnapshots(), nil)
		states := make(map[agents.Role]agents.State, len(out.Results))
		for role, res := range out.Results {
			states[role] = res.State
		}
		return states
	}

	assert.Equal(t, run(), run())
}
