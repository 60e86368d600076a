package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oyvinds78/morningdigest/internal/agents"
	"github.com/oyvinds78/morningdigest/internal/budget"
	"github.com/oyvinds78/morningdigest/internal/collectors"
	"github.com/oyvinds78/morningdigest/internal/coordinator"
	"github.com/oyvinds78/morningdigest/internal/digest"
	"github.com/oyvinds78/morningdigest/internal/llm"
	"github.com/oyvinds78/morningdigest/internal/llm/llmtest"
	"github.com/oyvinds78/morningdigest/internal/usage"
)

type stubCollector struct {
	name      string
	snap      *digest.Snapshot
	err       error
	healthErr error
}

func (s *stubCollector) Name() string { return s.name }

func (s *stubCollector) Collect(context.Context, time.Duration) (*digest.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func (s *stubCollector) Healthy(context.Context) error { return s.healthErr }

// blockedCollector holds its result until the run deadline cancels it.
type blockedCollector struct{ name string }

func (b *blockedCollector) Name() string { return b.name }

func (b *blockedCollector) Collect(ctx context.Context, _ time.Duration) (*digest.Snapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockedCollector) Healthy(context.Context) error { return nil }

func okSnapshot(source string, titles ...string) *digest.Snapshot {
	now := time.Now()
	items := make([]digest.Item, 0, len(titles))
	for _, title := range titles {
		items = append(items, digest.Item{Title: title, Source: source, Published: now})
	}
	return &digest.Snapshot{Source: source, Items: items, Status: digest.StatusOK, CollectedAt: now}
}

func okCollectors() []collectors.Collector {
	return []collectors.Collector{
		&stubCollector{name: collectors.SourceNews, snap: okSnapshot(collectors.SourceNews, "Election results")},
		&stubCollector{name: collectors.SourceTech, snap: okSnapshot(collectors.SourceTech, "New database release")},
		&stubCollector{name: collectors.SourceCalendar, snap: okSnapshot(collectors.SourceCalendar, "Standup")},
		&stubCollector{name: collectors.SourceMail, snap: okSnapshot(collectors.SourceMail, "Weekly newsletter")},
		&stubCollector{name: collectors.SourceWeather, snap: okSnapshot(collectors.SourceWeather, "Now: clear sky, 18.0°C")},
	}
}

func newTestOrchestrator(t *testing.T, cols []collectors.Collector, fake *llmtest.FakeProvider) *Orchestrator {
	t.Helper()
	b := budget.New(budget.Ceilings{Daily: -1, Hourly: -1, PerRequest: -1})
	coord := coordinator.New(fake, b, zerolog.Nop(),
		coordinator.WithRetryDelay(time.Millisecond),
		coordinator.WithCallTimeout(time.Second),
	)
	store := usage.NewStore(t.TempDir())
	return New(cols, coord, b, store, zerolog.Nop(), WithRunTimeout(10*time.Second))
}

func TestGenerateFixedSectionOrder(t *testing.T) {
	o := newTestOrchestrator(t, okCollectors(), llmtest.NewFakeProvider())

	doc := o.Generate(context.Background(), 24*time.Hour)
	require.NotNil(t, doc)

	var titles []string
	for _, sec := range doc.Sections {
		titles = append(titles, sec.Title)
	}
	assert.Equal(t, []string{"Morning Briefing", "News", "Tech", "Calendar", "Newsletters", "Weather"}, titles)
	assert.NotEmpty(t, doc.RunID)
	assert.Equal(t, 24*time.Hour, doc.Window)
}

func TestGenerateSurvivesSubsetCollectorFailure(t *testing.T) {
	cols := okCollectors()
	cols[0] = &stubCollector{name: collectors.SourceNews, err: errors.New("dns lookup failed")}

	o := newTestOrchestrator(t, cols, llmtest.NewFakeProvider())
	doc := o.Generate(context.Background(), 24*time.Hour)
	require.NotNil(t, doc)
	require.Len(t, doc.Sections, 6)

	bySection := make(map[string]digest.Section)
	for _, sec := range doc.Sections {
		bySection[sec.Title] = sec
	}

	news := bySection["News"]
	assert.True(t, news.Unavailable)
	assert.Contains(t, news.Reason, "dns lookup failed")

	for _, title := range []string{"Morning Briefing", "Tech", "Calendar", "Newsletters", "Weather"} {
		assert.False(t, bySection[title].Unavailable, "section %s", title)
		assert.NotEmpty(t, bySection[title].Content, "section %s", title)
	}
}

func TestGenerateSurvivesTotalFailure(t *testing.T) {
	cols := []collectors.Collector{
		&stubCollector{name: collectors.SourceNews, err: errors.New("down")},
		&stubCollector{name: collectors.SourceTech, err: errors.New("down")},
		&stubCollector{name: collectors.SourceCalendar, err: errors.New("down")},
		&stubCollector{name: collectors.SourceMail, err: errors.New("down")},
		&stubCollector{name: collectors.SourceWeather, err: errors.New("down")},
	}
	fake := llmtest.NewFakeProvider()
	// The briefing degrades too when the provider rejects the request.
	fake.QueueErrors("specialist agents", &llm.ProviderError{Code: llm.ErrInvalidRequest, Message: "bad request"})

	o := newTestOrchestrator(t, cols, fake)
	doc := o.Generate(context.Background(), 24*time.Hour)

	require.NotNil(t, doc)
	require.Len(t, doc.Sections, 6)
	for _, sec := range doc.Sections {
		assert.True(t, sec.Unavailable, "section %s", sec.Title)
		assert.NotEmpty(t, sec.Reason, "section %s", sec.Title)
	}
}

func TestGenerateNeverHangsOnRunDeadline(t *testing.T) {
	cols := okCollectors()
	cols[0] = &blockedCollector{name: collectors.SourceNews}

	fake := llmtest.NewFakeProvider()
	// Delays make the fake observe the already-expired run context.
	for _, key := range []string{"most relevant articles", "Today's events", "Newsletter items", "specialist agents"} {
		fake.AddDelay(key, 10*time.Millisecond)
	}

	b := budget.New(budget.Ceilings{Daily: -1, Hourly: -1, PerRequest: -1})
	coord := coordinator.New(fake, b, zerolog.Nop(),
		coordinator.WithRetryDelay(time.Millisecond),
		coordinator.WithCallTimeout(time.Second),
	)
	o := New(cols, coord, b, usage.NewStore(t.TempDir()), zerolog.Nop(),
		WithRunTimeout(50*time.Millisecond))

	done := make(chan *digest.Digest, 1)
	go func() { done <- o.Generate(context.Background(), 24*time.Hour) }()

	var doc *digest.Digest
	select {
	case doc = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Generate did not return after the run deadline")
	}

	require.NotNil(t, doc)
	require.Len(t, doc.Sections, 6)

	bySection := make(map[string]digest.Section)
	for _, sec := range doc.Sections {
		bySection[sec.Title] = sec
	}
	for _, title := range []string{"Morning Briefing", "News", "Tech", "Calendar", "Newsletters"} {
		assert.True(t, bySection[title].Unavailable, "section %s", title)
	}
	// Weather returned before the deadline and needs no agent pass.
	assert.False(t, bySection["Weather"].Unavailable)
}

func TestWeatherComesFromSnapshotWithoutAgentCall(t *testing.T) {
	fake := llmtest.NewFakeProvider()
	o := newTestOrchestrator(t, okCollectors(), fake)

	doc := o.Generate(context.Background(), 24*time.Hour)

	var weather digest.Section
	for _, sec := range doc.Sections {
		if sec.Title == "Weather" {
			weather = sec
		}
	}
	assert.False(t, weather.Unavailable)
	assert.Contains(t, weather.Content, "clear sky")
	// Four section agents plus synthesis; nothing for weather.
	assert.Equal(t, 5, fake.Calls())
}

func TestGenerateRecordsRun(t *testing.T) {
	b := budget.New(budget.Ceilings{Daily: -1, Hourly: -1, PerRequest: -1})
	coord := coordinator.New(llmtest.NewFakeProvider(), b, zerolog.Nop(),
		coordinator.WithRetryDelay(time.Millisecond),
	)
	store := usage.NewStore(t.TempDir())
	o := New(okCollectors(), coord, b, store, zerolog.Nop())

	doc := o.Generate(context.Background(), 24*time.Hour)

	rec, err := store.LastRun()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, doc.RunID, rec.RunID)
	assert.Equal(t, doc.TokensUsed, rec.TokensUsed)
	assert.Equal(t, string(digest.StatusOK), rec.Sources[collectors.SourceNews])
	assert.Equal(t, string(agents.StateSuccess), rec.Agents[string(agents.RoleSynthesis)])
}

func TestHealthReportsPerCollector(t *testing.T) {
	cols := okCollectors()
	cols[2] = &stubCollector{name: collectors.SourceCalendar, healthErr: errors.New("calendar url not configured")}

	o := newTestOrchestrator(t, cols, llmtest.NewFakeProvider())
	checks := o.Health(context.Background())
	require.Len(t, checks, 5)

	for _, check := range checks {
		if check.Name == collectors.SourceCalendar {
			assert.False(t, check.OK)
			assert.Contains(t, check.Err, "not configured")
		} else {
			assert.True(t, check.OK, "collector %s", check.Name)
		}
	}
}

func TestStatusCombinesHealthBudgetAndLastRun(t *testing.T) {
	o := newTestOrchestrator(t, okCollectors(), llmtest.NewFakeProvider())

	st := o.Status(context.Background())
	require.NotNil(t, st)
	assert.Len(t, st.Checks, 5)
	assert.Nil(t, st.LastRun, "no run recorded yet")

	o.Generate(context.Background(), 24*time.Hour)

	st = o.Status(context.Background())
	require.NotNil(t, st.LastRun)
	assert.NotZero(t, st.LastRun.TokensUsed)
}

func TestTestAgentsIsDeterministic(t *testing.T) {
	run := func() map[agents.Role]agents.State {
		o := newTestOrchestrator(t, okCollectors(), llmtest.NewFakeProvider())
		results := o.TestAgents(context.Background(), 24*time.Hour)
		states := make(map[agents.Role]agents.State, len(results))
		for _, res := range results {
			states[res.Role] = res.State
		}
		return states
	}

	first, second := run(), run()
	assert.Equal(t, first, second)
	assert.Len(t, first, 5)
}
