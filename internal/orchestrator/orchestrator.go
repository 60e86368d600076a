// Package orchestrator drives one digest run end to end: collector fan-out,
// the agent pipeline, and the merge into the final document. Generate never
// returns an error; every failure mode degrades to unavailable sections.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/oyvinds78/morningdigest/internal/agents"
	"github.com/oyvinds78/morningdigest/internal/budget"
	"github.com/oyvinds78/morningdigest/internal/collectors"
	"github.com/oyvinds78/morningdigest/internal/coordinator"
	"github.com/oyvinds78/morningdigest/internal/digest"
	"github.com/oyvinds78/morningdigest/internal/usage"
)

const defaultRunTimeout = 5 * time.Minute

// sectionOrder fixes the digest layout regardless of completion order. The
// briefing leads; weather closes without an agent pass.
var sectionOrder = []struct {
	Role  agents.Role
	Title string
}{
	{agents.RoleSynthesis, "Morning Briefing"},
	{agents.RoleNews, "News"},
	{agents.RoleTech, "Tech"},
	{agents.RoleCalendar, "Calendar"},
	{agents.RoleNewsletter, "Newsletters"},
}

// Orchestrator owns the collectors and the coordinator for one configured
// digest setup.
type Orchestrator struct {
	collectors []collectors.Collector
	coord      *coordinator.Coordinator
	budget     *budget.Budget
	store      *usage.Store
	profile    map[string]string
	runTimeout time.Duration
	log        zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunTimeout bounds a whole Generate call.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.runTimeout = d }
}

// WithProfile sets the reader profile passed into agent prompts.
func WithProfile(profile map[string]string) Option {
	return func(o *Orchestrator) { o.profile = profile }
}

// New builds an orchestrator over the given collaborators.
func New(cols []collectors.Collector, coord *coordinator.Coordinator, b *budget.Budget, store *usage.Store, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		collectors: cols,
		coord:      coord,
		budget:     b,
		store:      store,
		runTimeout: defaultRunTimeout,
		log:        logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate produces a digest for the given window. It always returns a
// digest: collectors and agents that fail show up as unavailable sections.
func (o *Orchestrator) Generate(ctx context.Context, window time.Duration) *digest.Digest {
	start := time.Now()
	runID := uuid.NewString()
	logger := o.log.With().Str("run_id", runID).Logger()
	logger.Info().Dur("window", window).Msg("digest run started")

	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	snapshots := o.collect(ctx, window)
	outcome := o.coord.Run(ctx, snapshots, o.profile)

	doc := &digest.Digest{
		RunID:       runID,
		Title:       fmt.Sprintf("Morning Digest for %s", start.Format("Monday, 2 January 2006")),
		GeneratedAt: start,
		Window:      window,
		Sections:    o.merge(outcome, snapshots),
		TokensUsed:  outcome.TokensUsed,
		Duration:    time.Since(start),
	}

	o.recordRun(doc, snapshots, outcome)
	logger.Info().
		Int("tokens", doc.TokensUsed).
		Dur("duration", doc.Duration).
		Msg("digest run finished")
	return doc
}

// collect runs every collector concurrently and converts errors into failed
// snapshots so the agent pipeline always sees one snapshot per source. The
// group never short-circuits: a failing collector is a degraded source, not
// a reason to cancel its siblings.
func (o *Orchestrator) collect(ctx context.Context, window time.Duration) map[string]*digest.Snapshot {
	results := make([]*digest.Snapshot, len(o.collectors))

	g, ctx := errgroup.WithContext(ctx)
	for i, col := range o.collectors {
		g.Go(func() error {
			snap, err := col.Collect(ctx, window)
			if err != nil {
				o.log.Warn().Str("collector", col.Name()).Err(err).Msg("collector failed")
				snap = digest.Failed(col.Name(), err.Error())
			}
			results[i] = snap
			return nil
		})
	}
	_ = g.Wait()

	snapshots := make(map[string]*digest.Snapshot, len(results))
	for _, snap := range results {
		snapshots[snap.Source] = snap
	}
	return snapshots
}

// merge lays out the sections in their fixed order: agent-backed sections
// first, then weather straight from its snapshot.
func (o *Orchestrator) merge(outcome *coordinator.Outcome, snapshots map[string]*digest.Snapshot) []digest.Section {
	sections := make([]digest.Section, 0, len(sectionOrder)+1)
	for _, def := range sectionOrder {
		sections = append(sections, sectionFromResult(def.Title, outcome.Results[def.Role]))
	}
	sections = append(sections, weatherSection(snapshots[collectors.SourceWeather]))
	return sections
}

func sectionFromResult(title string, res *agents.Result) digest.Section {
	if res == nil {
		return digest.Section{Title: title, Unavailable: true, Reason: "no result produced"}
	}
	sec := digest.Section{
		Role:  string(res.Role),
		Title: title,
	}
	if res.State != agents.StateSuccess {
		sec.Unavailable = true
		sec.Reason = res.Reason
		if sec.Reason == "" {
			sec.Reason = fmt.Sprintf("agent %s", res.State)
		}
		return sec
	}
	sec.Content = res.Summary
	sec.Highlights = res.Highlights
	return sec
}

// weatherSection builds the weather block directly from the snapshot. No
// model pass: the formatted conditions are already readable.
func weatherSection(snap *digest.Snapshot) digest.Section {
	sec := digest.Section{Role: collectors.SourceWeather, Title: "Weather"}
	if snap == nil || snap.Status == digest.StatusFailed || len(snap.Items) == 0 {
		sec.Unavailable = true
		sec.Reason = "weather unavailable"
		if snap != nil && snap.Err != "" {
			sec.Reason = snap.Err
		}
		return sec
	}

	var b strings.Builder
	for _, item := range snap.Items {
		b.WriteString(item.Title)
		if item.Text != "" {
			b.WriteString(" (" + item.Text + ")")
		}
		b.WriteString("\n")
	}
	sec.Content = strings.TrimRight(b.String(), "\n")
	return sec
}

func (o *Orchestrator) recordRun(doc *digest.Digest, snapshots map[string]*digest.Snapshot, outcome *coordinator.Outcome) {
	if o.store == nil {
		return
	}

	sources := make(map[string]string, len(snapshots))
	for name, snap := range snapshots {
		sources[name] = string(snap.Status)
	}
	states := make(map[string]string, len(outcome.Results))
	for role, res := range outcome.Results {
		states[string(role)] = string(res.State)
	}

	rec := &usage.RunRecord{
		RunID:      doc.RunID,
		StartedAt:  doc.GeneratedAt,
		FinishedAt: doc.GeneratedAt.Add(doc.Duration),
		Window:     doc.Window,
		Sources:    sources,
		Agents:     states,
		TokensUsed: doc.TokensUsed,
	}
	if err := o.store.RecordRun(rec); err != nil {
		o.log.Warn().Err(err).Msg("failed to persist run record")
	}
}

// Check is the health result for one collaborator.
type Check struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Err  string `json:"error,omitempty"`
}

// Health verifies configuration and reachability per collector without
// fetching data.
func (o *Orchestrator) Health(ctx context.Context) []Check {
	checks := make([]Check, 0, len(o.collectors))
	for _, col := range o.collectors {
		check := Check{Name: col.Name(), OK: true}
		if err := col.Healthy(ctx); err != nil {
			check.OK = false
			check.Err = err.Error()
		}
		checks = append(checks, check)
	}
	return checks
}

// Status combines health with budget consumption and last-run metadata.
type Status struct {
	Checks  []Check          `json:"checks"`
	Budget  budget.Usage     `json:"budget"`
	LastRun *usage.RunRecord `json:"last_run,omitempty"`
}

// Status reports current health, budget usage and the last recorded run.
func (o *Orchestrator) Status(ctx context.Context) *Status {
	st := &Status{
		Checks: o.Health(ctx),
		Budget: o.budget.Usage(),
	}
	if o.store != nil {
		if rec, err := o.store.LastRun(); err == nil {
			st.LastRun = rec
		} else {
			o.log.Warn().Err(err).Msg("failed to read last run record")
		}
	}
	return st
}

// TestAgents collects fresh snapshots and runs every agent once, reporting
// per-role results without rendering a digest.
func (o *Orchestrator) TestAgents(ctx context.Context, window time.Duration) []agents.Result {
	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	snapshots := o.collect(ctx, window)
	outcome := o.coord.Run(ctx, snapshots, o.profile)

	results := make([]agents.Result, 0, len(outcome.Results))
	for _, role := range agents.Roles {
		if res := outcome.Results[role]; res != nil {
			results = append(results, *res)
		}
	}
	if res := outcome.Results[agents.RoleSynthesis]; res != nil {
		results = append(results, *res)
	}
	return results
}
