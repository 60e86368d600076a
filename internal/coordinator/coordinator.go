// Package coordinator runs the agent pipeline: the four section agents in
// parallel under a shared token budget, then the synthesis agent over their
// results. Agent failures degrade to terminal results; they never abort the
// run.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oyvinds78/morningdigest/internal/agents"
	"github.com/oyvinds78/morningdigest/internal/budget"
	"github.com/oyvinds78/morningdigest/internal/collectors"
	"github.com/oyvinds78/morningdigest/internal/digest"
	"github.com/oyvinds78/morningdigest/internal/llm"
)

const (
	defaultRetries     = 2
	defaultRetryDelay  = 2 * time.Second
	defaultCallTimeout = 30 * time.Second
)

// sourceByRole maps each section agent to the collector snapshot it reads.
var sourceByRole = map[agents.Role]string{
	agents.RoleNews:       collectors.SourceNews,
	agents.RoleTech:       collectors.SourceTech,
	agents.RoleCalendar:   collectors.SourceCalendar,
	agents.RoleNewsletter: collectors.SourceMail,
}

// Coordinator owns the agent set and schedules one pipeline run at a time.
type Coordinator struct {
	agents      map[agents.Role]agents.Agent
	budget      *budget.Budget
	log         zerolog.Logger
	retries     int
	retryDelay  time.Duration
	callTimeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetries sets how many times a transient agent failure is retried.
func WithRetries(n int) Option {
	return func(c *Coordinator) { c.retries = n }
}

// WithRetryDelay sets the fixed pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.retryDelay = d }
}

// WithCallTimeout sets the deadline for a single agent attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.callTimeout = d }
}

// New builds a coordinator with the full agent pipeline on the given
// provider.
func New(provider llm.Provider, b *budget.Budget, logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		agents: map[agents.Role]agents.Agent{
			agents.RoleNews:       agents.NewNewsAgent(provider),
			agents.RoleTech:       agents.NewTechAgent(provider),
			agents.RoleCalendar:   agents.NewCalendarAgent(provider),
			agents.RoleNewsletter: agents.NewNewsletterAgent(provider),
			agents.RoleSynthesis:  agents.NewSynthesisAgent(provider),
		},
		budget:      b,
		log:         logger,
		retries:     defaultRetries,
		retryDelay:  defaultRetryDelay,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Outcome is the result of one pipeline run. Every role has an entry,
// synthesis included; nothing escapes as a Go error.
type Outcome struct {
	Results    map[agents.Role]*agents.Result
	TokensUsed int
	Duration   time.Duration
}

// Run executes the pipeline against the collected snapshots. The section
// agents run concurrently; synthesis starts only after all of them reach a
// terminal state.
func (c *Coordinator) Run(ctx context.Context, snapshots map[string]*digest.Snapshot, profile map[string]string) *Outcome {
	start := time.Now()
	results := make([]*agents.Result, len(agents.Roles))

	var wg sync.WaitGroup
	for i, role := range agents.Roles {
		wg.Add(1)
		go func(i int, role agents.Role) {
			defer wg.Done()
			results[i] = c.runSection(ctx, role, snapshots[sourceByRole[role]], profile)
		}(i, role)
	}
	wg.Wait()

	prior := make([]agents.Result, len(results))
	for i, r := range results {
		prior[i] = *r
	}
	synthesis := c.runAgent(ctx, c.agents[agents.RoleSynthesis], &agents.Input{
		Prior:   prior,
		Profile: profile,
	})

	out := &Outcome{
		Results:  make(map[agents.Role]*agents.Result, len(results)+1),
		Duration: time.Since(start),
	}
	for _, r := range results {
		out.Results[r.Role] = r
		out.TokensUsed += r.Usage.TotalTokens
	}
	out.Results[agents.RoleSynthesis] = synthesis
	out.TokensUsed += synthesis.Usage.TotalTokens

	c.log.Info().
		Int("tokens", out.TokensUsed).
		Dur("duration", out.Duration).
		Msg("pipeline run complete")
	return out
}

// RunOne executes a single role with full budget and retry semantics. Used
// by the test-agents command.
func (c *Coordinator) RunOne(ctx context.Context, role agents.Role, in *agents.Input) (*agents.Result, error) {
	ag, ok := c.agents[role]
	if !ok {
		return nil, fmt.Errorf("unknown agent role %q", role)
	}
	return c.runAgent(ctx, ag, in), nil
}

// runSection wraps runAgent with the snapshot precondition: an agent whose
// collector produced nothing fails immediately instead of burning tokens on
// an empty prompt. An empty-but-healthy snapshot still runs (an open
// calendar is real information).
func (c *Coordinator) runSection(ctx context.Context, role agents.Role, snap *digest.Snapshot, profile map[string]string) *agents.Result {
	if snap == nil || snap.Status == digest.StatusFailed {
		reason := "collector produced no data"
		if snap != nil && snap.Err != "" {
			reason = fmt.Sprintf("collector failed: %s", snap.Err)
		}
		c.log.Warn().Str("agent", string(role)).Str("reason", reason).Msg("agent not run")
		return &agents.Result{Role: role, State: agents.StateFailed, Reason: reason}
	}
	return c.runAgent(ctx, c.agents[role], &agents.Input{Snapshot: snap, Profile: profile})
}

// runAgent drives one agent through the call state machine: reserve budget,
// attempt with a per-call deadline, retry transient failures a fixed number
// of times, settle the reservation against what the call actually used.
func (c *Coordinator) runAgent(ctx context.Context, ag agents.Agent, in *agents.Input) *agents.Result {
	role := ag.Role()
	logger := c.log.With().Str("agent", string(role)).Logger()

	reserved := ag.Estimate(in)
	if err := c.budget.Reserve(reserved); err != nil {
		var exceeded *budget.ExceededError
		if errors.As(err, &exceeded) {
			logger.Warn().Int("reserved", reserved).Str("reason", exceeded.Reason).Msg("agent skipped")
			return &agents.Result{Role: role, State: agents.StateSkipped, Reason: exceeded.Reason}
		}
		return &agents.Result{Role: role, State: agents.StateSkipped, Reason: err.Error()}
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.retries+1; attempt++ {
		attempts = attempt
		logger.Debug().Int("attempt", attempt).Msg("agent running")

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		res, err := ag.Execute(callCtx, in)
		cancel()

		if err == nil {
			res.Attempts = attempt
			c.budget.Settle(reserved, res.Usage.TotalTokens)
			logger.Info().
				Int("attempt", attempt).
				Int("tokens", res.Usage.TotalTokens).
				Dur("duration", res.Duration).
				Msg("agent succeeded")
			return res
		}
		lastErr = err

		if attempt <= c.retries && llm.IsTransient(err) && ctx.Err() == nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("agent retrying")
			if sleep(ctx, c.retryDelay) != nil {
				break
			}
			continue
		}
		break
	}

	// The call consumed nothing that counts: refund the reservation.
	c.budget.Settle(reserved, 0)
	logger.Error().Err(lastErr).Int("attempts", attempts).Msg("agent failed")
	return &agents.Result{
		Role:     role,
		State:    agents.StateFailed,
		Reason:   lastErr.Error(),
		Attempts: attempts,
	}
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
