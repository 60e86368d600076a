// Package budget enforces hourly and daily token ceilings across concurrent
// agent calls. The whole read-check-deduct step happens under one lock so
// two callers can never jointly pass a check before either deducts.
package budget

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Ceilings holds the configured token limits. A zero ceiling permits
// nothing; a negative ceiling disables that check.
type Ceilings struct {
	Daily      int `json:"daily"`
	Hourly     int `json:"hourly"`
	PerRequest int `json:"per_request"`
}

// Usage is a point-in-time view of budget consumption.
type Usage struct {
	DailyUsed   int `json:"daily_used"`
	DailyLimit  int `json:"daily_limit"`
	HourlyUsed  int `json:"hourly_used"`
	HourlyLimit int `json:"hourly_limit"`
}

// ExceededError reports a reservation rejected by a ceiling. It is a
// normal degradation signal, not a failure of the budget itself.
type ExceededError struct {
	Reason string
}

func (e *ExceededError) Error() string { return "token budget exceeded: " + e.Reason }

type state struct {
	DailyUsed  int    `json:"daily_used"`
	HourlyUsed int    `json:"hourly_used"`
	Day        string `json:"day"`
	HourKey    string `json:"hour_key"`
}

// Budget is a process-scoped token counter with daily and hourly windows.
// Windows reset lazily on the first reservation after a boundary crossing.
type Budget struct {
	mu    sync.Mutex
	ceil  Ceilings
	st    state
	path  string
	clock func() time.Time
}

// Option configures a Budget.
type Option func(*Budget)

// WithStateFile persists window usage to path so budget state survives
// across runs, as one digest day spans many process invocations.
func WithStateFile(path string) Option {
	return func(b *Budget) { b.path = path }
}

// WithClock overrides the time source. Used by tests to cross window
// boundaries deterministically.
func WithClock(clock func() time.Time) Option {
	return func(b *Budget) { b.clock = clock }
}

// New creates a budget with the given ceilings.
func New(ceil Ceilings, opts ...Option) *Budget {
	b := &Budget{
		ceil:  ceil,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	now := b.clock()
	b.st = state{Day: dayKey(now), HourKey: hourKey(now)}
	if b.path != "" {
		b.load()
	}
	return b
}

// Reserve atomically checks the requested tokens against every ceiling and
// deducts them. It returns an ExceededError when any ceiling would be
// crossed; usage is untouched in that case.
func (b *Budget) Reserve(tokens int) error {
	if tokens < 0 {
		tokens = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	if b.ceil.PerRequest >= 0 && tokens > b.ceil.PerRequest {
		return &ExceededError{
			Reason: fmt.Sprintf("request exceeds per-request limit (%d > %d)", tokens, b.ceil.PerRequest),
		}
	}
	if b.ceil.Daily >= 0 && b.st.DailyUsed+tokens > b.ceil.Daily {
		return &ExceededError{
			Reason: fmt.Sprintf("daily limit reached (remaining %d, requested %d)", b.ceil.Daily-b.st.DailyUsed, tokens),
		}
	}
	if b.ceil.Hourly >= 0 && b.st.HourlyUsed+tokens > b.ceil.Hourly {
		return &ExceededError{
			Reason: fmt.Sprintf("hourly limit reached (remaining %d, requested %d)", b.ceil.Hourly-b.st.HourlyUsed, tokens),
		}
	}

	b.st.DailyUsed += tokens
	b.st.HourlyUsed += tokens
	b.save()
	return nil
}

// Settle reconciles a reservation with the actual usage reported by the
// provider. Refunds when the call came in under the reserved amount; charges
// the difference when it ran over. Usage never goes negative.
func (b *Budget) Settle(reserved, actual int) {
	if reserved < 0 {
		reserved = 0
	}
	if actual < 0 {
		actual = 0
	}
	delta := actual - reserved
	if delta == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	b.st.DailyUsed += delta
	b.st.HourlyUsed += delta
	if b.st.DailyUsed < 0 {
		b.st.DailyUsed = 0
	}
	if b.st.HourlyUsed < 0 {
		b.st.HourlyUsed = 0
	}
	b.save()
}

// Usage returns the current consumption against each ceiling.
func (b *Budget) Usage() Usage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	return Usage{
		DailyUsed:   b.st.DailyUsed,
		DailyLimit:  b.ceil.Daily,
		HourlyUsed:  b.st.HourlyUsed,
		HourlyLimit: b.ceil.Hourly,
	}
}

// rollover resets window counters when a day or hour boundary has been
// crossed since the last mutation. Callers must hold the lock.
func (b *Budget) rollover() {
	now := b.clock()
	if day := dayKey(now); day != b.st.Day {
		b.st.DailyUsed = 0
		b.st.Day = day
	}
	if hour := hourKey(now); hour != b.st.HourKey {
		b.st.HourlyUsed = 0
		b.st.HourKey = hour
	}
}

func (b *Budget) load() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return
	}
	now := b.clock()
	if st.Day == dayKey(now) {
		b.st.DailyUsed = st.DailyUsed
	}
	if st.HourKey == hourKey(now) {
		b.st.HourlyUsed = st.HourlyUsed
	}
}

// save persists state best-effort; budget enforcement never fails on disk
// errors.
func (b *Budget) save() {
	if b.path == "" {
		return
	}
	data, err := json.MarshalIndent(b.st, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(b.path, data, 0o644)
}

func dayKey(t time.Time) string  { return t.Format("2006-01-02") }
func hourKey(t time.Time) string { return t.Format("2006-01-02T15") }
