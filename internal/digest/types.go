// Package digest defines the data model shared across collectors, agents
// and the orchestrator: normalized collector snapshots on the way in, and
// the merged digest document on the way out.
package digest

import "time"

// Status describes the outcome of one collector run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Item is a single normalized record from an external source.
type Item struct {
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Link      string    `json:"link,omitempty"`
	Published time.Time `json:"published,omitempty"`
	Text      string    `json:"text,omitempty"`
	Priority  string    `json:"priority,omitempty"`
}

// Snapshot is the output of one collector for one run. It is created per
// digest run and discarded after the merge step.
type Snapshot struct {
	Source      string    `json:"source"`
	Items       []Item    `json:"items"`
	Status      Status    `json:"status"`
	Err         string    `json:"error,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// Failed builds a snapshot for a collector that produced no usable data.
// A failed collector yields this instead of propagating its error.
func Failed(source string, reason string) *Snapshot {
	return &Snapshot{
		Source:      source,
		Items:       nil,
		Status:      StatusFailed,
		Err:         reason,
		CollectedAt: time.Now(),
	}
}

// Section is one block of the final digest. Unavailable sections carry the
// reason so the render step can annotate rather than silently omit them.
type Section struct {
	Role        string   `json:"role"`
	Title       string   `json:"title"`
	Content     string   `json:"content,omitempty"`
	Highlights  []string `json:"highlights,omitempty"`
	Unavailable bool     `json:"unavailable"`
	Reason      string   `json:"reason,omitempty"`
}

// Digest is the merged, user-facing output document. It is always
// producible: a fully degraded run yields all-unavailable sections.
type Digest struct {
	RunID       string        `json:"run_id"`
	Title       string        `json:"title"`
	GeneratedAt time.Time     `json:"generated_at"`
	Window      time.Duration `json:"window"`
	Sections    []Section     `json:"sections"`
	TokensUsed  int           `json:"tokens_used"`
	Duration    time.Duration `json:"duration"`
}
