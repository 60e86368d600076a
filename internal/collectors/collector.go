// Package collectors fetches and normalizes data from the external sources
// feeding the digest: news and article feeds, a calendar, a newsletter
// inbox feed and a weather API. Each collector produces one Snapshot per
// run; failures degrade to a failed Snapshot at the orchestrator boundary.
package collectors

import (
	"context"
	"net/http"
	"time"

	"github.com/oyvinds78/morningdigest/internal/digest"
)

// Source names used as snapshot identifiers and section roles.
const (
	SourceNews     = "news"
	SourceTech     = "tech"
	SourceCalendar = "calendar"
	SourceMail     = "mail"
	SourceWeather  = "weather"
)

// Collector fetches recent items from one external source for a time window.
type Collector interface {
	Name() string
	Collect(ctx context.Context, window time.Duration) (*digest.Snapshot, error)
	// Healthy verifies configuration and reachability without fetching data.
	Healthy(ctx context.Context) error
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// ping issues a HEAD request to check reachability for health reporting.
func ping(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
