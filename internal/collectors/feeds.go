package collectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/oyvinds78/morningdigest/internal/digest"
)

// FeedSource is one RSS/Atom feed with a priority class that steers
// ordering within the snapshot.
type FeedSource struct {
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url" validate:"required,url"`
	Priority string `mapstructure:"priority"`
}

var priorityScore = map[string]int{"high": 3, "medium": 2, "low": 1}

// FeedCollector pulls items from a set of feeds and filters them to the
// requested window. It backs the news, tech and mail (newsletter export)
// sources, which differ only in their feed lists.
type FeedCollector struct {
	name    string
	sources []FeedSource
	client  *http.Client
	log     zerolog.Logger
}

// NewFeedCollector creates a collector named name over the given feeds.
func NewFeedCollector(name string, sources []FeedSource, timeout time.Duration, log zerolog.Logger) *FeedCollector {
	return &FeedCollector{
		name:    name,
		sources: sources,
		client:  newHTTPClient(timeout),
		log:     log.With().Str("collector", name).Logger(),
	}
}

// Name returns the source name.
func (c *FeedCollector) Name() string { return c.name }

// Collect fetches every configured feed, skipping ones that fail. The
// snapshot status is partial when some feeds failed and failed when all did.
func (c *FeedCollector) Collect(ctx context.Context, window time.Duration) (*digest.Snapshot, error) {
	if len(c.sources) == 0 {
		return nil, errors.New("no feeds configured")
	}

	cutoff := time.Now().Add(-window)
	parser := gofeed.NewParser()

	var items []digest.Item
	failed := 0
	for _, src := range c.sources {
		feedItems, err := c.fetchFeed(ctx, parser, src, cutoff)
		if err != nil {
			c.log.Warn().Str("feed", src.Name).Err(err).Msg("feed fetch failed")
			failed++
			continue
		}
		items = append(items, feedItems...)
	}

	if failed == len(c.sources) {
		return nil, fmt.Errorf("all %d feeds failed", failed)
	}

	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := priorityScore[items[i].Priority], priorityScore[items[j].Priority]
		if pi != pj {
			return pi > pj
		}
		return items[i].Published.After(items[j].Published)
	})

	status := digest.StatusOK
	if failed > 0 {
		status = digest.StatusPartial
	}

	return &digest.Snapshot{
		Source:      c.name,
		Items:       items,
		Status:      status,
		CollectedAt: time.Now(),
	}, nil
}

func (c *FeedCollector) fetchFeed(ctx context.Context, parser *gofeed.Parser, src FeedSource, cutoff time.Time) ([]digest.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "MorningDigest/1.0 (Personal News Aggregator)")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	feed, err := parser.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	var items []digest.Item
	for _, it := range feed.Items {
		var pub time.Time
		if it.PublishedParsed != nil {
			pub = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			pub = *it.UpdatedParsed
		}
		if !pub.IsZero() && pub.Before(cutoff) {
			continue
		}

		items = append(items, digest.Item{
			Title:     strings.TrimSpace(it.Title),
			Source:    src.Name,
			Link:      strings.TrimSpace(it.Link),
			Published: pub,
			Text:      stripHTML(it.Description),
			Priority:  src.Priority,
		})
	}
	return items, nil
}

// Healthy checks that feeds are configured and the first one is reachable.
func (c *FeedCollector) Healthy(ctx context.Context) error {
	if len(c.sources) == 0 {
		return errors.New("no feeds configured")
	}
	return ping(ctx, c.client, c.sources[0].URL)
}

// stripHTML reduces feed descriptions to plain text for prompt building.
func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
