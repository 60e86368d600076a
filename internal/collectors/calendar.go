package collectors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oyvinds78/morningdigest/internal/digest"
)

// CalendarCollector fetches an ICS export and returns upcoming events.
// Unlike the feed collectors, its window looks forward: the digest covers
// what is on the schedule, not what already happened.
type CalendarCollector struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewCalendarCollector creates a collector for the given ICS URL.
func NewCalendarCollector(url string, timeout time.Duration, log zerolog.Logger) *CalendarCollector {
	return &CalendarCollector{
		url:    url,
		client: newHTTPClient(timeout),
		log:    log.With().Str("collector", SourceCalendar).Logger(),
	}
}

// Name returns the source name.
func (c *CalendarCollector) Name() string { return SourceCalendar }

// Collect fetches the calendar and keeps events starting between now and
// now+window.
func (c *CalendarCollector) Collect(ctx context.Context, window time.Duration) (*digest.Snapshot, error) {
	if c.url == "" {
		return nil, errors.New("calendar url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	events, err := parseICS(resp.Body)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	until := now.Add(window)
	var items []digest.Item
	for _, ev := range events {
		if ev.Start.Before(now) || ev.Start.After(until) {
			continue
		}
		text := ev.Start.Format("Mon 15:04")
		if ev.Location != "" {
			text += " @ " + ev.Location
		}
		if ev.Description != "" {
			text += " — " + ev.Description
		}
		items = append(items, digest.Item{
			Title:     ev.Summary,
			Source:    SourceCalendar,
			Published: ev.Start,
			Text:      text,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Published.Before(items[j].Published) })

	return &digest.Snapshot{
		Source:      SourceCalendar,
		Items:       items,
		Status:      digest.StatusOK,
		CollectedAt: time.Now(),
	}, nil
}

// Healthy checks configuration and endpoint reachability.
func (c *CalendarCollector) Healthy(ctx context.Context) error {
	if c.url == "" {
		return errors.New("calendar url not configured")
	}
	return ping(ctx, c.client, c.url)
}

type icsEvent struct {
	Summary     string
	Location    string
	Description string
	Start       time.Time
}

// parseICS extracts VEVENT blocks from an iCalendar stream. Only the
// fields the digest needs are read; long lines folded per RFC 5545 are
// unfolded before parsing.
func parseICS(r io.Reader) ([]icsEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var events []icsEvent
	var cur *icsEvent
	for _, line := range lines {
		switch {
		case line == "BEGIN:VEVENT":
			cur = &icsEvent{}
		case line == "END:VEVENT":
			if cur != nil && cur.Summary != "" && !cur.Start.IsZero() {
				events = append(events, *cur)
			}
			cur = nil
		case cur != nil:
			name, value, ok := splitICSLine(line)
			if !ok {
				continue
			}
			switch name {
			case "SUMMARY":
				cur.Summary = unescapeICS(value)
			case "LOCATION":
				cur.Location = unescapeICS(value)
			case "DESCRIPTION":
				cur.Description = unescapeICS(value)
			case "DTSTART":
				if t, err := parseICSTime(value); err == nil {
					cur.Start = t
				}
			}
		}
	}
	return events, nil
}

// splitICSLine separates "NAME;PARAM=X:value" into the property name and
// its value, dropping parameters.
func splitICSLine(line string) (name, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	name = line[:idx]
	value = line[idx+1:]
	if p := strings.Index(name, ";"); p >= 0 {
		name = name[:p]
	}
	return name, value, true
}

func parseICSTime(value string) (time.Time, error) {
	if strings.HasSuffix(value, "Z") {
		return time.ParseInLocation("20060102T150405Z", value, time.UTC)
	}
	for _, layout := range []string{"20060102T150405", "20060102"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported DTSTART format: %s", value)
}

func unescapeICS(s string) string {
	replacer := strings.NewReplacer(`\n`, " ", `\,`, ",", `\;`, ";", `\\`, `\`)
	return strings.TrimSpace(replacer.Replace(s))
}
