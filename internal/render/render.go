// Package render formats a digest as plain text, HTML or JSON. Unavailable
// sections are always shown with their reason rather than dropped.
package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/oyvinds78/morningdigest/internal/digest"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatText:
		return FormatText, nil
	case FormatHTML:
		return FormatHTML, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown format %q (want text, html or json)", s)
}

// Render encodes the digest in the given format.
func Render(d *digest.Digest, format Format) (string, error) {
	switch format {
	case FormatText:
		return Text(d), nil
	case FormatHTML:
		return HTML(d)
	case FormatJSON:
		return JSON(d)
	}
	return "", fmt.Errorf("unknown format %q", format)
}

// Text renders the digest for terminals and plain-text email bodies.
func Text(d *digest.Digest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n%s\n\n", d.Title, strings.Repeat("=", len(d.Title)))

	for _, sec := range d.Sections {
		fmt.Fprintf(&b, "%s\n%s\n", sec.Title, strings.Repeat("-", len(sec.Title)))
		if sec.Unavailable {
			fmt.Fprintf(&b, "[unavailable: %s]\n\n", sec.Reason)
			continue
		}
		b.WriteString(sec.Content)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Generated %s in %s using %d tokens.\n",
		d.GeneratedAt.Format("2006-01-02 15:04"), d.Duration.Round(10*time.Millisecond), d.TokensUsed)
	return b.String()
}

var htmlTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; max-width: 640px; margin: 2em auto; color: #222; }
h1 { font-size: 1.5em; border-bottom: 2px solid #444; padding-bottom: 0.3em; }
h2 { font-size: 1.15em; margin-top: 1.6em; }
.unavailable { color: #888; font-style: italic; }
.section { white-space: pre-wrap; line-height: 1.45; }
.footer { margin-top: 2.5em; font-size: 0.8em; color: #999; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Sections}}
<h2>{{.Title}}</h2>
{{if .Unavailable}}<p class="unavailable">Unavailable: {{.Reason}}</p>
{{else}}<div class="section">{{.Content}}</div>
{{end}}{{end}}
<p class="footer">Generated {{.GeneratedAt.Format "2006-01-02 15:04"}} using {{.TokensUsed}} tokens.</p>
</body>
</html>
`))

// HTML renders the digest as a standalone HTML document.
func HTML(d *digest.Digest) (string, error) {
	var b strings.Builder
	if err := htmlTemplate.Execute(&b, d); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return b.String(), nil
}

// JSON renders the digest as indented JSON for machine consumers.
func JSON(d *digest.Digest) (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render json: %w", err)
	}
	return string(data) + "\n", nil
}
