package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mail "gopkg.in/mail.v2"

	"github.com/oyvinds78/morningdigest/internal/digest"
	"github.com/oyvinds78/morningdigest/internal/render"
)

func testConfig() SMTPConfig {
	return SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "digest",
		Password: "secret",
		From:     "digest@example.com",
		To:       "reader@example.com",
	}
}

func testDigest() *digest.Digest {
	return &digest.Digest{
		RunID:       "run-1",
		Title:       "Morning Digest for Sunday, 23 August 2026",
		GeneratedAt: time.Date(2026, 8, 23, 7, 0, 0, 0, time.UTC),
		Sections: []digest.Section{
			{Role: "synthesis", Title: "Morning Briefing", Content: "A quiet day ahead."},
		},
	}
}

// capture replaces the dialer so tests never touch the network.
func capture(m *Mailer) *[]*mail.Message {
	var sent []*mail.Message
	m.send = func(msgs ...*mail.Message) error {
		sent = append(sent, msgs...)
		return nil
	}
	return &sent
}

func TestSendRequiresConfiguration(t *testing.T) {
	m := NewMailer(SMTPConfig{}, zerolog.Nop())
	err := m.Send(testDigest(), render.FormatText)
	assert.ErrorContains(t, err, "not configured")
}

func TestSendRejectsJSONFormat(t *testing.T) {
	m := NewMailer(testConfig(), zerolog.Nop())
	capture(m)
	err := m.Send(testDigest(), render.FormatJSON)
	assert.Error(t, err)
}

func TestSendTextOnly(t *testing.T) {
	m := NewMailer(testConfig(), zerolog.Nop())
	sent := capture(m)

	require.NoError(t, m.Send(testDigest(), render.FormatText))
	require.Len(t, *sent, 1)

	var buf bytes.Buffer
	_, err := (*sent)[0].WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "To: reader@example.com")
	assert.Contains(t, raw, "text/plain")
	assert.NotContains(t, raw, "text/html")
}

func TestSendHTMLIsMultipart(t *testing.T) {
	m := NewMailer(testConfig(), zerolog.Nop())
	sent := capture(m)

	require.NoError(t, m.Send(testDigest(), render.FormatHTML))
	require.Len(t, *sent, 1)

	var buf bytes.Buffer
	_, err := (*sent)[0].WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "text/html")
	assert.Contains(t, raw, "Subject: ")
}
