// Package usage persists run metadata under the state directory: a
// last-run record that feeds the status command and a capped token usage
// history.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	lastRunFile  = "last_run.json"
	usageLogFile = "token_usage.json"

	// maxEntries caps the usage history so the file never grows unbounded.
	maxEntries = 200
)

// RunRecord summarizes one digest run.
type RunRecord struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Window     time.Duration     `json:"window"`
	Sources    map[string]string `json:"sources"`
	Agents     map[string]string `json:"agents"`
	TokensUsed int               `json:"tokens_used"`
}

// Entry is one line of the token usage history.
type Entry struct {
	At     time.Time `json:"at"`
	RunID  string    `json:"run_id"`
	Tokens int       `json:"tokens"`
}

// Store reads and writes run metadata files in dir.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates a store over dir. The directory must already exist.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// RecordRun writes the last-run record and appends a usage entry.
func (s *Store) RecordRun(rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, lastRunFile), data, 0o644); err != nil {
		return fmt.Errorf("write last run: %w", err)
	}

	entries, _ := s.readHistory()
	entries = append(entries, Entry{At: rec.FinishedAt, RunID: rec.RunID, Tokens: rec.TokensUsed})
	if len(entries) > maxEntries {
		entries = entries[len(entries)-maxEntries:]
	}

	data, err = json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal usage history: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, usageLogFile), data, 0o644); err != nil {
		return fmt.Errorf("write usage history: %w", err)
	}
	return nil
}

// LastRun returns the most recent run record, or nil when none exists yet.
func (s *Store) LastRun() (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, lastRunFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse last run: %w", err)
	}
	return &rec, nil
}

// History returns the recorded usage entries, oldest first.
func (s *Store) History() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readHistory()
}

func (s *Store) readHistory() ([]Entry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, usageLogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse usage history: %w", err)
	}
	return entries, nil
}
