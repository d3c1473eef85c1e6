// Package archive maintains the append-only log of deleted records. Every
// delete appends its payload here first, so any deletion can be undone by
// replaying the log back into the vector store.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"facetrace/internal/vectorstore"
)

// Entry is one archived deletion. Entries are ordered newest first.
type Entry struct {
	ID        string              `json:"id"`
	Payload   vectorstore.Payload `json:"payload"`
	DeletedAt time.Time           `json:"deleted_at"`
}

// Log is a file-backed archive of deleted records.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog creates an archive log at the given path. The file is created on
// first append.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Append prepends an entry to the log. The whole file is rewritten atomically
// (temp file, sync, rename) so a crash never corrupts earlier entries.
func (l *Log) Append(ctx context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return err
	}
	entries = append([]Entry{entry}, entries...)
	return l.write(entries)
}

// Entries returns all archived deletions, newest first. A missing log file
// yields an empty slice.
func (l *Log) Entries(ctx context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *Log) read() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive log: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse archive log: %w", err)
	}
	return entries, nil
}

func (l *Log) write(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal archive log: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp archive file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write archive log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync archive log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close archive log: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace archive log: %w", err)
	}
	return nil
}
