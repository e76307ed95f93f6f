// ABOUTME: Storage interface and types for the durable delivery ledger
// ABOUTME: Defines the contract for seen-entry records, the timestamp cursor and fetch validators

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned when a record or state key does not exist.
var ErrNotFound = errors.New("not found")

// State keys shared by every backend.
const (
	KeyCursor       = "cursor"
	KeyETag         = "etag"
	KeyLastModified = "last_modified"
	KeyFetchedAt    = "fetched_at"
)

// Record is one entry the ledger has accepted for delivery.
type Record struct {
	EntryID   string    `json:"entry_id"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Published time.Time `json:"published_at"`
	SeenAt    time.Time `json:"seen_at"`
	CycleID   string    `json:"cycle_id"`
}

// FetchState holds the HTTP validators from the last successful extraction.
type FetchState struct {
	ETag         string
	LastModified string
	FetchedAt    time.Time
}

// Store defines the durable state shared by both dedup policies.
type Store interface {
	// Close closes the store and releases resources.
	Close() error

	// Ledger Operations

	// Seen reports whether an entry id has been recorded.
	Seen(ctx context.Context, entryID string) (bool, error)

	// MarkSeen records an entry. Marking an id twice keeps the first record.
	MarkSeen(ctx context.Context, rec Record) error

	// Forget removes a record so the entry is delivered again next cycle.
	Forget(ctx context.Context, entryID string) error

	// ListRecords returns records, most recently seen first. limit <= 0 means all.
	ListRecords(ctx context.Context, limit int) ([]Record, error)

	// CountRecords returns the number of recorded entries.
	CountRecords(ctx context.Context) (int, error)

	// Cursor Operations

	// Cursor returns the stored cursor; ok is false when none was ever set.
	Cursor(ctx context.Context) (t time.Time, ok bool, err error)

	// SetCursor replaces the cursor.
	SetCursor(ctx context.Context, t time.Time) error

	// Fetch State

	// FetchState returns the stored validators, zero-valued when absent.
	FetchState(ctx context.Context) (FetchState, error)

	// SaveFetchState replaces the stored validators.
	SaveFetchState(ctx context.Context, st FetchState) error

	// Maintenance

	// Reset wipes every record and state key.
	Reset(ctx context.Context) error
}

// DefaultDataDir returns the directory holding herald's local state.
func DefaultDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "herald")
}

// DBPath returns the sqlite file inside dataDir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "herald.db")
}
