// ABOUTME: SQLite storage implementation using modernc.org/sqlite (pure Go)
// ABOUTME: Persists delivered entry ids, the timestamp cursor and HTTP fetch validators

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite storage instance.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One forwarder per ledger; a single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS delivered (
			entry_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			link TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMP,
			seen_at TIMESTAMP NOT NULL,
			cycle_id TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_delivered_seen_at ON delivered(seen_at);

		CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ledger Operations

// Seen reports whether an entry id has been recorded.
func (s *SQLiteStore) Seen(ctx context.Context, entryID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM delivered WHERE entry_id = ?", entryID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check entry: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records an entry. Marking an id twice keeps the first record.
func (s *SQLiteStore) MarkSeen(ctx context.Context, rec Record) error {
	if rec.SeenAt.IsZero() {
		rec.SeenAt = time.Now().UTC()
	}
	query := `
		INSERT INTO delivered (entry_id, title, link, published_at, seen_at, cycle_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.EntryID, rec.Title, rec.Link, timeToSQL(rec.Published), rec.SeenAt.UTC(), rec.CycleID,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Forget removes a record so the entry is delivered again next cycle.
func (s *SQLiteStore) Forget(ctx context.Context, entryID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM delivered WHERE entry_id = ?", entryID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("record %s: %w", entryID, ErrNotFound)
	}
	return nil
}

// ListRecords returns records, most recently seen first. limit <= 0 means all.
func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT entry_id, title, link, published_at, seen_at, cycle_id
		FROM delivered ORDER BY seen_at DESC, entry_id ASC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var published sql.NullTime
		if err := rows.Scan(&rec.EntryID, &rec.Title, &rec.Link, &published, &rec.SeenAt, &rec.CycleID); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if published.Valid {
			rec.Published = published.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountRecords returns the number of recorded entries.
func (s *SQLiteStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM delivered").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Cursor Operations

// Cursor returns the stored cursor; ok is false when none was ever set.
func (s *SQLiteStore) Cursor(ctx context.Context) (time.Time, bool, error) {
	value, err := s.getState(ctx, KeyCursor)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cursor %q: %w", value, err)
	}
	return t, true, nil
}

// SetCursor replaces the cursor.
func (s *SQLiteStore) SetCursor(ctx context.Context, t time.Time) error {
	return s.setState(ctx, map[string]string{KeyCursor: t.UTC().Format(time.RFC3339Nano)})
}

// Fetch State

// FetchState returns the stored validators, zero-valued when absent.
func (s *SQLiteStore) FetchState(ctx context.Context) (FetchState, error) {
	var st FetchState
	var err error

	if st.ETag, err = s.optionalState(ctx, KeyETag); err != nil {
		return st, err
	}
	if st.LastModified, err = s.optionalState(ctx, KeyLastModified); err != nil {
		return st, err
	}
	fetched, err := s.optionalState(ctx, KeyFetchedAt)
	if err != nil {
		return st, err
	}
	if fetched != "" {
		if st.FetchedAt, err = time.Parse(time.RFC3339Nano, fetched); err != nil {
			return st, fmt.Errorf("parse fetched_at %q: %w", fetched, err)
		}
	}
	return st, nil
}

// SaveFetchState replaces the stored validators.
func (s *SQLiteStore) SaveFetchState(ctx context.Context, st FetchState) error {
	fetched := ""
	if !st.FetchedAt.IsZero() {
		fetched = st.FetchedAt.UTC().Format(time.RFC3339Nano)
	}
	return s.setState(ctx, map[string]string{
		KeyETag:         st.ETag,
		KeyLastModified: st.LastModified,
		KeyFetchedAt:    fetched,
	})
}

// Maintenance

// Reset wipes every record and state key.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM delivered"); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM state"); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) getState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("state %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read state %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) optionalState(ctx context.Context, key string) (string, error) {
	value, err := s.getState(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) setState(ctx context.Context, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state update: %w", err)
	}
	defer tx.Rollback()

	for key, value := range values {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			key, value,
		)
		if err != nil {
			return fmt.Errorf("write state %s: %w", key, err)
		}
	}
	return tx.Commit()
}

func timeToSQL(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

var _ Store = (*SQLiteStore)(nil)
