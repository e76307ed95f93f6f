// ABOUTME: Charm KV ledger backend using the transactional Do API
// ABOUTME: Short-lived connections so the CLI and a running forwarder can share one database

package charm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
	"github.com/dgraph-io/badger/v3"

	"github.com/harper/herald/internal/storage"
)

const (
	// Key prefixes for KV store
	SeenPrefix  = "seen:"
	StatePrefix = "state:"

	// Default Charm server
	DefaultCharmHost = "charm.2389.dev"

	// DBName is the name of the charm kv database for herald.
	DBName = "herald"
)

// Client implements storage.Store on top of charm kv. It does NOT hold a
// persistent connection: each operation opens the database, performs the
// operation, and closes it.
type Client struct {
	dbName   string
	autoSync bool
}

var _ storage.Store = (*Client)(nil)

// NewClient creates a new client.
func NewClient() (*Client, error) {
	// Set Charm server before operations
	if os.Getenv("CHARM_HOST") == "" {
		os.Setenv("CHARM_HOST", DefaultCharmHost)
	}

	return &Client{
		dbName:   DBName,
		autoSync: true,
	}, nil
}

// NewClientWithDBName creates a Client with a custom database name and sync setting.
func NewClientWithDBName(dbName string, autoSync bool) *Client {
	return &Client{
		dbName:   dbName,
		autoSync: autoSync,
	}
}

// DoReadOnly executes a function with read-only database access.
func (c *Client) DoReadOnly(fn func(k *kv.KV) error) error {
	return kv.DoReadOnly(c.dbName, fn)
}

// Do executes a function with write access to the database.
func (c *Client) Do(fn func(k *kv.KV) error) error {
	return kv.Do(c.dbName, func(k *kv.KV) error {
		if err := fn(k); err != nil {
			return err
		}
		if c.autoSync {
			return k.Sync()
		}
		return nil
	})
}

// SetAutoSync enables or disables automatic sync after writes.
func (c *Client) SetAutoSync(enabled bool) {
	c.autoSync = enabled
}

// ID returns the user's Charm ID for status display.
func (c *Client) ID() (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", err
	}
	return cc.ID()
}

// Close is a no-op; connections are closed after each operation.
func (c *Client) Close() error {
	return nil
}

// Ledger Operations

func seenKey(id string) []byte {
	return []byte(SeenPrefix + id)
}

func stateKey(key string) []byte {
	return []byte(StatePrefix + key)
}

// get returns nil data for a missing key.
func get(k *kv.KV, key []byte) ([]byte, error) {
	data, err := k.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return data, err
}

// Seen reports whether an entry id has been recorded.
func (c *Client) Seen(_ context.Context, entryID string) (bool, error) {
	var seen bool
	err := c.DoReadOnly(func(k *kv.KV) error {
		data, err := get(k, seenKey(entryID))
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		seen = data != nil
		return nil
	})
	return seen, err
}

// MarkSeen records an entry. Marking an id twice keeps the first record.
func (c *Client) MarkSeen(_ context.Context, rec storage.Record) error {
	if rec.SeenAt.IsZero() {
		rec.SeenAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return c.Do(func(k *kv.KV) error {
		existing, err := get(k, seenKey(rec.EntryID))
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		if existing != nil {
			return nil
		}
		return k.Set(seenKey(rec.EntryID), data)
	})
}

// Forget removes a record so the entry is delivered again next cycle.
func (c *Client) Forget(_ context.Context, entryID string) error {
	return c.Do(func(k *kv.KV) error {
		existing, err := get(k, seenKey(entryID))
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("record %s: %w", entryID, storage.ErrNotFound)
		}
		return k.Delete(seenKey(entryID))
	})
}

// ListRecords returns records, most recently seen first. limit <= 0 means all.
func (c *Client) ListRecords(_ context.Context, limit int) ([]storage.Record, error) {
	var records []storage.Record
	warnedCorruption := false

	err := c.DoReadOnly(func(k *kv.KV) error {
		keys, err := k.Keys()
		if err != nil {
			return fmt.Errorf("list keys: %w", err)
		}

		for _, key := range keys {
			if !strings.HasPrefix(string(key), SeenPrefix) {
				continue
			}

			data, err := k.Get(key)
			if err == nil {
				var rec storage.Record
				if err = json.Unmarshal(data, &rec); err == nil {
					records = append(records, rec)
					continue
				}
			}
			if !warnedCorruption {
				slog.Warn("some ledger records may be corrupted", "db", c.dbName, "err", err)
				warnedCorruption = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].SeenAt.Equal(records[j].SeenAt) {
			return records[i].EntryID < records[j].EntryID
		}
		return records[i].SeenAt.After(records[j].SeenAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// CountRecords returns the number of recorded entries.
func (c *Client) CountRecords(_ context.Context) (int, error) {
	var n int
	err := c.DoReadOnly(func(k *kv.KV) error {
		keys, err := k.Keys()
		if err != nil {
			return fmt.Errorf("list keys: %w", err)
		}
		for _, key := range keys {
			if strings.HasPrefix(string(key), SeenPrefix) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// Cursor Operations

// Cursor returns the stored cursor; ok is false when none was ever set.
func (c *Client) Cursor(_ context.Context) (time.Time, bool, error) {
	var raw []byte
	err := c.DoReadOnly(func(k *kv.KV) error {
		var err error
		raw, err = get(k, stateKey(storage.KeyCursor))
		return err
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get cursor: %w", err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cursor %q: %w", raw, err)
	}
	return t, true, nil
}

// SetCursor replaces the cursor.
func (c *Client) SetCursor(_ context.Context, t time.Time) error {
	return c.Do(func(k *kv.KV) error {
		return k.Set(stateKey(storage.KeyCursor), []byte(t.UTC().Format(time.RFC3339Nano)))
	})
}

// Fetch State

// FetchState returns the stored validators, zero-valued when absent.
func (c *Client) FetchState(_ context.Context) (storage.FetchState, error) {
	var st storage.FetchState
	var fetched []byte

	err := c.DoReadOnly(func(k *kv.KV) error {
		etag, err := get(k, stateKey(storage.KeyETag))
		if err != nil {
			return err
		}
		lastModified, err := get(k, stateKey(storage.KeyLastModified))
		if err != nil {
			return err
		}
		if fetched, err = get(k, stateKey(storage.KeyFetchedAt)); err != nil {
			return err
		}
		st.ETag = string(etag)
		st.LastModified = string(lastModified)
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("get fetch state: %w", err)
	}

	if len(fetched) > 0 {
		if st.FetchedAt, err = time.Parse(time.RFC3339Nano, string(fetched)); err != nil {
			return st, fmt.Errorf("parse fetched_at %q: %w", fetched, err)
		}
	}
	return st, nil
}

// SaveFetchState replaces the stored validators.
func (c *Client) SaveFetchState(_ context.Context, st storage.FetchState) error {
	fetched := ""
	if !st.FetchedAt.IsZero() {
		fetched = st.FetchedAt.UTC().Format(time.RFC3339Nano)
	}
	return c.Do(func(k *kv.KV) error {
		if err := k.Set(stateKey(storage.KeyETag), []byte(st.ETag)); err != nil {
			return err
		}
		if err := k.Set(stateKey(storage.KeyLastModified), []byte(st.LastModified)); err != nil {
			return err
		}
		return k.Set(stateKey(storage.KeyFetchedAt), []byte(fetched))
	})
}

// Maintenance

// Reset wipes all local data.
func (c *Client) Reset(_ context.Context) error {
	return kv.Do(c.dbName, func(k *kv.KV) error {
		return k.Reset()
	})
}
