// ABOUTME: Dedup policies deciding which extracted entries are new for a poll cycle
// ABOUTME: Provides the id ledger (at-most-once) and the published-timestamp cursor variants

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harper/herald/internal/models"
	"github.com/harper/herald/internal/storage"
)

// ErrLedgerUnavailable is returned when the ledger cannot be read. The cycle
// must not deliver anything when it sees this error.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// Policy names accepted by New.
const (
	PolicyLedger = "ledger"
	PolicyCursor = "cursor"
)

// Cycle identifies the poll cycle a filter runs in.
type Cycle struct {
	ID    string
	Start time.Time
}

// Policy decides which entries of an extracted document are new.
type Policy interface {
	// Name returns the configured policy name.
	Name() string

	// Filter returns the new entries in document order and records them
	// as delivered before any delivery is attempted.
	Filter(ctx context.Context, cycle Cycle, entries []models.Entry) ([]models.Entry, error)

	// Delivered is called after an entry was posted. It retries any
	// bookkeeping write that failed during Filter.
	Delivered(ctx context.Context, entry models.Entry) error

	// Peek reports, per entry, whether Filter would consider it new.
	// It never writes to the store.
	Peek(ctx context.Context, entries []models.Entry) ([]bool, error)
}

// New builds the named policy over store.
func New(name string, store storage.Store, skipBacklog bool) (Policy, error) {
	switch name {
	case PolicyLedger, "":
		return NewIDPolicy(store, skipBacklog), nil
	case PolicyCursor:
		return NewCursorPolicy(store, skipBacklog), nil
	default:
		return nil, fmt.Errorf("unknown dedup policy %q (want %q or %q)", name, PolicyLedger, PolicyCursor)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrLedgerUnavailable, op, err)
}

func recordFor(cycle Cycle, e models.Entry) storage.Record {
	return storage.Record{
		EntryID:   e.ID,
		Title:     e.Title,
		Link:      e.Link,
		Published: e.Published,
		SeenAt:    cycle.Start,
		CycleID:   cycle.ID,
	}
}
