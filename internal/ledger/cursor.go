// ABOUTME: Timestamp-cursor policy comparing published times against the previous cycle start
// ABOUTME: Advances the cursor once per cycle, after extraction and before delivery

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harper/herald/internal/models"
	"github.com/harper/herald/internal/storage"
)

// CursorPolicy delivers an entry iff it was published strictly after the
// start of the previous cycle. Entries published while the previous batch
// was being delivered can be missed if their timestamp precedes the cursor.
type CursorPolicy struct {
	store       storage.Store
	skipBacklog bool

	pendingCursor *time.Time
}

// NewCursorPolicy creates the timestamp cursor policy.
func NewCursorPolicy(store storage.Store, skipBacklog bool) *CursorPolicy {
	return &CursorPolicy{store: store, skipBacklog: skipBacklog}
}

func (p *CursorPolicy) Name() string { return PolicyCursor }

// Filter keeps entries published after the cursor, then moves the cursor to
// the cycle start. A missing cursor is the zero instant.
func (p *CursorPolicy) Filter(ctx context.Context, cycle Cycle, entries []models.Entry) ([]models.Entry, error) {
	cursor, ok, err := p.store.Cursor(ctx)
	if err != nil {
		return nil, unavailable("read cursor", err)
	}

	if !ok && p.skipBacklog {
		if err := p.store.SetCursor(ctx, cycle.Start); err != nil {
			return nil, fmt.Errorf("record backlog cursor: %w", err)
		}
		slog.Info("recorded backlog cursor without delivering", "cycle", cycle.ID, "cursor", cycle.Start)
		return nil, nil
	}

	var fresh []models.Entry
	for _, e := range entries {
		if e.Published.After(cursor) {
			fresh = append(fresh, e)
		}
	}

	if err := p.store.SetCursor(ctx, cycle.Start); err != nil {
		slog.Warn("advance cursor failed, retrying after delivery", "cycle", cycle.ID, "err", err)
		start := cycle.Start
		p.pendingCursor = &start
	} else {
		p.pendingCursor = nil
	}
	return fresh, nil
}

// Delivered retries a cursor advance that failed during Filter.
func (p *CursorPolicy) Delivered(ctx context.Context, _ models.Entry) error {
	if p.pendingCursor == nil {
		return nil
	}
	if err := p.store.SetCursor(ctx, *p.pendingCursor); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	p.pendingCursor = nil
	return nil
}

// Peek reports which entries were published after the stored cursor.
func (p *CursorPolicy) Peek(ctx context.Context, entries []models.Entry) ([]bool, error) {
	cursor, _, err := p.store.Cursor(ctx)
	if err != nil {
		return nil, unavailable("read cursor", err)
	}
	fresh := make([]bool, len(entries))
	for i, e := range entries {
		fresh[i] = e.Published.After(cursor)
	}
	return fresh, nil
}
