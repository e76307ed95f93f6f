// ABOUTME: Ledger policy keyed by entry id
// ABOUTME: Marks entries seen before delivery so a crash drops a post instead of repeating it

package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harper/herald/internal/models"
	"github.com/harper/herald/internal/storage"
)

// IDPolicy delivers an entry iff its id has never been recorded.
type IDPolicy struct {
	store       storage.Store
	skipBacklog bool

	// Records whose MarkSeen failed during Filter, retried on delivery.
	pending map[string]storage.Record
}

// NewIDPolicy creates the id ledger policy.
func NewIDPolicy(store storage.Store, skipBacklog bool) *IDPolicy {
	return &IDPolicy{
		store:       store,
		skipBacklog: skipBacklog,
		pending:     make(map[string]storage.Record),
	}
}

func (p *IDPolicy) Name() string { return PolicyLedger }

// Filter checks each id and marks the new ones seen immediately.
func (p *IDPolicy) Filter(ctx context.Context, cycle Cycle, entries []models.Entry) ([]models.Entry, error) {
	if p.skipBacklog {
		n, err := p.store.CountRecords(ctx)
		if err != nil {
			return nil, unavailable("count records", err)
		}
		if n == 0 {
			return nil, p.recordBacklog(ctx, cycle, entries)
		}
	}

	var fresh []models.Entry
	batch := make(map[string]bool)

	for _, e := range entries {
		if e.ID == "" {
			slog.Warn("skipping entry without id", "cycle", cycle.ID, "title", e.Title)
			continue
		}
		if batch[e.ID] {
			continue
		}

		seen, err := p.store.Seen(ctx, e.ID)
		if err != nil {
			return nil, unavailable("check "+e.ID, err)
		}
		if seen {
			continue
		}

		batch[e.ID] = true
		rec := recordFor(cycle, e)
		if err := p.store.MarkSeen(ctx, rec); err != nil {
			slog.Warn("mark seen failed, retrying after delivery", "cycle", cycle.ID, "entry_id", e.ID, "err", err)
			p.pending[e.ID] = rec
		}
		fresh = append(fresh, e)
	}
	return fresh, nil
}

// recordBacklog marks the whole first document as delivered without posting.
func (p *IDPolicy) recordBacklog(ctx context.Context, cycle Cycle, entries []models.Entry) error {
	n := 0
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if err := p.store.MarkSeen(ctx, recordFor(cycle, e)); err != nil {
			return fmt.Errorf("record backlog entry %s: %w", e.ID, err)
		}
		n++
	}
	slog.Info("recorded backlog without delivering", "cycle", cycle.ID, "entries", n)
	return nil
}

// Delivered retries a MarkSeen that failed during Filter.
func (p *IDPolicy) Delivered(ctx context.Context, entry models.Entry) error {
	rec, ok := p.pending[entry.ID]
	if !ok {
		return nil
	}
	if err := p.store.MarkSeen(ctx, rec); err != nil {
		return fmt.Errorf("mark delivered entry %s: %w", entry.ID, err)
	}
	delete(p.pending, entry.ID)
	return nil
}

// Peek reports which entries have unseen ids.
func (p *IDPolicy) Peek(ctx context.Context, entries []models.Entry) ([]bool, error) {
	fresh := make([]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			continue
		}
		seen, err := p.store.Seen(ctx, e.ID)
		if err != nil {
			return nil, unavailable("check "+e.ID, err)
		}
		fresh[i] = !seen
	}
	return fresh, nil
}
