// ABOUTME: Ledger migration between herald storage backends
// ABOUTME: Copies delivered records, the cursor and fetch validators from source to destination store

package storage

import (
	"context"
	"fmt"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Records int
	Cursor  bool
}

// MigrateData copies all ledger state from src to dst. Records already in
// dst are kept, so migrating twice is harmless.
func MigrateData(ctx context.Context, src, dst Store) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	records, err := src.ListRecords(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list source records: %w", err)
	}

	// Oldest first so seen_at ordering survives in the destination.
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if err := dst.MarkSeen(ctx, rec); err != nil {
			return nil, fmt.Errorf("copy record %s: %w", rec.EntryID, err)
		}
		summary.Records++
	}

	cursor, ok, err := src.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("read source cursor: %w", err)
	}
	if ok {
		if err := dst.SetCursor(ctx, cursor); err != nil {
			return nil, fmt.Errorf("copy cursor: %w", err)
		}
		summary.Cursor = true
	}

	st, err := src.FetchState(ctx)
	if err != nil {
		return nil, fmt.Errorf("read source fetch state: %w", err)
	}
	if err := dst.SaveFetchState(ctx, st); err != nil {
		return nil, fmt.Errorf("copy fetch state: %w", err)
	}

	return summary, nil
}
