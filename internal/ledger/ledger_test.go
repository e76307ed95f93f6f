// ABOUTME: Tests for the id ledger and timestamp cursor dedup policies
// ABOUTME: Covers cross-cycle idempotence, backlog skipping, read failures and write retries

package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harper/herald/internal/models"
	"github.com/harper/herald/internal/storage"
)

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// flakyStore fails selected operations on top of a real store.
type flakyStore struct {
	storage.Store
	failSeen      bool
	failMarkSeen  bool
	failCursor    bool
	failSetCursor bool
}

var errDisk = errors.New("disk on fire")

func (f *flakyStore) Seen(ctx context.Context, id string) (bool, error) {
	if f.failSeen {
		return false, errDisk
	}
	return f.Store.Seen(ctx, id)
}

func (f *flakyStore) MarkSeen(ctx context.Context, rec storage.Record) error {
	if f.failMarkSeen {
		return errDisk
	}
	return f.Store.MarkSeen(ctx, rec)
}

func (f *flakyStore) Cursor(ctx context.Context) (time.Time, bool, error) {
	if f.failCursor {
		return time.Time{}, false, errDisk
	}
	return f.Store.Cursor(ctx)
}

func (f *flakyStore) SetCursor(ctx context.Context, t time.Time) error {
	if f.failSetCursor {
		return errDisk
	}
	return f.Store.SetCursor(ctx, t)
}

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func sampleEntries() []models.Entry {
	return []models.Entry{
		{ID: "tag:3", Title: "Newest", Published: day.Add(3 * time.Hour)},
		{ID: "tag:2", Title: "Middle", Published: day.Add(2 * time.Hour)},
		{ID: "tag:1", Title: "Oldest", Published: day.Add(1 * time.Hour)},
	}
}

func ids(entries []models.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestNew(t *testing.T) {
	store := newStore(t)

	p, err := New("ledger", store, false)
	require.NoError(t, err)
	assert.Equal(t, PolicyLedger, p.Name())

	p, err = New("", store, false)
	require.NoError(t, err)
	assert.Equal(t, PolicyLedger, p.Name())

	p, err = New("cursor", store, false)
	require.NoError(t, err)
	assert.Equal(t, PolicyCursor, p.Name())

	_, err = New("vibes", store, false)
	assert.Error(t, err)
}

func TestIDPolicy_IdempotentAcrossCycles(t *testing.T) {
	ctx := context.Background()
	p := NewIDPolicy(newStore(t), false)

	first, err := p.Filter(ctx, Cycle{ID: "c1", Start: day}, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{"tag:3", "tag:2", "tag:1"}, ids(first))

	second, err := p.Filter(ctx, Cycle{ID: "c2", Start: day.Add(time.Hour)}, sampleEntries())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestIDPolicy_OnlyNewIDsPass(t *testing.T) {
	ctx := context.Background()
	p := NewIDPolicy(newStore(t), false)

	_, err := p.Filter(ctx, Cycle{ID: "c1", Start: day}, sampleEntries()[1:])
	require.NoError(t, err)

	fresh, err := p.Filter(ctx, Cycle{ID: "c2", Start: day.Add(time.Hour)}, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{"tag:3"}, ids(fresh))
}

func TestIDPolicy_SkipsEmptyAndDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	p := NewIDPolicy(newStore(t), false)

	entries := []models.Entry{
		{ID: "", Title: "no id"},
		{ID: "dup", Title: "first"},
		{ID: "dup", Title: "second"},
	}
	fresh, err := p.Filter(ctx, Cycle{ID: "c1", Start: day}, entries)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "first", fresh[0].Title)
}

func TestIDPolicy_RecordsCycleMetadata(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := NewIDPolicy(store, false)

	_, err := p.Filter(ctx, Cycle{ID: "cycle-42", Start: day}, sampleEntries()[:1])
	require.NoError(t, err)

	records, err := store.ListRecords(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tag:3", records[0].EntryID)
	assert.Equal(t, "Newest", records[0].Title)
	assert.Equal(t, "cycle-42", records[0].CycleID)
	assert.True(t, records[0].SeenAt.Equal(day))
}

func TestIDPolicy_SkipBacklog(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := NewIDPolicy(store, true)

	fresh, err := p.Filter(ctx, Cycle{ID: "c1", Start: day}, sampleEntries()[1:])
	require.NoError(t, err)
	assert.Empty(t, fresh, "first run should only record the backlog")

	n, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fresh, err = p.Filter(ctx, Cycle{ID: "c2", Start: day.Add(time.Hour)}, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{"tag:3"}, ids(fresh))
}

func TestIDPolicy_ReadFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newStore(t), failSeen: true}
	p := NewIDPolicy(store, false)

	fresh, err := p.Filter(ctx, Cycle{ID: "c1", Start: day}, sampleEntries())
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Nil(t, fresh)

	_, err = p.Peek(ctx, sampleEntries())
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestIDPolicy_MarkSeenRetriedOnDelivery(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newStore(t), failMarkSeen: true}
	p := NewIDPolicy(store, false)

	fresh, err := p.Filter(ctx, Cycle{ID: "c1", Start: day}, sampleEntries()[:1])
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	seen, err := store.Seen(ctx, "tag:3")
	require.NoError(t, err)
	assert.False(t, seen)

	store.failMarkSeen = false
	require.NoError(t, p.Delivered(ctx, fresh[0]))

	seen, err = store.Seen(ctx, "tag:3")
	require.NoError(t, err)
	assert.True(t, seen, "delivered entry must be recorded")
}

func TestIDPolicy_PeekDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := NewIDPolicy(store, false)

	_, err := p.Filter(ctx, Cycle{ID: "c1", Start: day}, sampleEntries()[2:])
	require.NoError(t, err)

	fresh, err := p.Peek(ctx, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, fresh)

	n, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCursorPolicy_StrictlyAfter(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.SetCursor(ctx, day.Add(2*time.Hour)))
	p := NewCursorPolicy(store, false)

	fresh, err := p.Filter(ctx, Cycle{ID: "c1", Start: day.Add(4 * time.Hour)}, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, []string{"tag:3"}, ids(fresh), "entry published at the cursor is not after it")

	cursor, ok, err := store.Cursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, cursor.Equal(day.Add(4*time.Hour)), "cursor should advance to cycle start")
}

func TestCursorPolicy_IdempotentAcrossCycles(t *testing.T) {
	ctx := context.Background()
	p := NewCursorPolicy(newStore(t), false)

	first, err := p.Filter(ctx, Cycle{ID: "c1", Start: day.Add(5 * time.Hour)}, sampleEntries())
	require.NoError(t, err)
	assert.Len(t, first, 3, "no cursor means everything is new")

	second, err := p.Filter(ctx, Cycle{ID: "c2", Start: day.Add(6 * time.Hour)}, sampleEntries())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestCursorPolicy_ZeroPublishedNeverNew(t *testing.T) {
	ctx := context.Background()
	p := NewCursorPolicy(newStore(t), false)

	fresh, err := p.Filter(ctx, Cycle{ID: "c1", Start: day}, []models.Entry{{ID: "undated"}})
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestCursorPolicy_SkipBacklog(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	p := NewCursorPolicy(store, true)

	fresh, err := p.Filter(ctx, Cycle{ID: "c1", Start: day.Add(5 * time.Hour)}, sampleEntries())
	require.NoError(t, err)
	assert.Empty(t, fresh)

	later := append([]models.Entry{{ID: "tag:4", Published: day.Add(6 * time.Hour)}}, sampleEntries()...)
	fresh, err = p.Filter(ctx, Cycle{ID: "c2", Start: day.Add(7 * time.Hour)}, later)
	require.NoError(t, err)
	assert.Equal(t, []string{"tag:4"}, ids(fresh))
}

func TestCursorPolicy_ReadFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	p := NewCursorPolicy(&flakyStore{Store: newStore(t), failCursor: true}, false)

	_, err := p.Filter(ctx, Cycle{ID: "c1", Start: day}, sampleEntries())
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestCursorPolicy_AdvanceRetriedOnDelivery(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: newStore(t), failSetCursor: true}
	p := NewCursorPolicy(store, false)

	fresh, err := p.Filter(ctx, Cycle{ID: "c1", Start: day.Add(5 * time.Hour)}, sampleEntries())
	require.NoError(t, err)
	require.Len(t, fresh, 3)

	_, ok, err := store.Cursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	store.failSetCursor = false
	require.NoError(t, p.Delivered(ctx, fresh[0]))

	cursor, ok, err := store.Cursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, cursor.Equal(day.Add(5*time.Hour)))
}

func TestCursorPolicy_Peek(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.SetCursor(ctx, day.Add(90*time.Minute)))
	p := NewCursorPolicy(store, false)

	fresh, err := p.Peek(ctx, sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, fresh)

	cursor, _, err := store.Cursor(ctx)
	require.NoError(t, err)
	assert.True(t, cursor.Equal(day.Add(90*time.Minute)), "peek must not move the cursor")
}
