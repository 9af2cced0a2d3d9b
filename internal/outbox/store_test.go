package outbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillstore/jobengine/internal/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.Up(db.DB))

	_, err = db.Exec("TRUNCATE webhook_outbox")
	require.NoError(t, err)

	return NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInsertAndClaimDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, "collection.processed", "notifier", json.RawMessage(`{"collection_id":"c1"}`))
	require.NoError(t, err)

	entries, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].EntryID)
	assert.Equal(t, "notifier", entries[0].Destination)
	assert.JSONEq(t, `{"collection_id":"c1"}`, string(entries[0].Body))

	// A second claim finds nothing: run_at jumped forward with the lease.
	entries, err = store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClaimDueSkipsDispatchedEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, "collection.processed", "notifier", nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkDispatched(ctx, id))

	entries, err := store.ClaimDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFailBacksOffRunAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, "collection.processed", "notifier", nil)
	require.NoError(t, err)

	require.NoError(t, store.Fail(ctx, id, "connection refused"))

	entry, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Attempts)
	require.NotNil(t, entry.LastError)
	assert.Equal(t, "connection refused", *entry.LastError)
	assert.True(t, entry.RunAt.After(time.Now().Add(20*time.Second)),
		"run_at should back off, got %v", entry.RunAt)
	assert.False(t, entry.Dispatched())
}

func TestRetryResetsEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, "collection.processed", "notifier", nil)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, id, "timeout"))

	require.NoError(t, store.Retry(ctx, id))

	entry, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, entry.Attempts)
	assert.Nil(t, entry.LastError)
	assert.True(t, entry.RunAt.Before(time.Now().Add(time.Second)))
}

func TestRetryDispatchedEntryNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, "collection.processed", "notifier", nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkDispatched(ctx, id))

	err = store.Retry(ctx, id)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	err = store.Retry(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestListFiltersAndCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.Insert(ctx, "collection.processed", "notifier", nil)
	require.NoError(t, err)
	_, err = store.Insert(ctx, "share.created", "notifier", nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkDispatched(ctx, a))

	entries, total, err := store.List(ctx, Filter{Status: StatusPending, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, "share.created", entries[0].Kind)

	entries, total, err = store.List(ctx, Filter{Kind: "collection.processed", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Dispatched())

	stats, err := store.CountStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 1, Failed: 0, Dispatched: 1}, stats)
}
