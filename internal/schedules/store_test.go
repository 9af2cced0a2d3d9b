package schedules

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillstore/jobengine/internal/migrations"
)

// newTestScheduleStore connects to the database named by TEST_DATABASE_URL
// and returns a Store over a clean schedules table. Tests are skipped when
// the variable is unset.
func newTestScheduleStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database tests")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.Up(db.DB))

	_, err = db.Exec(`TRUNCATE schedules`)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(db, logger)
}

func newStoredSchedule(nextRunAt time.Time) *Schedule {
	return &Schedule{
		ScheduleID:      uuid.New().String(),
		OwnerID:         "owner-1",
		CollectionID:    "collection-1",
		CronExpression:  "0 9 * * *",
		Timezone:        "UTC",
		WebhookURL:      "https://hooks.example.com/run",
		Enabled:         true,
		MaxRetries:      3,
		PayloadTemplate: json.RawMessage(`{"scope":"daily"}`),
		NextRunAt:       nextRunAt,
	}
}

func TestCreateDuplicateScopeAndExpression(t *testing.T) {
	store := newTestScheduleStore(t)
	ctx := context.Background()

	nextRun := time.Now().Add(time.Hour)
	require.NoError(t, store.Create(ctx, newStoredSchedule(nextRun)))

	dup := newStoredSchedule(nextRun)
	assert.ErrorIs(t, store.Create(ctx, dup), ErrDuplicateSchedule)

	// A different expression in the same scope is fine.
	other := newStoredSchedule(nextRun)
	other.CronExpression = "30 9 * * *"
	assert.NoError(t, store.Create(ctx, other))
}

func TestSetEnabledIsIdempotent(t *testing.T) {
	store := newTestScheduleStore(t)
	ctx := context.Background()

	sched := newStoredSchedule(time.Now().Add(time.Hour))
	require.NoError(t, store.Create(ctx, sched))

	paused, err := store.SetEnabled(ctx, sched.ScheduleID, false)
	require.NoError(t, err)
	assert.False(t, paused.Enabled)

	// Pausing an already-paused schedule succeeds with the same state.
	paused, err = store.SetEnabled(ctx, sched.ScheduleID, false)
	require.NoError(t, err)
	assert.False(t, paused.Enabled)

	resumed, err := store.SetEnabled(ctx, sched.ScheduleID, true)
	require.NoError(t, err)
	assert.True(t, resumed.Enabled)
}

func TestSetEnabledUnknownSchedule(t *testing.T) {
	store := newTestScheduleStore(t)

	_, err := store.SetEnabled(context.Background(), uuid.New().String(), false)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestMarkRunOwnershipGuard(t *testing.T) {
	store := newTestScheduleStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	sched := newStoredSchedule(now.Add(-time.Minute))
	require.NoError(t, store.Create(ctx, sched))

	nextRun := now.Add(24 * time.Hour)
	owned, err := store.MarkRun(ctx, sched.ScheduleID, now, RunStatusEnqueued, nextRun)
	require.NoError(t, err)
	assert.True(t, owned, "first instance to mark the firing owns it")

	// next_run_at already advanced past ranAt: a competing instance
	// marking the same firing loses the guard.
	owned, err = store.MarkRun(ctx, sched.ScheduleID, now, RunStatusEnqueued, nextRun)
	require.NoError(t, err)
	assert.False(t, owned)

	got, err := store.GetByID(ctx, sched.ScheduleID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, RunStatusEnqueued, *got.LastRunStatus)
	assert.Equal(t, nextRun.Unix(), got.NextRunAt.Unix())
}

func TestDueSchedulesSkipsDisabledAndFuture(t *testing.T) {
	store := newTestScheduleStore(t)
	ctx := context.Background()

	now := time.Now()

	due := newStoredSchedule(now.Add(-time.Minute))
	require.NoError(t, store.Create(ctx, due))

	future := newStoredSchedule(now.Add(time.Hour))
	future.CollectionID = "collection-2"
	require.NoError(t, store.Create(ctx, future))

	disabled := newStoredSchedule(now.Add(-time.Hour))
	disabled.CollectionID = "collection-3"
	disabled.Enabled = false
	require.NoError(t, store.Create(ctx, disabled))

	got, err := store.DueSchedules(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ScheduleID, got[0].ScheduleID)
}

func TestUpdateAndDeleteUnknownSchedule(t *testing.T) {
	store := newTestScheduleStore(t)
	ctx := context.Background()

	missing := newStoredSchedule(time.Now().Add(time.Hour))
	assert.ErrorIs(t, store.Update(ctx, missing), ErrScheduleNotFound)
	assert.ErrorIs(t, store.Delete(ctx, missing.ScheduleID), ErrScheduleNotFound)
}
