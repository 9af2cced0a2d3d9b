package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntryStore struct {
	mu         sync.Mutex
	due        []Entry
	dispatched []string
	failed     map[string]string
	claimCalls int
}

func newFakeEntryStore(due ...Entry) *fakeEntryStore {
	return &fakeEntryStore{
		due:    due,
		failed: make(map[string]string),
	}
}

func (s *fakeEntryStore) ClaimDue(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++
	if limit > len(s.due) {
		limit = len(s.due)
	}
	claimed := s.due[:limit]
	s.due = s.due[limit:]
	return claimed, nil
}

func (s *fakeEntryStore) MarkDispatched(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched = append(s.dispatched, entryID)
	return nil
}

func (s *fakeEntryStore) Fail(_ context.Context, entryID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[entryID] = errMsg
	return nil
}

func (s *fakeEntryStore) CountStats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Pending:    len(s.due),
		Dispatched: len(s.dispatched),
	}, nil
}

type fakeGateway struct {
	configured bool
	failFor    map[string]error
	delivered  []string
}

func (g *fakeGateway) Configured() bool { return g.configured }

func (g *fakeGateway) Deliver(_ context.Context, entry Entry) error {
	if err, ok := g.failFor[entry.EntryID]; ok {
		return err
	}
	g.delivered = append(g.delivered, entry.EntryID)
	return nil
}

func testEntry(id string) Entry {
	return Entry{
		EntryID:     id,
		Kind:        "collection.processed",
		Destination: "notifier",
		Body:        json.RawMessage(`{"collection_id":"c1"}`),
	}
}

func newTestDispatcher(store EntryStore, gateway Deliverer) *Dispatcher {
	return NewDispatcher(DispatcherConfig{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:   store,
		Gateway: gateway,
	})
}

func TestProcessDeliversDueEntries(t *testing.T) {
	store := newFakeEntryStore(testEntry("e1"), testEntry("e2"))
	gateway := &fakeGateway{configured: true}
	d := newTestDispatcher(store, gateway)

	result, err := d.Process(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, Result{Processed: 2, Succeeded: 2}, result)
	assert.ElementsMatch(t, []string{"e1", "e2"}, store.dispatched)
	assert.Empty(t, store.failed)
}

func TestProcessRecordsFailuresAndContinues(t *testing.T) {
	store := newFakeEntryStore(testEntry("e1"), testEntry("e2"), testEntry("e3"))
	gateway := &fakeGateway{
		configured: true,
		failFor:    map[string]error{"e2": errors.New("receiver returned status 500")},
	}
	d := newTestDispatcher(store, gateway)

	result, err := d.Process(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, Result{Processed: 3, Succeeded: 2, Failed: 1}, result)
	assert.ElementsMatch(t, []string{"e1", "e3"}, store.dispatched)
	require.Contains(t, store.failed, "e2")
	assert.Contains(t, store.failed["e2"], "status 500")
}

func TestProcessNoopsWhenGatewayUnconfigured(t *testing.T) {
	store := newFakeEntryStore(testEntry("e1"))
	gateway := &fakeGateway{configured: false}
	d := newTestDispatcher(store, gateway)

	result, err := d.Process(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, Result{}, result)
	assert.Zero(t, store.claimCalls, "unconfigured dispatcher must not touch the store")
	assert.Empty(t, gateway.delivered)
}

func TestProcessRespectsLimit(t *testing.T) {
	store := newFakeEntryStore(testEntry("e1"), testEntry("e2"), testEntry("e3"))
	gateway := &fakeGateway{configured: true}
	d := newTestDispatcher(store, gateway)

	result, err := d.Process(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Len(t, store.due, 1)
}

func TestStatusReportsStatsAndConfiguration(t *testing.T) {
	store := newFakeEntryStore(testEntry("e1"), testEntry("e2"))
	d := newTestDispatcher(store, &fakeGateway{configured: false})

	stats, configured, err := d.Status(context.Background())
	require.NoError(t, err)

	assert.False(t, configured)
	assert.Equal(t, 2, stats.Pending)
	assert.Zero(t, stats.Dispatched)
}
