package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillstore/jobengine/internal/api/dto"
	"github.com/skillstore/jobengine/internal/migrations"
	"github.com/skillstore/jobengine/internal/outbox"
)

func TestListOutboxResponseWireShape(t *testing.T) {
	encoded, err := json.Marshal(dto.ListOutboxResponse{
		Entries: []dto.OutboxEntryDTO{},
		Total:   0,
		Limit:   20,
		Offset:  0,
	})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Contains(t, decoded, "entries")
	assert.Contains(t, decoded, "total")
	assert.Contains(t, decoded, "limit")
	assert.Contains(t, decoded, "offset")
}

// newTestOutboxRouter wires the outbox routes over a real store on the
// database named by TEST_DATABASE_URL. Tests are skipped when the
// variable is unset.
func newTestOutboxRouter(t *testing.T) (*gin.Engine, *outbox.Store) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database tests")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.Up(db.DB))

	_, err = db.Exec(`TRUNCATE webhook_outbox`)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := outbox.NewStore(db, logger)
	gateway := outbox.NewGateway("", "", time.Second)
	dispatcher := outbox.NewDispatcher(outbox.DispatcherConfig{
		Logger:  logger,
		Store:   store,
		Gateway: gateway,
	})

	h := NewOutboxHandler(&Dependencies{
		Logger:      logger,
		OutboxStore: store,
		Gateway:     gateway,
		Dispatcher:  dispatcher,
	})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/v1/outbox", h.ListOutbox)
	router.POST("/api/v1/outbox/:entry_id/retry", h.RetryOutboxEntry)

	return router, store
}

func TestListOutboxEchoesEffectivePaging(t *testing.T) {
	router, store := newTestOutboxRouter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Insert(ctx, "job.completed", "billing", json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox?limit=2&offset=1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListOutboxResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Limit)
	assert.Equal(t, 1, resp.Offset)
	assert.Len(t, resp.Entries, 2)
}

func TestListOutboxClampsPaging(t *testing.T) {
	router, _ := newTestOutboxRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox?limit=5000", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.ListOutboxResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 100, resp.Limit)
	assert.Equal(t, 0, resp.Offset)
}

func TestRetryOutboxEntryResponse(t *testing.T) {
	router, store := newTestOutboxRouter(t)

	entryID, err := store.Insert(context.Background(), "job.completed", "billing", json.RawMessage(`{}`))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/outbox/"+entryID+"/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, entryID, resp["id"])
	assert.Equal(t, "queued", resp["status"])
}

func TestRetryUnknownOutboxEntry(t *testing.T) {
	router, _ := newTestOutboxRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/outbox/00000000-0000-0000-0000-000000000000/retry", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
