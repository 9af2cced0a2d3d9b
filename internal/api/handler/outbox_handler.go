package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillstore/jobengine/internal/api/dto"
	"github.com/skillstore/jobengine/internal/outbox"
)

// OutboxHandler handles webhook outbox HTTP requests
type OutboxHandler struct {
	logger     *slog.Logger
	store      *outbox.Store
	gateway    *outbox.Gateway
	dispatcher *outbox.Dispatcher
}

// NewOutboxHandler creates a new OutboxHandler instance
func NewOutboxHandler(deps *Dependencies) *OutboxHandler {
	return &OutboxHandler{
		logger:     deps.Logger,
		store:      deps.OutboxStore,
		gateway:    deps.Gateway,
		dispatcher: deps.Dispatcher,
	}
}

func entryToDTO(entry *outbox.Entry) dto.OutboxEntryDTO {
	out := dto.OutboxEntryDTO{
		EntryID:     entry.EntryID,
		Kind:        entry.Kind,
		Destination: entry.Destination,
		Body:        entry.Body,
		Attempts:    entry.Attempts,
		LastError:   entry.LastError,
		RunAt:       entry.RunAt.Format(time.RFC3339),
		CreatedAt:   entry.CreatedAt.Format(time.RFC3339),
	}
	if entry.DispatchedAt != nil {
		ts := entry.DispatchedAt.Format(time.RFC3339)
		out.DispatchedAt = &ts
	}
	return out
}

// ListOutbox handles GET /api/v1/outbox
func (h *OutboxHandler) ListOutbox(c *gin.Context) {
	var req dto.ListOutboxRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	entries, total, err := h.store.List(c.Request.Context(), outbox.Filter{
		Status: req.Status,
		Kind:   req.Kind,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := dto.ListOutboxResponse{
		Entries: make([]dto.OutboxEntryDTO, len(entries)),
		Total:   total,
		Limit:   req.Limit,
		Offset:  req.Offset,
	}
	for i := range entries {
		resp.Entries[i] = entryToDTO(&entries[i])
	}

	c.JSON(http.StatusOK, resp)
}

// RetryOutboxEntry handles POST /api/v1/outbox/:entry_id/retry
// A dispatched entry is no longer retryable and answers 404.
func (h *OutboxHandler) RetryOutboxEntry(c *gin.Context) {
	entryID := c.Param("entry_id")

	if err := h.store.Retry(c.Request.Context(), entryID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     entryID,
		"status": "queued",
	})
}

// OutboxStatus handles GET /api/v1/outbox/status
func (h *OutboxHandler) OutboxStatus(c *gin.Context) {
	stats, configured, err := h.dispatcher.Status(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.OutboxStatusResponse{
		GatewayConfigured: configured,
		GatewayURL:        h.gateway.BaseURL,
		HasToken:          h.gateway.Token != "",
		Pending:           stats.Pending,
		Failed:            stats.Failed,
		Dispatched:        stats.Dispatched,
	})
}

// ProcessOutbox handles POST /api/v1/outbox/process
// Runs one synchronous dispatch pass, useful for draining in tests and
// operational tooling.
func (h *OutboxHandler) ProcessOutbox(c *gin.Context) {
	var req dto.ProcessOutboxRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	result, err := h.dispatcher.Process(c.Request.Context(), req.Limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "completed",
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
}
