package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillstore/jobengine/internal/api/dto"
	"github.com/skillstore/jobengine/internal/jobs"
	"github.com/skillstore/jobengine/shared/rabbitmq"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger       *slog.Logger
	store        *jobs.Store
	rabbitClient *rabbitmq.Client
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:       deps.Logger,
		store:        deps.JobStore,
		rabbitClient: deps.RabbitClient,
	}
}

func jobToDTO(job *jobs.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:          job.JobID,
		Kind:           job.Kind,
		Payload:        job.Payload,
		IdempotencyKey: job.IdempotencyKey,
		Status:         job.Status,
		Attempts:       job.Attempts,
		MaxAttempts:    job.MaxAttempts,
		RunAt:          job.RunAt.Format(time.RFC3339),
		LastError:      job.LastError,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		ts := job.CompletedAt.Format(time.RFC3339)
		out.CompletedAt = &ts
	}
	return out
}

// CreateJob handles POST /api/v1/jobs
// Enqueues a new background job. Repeating a request with the same
// idempotency key returns the existing job with 200 instead of 201.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	var runAt time.Time
	if req.RunAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.RunAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "run_at must be RFC3339",
			})
			return
		}
		runAt = parsed
	}

	job, created, err := h.store.Enqueue(c.Request.Context(), jobs.EnqueueParams{
		Kind:           req.Kind,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
		RunAt:          runAt,
		MaxAttempts:    req.MaxAttempts,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// Best-effort wake-up for workers. Delivery is not required for
	// correctness, so a publish failure only costs poll latency.
	if created && h.rabbitClient != nil {
		if err := h.rabbitClient.NudgeJobReady(c.Request.Context(), job.Kind); err != nil {
			h.logger.Warn("Failed to nudge workers",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
		}
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, jobToDTO(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.GetByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	result, err := h.store.List(c.Request.Context(), jobs.Filter{
		Kind:     req.Kind,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(result) > req.PageSize
	if hasMore {
		result = result[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(result))
	for i := range result {
		jobResponse[i] = jobToDTO(&result[i])
	}

	var nextCursor string
	if hasMore {
		last := result[len(result)-1]
		nextCursor, err = EncodeJobCursor(&jobs.Cursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}
