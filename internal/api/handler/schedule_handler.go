package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillstore/jobengine/internal/api/dto"
	"github.com/skillstore/jobengine/internal/schedules"
)

// ScheduleHandler handles schedule-related HTTP requests
type ScheduleHandler struct {
	logger      *slog.Logger
	store       *schedules.Store
	scheduler   *schedules.Scheduler
	environment string
}

// NewScheduleHandler creates a new ScheduleHandler instance
func NewScheduleHandler(deps *Dependencies) *ScheduleHandler {
	return &ScheduleHandler{
		logger:      deps.Logger,
		store:       deps.ScheduleStore,
		scheduler:   deps.Scheduler,
		environment: deps.Environment,
	}
}

func scheduleToDTO(sched *schedules.Schedule) dto.ScheduleDTO {
	out := dto.ScheduleDTO{
		ScheduleID:      sched.ScheduleID,
		OwnerID:         sched.OwnerID,
		CollectionID:    sched.CollectionID,
		CronExpression:  sched.CronExpression,
		Timezone:        sched.Timezone,
		WebhookURL:      sched.WebhookURL,
		Enabled:         sched.Enabled,
		MaxRetries:      sched.MaxRetries,
		PayloadTemplate: sched.PayloadTemplate,
		LastRunStatus:   sched.LastRunStatus,
		NextRunAt:       sched.NextRunAt.Format(time.RFC3339),
		CreatedAt:       sched.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       sched.UpdatedAt.Format(time.RFC3339),
	}
	if sched.LastRunAt != nil {
		ts := sched.LastRunAt.Format(time.RFC3339)
		out.LastRunAt = &ts
	}
	return out
}

// validate runs the full field validation and returns the computed
// first firing time.
func (h *ScheduleHandler) validate(expr, timezone, webhookURL string) (time.Time, error) {
	if _, err := schedules.ParseCron(expr); err != nil {
		return time.Time{}, err
	}
	if _, err := schedules.ParseTimezone(timezone); err != nil {
		return time.Time{}, err
	}
	if err := schedules.ValidateWebhookURL(webhookURL, h.environment); err != nil {
		return time.Time{}, err
	}
	return schedules.NextRun(expr, timezone, time.Now())
}

// CreateSchedule handles POST /api/v1/schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	nextRun, err := h.validate(req.CronExpression, req.Timezone, req.WebhookURL)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	sched := &schedules.Schedule{
		ScheduleID:      uuid.New().String(),
		OwnerID:         req.OwnerID,
		CollectionID:    req.CollectionID,
		CronExpression:  req.CronExpression,
		Timezone:        req.Timezone,
		WebhookURL:      req.WebhookURL,
		Enabled:         enabled,
		MaxRetries:      maxRetries,
		PayloadTemplate: req.PayloadTemplate,
		NextRunAt:       nextRun,
	}

	if err := h.store.Create(c.Request.Context(), sched); err != nil {
		respondError(c, h.logger, err)
		return
	}

	created, err := h.store.GetByID(c.Request.Context(), sched.ScheduleID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, scheduleToDTO(created))
}

// GetSchedule handles GET /api/v1/schedules/:schedule_id
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	sched, err := h.store.GetByID(c.Request.Context(), c.Param("schedule_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, scheduleToDTO(sched))
}

// ListSchedules handles GET /api/v1/schedules
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	var req dto.ListSchedulesRequest
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

	items, total, err := h.store.List(c.Request.Context(), schedules.Filter{
		OwnerID: req.OwnerID,
		Enabled: req.Enabled,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := dto.ListSchedulesResponse{
		Schedules: make([]dto.ScheduleDTO, len(items)),
		Total:     total,
	}
	for i := range items {
		resp.Schedules[i] = scheduleToDTO(&items[i])
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateSchedule handles PATCH /api/v1/schedules/:schedule_id
// Only the provided fields change. A new cron expression or timezone
// recomputes the next firing time.
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	var req dto.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	sched, err := h.store.GetByID(c.Request.Context(), c.Param("schedule_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	timingChanged := false
	if req.CronExpression != nil {
		sched.CronExpression = *req.CronExpression
		timingChanged = true
	}
	if req.Timezone != nil {
		sched.Timezone = *req.Timezone
		timingChanged = true
	}
	if req.WebhookURL != nil {
		sched.WebhookURL = *req.WebhookURL
	}
	if req.MaxRetries != nil {
		sched.MaxRetries = *req.MaxRetries
	}
	if req.PayloadTemplate != nil {
		sched.PayloadTemplate = req.PayloadTemplate
	}

	nextRun, err := h.validate(sched.CronExpression, sched.Timezone, sched.WebhookURL)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if timingChanged {
		sched.NextRunAt = nextRun
	}

	if err := h.store.Update(c.Request.Context(), sched); err != nil {
		respondError(c, h.logger, err)
		return
	}

	updated, err := h.store.GetByID(c.Request.Context(), sched.ScheduleID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, scheduleToDTO(updated))
}

// DeleteSchedule handles DELETE /api/v1/schedules/:schedule_id
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("schedule_id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TriggerSchedule handles POST /api/v1/schedules/:schedule_id/trigger
// Enqueues an immediate run regardless of the schedule being enabled.
// The run is accepted, not executed inline, hence 202.
func (h *ScheduleHandler) TriggerSchedule(c *gin.Context) {
	job, err := h.scheduler.Trigger(c.Request.Context(), c.Param("schedule_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.TriggerScheduleResponse{
		JobID:      job.JobID,
		ScheduleID: c.Param("schedule_id"),
		Status:     job.Status,
	})
}

// PauseSchedule handles POST /api/v1/schedules/:schedule_id/pause
func (h *ScheduleHandler) PauseSchedule(c *gin.Context) {
	h.setEnabled(c, false)
}

// ResumeSchedule handles POST /api/v1/schedules/:schedule_id/resume
func (h *ScheduleHandler) ResumeSchedule(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *ScheduleHandler) setEnabled(c *gin.Context, enabled bool) {
	sched, err := h.store.SetEnabled(c.Request.Context(), c.Param("schedule_id"), enabled)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, scheduleToDTO(sched))
}
