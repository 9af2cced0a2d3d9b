package dto

import "encoding/json"

type CreateScheduleRequest struct {
	OwnerID         string          `json:"owner_id" binding:"required"`
	CollectionID    string          `json:"collection_id" binding:"required"`
	CronExpression  string          `json:"cron_expression" binding:"required"`
	Timezone        string          `json:"timezone" binding:"required"`
	WebhookURL      string          `json:"webhook_url" binding:"required"`
	Enabled         *bool           `json:"enabled"`
	MaxRetries      int             `json:"max_retries"`
	PayloadTemplate json.RawMessage `json:"payload_template"`
}

type UpdateScheduleRequest struct {
	CronExpression  *string         `json:"cron_expression"`
	Timezone        *string         `json:"timezone"`
	WebhookURL      *string         `json:"webhook_url"`
	MaxRetries      *int            `json:"max_retries"`
	PayloadTemplate json.RawMessage `json:"payload_template"`
}

type ListSchedulesRequest struct {
	OwnerID string `form:"owner_id"`
	Enabled *bool  `form:"enabled"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

type ListSchedulesResponse struct {
	Schedules []ScheduleDTO `json:"schedules"`
	Total     int           `json:"total"`
}

type ScheduleDTO struct {
	ScheduleID      string          `json:"schedule_id"`
	OwnerID         string          `json:"owner_id"`
	CollectionID    string          `json:"collection_id"`
	CronExpression  string          `json:"cron_expression"`
	Timezone        string          `json:"timezone"`
	WebhookURL      string          `json:"webhook_url"`
	Enabled         bool            `json:"enabled"`
	MaxRetries      int             `json:"max_retries"`
	PayloadTemplate json.RawMessage `json:"payload_template,omitempty"`
	LastRunAt       *string         `json:"last_run_at,omitempty"`
	LastRunStatus   *string         `json:"last_run_status,omitempty"`
	NextRunAt       string          `json:"next_run_at"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

type TriggerScheduleResponse struct {
	JobID      string `json:"job_id"`
	ScheduleID string `json:"schedule_id"`
	Status     string `json:"status"`
}
