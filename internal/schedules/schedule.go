// Package schedules stores recurring trigger definitions and fires them:
// a validated 5-field cron expression plus IANA timezone determines
// next_run_at, and due schedules turn into skillstore.scheduled_process
// jobs in the job store.
package schedules

import (
	"encoding/json"
	"time"
)

// Run status values recorded on a schedule after a tick.
const (
	RunStatusEnqueued = "enqueued"
)

// Schedule is a recurring trigger definition.
type Schedule struct {
	ScheduleID      string          `db:"schedule_id"`
	OwnerID         string          `db:"owner_id"`
	CollectionID    string          `db:"collection_id"`
	CronExpression  string          `db:"cron_expression"`
	Timezone        string          `db:"timezone"`
	WebhookURL      string          `db:"webhook_url"`
	Enabled         bool            `db:"enabled"`
	MaxRetries      int             `db:"max_retries"`
	PayloadTemplate json.RawMessage `db:"payload_template"`
	LastRunAt       *time.Time      `db:"last_run_at"`
	LastRunStatus   *string         `db:"last_run_status"`
	NextRunAt       time.Time       `db:"next_run_at"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}
