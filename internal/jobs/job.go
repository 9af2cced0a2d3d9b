// Package jobs owns the durable job table: idempotent enqueue, exclusive
// claiming, completion, bounded retry and dead-lettering. All coordination
// between worker processes goes through this store; there is no in-process
// shared state.
package jobs

import (
	"encoding/json"
	"time"
)

// Job status constants
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusDead      = "DEAD"
)

// Job kind constants for the handlers shipped with the engine
const (
	KindEmailSend        = "email.send"
	KindEmbeddingGen     = "embedding.generate"
	KindScheduledProcess = "skillstore.scheduled_process"
)

// DefaultMaxAttempts is the retry budget applied when the caller does not
// specify one.
const DefaultMaxAttempts = 5

// Job represents one unit of deferred work.
type Job struct {
	JobID          string          `db:"job_id"`
	Kind           string          `db:"kind"`
	Payload        json.RawMessage `db:"payload"`
	IdempotencyKey *string         `db:"idempotency_key"`
	Status         string          `db:"status"`
	Attempts       int             `db:"attempts"`
	MaxAttempts    int             `db:"max_attempts"`
	RunAt          time.Time       `db:"run_at"`
	LastError      *string         `db:"last_error"`
	ClaimedAt      *time.Time      `db:"claimed_at"`
	ClaimedBy      *string         `db:"claimed_by"`
	CompletedAt    *time.Time      `db:"completed_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Dead reports whether the job exhausted its retry budget and is
// permanently excluded from claiming.
func (j *Job) Dead() bool {
	return j.Status == StatusDead
}
