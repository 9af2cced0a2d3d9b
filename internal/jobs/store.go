package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/skillstore/jobengine/internal/backoff"
)

const jobColumns = `
	job_id, kind, payload, idempotency_key, status, attempts, max_attempts,
	run_at, last_error, claimed_at, claimed_by, completed_at, created_at, updated_at
`

// Store handles all database operations on the jobs table
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// EnqueueParams describes a job to enqueue.
type EnqueueParams struct {
	Kind           string
	Payload        json.RawMessage
	IdempotencyKey *string
	RunAt          time.Time // zero means now
	MaxAttempts    int       // zero means DefaultMaxAttempts
}

// Enqueue inserts a new job, or returns the existing one when a live job
// with the same idempotency key already exists. The insert-or-fetch is
// atomic: the partial unique index on idempotency_key rejects a duplicate
// insert, and the fallback select picks up the surviving row. Two
// concurrent callers with the same key always end up with the same job id.
func (s *Store) Enqueue(ctx context.Context, params EnqueueParams) (*Job, bool, error) {
	if params.Kind == "" {
		return nil, false, fmt.Errorf("job kind is required")
	}

	runAt := params.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	payload := params.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	insert := `
		INSERT INTO jobs (
			job_id, kind, payload, idempotency_key, status,
			attempts, max_attempts, run_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			0, $6, $7, NOW(), NOW()
		)
		ON CONFLICT (idempotency_key) WHERE status <> 'DEAD' DO NOTHING
		RETURNING` + jobColumns

	fetch := `
		SELECT` + jobColumns + `
		FROM jobs
		WHERE idempotency_key = $1 AND status <> 'DEAD'
	`

	// The loop covers one narrow race: the conflicting row can be
	// dead-lettered between the failed insert and the fetch.
	for attempt := 0; attempt < 3; attempt++ {
		var job Job
		err := s.db.GetContext(ctx, &job, insert,
			uuid.New().String(),
			params.Kind,
			string(payload),
			params.IdempotencyKey,
			StatusPending,
			maxAttempts,
			runAt,
		)
		if err == nil {
			s.logger.Info("Job enqueued",
				slog.String("job_id", job.JobID),
				slog.String("kind", job.Kind),
			)
			return &job, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to enqueue job: %w", err)
		}

		// Insert hit the unique index: a live job with this key exists.
		err = s.db.GetContext(ctx, &job, fetch, params.IdempotencyKey)
		if err == nil {
			s.logger.Info("Enqueue deduplicated by idempotency key",
				slog.String("job_id", job.JobID),
				slog.String("kind", job.Kind),
			)
			return &job, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("failed to fetch existing job: %w", err)
		}
	}

	return nil, false, fmt.Errorf("failed to enqueue job: insert/fetch retry budget exhausted")
}

// Claim atomically selects up to limit due jobs of the given kinds and
// marks them RUNNING for this worker. SKIP LOCKED guarantees two
// concurrent claimers never receive overlapping sets. No handler code
// runs inside this statement; the rows are released as soon as it commits.
func (s *Store) Claim(ctx context.Context, kinds []string, limit int, workerID string) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		UPDATE jobs SET
			status = $1,
			claimed_at = NOW(),
			claimed_by = $2,
			updated_at = NOW()
		WHERE job_id IN (
			SELECT job_id FROM jobs
			WHERE kind = ANY($3)
			  AND status = $4
			  AND run_at <= NOW()
			  AND attempts < max_attempts
			ORDER BY run_at
			FOR UPDATE SKIP LOCKED
			LIMIT $5
		)
		RETURNING` + jobColumns

	var claimed []Job
	err := s.db.SelectContext(ctx, &claimed, query,
		StatusRunning, workerID, pq.Array(kinds), StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}

	if len(claimed) > 0 {
		s.logger.Debug("Jobs claimed",
			slog.Int("count", len(claimed)),
			slog.String("worker_id", workerID),
		)
	}

	return claimed, nil
}

// Complete marks a job as successfully processed. Completing an
// already-completed job is a no-op.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs SET
			status = $1,
			completed_at = NOW(),
			claimed_at = NULL,
			claimed_by = NULL,
			updated_at = NOW()
		WHERE job_id = $2 AND completed_at IS NULL
	`

	if _, err := s.db.ExecContext(ctx, query, StatusCompleted, jobID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

// Fail records a failed attempt. With budget remaining the job goes back
// to PENDING with run_at pushed forward by the backoff policy; once the
// budget is exhausted it is dead-lettered (row retained, never claimable).
func (s *Store) Fail(ctx context.Context, jobID, errMsg string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cur struct {
		Attempts    int `db:"attempts"`
		MaxAttempts int `db:"max_attempts"`
	}
	err = tx.GetContext(ctx, &cur, `
		SELECT attempts, max_attempts FROM jobs
		WHERE job_id = $1 AND completed_at IS NULL
		FOR UPDATE
	`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		return fmt.Errorf("failed to lock job for failure: %w", err)
	}

	attempts := cur.Attempts + 1
	if attempts >= cur.MaxAttempts {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET
				status = $1,
				attempts = $2,
				last_error = $3,
				claimed_at = NULL,
				claimed_by = NULL,
				updated_at = NOW()
			WHERE job_id = $4
		`, StatusDead, attempts, errMsg, jobID)
		if err != nil {
			return fmt.Errorf("failed to dead-letter job: %w", err)
		}

		s.logger.Warn("Job dead-lettered",
			slog.String("job_id", jobID),
			slog.Int("attempts", attempts),
			slog.String("error", errMsg),
		)
	} else {
		delay := backoff.Delay(attempts)
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET
				status = $1,
				attempts = $2,
				last_error = $3,
				run_at = NOW() + $4 * interval '1 second',
				claimed_at = NULL,
				claimed_by = NULL,
				updated_at = NOW()
			WHERE job_id = $5
		`, StatusPending, attempts, errMsg, delay.Seconds(), jobID)
		if err != nil {
			return fmt.Errorf("failed to schedule job retry: %w", err)
		}

		s.logger.Info("Job scheduled for retry",
			slog.String("job_id", jobID),
			slog.Int("attempts", attempts),
			slog.Duration("delay", delay),
		)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job failure: %w", err)
	}

	return nil
}

// FailPermanently dead-letters a job regardless of remaining budget. Used
// when dispatch finds no handler for the job's kind: retrying cannot help.
func (s *Store) FailPermanently(ctx context.Context, jobID, errMsg string) error {
	query := `
		UPDATE jobs SET
			status = $1,
			attempts = max_attempts,
			last_error = $2,
			claimed_at = NULL,
			claimed_by = NULL,
			updated_at = NOW()
		WHERE job_id = $3 AND completed_at IS NULL
	`

	if _, err := s.db.ExecContext(ctx, query, StatusDead, errMsg, jobID); err != nil {
		return fmt.Errorf("failed to permanently fail job: %w", err)
	}

	s.logger.Warn("Job failed permanently",
		slog.String("job_id", jobID),
		slog.String("error", errMsg),
	)

	return nil
}

// ReclaimStale returns RUNNING jobs whose claim lease expired (worker
// crashed mid-processing) to PENDING so another worker can pick them up.
func (s *Store) ReclaimStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	query := `
		UPDATE jobs SET
			status = $1,
			claimed_at = NULL,
			claimed_by = NULL,
			updated_at = NOW()
		WHERE status = $2 AND claimed_at < $3
	`

	result, err := s.db.ExecContext(ctx, query, StatusPending, StatusRunning, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale jobs: %w", err)
	}

	reclaimed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if reclaimed > 0 {
		s.logger.Warn("Reclaimed stale jobs",
			slog.Int64("count", reclaimed),
			slog.Time("claimed_before", claimedBefore),
		)
	}

	return reclaimed, nil
}

// GetByID retrieves a job by its ID
func (s *Store) GetByID(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	query := `SELECT` + jobColumns + `FROM jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// Filter narrows a job listing.
type Filter struct {
	Kind     string
	Status   string
	PageSize int
	Cursor   *Cursor
}

// Cursor is a (created_at, job_id) keyset pagination point.
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// List retrieves jobs matching the filter, newest first. It fetches one
// row beyond PageSize so the caller can detect whether more results exist.
func (s *Store) List(ctx context.Context, filter Filter) ([]Job, error) {
	query := `SELECT` + jobColumns + `FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var result []Job
	if err := s.db.SelectContext(ctx, &result, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return result, nil
}
