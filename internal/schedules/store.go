package schedules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const scheduleColumns = `
	schedule_id, owner_id, collection_id, cron_expression, timezone,
	webhook_url, enabled, max_retries, payload_template,
	last_run_at, last_run_status, next_run_at, created_at, updated_at
`

const pqUniqueViolation = "23505"

// Store handles all database operations on the schedules table
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

// Create persists a new schedule. A duplicate (owner, collection, cron
// expression) tuple maps to ErrDuplicateSchedule.
func (s *Store) Create(ctx context.Context, sched *Schedule) error {
	query := `
		INSERT INTO schedules (
			schedule_id, owner_id, collection_id, cron_expression, timezone,
			webhook_url, enabled, max_retries, payload_template, next_run_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			NOW(), NOW()
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		sched.ScheduleID,
		sched.OwnerID,
		sched.CollectionID,
		sched.CronExpression,
		sched.Timezone,
		sched.WebhookURL,
		sched.Enabled,
		sched.MaxRetries,
		string(sched.PayloadTemplate),
		sched.NextRunAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSchedule
		}
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.Info("Schedule created",
		slog.String("schedule_id", sched.ScheduleID),
		slog.String("owner_id", sched.OwnerID),
		slog.String("cron", sched.CronExpression),
	)

	return nil
}

// Update rewrites the mutable fields of a schedule.
func (s *Store) Update(ctx context.Context, sched *Schedule) error {
	query := `
		UPDATE schedules SET
			cron_expression = $1,
			timezone = $2,
			webhook_url = $3,
			enabled = $4,
			max_retries = $5,
			payload_template = $6,
			next_run_at = $7,
			updated_at = NOW()
		WHERE schedule_id = $8
	`

	result, err := s.db.ExecContext(ctx, query,
		sched.CronExpression,
		sched.Timezone,
		sched.WebhookURL,
		sched.Enabled,
		sched.MaxRetries,
		string(sched.PayloadTemplate),
		sched.NextRunAt,
		sched.ScheduleID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSchedule
		}
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrScheduleNotFound
	}

	return nil
}

// Delete removes a schedule definition. Already-enqueued jobs are not
// touched.
func (s *Store) Delete(ctx context.Context, scheduleID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE schedule_id = $1`, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrScheduleNotFound
	}

	s.logger.Info("Schedule deleted", slog.String("schedule_id", scheduleID))
	return nil
}

// GetByID retrieves a schedule by its ID
func (s *Store) GetByID(ctx context.Context, scheduleID string) (*Schedule, error) {
	var sched Schedule
	query := `SELECT` + scheduleColumns + `FROM schedules WHERE schedule_id = $1`

	err := s.db.GetContext(ctx, &sched, query, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	return &sched, nil
}

// Filter narrows a schedule listing.
type Filter struct {
	OwnerID string
	Enabled *bool
	Limit   int
	Offset  int
}

// List returns matching schedules plus the total match count.
func (s *Store) List(ctx context.Context, filter Filter) ([]Schedule, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filter.OwnerID != "" {
		where += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}

	if filter.Enabled != nil {
		where += fmt.Sprintf(" AND enabled = $%d", argIdx)
		args = append(args, *filter.Enabled)
		argIdx++
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM schedules`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count schedules: %w", err)
	}

	query := `SELECT` + scheduleColumns + `FROM schedules` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	var result []Schedule
	if err := s.db.SelectContext(ctx, &result, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list schedules: %w", err)
	}

	return result, total, nil
}

// SetEnabled pauses or resumes a schedule. Setting the current state
// again succeeds and returns the row unchanged.
func (s *Store) SetEnabled(ctx context.Context, scheduleID string, enabled bool) (*Schedule, error) {
	query := `
		UPDATE schedules SET
			enabled = $1,
			updated_at = NOW()
		WHERE schedule_id = $2
		RETURNING` + scheduleColumns

	var sched Schedule
	err := s.db.GetContext(ctx, &sched, query, enabled, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to set schedule enabled state: %w", err)
	}

	return &sched, nil
}

// DueSchedules returns enabled schedules whose next_run_at has passed.
func (s *Store) DueSchedules(ctx context.Context, now time.Time, limit int) ([]Schedule, error) {
	query := `
		SELECT` + scheduleColumns + `
		FROM schedules
		WHERE enabled AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
	`

	var due []Schedule
	if err := s.db.SelectContext(ctx, &due, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to select due schedules: %w", err)
	}

	return due, nil
}

// MarkRun records a firing and advances next_run_at. The next_run_at
// guard makes concurrent scheduler instances race safely: only the one
// whose update sticks owns this firing.
func (s *Store) MarkRun(ctx context.Context, scheduleID string, ranAt time.Time, status string, nextRunAt time.Time) (bool, error) {
	query := `
		UPDATE schedules SET
			last_run_at = $1,
			last_run_status = $2,
			next_run_at = $3,
			updated_at = NOW()
		WHERE schedule_id = $4 AND next_run_at <= $1
	`

	result, err := s.db.ExecContext(ctx, query, ranAt, status, nextRunAt, scheduleID)
	if err != nil {
		return false, fmt.Errorf("failed to mark schedule run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
