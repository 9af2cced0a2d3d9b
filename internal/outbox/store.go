package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/skillstore/jobengine/internal/backoff"
)

const entryColumns = `
	entry_id, kind, destination, body, attempts, last_error,
	run_at, dispatched_at, created_at, updated_at
`

// Store handles all database operations on the webhook_outbox table
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

// Insert appends a new entry unconditionally. Deduplication, when
// needed, is the caller's concern.
func (s *Store) Insert(ctx context.Context, kind, destination string, body json.RawMessage) (string, error) {
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}

	entryID := uuid.New().String()
	query := `
		INSERT INTO webhook_outbox (
			entry_id, kind, destination, body, run_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, NOW(), NOW(), NOW()
		)
	`

	if _, err := s.db.ExecContext(ctx, query, entryID, kind, destination, string(body)); err != nil {
		return "", fmt.Errorf("failed to insert outbox entry: %w", err)
	}

	s.logger.Info("Outbox entry inserted",
		slog.String("entry_id", entryID),
		slog.String("kind", kind),
		slog.String("destination", destination),
	)

	return entryID, nil
}

// Filter narrows an outbox listing.
type Filter struct {
	Status string // pending | dispatched | ""
	Kind   string
	Limit  int
	Offset int
}

// List returns matching entries plus the total match count.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	switch filter.Status {
	case StatusPending:
		where += " AND dispatched_at IS NULL"
	case StatusDispatched:
		where += " AND dispatched_at IS NOT NULL"
	}

	if filter.Kind != "" {
		where += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM webhook_outbox`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count outbox entries: %w", err)
	}

	query := `SELECT` + entryColumns + `FROM webhook_outbox` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list outbox entries: %w", err)
	}

	return entries, total, nil
}

// ClaimDue marks up to limit due, undispatched entries as being worked on
// by advancing run_at, and returns them. SKIP LOCKED keeps concurrent
// dispatcher instances on disjoint sets.
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	// run_at jumps forward by one lease so a crashed dispatcher's
	// entries come due again on their own.
	query := `
		UPDATE webhook_outbox SET
			run_at = NOW() + interval '2 minutes',
			updated_at = NOW()
		WHERE entry_id IN (
			SELECT entry_id FROM webhook_outbox
			WHERE dispatched_at IS NULL AND run_at <= NOW()
			ORDER BY run_at
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING` + entryColumns

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to claim outbox entries: %w", err)
	}

	return entries, nil
}

// MarkDispatched finalizes an entry after successful delivery.
func (s *Store) MarkDispatched(ctx context.Context, entryID string) error {
	query := `
		UPDATE webhook_outbox SET
			dispatched_at = NOW(),
			last_error = NULL,
			updated_at = NOW()
		WHERE entry_id = $1 AND dispatched_at IS NULL
	`

	if _, err := s.db.ExecContext(ctx, query, entryID); err != nil {
		return fmt.Errorf("failed to mark outbox entry dispatched: %w", err)
	}

	return nil
}

// Fail records a delivery failure and pushes run_at forward by the
// engine backoff policy.
func (s *Store) Fail(ctx context.Context, entryID, errMsg string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts int
	err = tx.GetContext(ctx, &attempts, `
		SELECT attempts FROM webhook_outbox
		WHERE entry_id = $1 AND dispatched_at IS NULL
		FOR UPDATE
	`, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("failed to lock outbox entry: %w", err)
	}

	attempts++
	delay := backoff.Delay(attempts)

	_, err = tx.ExecContext(ctx, `
		UPDATE webhook_outbox SET
			attempts = $1,
			last_error = $2,
			run_at = NOW() + $3 * interval '1 second',
			updated_at = NOW()
		WHERE entry_id = $4
	`, attempts, errMsg, delay.Seconds(), entryID)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outbox failure: %w", err)
	}

	s.logger.Warn("Outbox delivery failed",
		slog.String("entry_id", entryID),
		slog.Int("attempts", attempts),
		slog.Duration("retry_in", delay),
		slog.String("error", errMsg),
	)

	return nil
}

// Retry resets a non-dispatched entry for immediate redelivery. A
// missing or already-dispatched entry maps to ErrEntryNotFound: a
// dispatched entry is no longer a retryable target.
func (s *Store) Retry(ctx context.Context, entryID string) error {
	query := `
		UPDATE webhook_outbox SET
			attempts = 0,
			last_error = NULL,
			run_at = NOW(),
			updated_at = NOW()
		WHERE entry_id = $1 AND dispatched_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, entryID)
	if err != nil {
		return fmt.Errorf("failed to retry outbox entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}

	s.logger.Info("Outbox entry queued for retry", slog.String("entry_id", entryID))
	return nil
}

// GetByID retrieves an entry by its ID
func (s *Store) GetByID(ctx context.Context, entryID string) (*Entry, error) {
	var entry Entry
	query := `SELECT` + entryColumns + `FROM webhook_outbox WHERE entry_id = $1`

	err := s.db.GetContext(ctx, &entry, query, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get outbox entry: %w", err)
	}

	return &entry, nil
}

// CountStats returns the pending/failed/dispatched counts for the status
// endpoint. Failed counts entries that have errored at least once but
// are not yet dispatched; they are a subset of neither pending-only nor
// dispatched.
func (s *Store) CountStats(ctx context.Context) (Stats, error) {
	var stats Stats
	query := `
		SELECT
			COUNT(*) FILTER (WHERE dispatched_at IS NULL) AS pending,
			COUNT(*) FILTER (WHERE dispatched_at IS NULL AND attempts > 0) AS failed,
			COUNT(*) FILTER (WHERE dispatched_at IS NOT NULL) AS dispatched
		FROM webhook_outbox
	`

	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return Stats{}, fmt.Errorf("failed to count outbox stats: %w", err)
	}

	return stats, nil
}
