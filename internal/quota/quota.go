// Package quota tracks bounded download counters for share tokens.
// The counter lives in Postgres and is advanced under a row lock so
// concurrent downloads can never push it past its limit.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrTokenNotFound is returned when the share token does not exist.
	ErrTokenNotFound = errors.New("share token not found")
	// ErrLimitExceeded is returned when the download limit has been reached.
	ErrLimitExceeded = errors.New("download limit exceeded")
)

// Token is one share token row.
type Token struct {
	TokenID       string `db:"token_id" json:"token_id"`
	DownloadCount int    `db:"download_count" json:"download_count"`
	DownloadLimit int    `db:"download_limit" json:"download_limit"`
}

// Remaining returns how many downloads the token has left.
func (t Token) Remaining() int {
	if t.DownloadCount >= t.DownloadLimit {
		return 0
	}
	return t.DownloadLimit - t.DownloadCount
}

// Counter handles all database operations on the share_tokens table
type Counter struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewCounter creates a new Counter instance
func NewCounter(db *sqlx.DB, logger *slog.Logger) *Counter {
	return &Counter{
		db:     db,
		logger: logger,
	}
}

// Create registers a new token with the given limit.
func (c *Counter) Create(ctx context.Context, tokenID string, limit int) (*Token, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("download limit must be positive, got %d", limit)
	}

	var token Token
	query := `
		INSERT INTO share_tokens (token_id, download_limit, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING token_id, download_count, download_limit
	`

	if err := c.db.GetContext(ctx, &token, query, tokenID, limit); err != nil {
		return nil, fmt.Errorf("failed to create share token: %w", err)
	}

	return &token, nil
}

// Consume atomically spends one download from the token. The row is
// locked for the duration of the check-and-increment, so under any
// number of concurrent callers at most DownloadLimit consumes succeed.
func (c *Counter) Consume(ctx context.Context, tokenID string) (*Token, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var token Token
	err = tx.GetContext(ctx, &token, `
		SELECT token_id, download_count, download_limit
		FROM share_tokens
		WHERE token_id = $1
		FOR UPDATE
	`, tokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to lock share token: %w", err)
	}

	if token.DownloadCount >= token.DownloadLimit {
		return nil, ErrLimitExceeded
	}

	token.DownloadCount++
	_, err = tx.ExecContext(ctx, `
		UPDATE share_tokens SET
			download_count = $1,
			updated_at = NOW()
		WHERE token_id = $2
	`, token.DownloadCount, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to increment download count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit download: %w", err)
	}

	c.logger.Info("Download consumed",
		slog.String("token_id", tokenID),
		slog.Int("download_count", token.DownloadCount),
		slog.Int("download_limit", token.DownloadLimit),
	)

	return &token, nil
}

// Get returns the token without consuming anything.
func (c *Counter) Get(ctx context.Context, tokenID string) (*Token, error) {
	var token Token
	query := `
		SELECT token_id, download_count, download_limit
		FROM share_tokens
		WHERE token_id = $1
	`

	err := c.db.GetContext(ctx, &token, query, tokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get share token: %w", err)
	}

	return &token, nil
}
