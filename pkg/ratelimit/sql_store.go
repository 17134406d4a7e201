package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore keeps the attempt log in a rate_limits table: one row per
// attempt, never updated in place. Works against PostgreSQL (lib/pq) and
// SQLite for tests.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQL-backed attempt store
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the rate_limits table if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rate_limits (
			key TEXT NOT NULL,
			attempt_at BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create rate_limits table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_rate_limits_key_time ON rate_limits (key, attempt_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to index rate_limits table: %w", err)
	}
	return nil
}

// Count returns the number of attempts at or after since
func (s *SQLStore) Count(ctx context.Context, key string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_limits WHERE key = $1 AND attempt_at >= $2`,
		key, since.UnixMilli(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

// Latest returns the most recent attempt time, or the zero time if none
func (s *SQLStore) Latest(ctx context.Context, key string) (time.Time, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(attempt_at) FROM rate_limits WHERE key = $1`,
		key,
	).Scan(&ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch latest attempt: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64), nil
}

// Record appends an attempt at the given time
func (s *SQLStore) Record(ctx context.Context, key string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limits (key, attempt_at) VALUES ($1, $2)`,
		key, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// PruneBefore deletes attempts strictly before cutoff
func (s *SQLStore) PruneBefore(ctx context.Context, key string, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE key = $1 AND attempt_at < $2`,
		key, cutoff.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to prune attempts: %w", err)
	}
	return nil
}
