package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mistakeknot/chargeq/internal/core"
)

// ResetIfDue clears the queue and every spot assignment if the configured
// daily boundary has been crossed since the last recorded reset.
//
// The decision and the effect run in one transaction on the store's single
// connection, so overlapping trigger invocations serialize: the first one
// across the boundary records last_reset, and every later one reads
// last_reset >= target and skips. The version counter is bumped like any
// other writer so concurrent replace calls observe the change.
func (s *Store) ResetIfDue(ctx context.Context, now time.Time) (bool, error) {
	now = now.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	resetTime := core.DefaultResetTime
	if err := tx.QueryRowContext(ctx,
		`SELECT reset_time FROM settings WHERE id = 1`,
	).Scan(&resetTime); err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("read settings: %w", err)
	}
	target, err := core.ResetTarget(now, resetTime)
	if err != nil {
		return false, fmt.Errorf("reset time %q: %w", resetTime, err)
	}

	var lastStr sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT last_reset FROM state_meta WHERE id = 1`,
	).Scan(&lastStr); err != nil {
		return false, fmt.Errorf("read last_reset: %w", err)
	}
	var last *time.Time
	if lastStr.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastStr.String)
		if err != nil {
			return false, fmt.Errorf("parse last_reset: %w", err)
		}
		last = &t
	}

	if now.Before(target) || (last != nil && !last.Before(target)) {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue`); err != nil {
		return false, fmt.Errorf("clear queue: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE spots SET user_id = NULL`); err != nil {
		return false, fmt.Errorf("clear spots: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE state_meta SET last_reset = ?, version = version + 1 WHERE id = 1`,
		now.Format(time.RFC3339Nano),
	); err != nil {
		return false, fmt.Errorf("record reset: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
