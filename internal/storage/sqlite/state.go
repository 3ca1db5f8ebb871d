package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mistakeknot/chargeq/internal/core"
)

// ReadState returns the queue, spots and reset metadata from a single
// transaction so a reader never observes a partially applied write.
func (s *Store) ReadState(ctx context.Context) (core.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	snap, err := readSnapshot(ctx, tx)
	if err != nil {
		return core.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	return snap, nil
}

// ReplaceState applies a full desired queue and spot assignment set under
// compare-and-swap semantics. A stale precondition version fails with
// core.ErrVersionConflict before any row is touched; a nil precondition
// skips the check. The queue is deleted and reinserted and every spot
// assignment cleared and reapplied, so no stale row can survive a commit.
func (s *Store) ReplaceState(ctx context.Context, change core.StateChange, expect *int64) (core.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT version FROM state_meta WHERE id = 1`).Scan(&current); err != nil {
		return core.Snapshot{}, fmt.Errorf("read version: %w", err)
	}
	if expect != nil && *expect != current {
		return core.Snapshot{}, core.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM queue`); err != nil {
		return core.Snapshot{}, fmt.Errorf("clear queue: %w", err)
	}
	for _, e := range change.Queue {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queue (position, user_id) VALUES (?, ?)`, e.Position, e.UserID,
		); err != nil {
			if isConstraint(err) {
				return core.Snapshot{}, fmt.Errorf("%w: queue position %d: %v", core.ErrConstraint, e.Position, err)
			}
			return core.Snapshot{}, fmt.Errorf("insert queue entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE spots SET user_id = NULL`); err != nil {
		return core.Snapshot{}, fmt.Errorf("clear spots: %w", err)
	}
	for _, a := range change.Spots {
		if a.UserID == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE spots SET user_id = ? WHERE id = ?`, *a.UserID, a.ID,
		); err != nil {
			if isConstraint(err) {
				return core.Snapshot{}, fmt.Errorf("%w: spot %q: %v", core.ErrConstraint, a.ID, err)
			}
			return core.Snapshot{}, fmt.Errorf("assign spot: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE state_meta SET version = version + 1 WHERE id = 1`); err != nil {
		return core.Snapshot{}, fmt.Errorf("bump version: %w", err)
	}

	snap, err := readSnapshot(ctx, tx)
	if err != nil {
		return core.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	return snap, nil
}

func readSnapshot(ctx context.Context, tx *sql.Tx) (core.Snapshot, error) {
	var snap core.Snapshot
	var lastReset sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT version, last_reset FROM state_meta WHERE id = 1`,
	).Scan(&snap.Version, &lastReset); err != nil {
		return core.Snapshot{}, fmt.Errorf("read meta: %w", err)
	}
	if lastReset.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastReset.String)
		if err != nil {
			return core.Snapshot{}, fmt.Errorf("parse last_reset: %w", err)
		}
		snap.LastReset = &t
	}

	rows, err := tx.QueryContext(ctx, `SELECT position, user_id FROM queue ORDER BY position`)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read queue: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e core.QueueEntry
		if err := rows.Scan(&e.Position, &e.UserID); err != nil {
			return core.Snapshot{}, fmt.Errorf("scan queue: %w", err)
		}
		snap.Queue = append(snap.Queue, e)
	}
	if err := rows.Err(); err != nil {
		return core.Snapshot{}, fmt.Errorf("queue rows: %w", err)
	}

	spotRows, err := tx.QueryContext(ctx, `SELECT id, type, label, user_id FROM spots ORDER BY id`)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read spots: %w", err)
	}
	defer spotRows.Close()
	for spotRows.Next() {
		var sp core.Spot
		var userID sql.NullString
		if err := spotRows.Scan(&sp.ID, &sp.Type, &sp.Label, &userID); err != nil {
			return core.Snapshot{}, fmt.Errorf("scan spot: %w", err)
		}
		if userID.Valid {
			sp.UserID = &userID.String
		}
		snap.Spots = append(snap.Spots, sp)
	}
	if err := spotRows.Err(); err != nil {
		return core.Snapshot{}, fmt.Errorf("spot rows: %w", err)
	}
	return snap, nil
}
