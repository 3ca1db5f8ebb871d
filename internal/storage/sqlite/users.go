package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mistakeknot/chargeq/internal/core"
)

func (s *Store) CreateUser(ctx context.Context, name string, pref core.Preference) (core.User, error) {
	name = core.NormalizeName(name)
	if name == "" {
		return core.User{}, core.Validation("name required")
	}
	if pref == "" {
		pref = core.PrefBoth
	}
	if !pref.Valid() {
		return core.User{}, core.Validation("invalid pref")
	}

	user := core.User{
		ID:        uuid.NewString(),
		Name:      name,
		Pref:      pref,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, pref, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Name, string(user.Pref), user.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraint(err) {
			return core.User{}, core.ErrNameTaken
		}
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, pref, created_at FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []core.User
	for rows.Next() {
		var u core.User
		var pref, createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &pref, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Pref = core.Preference(pref)
		u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteUser removes the user together with their queue entries and spot
// assignments, all in one transaction. The version counter is bumped only
// when queue or spot rows actually changed.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	queueRes, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE user_id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear queue entries: %w", err)
	}
	spotRes, err := tx.ExecContext(ctx, `UPDATE spots SET user_id = NULL WHERE user_id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear spot assignments: %w", err)
	}

	userRes, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, err := userRes.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return core.ErrNotFound
	}

	queueN, _ := queueRes.RowsAffected()
	spotN, _ := spotRes.RowsAffected()
	if queueN+spotN > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE state_meta SET version = version + 1 WHERE id = 1`); err != nil {
			return fmt.Errorf("bump version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
