package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mistakeknot/chargeq/internal/core"
)

func (s *Store) Settings(ctx context.Context) (core.Settings, error) {
	out := core.Settings{ResetTime: core.DefaultResetTime}
	err := s.db.QueryRowContext(ctx, `SELECT reset_time FROM settings WHERE id = 1`).Scan(&out.ResetTime)
	if err != nil && err != sql.ErrNoRows {
		return core.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateSettings(ctx context.Context, cfg core.Settings) error {
	if _, _, err := core.ParseResetTime(cfg.ResetTime); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE settings SET reset_time = ? WHERE id = 1`, cfg.ResetTime); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}
