package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Setting keys used by the application.
const (
	SettingLastSyncAt = "last_sync_at"
)

// GetSetting reads a device-local key/value setting.
// Returns ErrNotFound for an unknown key.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting writes a device-local key/value setting.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO settings (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := db.conn.ExecContext(ctx, query, key, value, formatTime(db.now())); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a setting. Idempotent.
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}
