package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/inkstone/inkstone/internal/schema"
)

// upsertTombstone records a project deletion. Re-deleting the same id
// refreshes the title and timestamp and resets the synced flag.
func upsertTombstone(ctx context.Context, ex dbtx, id, title, deletedAt string) error {
	query := `
	INSERT INTO deleted_projects (id, title, deleted_at, synced)
	VALUES (?, ?, ?, 0)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		deleted_at = excluded.deleted_at,
		synced = 0
	`
	if _, err := ex.ExecContext(ctx, query, id, title, deletedAt); err != nil {
		return fmt.Errorf("failed to upsert tombstone %s: %w", id, err)
	}
	return nil
}

// ListUnsyncedTombstones returns deletions not yet propagated to the remote,
// oldest first.
func (db *DB) ListUnsyncedTombstones(ctx context.Context) ([]*schema.Tombstone, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, title, deleted_at, synced FROM deleted_projects
		 WHERE synced = 0 ORDER BY deleted_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced tombstones: %w", err)
	}
	defer rows.Close()

	var tombstones []*schema.Tombstone
	for rows.Next() {
		t, err := scanTombstone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		tombstones = append(tombstones, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tombstones: %w", err)
	}
	return tombstones, nil
}

// MarkTombstoneSynced records that the deletion reached the remote.
// Returns ErrNotFound for an unknown id.
func (db *DB) MarkTombstoneSynced(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE deleted_projects SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark tombstone %s synced: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsTombstoned reports whether a project id has a local deletion record.
func (db *DB) IsTombstoned(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM deleted_projects WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check tombstone %s: %w", id, err)
	}
	return true, nil
}

// RemoveTombstone deletes a tombstone, used when a user recreates or
// undeletes a project id. Idempotent.
func (db *DB) RemoveTombstone(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM deleted_projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove tombstone %s: %w", id, err)
	}
	return nil
}

// PurgeSyncedTombstones removes tombstones that reached the remote and are
// past the retention window. Returns the number purged.
func (db *DB) PurgeSyncedTombstones(ctx context.Context) (int64, error) {
	cutoff := formatTime(db.now().Add(-schema.TombstoneRetention))
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM deleted_projects WHERE synced = 1 AND deleted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tombstones: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanTombstone(row rowScanner) (*schema.Tombstone, error) {
	var t schema.Tombstone
	var deletedAt string
	var synced int

	if err := row.Scan(&t.ID, &t.Title, &deletedAt, &synced); err != nil {
		return nil, err
	}
	t.DeletedAt = parseTime(deletedAt)
	t.Synced = synced != 0
	return &t, nil
}
