package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/inkstone/inkstone/internal/schema"
)

const volumeColumns = `id, project_id, title, summary, sort_order, key_points,
	brief_chapters, main_plot, key_events, generating_lock, created_at, updated_at`

// CreateVolume inserts a new volume under a project. Unless v.SortOrder is
// already set (> 0), the next sort order in the project scope is assigned
// inside the same transaction so concurrent inserts never collide.
// The owning project's sync version is bumped.
func (db *DB) CreateVolume(ctx context.Context, v *schema.Volume) (*schema.Volume, error) {
	v.ID = uuid.NewString()
	now := db.now()
	v.CreatedAt = now
	v.UpdatedAt = now
	v.SetDefaults()
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if v.SortOrder <= 0 {
		next, err := nextSortOrder(ctx, tx, "volumes", "project_id", v.ProjectID)
		if err != nil {
			return nil, err
		}
		v.SortOrder = next
	}

	if err := insertVolume(ctx, tx, v); err != nil {
		return nil, err
	}
	if err := bumpProject(ctx, tx, v.ProjectID, formatTime(now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit volume creation: %w", err)
	}
	return v, nil
}

// nextSortOrder returns max(sort_order)+1 within one parent scope.
func nextSortOrder(ctx context.Context, ex dbtx, table, parentCol, parentID string) (int, error) {
	var max sql.NullInt64
	query := fmt.Sprintf(`SELECT MAX(sort_order) FROM %s WHERE %s = ?`, table, parentCol)
	if err := ex.QueryRowContext(ctx, query, parentID).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to compute next sort order: %w", err)
	}
	return int(max.Int64) + 1, nil
}

func insertVolume(ctx context.Context, ex dbtx, v *schema.Volume) error {
	query := `
	INSERT INTO volumes (` + volumeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.ExecContext(ctx, query,
		v.ID,
		v.ProjectID,
		v.Title,
		v.Summary,
		v.SortOrder,
		encodeStringList(v.KeyPoints),
		encodeStringList(v.BriefChapters),
		v.MainPlot,
		encodeStringList(v.KeyEvents),
		v.GeneratingLock,
		formatTime(v.CreatedAt),
		formatTime(v.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert volume: %w", err)
	}
	return nil
}

// GetVolume retrieves a single volume by id.
// Returns ErrNotFound if no such volume exists.
func (db *DB) GetVolume(ctx context.Context, id string) (*schema.Volume, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+volumeColumns+` FROM volumes WHERE id = ?`, id)
	v, err := scanVolume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get volume %s: %w", id, err)
	}
	return v, nil
}

// ListVolumes returns a project's volumes ordered by sort order.
func (db *DB) ListVolumes(ctx context.Context, projectID string) ([]*schema.Volume, error) {
	return listVolumes(ctx, db.conn, projectID)
}

func listVolumes(ctx context.Context, ex dbtx, projectID string) ([]*schema.Volume, error) {
	rows, err := ex.QueryContext(ctx,
		`SELECT `+volumeColumns+` FROM volumes WHERE project_id = ? ORDER BY sort_order ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}
	defer rows.Close()

	var volumes []*schema.Volume
	for rows.Next() {
		v, err := scanVolume(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan volume: %w", err)
		}
		volumes = append(volumes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating volumes: %w", err)
	}
	return volumes, nil
}

// UpdateVolume applies a partial update and bumps the owning project.
// Returns the refreshed record, or ErrNotFound for an unknown id.
func (db *DB) UpdateVolume(ctx context.Context, id string, u schema.VolumeUpdate) (*schema.Volume, error) {
	sets := []string{"updated_at = ?"}
	now := formatTime(db.now())
	args := []any{now}

	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *u.Summary)
	}
	if u.SortOrder != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *u.SortOrder)
	}
	if u.KeyPoints != nil {
		sets = append(sets, "key_points = ?")
		args = append(args, encodeStringList(*u.KeyPoints))
	}
	if u.BriefChapters != nil {
		sets = append(sets, "brief_chapters = ?")
		args = append(args, encodeStringList(*u.BriefChapters))
	}
	if u.MainPlot != nil {
		sets = append(sets, "main_plot = ?")
		args = append(args, *u.MainPlot)
	}
	if u.KeyEvents != nil {
		sets = append(sets, "key_events = ?")
		args = append(args, encodeStringList(*u.KeyEvents))
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args = append(args, id)
	query := `UPDATE volumes SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update volume %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	var projectID string
	if err := tx.QueryRowContext(ctx, `SELECT project_id FROM volumes WHERE id = ?`, id).Scan(&projectID); err != nil {
		return nil, fmt.Errorf("failed to resolve volume %s project: %w", id, err)
	}
	if err := bumpProject(ctx, tx, projectID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit volume update: %w", err)
	}
	return db.GetVolume(ctx, id)
}

// DeleteVolume removes a volume; the engine cascades to its chapters.
// Volume deletion is immediate and leaves no tombstone - only project-level
// deletion propagates to the remote. Returns ErrNotFound for an unknown id.
func (db *DB) DeleteVolume(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var projectID string
	err = tx.QueryRowContext(ctx, `SELECT project_id FROM volumes WHERE id = ?`, id).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve volume %s project: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM volumes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete volume %s: %w", id, err)
	}
	if err := bumpProject(ctx, tx, projectID, formatTime(db.now())); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit volume deletion: %w", err)
	}
	return nil
}

// CreateOrUpdateVolume upserts a volume preserving the caller-supplied id
// and timestamps. Used only by the sync importer; never bumps the project
// version.
func (db *DB) CreateOrUpdateVolume(ctx context.Context, v *schema.Volume) error {
	return createOrUpdateVolume(ctx, db.conn, db, v)
}

func createOrUpdateVolume(ctx context.Context, ex dbtx, db *DB, v *schema.Volume) error {
	now := db.now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = now
	}
	v.SetDefaults()
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	query := `
	INSERT INTO volumes (` + volumeColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		project_id = excluded.project_id,
		title = excluded.title,
		summary = excluded.summary,
		sort_order = excluded.sort_order,
		key_points = excluded.key_points,
		brief_chapters = excluded.brief_chapters,
		main_plot = excluded.main_plot,
		key_events = excluded.key_events,
		generating_lock = excluded.generating_lock,
		updated_at = excluded.updated_at
	`
	_, err := ex.ExecContext(ctx, query,
		v.ID,
		v.ProjectID,
		v.Title,
		v.Summary,
		v.SortOrder,
		encodeStringList(v.KeyPoints),
		encodeStringList(v.BriefChapters),
		v.MainPlot,
		encodeStringList(v.KeyEvents),
		v.GeneratingLock,
		formatTime(v.CreatedAt),
		formatTime(v.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert volume %s: %w", v.ID, err)
	}
	return nil
}

func scanVolume(row rowScanner) (*schema.Volume, error) {
	var v schema.Volume
	var keyPoints, briefChapters, keyEvents, createdAt, updatedAt string

	err := row.Scan(
		&v.ID,
		&v.ProjectID,
		&v.Title,
		&v.Summary,
		&v.SortOrder,
		&keyPoints,
		&briefChapters,
		&v.MainPlot,
		&keyEvents,
		&v.GeneratingLock,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.KeyPoints = decodeStringList(keyPoints)
	v.BriefChapters = decodeStringList(briefChapters)
	v.KeyEvents = decodeStringList(keyEvents)
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}
