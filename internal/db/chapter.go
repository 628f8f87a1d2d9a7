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

const chapterColumns = `id, volume_id, title, outline, content, word_count,
	sort_order, created_at, updated_at`

// CreateChapter inserts a new chapter under a volume. The next sort order in
// the volume scope is assigned transactionally unless c.SortOrder is already
// set, and the word count is derived from the content. Bumps the owning
// project's sync version.
func (db *DB) CreateChapter(ctx context.Context, c *schema.Chapter) (*schema.Chapter, error) {
	c.ID = uuid.NewString()
	now := db.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if c.SortOrder <= 0 {
		next, err := nextSortOrder(ctx, tx, "chapters", "volume_id", c.VolumeID)
		if err != nil {
			return nil, err
		}
		c.SortOrder = next
	}

	if err := insertChapter(ctx, tx, c); err != nil {
		return nil, err
	}
	projectID, err := volumeProject(ctx, tx, c.VolumeID)
	if err != nil {
		return nil, err
	}
	if err := bumpProject(ctx, tx, projectID, formatTime(now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chapter creation: %w", err)
	}
	return c, nil
}

// CreateChapters inserts a batch of chapters under one volume atomically.
// The current max sort order is read once inside the transaction and the new
// rows get the contiguous run max+1..max+n; either all rows commit or none
// do, so a racing single-row insert can never produce gaps or duplicates.
func (db *DB) CreateChapters(ctx context.Context, volumeID string, specs []schema.ChapterSpec) ([]*schema.Chapter, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	next, err := nextSortOrder(ctx, tx, "chapters", "volume_id", volumeID)
	if err != nil {
		return nil, err
	}

	now := db.now()
	chapters := make([]*schema.Chapter, 0, len(specs))
	for i, spec := range specs {
		c := &schema.Chapter{
			ID:        uuid.NewString(),
			VolumeID:  volumeID,
			Title:     spec.Title,
			Outline:   spec.Outline,
			Content:   spec.Content,
			SortOrder: next + i,
			CreatedAt: now,
			UpdatedAt: now,
		}
		c.SetDefaults()
		if err := insertChapter(ctx, tx, c); err != nil {
			return nil, err
		}
		chapters = append(chapters, c)
	}

	projectID, err := volumeProject(ctx, tx, volumeID)
	if err != nil {
		return nil, err
	}
	if err := bumpProject(ctx, tx, projectID, formatTime(now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chapter batch: %w", err)
	}
	return chapters, nil
}

// volumeProject resolves the project owning a volume.
func volumeProject(ctx context.Context, ex dbtx, volumeID string) (string, error) {
	var projectID string
	err := ex.QueryRowContext(ctx, `SELECT project_id FROM volumes WHERE id = ?`, volumeID).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve volume %s project: %w", volumeID, err)
	}
	return projectID, nil
}

func insertChapter(ctx context.Context, ex dbtx, c *schema.Chapter) error {
	query := `
	INSERT INTO chapters (` + chapterColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.ExecContext(ctx, query,
		c.ID,
		c.VolumeID,
		c.Title,
		c.Outline,
		c.Content,
		c.WordCount,
		c.SortOrder,
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chapter: %w", err)
	}
	return nil
}

// GetChapter retrieves a single chapter by id.
// Returns ErrNotFound if no such chapter exists.
func (db *DB) GetChapter(ctx context.Context, id string) (*schema.Chapter, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE id = ?`, id)
	c, err := scanChapter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chapter %s: %w", id, err)
	}
	return c, nil
}

// ListChapters returns a volume's chapters ordered by sort order.
func (db *DB) ListChapters(ctx context.Context, volumeID string) ([]*schema.Chapter, error) {
	return listChapters(ctx, db.conn, volumeID)
}

func listChapters(ctx context.Context, ex dbtx, volumeID string) ([]*schema.Chapter, error) {
	rows, err := ex.QueryContext(ctx,
		`SELECT `+chapterColumns+` FROM chapters WHERE volume_id = ? ORDER BY sort_order ASC`,
		volumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []*schema.Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		chapters = append(chapters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chapters: %w", err)
	}
	return chapters, nil
}

// UpdateChapter applies a partial update. Setting Content recomputes the
// derived word count. Bumps the owning project's sync version. Returns the
// refreshed record, or ErrNotFound for an unknown id.
func (db *DB) UpdateChapter(ctx context.Context, id string, u schema.ChapterUpdate) (*schema.Chapter, error) {
	sets := []string{"updated_at = ?"}
	now := formatTime(db.now())
	args := []any{now}

	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Outline != nil {
		sets = append(sets, "outline = ?")
		args = append(args, *u.Outline)
	}
	if u.Content != nil {
		sets = append(sets, "content = ?", "word_count = ?")
		args = append(args, *u.Content, schema.CountWords(*u.Content))
	}
	if u.SortOrder != nil {
		sets = append(sets, "sort_order = ?")
		args = append(args, *u.SortOrder)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args = append(args, id)
	query := `UPDATE chapters SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update chapter %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	var volumeID string
	if err := tx.QueryRowContext(ctx, `SELECT volume_id FROM chapters WHERE id = ?`, id).Scan(&volumeID); err != nil {
		return nil, fmt.Errorf("failed to resolve chapter %s volume: %w", id, err)
	}
	projectID, err := volumeProject(ctx, tx, volumeID)
	if err != nil {
		return nil, err
	}
	if err := bumpProject(ctx, tx, projectID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chapter update: %w", err)
	}
	return db.GetChapter(ctx, id)
}

// DeleteChapter removes a chapter. Immediate and untracked by tombstones.
// Returns ErrNotFound for an unknown id.
func (db *DB) DeleteChapter(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var volumeID string
	err = tx.QueryRowContext(ctx, `SELECT volume_id FROM chapters WHERE id = ?`, id).Scan(&volumeID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve chapter %s volume: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete chapter %s: %w", id, err)
	}
	projectID, err := volumeProject(ctx, tx, volumeID)
	if err != nil {
		return err
	}
	if err := bumpProject(ctx, tx, projectID, formatTime(db.now())); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chapter deletion: %w", err)
	}
	return nil
}

// CreateOrUpdateChapter upserts a chapter preserving the caller-supplied id
// and timestamps. Used only by the sync importer; the word count is still
// re-derived from the content.
func (db *DB) CreateOrUpdateChapter(ctx context.Context, c *schema.Chapter) error {
	return createOrUpdateChapter(ctx, db.conn, db, c)
}

func createOrUpdateChapter(ctx context.Context, ex dbtx, db *DB, c *schema.Chapter) error {
	now := db.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	query := `
	INSERT INTO chapters (` + chapterColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		volume_id = excluded.volume_id,
		title = excluded.title,
		outline = excluded.outline,
		content = excluded.content,
		word_count = excluded.word_count,
		sort_order = excluded.sort_order,
		updated_at = excluded.updated_at
	`
	_, err := ex.ExecContext(ctx, query,
		c.ID,
		c.VolumeID,
		c.Title,
		c.Outline,
		c.Content,
		c.WordCount,
		c.SortOrder,
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chapter %s: %w", c.ID, err)
	}
	return nil
}

func scanChapter(row rowScanner) (*schema.Chapter, error) {
	var c schema.Chapter
	var createdAt, updatedAt string

	err := row.Scan(
		&c.ID,
		&c.VolumeID,
		&c.Title,
		&c.Outline,
		&c.Content,
		&c.WordCount,
		&c.SortOrder,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
