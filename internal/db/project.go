package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inkstone/inkstone/internal/schema"
)

const projectColumns = `id, title, inspiration, constraints, scale, genres, styles,
	world_setting, summary, version, created_at, updated_at, synced_at`

// CreateProject inserts a new project. The id and timestamps are generated
// here; a missing title defaults to the placeholder. The full record is
// returned.
func (db *DB) CreateProject(ctx context.Context, p *schema.Project) (*schema.Project, error) {
	p.ID = uuid.NewString()
	now := db.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1
	p.SyncedAt = nil
	p.SetDefaults()

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := insertProject(ctx, db.conn, p); err != nil {
		return nil, err
	}
	return p, nil
}

func insertProject(ctx context.Context, ex dbtx, p *schema.Project) error {
	query := `
	INSERT INTO projects (` + projectColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.ExecContext(ctx, query,
		p.ID,
		p.Title,
		p.Inspiration,
		p.Constraints,
		string(p.Scale),
		encodeStringList(p.Genres),
		encodeStringList(p.Styles),
		p.WorldSetting,
		p.Summary,
		p.Version,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
		timeToNullString(p.SyncedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// GetProject retrieves a single project by id.
// Returns ErrNotFound if no such project exists.
func (db *DB) GetProject(ctx context.Context, id string) (*schema.Project, error) {
	return getProject(ctx, db.conn, id)
}

func getProject(ctx context.Context, ex dbtx, id string) (*schema.Project, error) {
	row := ex.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	return p, nil
}

// ListProjects returns all projects, most recently updated first.
func (db *DB) ListProjects(ctx context.Context) ([]*schema.Project, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*schema.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// UpdateProject applies a partial update: only non-nil fields in u are
// written, updated_at is refreshed and the sync version is bumped. The
// refreshed record is returned; ErrNotFound if the id is unknown.
func (db *DB) UpdateProject(ctx context.Context, id string, u schema.ProjectUpdate) (*schema.Project, error) {
	sets := []string{"updated_at = ?", "version = version + 1"}
	args := []any{formatTime(db.now())}

	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Inspiration != nil {
		sets = append(sets, "inspiration = ?")
		args = append(args, *u.Inspiration)
	}
	if u.Constraints != nil {
		sets = append(sets, "constraints = ?")
		args = append(args, *u.Constraints)
	}
	if u.Scale != nil {
		sets = append(sets, "scale = ?")
		args = append(args, string(*u.Scale))
	}
	if u.Genres != nil {
		sets = append(sets, "genres = ?")
		args = append(args, encodeStringList(*u.Genres))
	}
	if u.Styles != nil {
		sets = append(sets, "styles = ?")
		args = append(args, encodeStringList(*u.Styles))
	}
	if u.WorldSetting != nil {
		sets = append(sets, "world_setting = ?")
		args = append(args, *u.WorldSetting)
	}
	if u.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *u.Summary)
	}

	args = append(args, id)
	query := `UPDATE projects SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return db.GetProject(ctx, id)
}

// DeleteProject removes a project. The engine cascades the delete to its
// volumes, chapters and characters. A tombstone recording the deletion is
// upserted in the same transaction so the removal can be propagated to the
// remote peer. Returns ErrNotFound if the id is unknown.
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var title string
	err = tx.QueryRowContext(ctx, `SELECT title FROM projects WHERE id = ?`, id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load project %s for deletion: %w", id, err)
	}

	if err := upsertTombstone(ctx, tx, id, title, formatTime(db.now())); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project deletion: %w", err)
	}
	return nil
}

// CreateOrUpdateProject upserts a project preserving the caller-supplied id,
// timestamps and version. This is the only path that lets a caller choose
// the id; it exists for the sync importer, and running it twice with the
// same payload leaves exactly one row in the payload's state.
func (db *DB) CreateOrUpdateProject(ctx context.Context, p *schema.Project) error {
	return createOrUpdateProject(ctx, db.conn, db, p)
}

func createOrUpdateProject(ctx context.Context, ex dbtx, db *DB, p *schema.Project) error {
	now := db.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	query := `
	INSERT INTO projects (` + projectColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		inspiration = excluded.inspiration,
		constraints = excluded.constraints,
		scale = excluded.scale,
		genres = excluded.genres,
		styles = excluded.styles,
		world_setting = excluded.world_setting,
		summary = excluded.summary,
		version = excluded.version,
		updated_at = excluded.updated_at,
		synced_at = excluded.synced_at
	`
	_, err := ex.ExecContext(ctx, query,
		p.ID,
		p.Title,
		p.Inspiration,
		p.Constraints,
		string(p.Scale),
		encodeStringList(p.Genres),
		encodeStringList(p.Styles),
		p.WorldSetting,
		p.Summary,
		p.Version,
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
		timeToNullString(p.SyncedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", p.ID, err)
	}
	return nil
}

// MarkProjectSynced stamps synced_at after a successful upload without
// touching updated_at or the version counter.
func (db *DB) MarkProjectSynced(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE projects SET synced_at = ? WHERE id = ?`, formatTime(db.now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark project %s synced: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProjectVersion overwrites the sync version and updated_at, used by the
// download path to adopt the remote's values verbatim.
func (db *DB) SetProjectVersion(ctx context.Context, id string, version int64, updatedAt time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE projects SET version = ?, updated_at = ? WHERE id = ?`, version, formatTime(updatedAt), id)
	if err != nil {
		return fmt.Errorf("failed to set project %s version: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// bumpProject advances the sync version and refreshes updated_at on the
// owning project when one of its children is mutated.
func bumpProject(ctx context.Context, ex dbtx, projectID, now string) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE projects SET version = version + 1, updated_at = ? WHERE id = ?`, now, projectID)
	if err != nil {
		return fmt.Errorf("failed to bump project %s: %w", projectID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*schema.Project, error) {
	var p schema.Project
	var scale, genres, styles, createdAt, updatedAt string
	var syncedAt sql.NullString

	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Inspiration,
		&p.Constraints,
		&scale,
		&genres,
		&styles,
		&p.WorldSetting,
		&p.Summary,
		&p.Version,
		&createdAt,
		&updatedAt,
		&syncedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Scale = schema.Scale(scale)
	p.Genres = decodeStringList(genres)
	p.Styles = decodeStringList(styles)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.SyncedAt = nullStringToTime(syncedAt)
	return &p, nil
}
