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

const characterColumns = `id, project_id, name, role, gender, age, identity,
	description, arc, status, death_chapter, appearances, relationships,
	created_at, updated_at`

// CreateCharacter inserts a new character under a project and bumps the
// project's sync version.
func (db *DB) CreateCharacter(ctx context.Context, c *schema.Character) (*schema.Character, error) {
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

	if err := insertCharacter(ctx, tx, c); err != nil {
		return nil, err
	}
	if err := bumpProject(ctx, tx, c.ProjectID, formatTime(now)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit character creation: %w", err)
	}
	return c, nil
}

func insertCharacter(ctx context.Context, ex dbtx, c *schema.Character) error {
	query := `
	INSERT INTO characters (` + characterColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.ExecContext(ctx, query,
		c.ID,
		c.ProjectID,
		c.Name,
		string(c.Role),
		c.Gender,
		c.Age,
		c.Identity,
		c.Description,
		c.Arc,
		string(c.Status),
		c.DeathChapter,
		encodeStringList(c.Appearances),
		encodeRelationships(c.Relationships),
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert character: %w", err)
	}
	return nil
}

// GetCharacter retrieves a single character by id.
// Returns ErrNotFound if no such character exists.
func (db *DB) GetCharacter(ctx context.Context, id string) (*schema.Character, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	c, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character %s: %w", id, err)
	}
	return c, nil
}

// ListCharacters returns a project's characters in creation order.
func (db *DB) ListCharacters(ctx context.Context, projectID string) ([]*schema.Character, error) {
	return listCharacters(ctx, db.conn, projectID)
}

func listCharacters(ctx context.Context, ex dbtx, projectID string) ([]*schema.Character, error) {
	rows, err := ex.QueryContext(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE project_id = ? ORDER BY created_at ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	var characters []*schema.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		characters = append(characters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating characters: %w", err)
	}
	return characters, nil
}

// UpdateCharacter applies a partial update and bumps the owning project.
// Returns the refreshed record, or ErrNotFound for an unknown id.
func (db *DB) UpdateCharacter(ctx context.Context, id string, u schema.CharacterUpdate) (*schema.Character, error) {
	sets := []string{"updated_at = ?"}
	now := formatTime(db.now())
	args := []any{now}

	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Role != nil {
		sets = append(sets, "role = ?")
		args = append(args, string(*u.Role))
	}
	if u.Gender != nil {
		sets = append(sets, "gender = ?")
		args = append(args, *u.Gender)
	}
	if u.Age != nil {
		sets = append(sets, "age = ?")
		args = append(args, *u.Age)
	}
	if u.Identity != nil {
		sets = append(sets, "identity = ?")
		args = append(args, *u.Identity)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Arc != nil {
		sets = append(sets, "arc = ?")
		args = append(args, *u.Arc)
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.DeathChapter != nil {
		sets = append(sets, "death_chapter = ?")
		args = append(args, *u.DeathChapter)
	}
	if u.Appearances != nil {
		sets = append(sets, "appearances = ?")
		args = append(args, encodeStringList(*u.Appearances))
	}
	if u.Relationships != nil {
		sets = append(sets, "relationships = ?")
		args = append(args, encodeRelationships(*u.Relationships))
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args = append(args, id)
	query := `UPDATE characters SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update character %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	var projectID string
	if err := tx.QueryRowContext(ctx, `SELECT project_id FROM characters WHERE id = ?`, id).Scan(&projectID); err != nil {
		return nil, fmt.Errorf("failed to resolve character %s project: %w", id, err)
	}
	if err := bumpProject(ctx, tx, projectID, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit character update: %w", err)
	}
	return db.GetCharacter(ctx, id)
}

// DeleteCharacter removes a character. Immediate and untracked by
// tombstones. Returns ErrNotFound for an unknown id.
func (db *DB) DeleteCharacter(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var projectID string
	err = tx.QueryRowContext(ctx, `SELECT project_id FROM characters WHERE id = ?`, id).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to resolve character %s project: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM characters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete character %s: %w", id, err)
	}
	if err := bumpProject(ctx, tx, projectID, formatTime(db.now())); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit character deletion: %w", err)
	}
	return nil
}

// CreateOrUpdateCharacter upserts a character preserving the caller-supplied
// id and timestamps. Used only by the sync importer.
func (db *DB) CreateOrUpdateCharacter(ctx context.Context, c *schema.Character) error {
	return createOrUpdateCharacter(ctx, db.conn, db, c)
}

func createOrUpdateCharacter(ctx context.Context, ex dbtx, db *DB, c *schema.Character) error {
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
	INSERT INTO characters (` + characterColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		project_id = excluded.project_id,
		name = excluded.name,
		role = excluded.role,
		gender = excluded.gender,
		age = excluded.age,
		identity = excluded.identity,
		description = excluded.description,
		arc = excluded.arc,
		status = excluded.status,
		death_chapter = excluded.death_chapter,
		appearances = excluded.appearances,
		relationships = excluded.relationships,
		updated_at = excluded.updated_at
	`
	_, err := ex.ExecContext(ctx, query,
		c.ID,
		c.ProjectID,
		c.Name,
		string(c.Role),
		c.Gender,
		c.Age,
		c.Identity,
		c.Description,
		c.Arc,
		string(c.Status),
		c.DeathChapter,
		encodeStringList(c.Appearances),
		encodeRelationships(c.Relationships),
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert character %s: %w", c.ID, err)
	}
	return nil
}

func scanCharacter(row rowScanner) (*schema.Character, error) {
	var c schema.Character
	var role, status, appearances, relationships, createdAt, updatedAt string

	err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&c.Name,
		&role,
		&c.Gender,
		&c.Age,
		&c.Identity,
		&c.Description,
		&c.Arc,
		&status,
		&c.DeathChapter,
		&appearances,
		&relationships,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Role = schema.Role(role)
	c.Status = schema.CharacterStatus(status)
	c.Appearances = decodeStringList(appearances)
	c.Relationships = decodeRelationships(relationships)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
