package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/inkstone/inkstone/internal/schema"
)

// ExportAggregate assembles a project with all of its volumes, chapters and
// characters into one snapshot. Volumes are ordered by sort order; chapters
// are grouped per volume, each group ordered by sort order. Returns
// ErrNotFound if the project does not exist.
func (db *DB) ExportAggregate(ctx context.Context, projectID string) (*schema.Aggregate, error) {
	project, err := db.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	volumes, err := listVolumes(ctx, db.conn, projectID)
	if err != nil {
		return nil, err
	}

	var chapters []*schema.Chapter
	for _, v := range volumes {
		vcs, err := listChapters(ctx, db.conn, v.ID)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, vcs...)
	}

	characters, err := listCharacters(ctx, db.conn, projectID)
	if err != nil {
		return nil, err
	}

	return &schema.Aggregate{
		Project:    project,
		Volumes:    volumes,
		Chapters:   chapters,
		Characters: characters,
	}, nil
}

// ImportOptions selects the import policy. Overwrite and GenerateNewIDs are
// mutually exclusive.
type ImportOptions struct {
	// Overwrite deletes the existing project (if present) and recreates
	// the aggregate with its original ids.
	Overwrite bool
	// GenerateNewIDs mints fresh ids for every entity and remaps chapter
	// references inside character appearances accordingly.
	GenerateNewIDs bool
}

// ImportAggregate writes a snapshot into the store and returns the imported
// project's id.
//
// With neither policy set, an existing project with the same id fails with
// ErrAlreadyExists. Under GenerateNewIDs, cross-entity references survive id
// regeneration: chapter ids referenced by character appearances are remapped
// through the id map built during the volume/chapter pass.
//
// Any tombstone for the imported project id is removed, since the user is
// explicitly (re)creating it.
func (db *DB) ImportAggregate(ctx context.Context, agg *schema.Aggregate, opts ImportOptions) (string, error) {
	if agg == nil || agg.Project == nil {
		return "", fmt.Errorf("%w: aggregate has no root project", ErrValidation)
	}
	if opts.Overwrite && opts.GenerateNewIDs {
		return "", fmt.Errorf("%w: overwrite and generateNewIds are mutually exclusive", ErrValidation)
	}

	_, err := db.GetProject(ctx, agg.Project.ID)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if exists && !opts.Overwrite && !opts.GenerateNewIDs {
		return "", fmt.Errorf("%w: project %s", ErrAlreadyExists, agg.Project.ID)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if exists && opts.Overwrite {
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, agg.Project.ID); err != nil {
			return "", fmt.Errorf("failed to delete project %s for overwrite: %w", agg.Project.ID, err)
		}
	}

	project := *agg.Project
	chapterIDMap := make(map[string]string)
	volumeIDMap := make(map[string]string)
	if opts.GenerateNewIDs {
		project.ID = uuid.NewString()
	}

	if err := createOrUpdateProject(ctx, tx, db, &project); err != nil {
		return "", err
	}

	for _, src := range agg.Volumes {
		v := *src
		v.ProjectID = project.ID
		if opts.GenerateNewIDs {
			newID := uuid.NewString()
			volumeIDMap[v.ID] = newID
			v.ID = newID
		}
		if err := createOrUpdateVolume(ctx, tx, db, &v); err != nil {
			return "", err
		}
	}

	for _, src := range agg.Chapters {
		c := *src
		if opts.GenerateNewIDs {
			newID := uuid.NewString()
			chapterIDMap[c.ID] = newID
			c.ID = newID
			if mapped, ok := volumeIDMap[c.VolumeID]; ok {
				c.VolumeID = mapped
			}
		}
		if err := createOrUpdateChapter(ctx, tx, db, &c); err != nil {
			return "", err
		}
	}

	for _, src := range agg.Characters {
		ch := *src
		ch.ProjectID = project.ID
		if opts.GenerateNewIDs {
			ch.ID = uuid.NewString()
			remapped := make([]string, 0, len(ch.Appearances))
			for _, chapterID := range ch.Appearances {
				if mapped, ok := chapterIDMap[chapterID]; ok {
					remapped = append(remapped, mapped)
				} else {
					remapped = append(remapped, chapterID)
				}
			}
			ch.Appearances = remapped
		}
		if err := createOrUpdateCharacter(ctx, tx, db, &ch); err != nil {
			return "", err
		}
	}

	// The user is explicitly (re)creating this id; a stale tombstone would
	// delete it remotely or suppress its download on the next sync.
	if _, err := tx.ExecContext(ctx, `DELETE FROM deleted_projects WHERE id = ?`, project.ID); err != nil {
		return "", fmt.Errorf("failed to clear tombstone for %s: %w", project.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit aggregate import: %w", err)
	}
	return project.ID, nil
}

// UpsertAggregate writes a remote snapshot through the createOrUpdate path
// for every entity in one transaction. Rows keep their remote ids,
// timestamps and version; nothing is deleted and the project version is
// never bumped. This is the sync download path, and it is idempotent.
func (db *DB) UpsertAggregate(ctx context.Context, agg *schema.Aggregate) error {
	if agg == nil || agg.Project == nil {
		return fmt.Errorf("%w: aggregate has no root project", ErrValidation)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	project := *agg.Project
	if err := createOrUpdateProject(ctx, tx, db, &project); err != nil {
		return err
	}
	for _, src := range agg.Volumes {
		v := *src
		v.ProjectID = project.ID
		if err := createOrUpdateVolume(ctx, tx, db, &v); err != nil {
			return err
		}
	}
	for _, src := range agg.Chapters {
		c := *src
		if err := createOrUpdateChapter(ctx, tx, db, &c); err != nil {
			return err
		}
	}
	for _, src := range agg.Characters {
		ch := *src
		ch.ProjectID = project.ID
		if err := createOrUpdateCharacter(ctx, tx, db, &ch); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit aggregate upsert: %w", err)
	}
	return nil
}
