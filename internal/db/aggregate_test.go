package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/inkstone/inkstone/internal/schema"
)

// seedAggregate builds a project with two volumes, three chapters and two
// characters whose appearances reference real chapter ids.
func seedAggregate(t *testing.T, db *DB) string {
	t.Helper()
	ctx := context.Background()

	p, err := db.CreateProject(ctx, &schema.Project{
		Title:  "The Lantern Road",
		Scale:  schema.ScaleMillion,
		Genres: []string{"xianxia"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v1, _ := db.CreateVolume(ctx, &schema.Volume{ProjectID: p.ID, Title: "Act I"})
	v2, _ := db.CreateVolume(ctx, &schema.Volume{ProjectID: p.ID, Title: "Act II"})

	c1, _ := db.CreateChapter(ctx, &schema.Chapter{VolumeID: v1.ID, Title: "Dawn", Content: "first light"})
	c2, _ := db.CreateChapter(ctx, &schema.Chapter{VolumeID: v1.ID, Title: "Noon"})
	c3, _ := db.CreateChapter(ctx, &schema.Chapter{VolumeID: v2.ID, Title: "Dusk"})

	if _, err := db.CreateCharacter(ctx, &schema.Character{
		ProjectID:   p.ID,
		Name:        "Wei Lan",
		Appearances: []string{c1.ID, c3.ID},
		Relationships: []schema.Relationship{
			{TargetName: "Old Shen", Relation: "mentor"},
		},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateCharacter(ctx, &schema.Character{
		ProjectID:   p.ID,
		Name:        "Old Shen",
		Appearances: []string{c2.ID},
	}); err != nil {
		t.Fatal(err)
	}
	return p.ID
}

func TestExportAggregate_Shape(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	projectID := seedAggregate(t, db)

	agg, err := db.ExportAggregate(ctx, projectID)
	if err != nil {
		t.Fatalf("ExportAggregate() failed: %v", err)
	}

	if agg.Project.ID != projectID {
		t.Errorf("Project.ID = %q, want %q", agg.Project.ID, projectID)
	}
	if len(agg.Volumes) != 2 || len(agg.Chapters) != 3 || len(agg.Characters) != 2 {
		t.Fatalf("shape = %d volumes / %d chapters / %d characters, want 2/3/2",
			len(agg.Volumes), len(agg.Chapters), len(agg.Characters))
	}
	if agg.Volumes[0].SortOrder != 1 || agg.Volumes[1].SortOrder != 2 {
		t.Error("volumes not ordered by sort order")
	}
	// Chapters are grouped by volume, each group in sort order.
	if agg.Chapters[0].Title != "Dawn" || agg.Chapters[1].Title != "Noon" || agg.Chapters[2].Title != "Dusk" {
		t.Errorf("chapter order = %q, %q, %q",
			agg.Chapters[0].Title, agg.Chapters[1].Title, agg.Chapters[2].Title)
	}
}

func TestExportAggregate_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.ExportAggregate(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAggregate_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	projectID := seedAggregate(t, db)

	before, err := db.ExportAggregate(ctx, projectID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := db.ImportAggregate(ctx, before, ImportOptions{Overwrite: true}); err != nil {
		t.Fatalf("ImportAggregate(overwrite) failed: %v", err)
	}

	after, err := db.ExportAggregate(ctx, projectID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("aggregate changed across export/import (-before +after):\n%s", diff)
	}
}

func TestImportAggregate_AlreadyExists(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	projectID := seedAggregate(t, db)

	agg, _ := db.ExportAggregate(ctx, projectID)
	_, err := db.ImportAggregate(ctx, agg, ImportOptions{})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestImportAggregate_MissingRoot(t *testing.T) {
	db := testDB(t)
	_, err := db.ImportAggregate(context.Background(), &schema.Aggregate{}, ImportOptions{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestImportAggregate_MutuallyExclusivePolicies(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	projectID := seedAggregate(t, db)
	agg, _ := db.ExportAggregate(ctx, projectID)

	_, err := db.ImportAggregate(ctx, agg, ImportOptions{Overwrite: true, GenerateNewIDs: true})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestImportAggregate_GenerateNewIDs_RemapsReferences(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	projectID := seedAggregate(t, db)
	agg, _ := db.ExportAggregate(ctx, projectID)

	newID, err := db.ImportAggregate(ctx, agg, ImportOptions{GenerateNewIDs: true})
	if err != nil {
		t.Fatalf("ImportAggregate(generateNewIds) failed: %v", err)
	}
	if newID == projectID {
		t.Fatal("expected a fresh project id")
	}

	copied, err := db.ExportAggregate(ctx, newID)
	if err != nil {
		t.Fatal(err)
	}

	// Same shape, all-new ids.
	if len(copied.Volumes) != 2 || len(copied.Chapters) != 3 || len(copied.Characters) != 2 {
		t.Fatalf("copy shape = %d/%d/%d, want 2/3/2",
			len(copied.Volumes), len(copied.Chapters), len(copied.Characters))
	}
	oldChapterIDs := make(map[string]bool)
	for _, c := range agg.Chapters {
		oldChapterIDs[c.ID] = true
	}
	newByTitle := make(map[string]string)
	for _, c := range copied.Chapters {
		if oldChapterIDs[c.ID] {
			t.Errorf("chapter %q kept its old id", c.Title)
		}
		newByTitle[c.Title] = c.ID
	}

	// Appearances must reference the regenerated chapter ids, preserving
	// the original cross-entity structure exactly.
	for _, ch := range copied.Characters {
		if ch.Name != "Wei Lan" {
			continue
		}
		want := []string{newByTitle["Dawn"], newByTitle["Dusk"]}
		if diff := cmp.Diff(want, ch.Appearances); diff != "" {
			t.Errorf("appearances not remapped (-want +got):\n%s", diff)
		}
	}

	// The original must be untouched.
	if _, err := db.ExportAggregate(ctx, projectID); err != nil {
		t.Errorf("original aggregate damaged: %v", err)
	}
}

func TestImportAggregate_ClearsTombstone(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	projectID := seedAggregate(t, db)

	agg, _ := db.ExportAggregate(ctx, projectID)
	if err := db.DeleteProject(ctx, projectID); err != nil {
		t.Fatal(err)
	}

	if _, err := db.ImportAggregate(ctx, agg, ImportOptions{Overwrite: true}); err != nil {
		t.Fatalf("re-import after delete failed: %v", err)
	}

	tombstoned, err := db.IsTombstoned(ctx, projectID)
	if err != nil {
		t.Fatal(err)
	}
	if tombstoned {
		t.Error("re-importing a deleted project must clear its tombstone")
	}
}

func TestUpsertAggregate_Idempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	projectID := seedAggregate(t, db)
	agg, _ := db.ExportAggregate(ctx, projectID)

	for i := 0; i < 2; i++ {
		if err := db.UpsertAggregate(ctx, agg); err != nil {
			t.Fatalf("UpsertAggregate() #%d failed: %v", i+1, err)
		}
	}

	after, err := db.ExportAggregate(ctx, projectID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(agg, after); diff != "" {
		t.Errorf("aggregate drifted under repeated upsert (-want +got):\n%s", diff)
	}
	// Upserting a remote snapshot never bumps the version.
	if after.Project.Version != agg.Project.Version {
		t.Errorf("Version %d -> %d, want unchanged", agg.Project.Version, after.Project.Version)
	}
}
