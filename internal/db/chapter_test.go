package db

import (
	"context"
	"errors"
	"testing"

	"github.com/inkstone/inkstone/internal/schema"
)

func seedVolume(t *testing.T, db *DB) (*schema.Project, *schema.Volume) {
	t.Helper()
	ctx := context.Background()
	p, err := db.CreateProject(ctx, &schema.Project{Title: "P"})
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	v, err := db.CreateVolume(ctx, &schema.Volume{ProjectID: p.ID, Title: "V"})
	if err != nil {
		t.Fatalf("CreateVolume() failed: %v", err)
	}
	return p, v
}

func TestCreateChapter_DerivesWordCount(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, v := seedVolume(t, db)

	c, err := db.CreateChapter(ctx, &schema.Chapter{
		VolumeID:  v.ID,
		Title:     "One",
		Content:   "千里 之行，始于足下。\n",
		WordCount: 9999, // caller-supplied counts are ignored
	})
	if err != nil {
		t.Fatalf("CreateChapter() failed: %v", err)
	}

	want := schema.CountWords("千里 之行，始于足下。\n")
	if c.WordCount != want {
		t.Errorf("WordCount = %d, want derived %d", c.WordCount, want)
	}
}

func TestCreateChapter_AssignsSortOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, v := seedVolume(t, db)

	for want := 1; want <= 3; want++ {
		c, err := db.CreateChapter(ctx, &schema.Chapter{VolumeID: v.ID})
		if err != nil {
			t.Fatalf("CreateChapter() #%d failed: %v", want, err)
		}
		if c.SortOrder != want {
			t.Errorf("SortOrder = %d, want %d", c.SortOrder, want)
		}
	}
}

func TestCreateChapters_ContiguousRun(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, v := seedVolume(t, db)

	// Two pre-existing single-row inserts (M = 2).
	for i := 0; i < 2; i++ {
		if _, err := db.CreateChapter(ctx, &schema.Chapter{VolumeID: v.ID}); err != nil {
			t.Fatal(err)
		}
	}

	specs := []schema.ChapterSpec{
		{Title: "Three"}, {Title: "Four"}, {Title: "Five"},
	}
	batch, err := db.CreateChapters(ctx, v.ID, specs)
	if err != nil {
		t.Fatalf("CreateChapters() failed: %v", err)
	}
	for i, c := range batch {
		if want := 3 + i; c.SortOrder != want {
			t.Errorf("batch[%d].SortOrder = %d, want %d", i, c.SortOrder, want)
		}
	}

	// A single-row insert after the batch continues the run.
	next, err := db.CreateChapter(ctx, &schema.Chapter{VolumeID: v.ID})
	if err != nil {
		t.Fatal(err)
	}
	if next.SortOrder != 6 {
		t.Errorf("post-batch SortOrder = %d, want 6", next.SortOrder)
	}

	// No gaps or duplicates across all inserts.
	chapters, err := db.ListChapters(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range chapters {
		if c.SortOrder != i+1 {
			t.Errorf("chapters[%d].SortOrder = %d, want %d", i, c.SortOrder, i+1)
		}
	}
}

func TestCreateChapters_Empty(t *testing.T) {
	db := testDB(t)
	_, v := seedVolume(t, db)

	chapters, err := db.CreateChapters(context.Background(), v.ID, nil)
	if err != nil {
		t.Fatalf("CreateChapters(nil) failed: %v", err)
	}
	if chapters != nil {
		t.Errorf("expected no chapters, got %d", len(chapters))
	}
}

func TestUpdateChapter_ContentRecomputesWordCount(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, v := seedVolume(t, db)

	c, _ := db.CreateChapter(ctx, &schema.Chapter{VolumeID: v.ID, Content: "abc"})
	content := "one two"
	got, err := db.UpdateChapter(ctx, c.ID, schema.ChapterUpdate{Content: &content})
	if err != nil {
		t.Fatalf("UpdateChapter() failed: %v", err)
	}
	if got.WordCount != 6 {
		t.Errorf("WordCount = %d, want 6 (non-whitespace runes)", got.WordCount)
	}
}

func TestChapterMutation_BumpsProjectVersion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	p, v := seedVolume(t, db)

	before, _ := db.GetProject(ctx, p.ID)
	c, err := db.CreateChapter(ctx, &schema.Chapter{VolumeID: v.ID})
	if err != nil {
		t.Fatal(err)
	}
	after, _ := db.GetProject(ctx, p.ID)
	if after.Version != before.Version+1 {
		t.Errorf("create: Version %d -> %d, want +1", before.Version, after.Version)
	}

	if err := db.DeleteChapter(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	final, _ := db.GetProject(ctx, p.ID)
	if final.Version != after.Version+1 {
		t.Errorf("delete: Version %d -> %d, want +1", after.Version, final.Version)
	}
}

func TestDeleteVolume_CascadesToChapters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, v := seedVolume(t, db)

	if _, err := db.CreateChapter(ctx, &schema.Chapter{VolumeID: v.ID}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteVolume(ctx, v.ID); err != nil {
		t.Fatalf("DeleteVolume() failed: %v", err)
	}

	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM chapters`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("chapters = %d, want 0 (cascade)", count)
	}
}

func TestDeleteChapter_NotFound(t *testing.T) {
	db := testDB(t)
	if err := db.DeleteChapter(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
