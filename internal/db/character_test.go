package db

import (
	"context"
	"testing"

	"github.com/inkstone/inkstone/internal/schema"
)

func TestCharacter_RelationshipsRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p, _ := db.CreateProject(ctx, &schema.Project{Title: "P"})
	c, err := db.CreateCharacter(ctx, &schema.Character{
		ProjectID:   p.ID,
		Name:        "Wei Lan",
		Role:        schema.RoleProtagonist,
		Appearances: []string{"ch-1", "ch-2"},
		Relationships: []schema.Relationship{
			{TargetName: "Old Shen", Relation: "mentor"},
			{TargetName: "Mirei", Relation: "rival"},
		},
	})
	if err != nil {
		t.Fatalf("CreateCharacter() failed: %v", err)
	}

	got, err := db.GetCharacter(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Appearances) != 2 || got.Appearances[0] != "ch-1" {
		t.Errorf("Appearances = %v", got.Appearances)
	}
	if len(got.Relationships) != 2 || got.Relationships[1].Relation != "rival" {
		t.Errorf("Relationships = %v", got.Relationships)
	}
	if got.Status != schema.CharacterPending {
		t.Errorf("Status = %q, want default pending", got.Status)
	}
}

func TestCharacter_MalformedJSONDecodesEmpty(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p, _ := db.CreateProject(ctx, &schema.Project{Title: "P"})
	c, _ := db.CreateCharacter(ctx, &schema.Character{ProjectID: p.ID, Name: "N"})

	if _, err := db.conn.Exec(
		`UPDATE characters SET appearances = '{broken', relationships = '' WHERE id = ?`, c.ID); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCharacter(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCharacter() must not surface a parse error: %v", err)
	}
	if got.Appearances == nil || len(got.Appearances) != 0 {
		t.Errorf("Appearances = %#v, want empty slice", got.Appearances)
	}
	if got.Relationships == nil || len(got.Relationships) != 0 {
		t.Errorf("Relationships = %#v, want empty slice", got.Relationships)
	}
}

func TestUpdateCharacter_StatusAndDeath(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p, _ := db.CreateProject(ctx, &schema.Project{Title: "P"})
	c, _ := db.CreateCharacter(ctx, &schema.Character{ProjectID: p.ID, Name: "N"})

	status := schema.CharacterDeceased
	death := "ch-42"
	got, err := db.UpdateCharacter(ctx, c.ID, schema.CharacterUpdate{
		Status:       &status,
		DeathChapter: &death,
	})
	if err != nil {
		t.Fatalf("UpdateCharacter() failed: %v", err)
	}
	if got.Status != schema.CharacterDeceased || got.DeathChapter != "ch-42" {
		t.Errorf("got status=%q death=%q", got.Status, got.DeathChapter)
	}
	if got.Name != "N" {
		t.Error("absent field was modified")
	}
}

func TestCreateCharacter_InvalidRole(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p, _ := db.CreateProject(ctx, &schema.Project{Title: "P"})
	_, err := db.CreateCharacter(ctx, &schema.Character{
		ProjectID: p.ID,
		Name:      "N",
		Role:      "villain-of-the-week",
	})
	if err == nil {
		t.Fatal("expected validation error for unknown role")
	}
}
