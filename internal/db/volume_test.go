package db

import (
	"context"
	"errors"
	"testing"

	"github.com/inkstone/inkstone/internal/schema"
)

func TestCreateVolume_AssignsSortOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p, _ := db.CreateProject(ctx, &schema.Project{Title: "P"})
	for want := 1; want <= 3; want++ {
		v, err := db.CreateVolume(ctx, &schema.Volume{ProjectID: p.ID})
		if err != nil {
			t.Fatalf("CreateVolume() #%d failed: %v", want, err)
		}
		if v.SortOrder != want {
			t.Errorf("SortOrder = %d, want %d", v.SortOrder, want)
		}
		if v.Title != schema.DefaultVolumeTitle {
			t.Errorf("Title = %q, want placeholder", v.Title)
		}
	}

	// Sort orders are scoped per project.
	p2, _ := db.CreateProject(ctx, &schema.Project{Title: "P2"})
	v, err := db.CreateVolume(ctx, &schema.Volume{ProjectID: p2.ID})
	if err != nil {
		t.Fatal(err)
	}
	if v.SortOrder != 1 {
		t.Errorf("SortOrder in fresh project = %d, want 1", v.SortOrder)
	}
}

func TestCreateVolume_UnknownProject(t *testing.T) {
	db := testDB(t)

	_, err := db.CreateVolume(context.Background(), &schema.Volume{ProjectID: "missing"})
	if err == nil {
		t.Fatal("expected foreign key violation for unknown project")
	}
}

func TestUpdateVolume_Partial(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p, _ := db.CreateProject(ctx, &schema.Project{Title: "P"})
	v, _ := db.CreateVolume(ctx, &schema.Volume{
		ProjectID: p.ID,
		Title:     "Act I",
		KeyPoints: []string{"setup"},
	})

	plot := "the mentor falls"
	events := []string{"betrayal", "siege"}
	got, err := db.UpdateVolume(ctx, v.ID, schema.VolumeUpdate{
		MainPlot:  &plot,
		KeyEvents: &events,
	})
	if err != nil {
		t.Fatalf("UpdateVolume() failed: %v", err)
	}

	if got.MainPlot != plot {
		t.Errorf("MainPlot = %q, want %q", got.MainPlot, plot)
	}
	if len(got.KeyEvents) != 2 {
		t.Errorf("KeyEvents = %v, want 2 entries", got.KeyEvents)
	}
	if got.Title != "Act I" || len(got.KeyPoints) != 1 {
		t.Error("absent fields were modified")
	}
}

func TestUpdateVolume_NotFound(t *testing.T) {
	db := testDB(t)
	title := "x"
	_, err := db.UpdateVolume(context.Background(), "missing", schema.VolumeUpdate{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListVolumes_OrderedBySortOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p, _ := db.CreateProject(ctx, &schema.Project{Title: "P"})
	// Insert out of order via explicit sort orders.
	for _, so := range []int{2, 1, 3} {
		v := &schema.Volume{ProjectID: p.ID, SortOrder: so}
		if _, err := db.CreateVolume(ctx, v); err != nil {
			t.Fatal(err)
		}
	}

	volumes, err := db.ListVolumes(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range volumes {
		if v.SortOrder != i+1 {
			t.Errorf("volumes[%d].SortOrder = %d, want %d", i, v.SortOrder, i+1)
		}
	}
}
