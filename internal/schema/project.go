// Package schema provides the data structures persisted by the inkstone
// local store: projects, volumes, chapters, characters and deletion
// tombstones, together with the partial-update parameter types used by
// the storage layer.
package schema

import (
	"fmt"
	"time"
)

// Scale describes the intended length of a project.
type Scale string

const (
	// ScaleMicro is a short-form project (novellas, serials).
	ScaleMicro Scale = "micro"
	// ScaleMillion is a long-form project targeting millions of words.
	ScaleMillion Scale = "million"
)

// DefaultProjectTitle is assigned when a project is created without a title.
const DefaultProjectTitle = "Untitled Project"

// Project is the root entity of an aggregate. Deleting a project cascades
// to its volumes (and transitively chapters) and characters.
//
// Version increases on every user-initiated mutation of the project or any
// of its children and is the primary conflict-resolution signal during sync;
// UpdatedAt is the tiebreaker. The sync import path writes Version verbatim
// from the remote and never bumps it.
type Project struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Inspiration  string     `json:"inspiration,omitempty"`
	Constraints  string     `json:"constraints,omitempty"`
	Scale        Scale      `json:"scale,omitempty"`
	Genres       []string   `json:"genres"`
	Styles       []string   `json:"styles"`
	WorldSetting string     `json:"worldSetting,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Version      int64      `json:"version"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	SyncedAt     *time.Time `json:"syncedAt,omitempty"`
}

// SetDefaults applies default values for optional fields.
func (p *Project) SetDefaults() {
	if p.Title == "" {
		p.Title = DefaultProjectTitle
	}
	if p.Genres == nil {
		p.Genres = []string{}
	}
	if p.Styles == nil {
		p.Styles = []string{}
	}
	if p.Version == 0 {
		p.Version = 1
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
}

// Validate checks the project has valid field values.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Scale != "" && p.Scale != ScaleMicro && p.Scale != ScaleMillion {
		return fmt.Errorf("invalid scale %q", p.Scale)
	}
	return nil
}

// ProjectUpdate carries a partial update for a project. A nil field is left
// untouched; a non-nil field is written, including explicit empty values.
type ProjectUpdate struct {
	Title        *string
	Inspiration  *string
	Constraints  *string
	Scale        *Scale
	Genres       *[]string
	Styles       *[]string
	WorldSetting *string
	Summary      *string
}

// IsZero reports whether the update carries no fields at all.
func (u ProjectUpdate) IsZero() bool {
	return u.Title == nil && u.Inspiration == nil && u.Constraints == nil &&
		u.Scale == nil && u.Genres == nil && u.Styles == nil &&
		u.WorldSetting == nil && u.Summary == nil
}
