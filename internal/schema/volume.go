package schema

import (
	"fmt"
	"time"
)

// DefaultVolumeTitle is assigned when a volume is created without a title.
const DefaultVolumeTitle = "Untitled Volume"

// Volume is an ordered division of a project. SortOrder is contiguous per
// project and assigned by the storage layer unless explicitly supplied.
//
// GeneratingLock is an advisory per-volume lock: 0 means unlocked, any other
// value is the epoch-millisecond timestamp at which the lock was acquired.
// Expiry is evaluated lazily on access, never swept in the background.
type Volume struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary,omitempty"`
	SortOrder      int       `json:"sortOrder"`
	KeyPoints      []string  `json:"keyPoints"`
	BriefChapters  []string  `json:"briefChapters"`
	MainPlot       string    `json:"mainPlot,omitempty"`
	KeyEvents      []string  `json:"keyEvents"`
	GeneratingLock int64     `json:"generatingLock"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SetDefaults applies default values for optional fields.
func (v *Volume) SetDefaults() {
	if v.Title == "" {
		v.Title = DefaultVolumeTitle
	}
	if v.KeyPoints == nil {
		v.KeyPoints = []string{}
	}
	if v.BriefChapters == nil {
		v.BriefChapters = []string{}
	}
	if v.KeyEvents == nil {
		v.KeyEvents = []string{}
	}
	now := time.Now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = now
	}
}

// Validate checks the volume has valid field values.
func (v *Volume) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("id is required")
	}
	if v.ProjectID == "" {
		return fmt.Errorf("projectId is required")
	}
	return nil
}

// VolumeUpdate carries a partial update for a volume. Nil fields are left
// untouched. The generating lock is managed by the lock manager, not here.
type VolumeUpdate struct {
	Title         *string
	Summary       *string
	SortOrder     *int
	KeyPoints     *[]string
	BriefChapters *[]string
	MainPlot      *string
	KeyEvents     *[]string
}

// IsZero reports whether the update carries no fields at all.
func (u VolumeUpdate) IsZero() bool {
	return u.Title == nil && u.Summary == nil && u.SortOrder == nil &&
		u.KeyPoints == nil && u.BriefChapters == nil && u.MainPlot == nil &&
		u.KeyEvents == nil
}
