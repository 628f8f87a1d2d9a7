package schema

import "time"

// Tombstone records a locally deleted project so the deletion can be
// propagated to the remote peer and so a later sync does not resurrect it.
// Synced tombstones older than the retention window are purged.
type Tombstone struct {
	ID        string    `json:"id"` // the deleted project's id
	Title     string    `json:"title"`
	DeletedAt time.Time `json:"deletedAt"`
	Synced    bool      `json:"synced"`
}

// TombstoneRetention is how long a synced tombstone is kept before purge.
const TombstoneRetention = 30 * 24 * time.Hour

// Aggregate is a project together with all of its volumes, their chapters,
// and its characters, treated as one unit for export, import and sync.
// Volumes are ordered by sort order; chapters are grouped by volume, each
// group ordered by sort order.
type Aggregate struct {
	Project    *Project     `json:"project"`
	Volumes    []*Volume    `json:"volumes"`
	Chapters   []*Chapter   `json:"chapters"`
	Characters []*Character `json:"characters"`
}
