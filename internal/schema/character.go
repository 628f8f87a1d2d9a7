package schema

import (
	"fmt"
	"time"
)

// Role classifies a character's narrative function.
type Role string

const (
	RoleProtagonist Role = "protagonist"
	RoleSupporting  Role = "supporting"
	RoleAntagonist  Role = "antagonist"
)

// CharacterStatus tracks a character through the story.
type CharacterStatus string

const (
	CharacterPending  CharacterStatus = "pending"
	CharacterActive   CharacterStatus = "active"
	CharacterDeceased CharacterStatus = "deceased"
)

// DefaultCharacterName is assigned when a character is created without a name.
const DefaultCharacterName = "Unnamed Character"

// Relationship links a character to another character by name.
type Relationship struct {
	TargetName string `json:"targetName"`
	Relation   string `json:"relation"`
}

// Character belongs to a project. Appearances holds chapter ids; the
// aggregate importer remaps them when chapter ids are regenerated.
type Character struct {
	ID            string          `json:"id"`
	ProjectID     string          `json:"projectId"`
	Name          string          `json:"name"`
	Role          Role            `json:"role,omitempty"`
	Gender        string          `json:"gender,omitempty"`
	Age           string          `json:"age,omitempty"`
	Identity      string          `json:"identity,omitempty"`
	Description   string          `json:"description,omitempty"`
	Arc           string          `json:"arc,omitempty"`
	Status        CharacterStatus `json:"status,omitempty"`
	DeathChapter  string          `json:"deathChapter,omitempty"`
	Appearances   []string        `json:"appearances"`
	Relationships []Relationship  `json:"relationships"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// SetDefaults applies default values for optional fields.
func (c *Character) SetDefaults() {
	if c.Name == "" {
		c.Name = DefaultCharacterName
	}
	if c.Status == "" {
		c.Status = CharacterPending
	}
	if c.Appearances == nil {
		c.Appearances = []string{}
	}
	if c.Relationships == nil {
		c.Relationships = []Relationship{}
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
}

// Validate checks the character has valid field values.
func (c *Character) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.ProjectID == "" {
		return fmt.Errorf("projectId is required")
	}
	switch c.Role {
	case "", RoleProtagonist, RoleSupporting, RoleAntagonist:
	default:
		return fmt.Errorf("invalid role %q", c.Role)
	}
	switch c.Status {
	case "", CharacterPending, CharacterActive, CharacterDeceased:
	default:
		return fmt.Errorf("invalid status %q", c.Status)
	}
	return nil
}

// CharacterUpdate carries a partial update for a character. Nil fields are
// left untouched.
type CharacterUpdate struct {
	Name          *string
	Role          *Role
	Gender        *string
	Age           *string
	Identity      *string
	Description   *string
	Arc           *string
	Status        *CharacterStatus
	DeathChapter  *string
	Appearances   *[]string
	Relationships *[]Relationship
}

// IsZero reports whether the update carries no fields at all.
func (u CharacterUpdate) IsZero() bool {
	return u.Name == nil && u.Role == nil && u.Gender == nil && u.Age == nil &&
		u.Identity == nil && u.Description == nil && u.Arc == nil &&
		u.Status == nil && u.DeathChapter == nil && u.Appearances == nil &&
		u.Relationships == nil
}
