package schema

import (
	"fmt"
	"time"
	"unicode"
)

// DefaultChapterTitle is assigned when a chapter is created without a title.
const DefaultChapterTitle = "Untitled Chapter"

// Chapter is an ordered division of a volume. WordCount is always derived
// from Content by the storage layer and never supplied by callers.
type Chapter struct {
	ID        string    `json:"id"`
	VolumeID  string    `json:"volumeId"`
	Title     string    `json:"title"`
	Outline   string    `json:"outline,omitempty"`
	Content   string    `json:"content,omitempty"`
	WordCount int       `json:"wordCount"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CountWords returns the number of non-whitespace runes in content.
// This is the word-count rule for CJK-heavy prose, where whitespace
// tokenization undercounts badly.
func CountWords(content string) int {
	n := 0
	for _, r := range content {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// SetDefaults applies default values for optional fields, including the
// derived word count.
func (c *Chapter) SetDefaults() {
	if c.Title == "" {
		c.Title = DefaultChapterTitle
	}
	c.WordCount = CountWords(c.Content)
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
}

// Validate checks the chapter has valid field values.
func (c *Chapter) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.VolumeID == "" {
		return fmt.Errorf("volumeId is required")
	}
	return nil
}

// ChapterUpdate carries a partial update for a chapter. Nil fields are left
// untouched. Setting Content recomputes the word count.
type ChapterUpdate struct {
	Title     *string
	Outline   *string
	Content   *string
	SortOrder *int
}

// IsZero reports whether the update carries no fields at all.
func (u ChapterUpdate) IsZero() bool {
	return u.Title == nil && u.Outline == nil && u.Content == nil &&
		u.SortOrder == nil
}

// ChapterSpec describes one chapter to create in a batch insert. The batch
// path assigns ids, timestamps and a contiguous sort-order run itself.
type ChapterSpec struct {
	Title   string `json:"title"`
	Outline string `json:"outline,omitempty"`
	Content string `json:"content,omitempty"`
}
