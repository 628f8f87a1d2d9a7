package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/inkstone/inkstone/internal/schema"
)

// encodeStringList serializes a string slice for a JSON text column.
// nil encodes as the empty array so columns never hold SQL NULL or "null".
func encodeStringList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeStringList deserializes a JSON text column into a string slice.
// Empty, "null" or malformed text decodes to an empty slice; a parse error
// is never surfaced to the caller.
func decodeStringList(text string) []string {
	if text == "" || text == "null" {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal([]byte(text), &list); err != nil || list == nil {
		return []string{}
	}
	return list
}

// encodeRelationships serializes a relationship slice for a JSON text column.
func encodeRelationships(rels []schema.Relationship) string {
	if rels == nil {
		rels = []schema.Relationship{}
	}
	data, err := json.Marshal(rels)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// decodeRelationships deserializes a JSON text column into relationships,
// with the same empty-on-malformed policy as decodeStringList.
func decodeRelationships(text string) []schema.Relationship {
	if text == "" || text == "null" {
		return []schema.Relationship{}
	}
	var rels []schema.Relationship
	if err := json.Unmarshal([]byte(text), &rels); err != nil || rels == nil {
		return []schema.Relationship{}
	}
	return rels
}

// formatTime renders a timestamp as the RFC3339 text stored in the database.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored RFC3339 timestamp. Unparseable text yields the
// zero time rather than an error; timestamps are display/ordering data, not
// integrity-critical.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// timeToNullString converts an optional timestamp to a nullable SQL string.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullStringToTime converts a nullable SQL string to an optional timestamp.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
