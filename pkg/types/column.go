package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ColumnType determines what values a column accepts and how they render.
type ColumnType string

// Column types.
const (
	ColumnText     ColumnType = "text"
	ColumnNumber   ColumnType = "number"
	ColumnDate     ColumnType = "date"
	ColumnCheckbox ColumnType = "checkbox"
)

// validColumnTypes is the set of recognized column types.
var validColumnTypes = map[ColumnType]bool{
	ColumnText:     true,
	ColumnNumber:   true,
	ColumnDate:     true,
	ColumnCheckbox: true,
}

// IsValidColumnType reports whether ct is a recognized column type.
func IsValidColumnType(ct ColumnType) bool {
	return validColumnTypes[ct]
}

// ParseColumnType normalizes s into a ColumnType. An empty string yields
// ColumnText, the type new columns start with.
// Returns ErrInvalidColumnType if s names no known type.
func ParseColumnType(s string) (ColumnType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ColumnText, nil
	}
	ct := ColumnType(s)
	if !IsValidColumnType(ct) {
		return "", fmt.Errorf("%w: %q", ErrInvalidColumnType, s)
	}
	return ct, nil
}

// ColumnSpec describes one field of a category schema. ID is the join key
// between the schema and stored entry data; Name is a display label only.
// Two specs are the same column when their IDs match.
type ColumnSpec struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// NewColumnID generates a fresh column identifier (UUID v7).
func NewColumnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Schema is the ordered list of columns of a category. Order is the
// display order.
type Schema []ColumnSpec

// Column returns the column with the given id.
func (s Schema) Column(id string) (ColumnSpec, bool) {
	for _, c := range s {
		if c.ID == id {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// Resolve finds a column by id, then by exact name, then by
// case-insensitive name.
func (s Schema) Resolve(key string) (ColumnSpec, bool) {
	if c, ok := s.Column(key); ok {
		return c, true
	}
	for _, c := range s {
		if c.Name == key {
			return c, true
		}
	}
	for _, c := range s {
		if strings.EqualFold(c.Name, key) {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// IDs returns the column ids in schema order.
func (s Schema) IDs() []string {
	ids := make([]string, len(s))
	for i, c := range s {
		ids[i] = c.ID
	}
	return ids
}

// Clone returns a copy that shares no backing array with s.
// A nil schema clones to an empty, non-nil schema.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// Validate checks column identity and types. Empty ids return
// ErrInvalidID, unknown types ErrInvalidColumnType, and an id that appears
// twice ErrSchemaConflict. Duplicates are never merged.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, c := range s {
		if c.ID == "" {
			return fmt.Errorf("column %d: %w", i, ErrInvalidID)
		}
		if !IsValidColumnType(c.Type) {
			return fmt.Errorf("column %s: %w: %q", c.ID, ErrInvalidColumnType, c.Type)
		}
		if seen[c.ID] {
			return fmt.Errorf("column %s listed twice: %w", c.ID, ErrSchemaConflict)
		}
		seen[c.ID] = true
	}
	return nil
}
