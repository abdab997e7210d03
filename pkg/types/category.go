package types

import (
	"fmt"
	"slices"
	"time"
)

// Category is a user-defined record type: a title, a description, and the
// schema its entries are written against. A category owns its schema;
// column ids removed from it are retired and never accepted again.
type Category struct {
	CategoryID       string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Schema           Schema    `json:"schema"`
	RetiredColumnIDs []string  `json:"retired_column_ids,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SchemaDiff summarizes a schema replacement by column id.
type SchemaDiff struct {
	Added   []string
	Removed []string
	Kept    []string
}

// ReplaceSchema swaps in next as the category's schema. Columns with an
// empty id are new and get a generated id; columns with an empty type
// become text. A column whose id is already in the schema is the same
// column, possibly renamed, retyped, or moved. Ids missing from next are
// retired.
//
// Returns ErrSchemaConflict for duplicate ids or for an id that was
// retired earlier, ErrInvalidColumnType for unknown types. On error the
// category is left untouched.
func (c *Category) ReplaceSchema(next Schema) (SchemaDiff, error) {
	candidate := next.Clone()
	for i := range candidate {
		if candidate[i].ID == "" {
			candidate[i].ID = NewColumnID()
		}
		if candidate[i].Type == "" {
			candidate[i].Type = ColumnText
		}
	}
	if err := candidate.Validate(); err != nil {
		return SchemaDiff{}, err
	}

	var diff SchemaDiff
	for _, col := range candidate {
		if slices.Contains(c.RetiredColumnIDs, col.ID) {
			return SchemaDiff{}, fmt.Errorf("column %s was removed earlier and cannot be reused: %w", col.ID, ErrSchemaConflict)
		}
		if _, ok := c.Schema.Column(col.ID); ok {
			diff.Kept = append(diff.Kept, col.ID)
		} else {
			diff.Added = append(diff.Added, col.ID)
		}
	}
	for _, col := range c.Schema {
		if _, ok := candidate.Column(col.ID); !ok {
			diff.Removed = append(diff.Removed, col.ID)
		}
	}

	c.Schema = candidate
	c.RetiredColumnIDs = append(c.RetiredColumnIDs, diff.Removed...)
	return diff, nil
}

// Clone returns a deep copy of c.
func (c *Category) Clone() *Category {
	cp := *c
	cp.Schema = c.Schema.Clone()
	cp.RetiredColumnIDs = slices.Clone(c.RetiredColumnIDs)
	return &cp
}
