package sqlite

import (
	"github.com/mesh-intelligence/logbook/pkg/types"
)

// JSONL file names in DataDir. The files are the source of truth.
const (
	categoriesFile = "categories.jsonl"
	entriesFile    = "entries.jsonl"
)

// categoryJSON represents a category in categories.jsonl.
type categoryJSON struct {
	CategoryID  string             `json:"category_id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Schema      []types.ColumnSpec `json:"schema"`
	Retired     []string           `json:"retired_column_ids,omitempty"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
}

func categoryToJSON(c *types.Category) categoryJSON {
	schema := c.Schema.Clone()
	return categoryJSON{
		CategoryID:  c.CategoryID,
		Title:       c.Title,
		Description: c.Description,
		Schema:      schema,
		Retired:     c.RetiredColumnIDs,
		CreatedAt:   types.FormatTime(c.CreatedAt),
		UpdatedAt:   types.FormatTime(c.UpdatedAt),
	}
}

func (r categoryJSON) category() (*types.Category, error) {
	createdAt, err := types.ParseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := types.ParseTime(r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &types.Category{
		CategoryID:       r.CategoryID,
		Title:            r.Title,
		Description:      r.Description,
		Schema:           types.Schema(r.Schema).Clone(),
		RetiredColumnIDs: r.Retired,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

// Entries are stored in entries.jsonl as types.EntryRecord lines.
