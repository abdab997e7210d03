package types

import "errors"

// Filter holds equality conditions for Table.Fetch. Keys are column names
// ("category_id", "title"); "limit" and "offset" take ints.
type Filter map[string]any

// Table provides uniform CRUD operations for a single entity type.
// Get and Fetch return any; callers type-assert to the concrete entity struct.
type Table interface {
	// Get retrieves the entity with the given ID.
	// Returns ErrNotFound if no entity exists with that ID.
	Get(id string) (any, error)

	// Set creates or replaces an entity. When id is empty a new UUID v7 is
	// generated. Returns the actual ID used (generated or provided).
	Set(id string, data any) (string, error)

	// Delete removes the entity with the given ID.
	// Returns ErrNotFound if no entity exists with that ID.
	Delete(id string) error

	// Fetch returns all entities matching the filter. An empty filter
	// returns every entity in the table.
	Fetch(filter Filter) ([]any, error)
}

// Table operation errors.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidID     = errors.New("invalid entity ID")
	ErrInvalidData   = errors.New("invalid entity data")
	ErrInvalidFilter = errors.New("invalid filter value type")
)

// Entity errors.
var (
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidColumnType = errors.New("invalid column type")
	ErrSchemaConflict    = errors.New("schema conflict")
	ErrValidation        = errors.New("validation failed")
)

// Page bounds a listing. Zero values mean no limit and no offset.
type Page struct {
	Limit  int
	Offset int
}

// Apply copies the page bounds into filter and returns it.
func (p Page) Apply(filter Filter) Filter {
	if filter == nil {
		filter = Filter{}
	}
	if p.Limit > 0 {
		filter["limit"] = p.Limit
	}
	if p.Offset > 0 {
		filter["offset"] = p.Offset
	}
	return filter
}

// PageBounds reads the "limit" and "offset" keys of a filter.
// Returns ErrInvalidFilter if either is present but not an int.
func PageBounds(filter Filter) (Page, error) {
	var p Page
	if filter == nil {
		return p, nil
	}
	if v, ok := filter["limit"]; ok {
		limit, ok := v.(int)
		if !ok {
			return p, ErrInvalidFilter
		}
		p.Limit = limit
	}
	if v, ok := filter["offset"]; ok {
		offset, ok := v.(int)
		if !ok {
			return p, ErrInvalidFilter
		}
		p.Offset = offset
	}
	return p, nil
}

// Window returns the [start, end) slice bounds of the page over n items.
func (p Page) Window(n int) (int, int) {
	start := p.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := n
	if p.Limit > 0 && p.Limit < n-start {
		end = start + p.Limit
	}
	return start, end
}
