package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

var _ types.Table = (*categoriesTable)(nil)

// categoriesTable implements the Table interface for categories. Deleting a
// category removes its entries in the same transaction.
type categoriesTable struct {
	backend *Backend
}

const selectCategory = "SELECT category_id, title, description, schema, retired, created_at, updated_at FROM categories"

// Get retrieves a category by ID.
func (ct *categoriesTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := ct.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrCupboardDetached
	}

	cat, err := hydrateCategory(b.db.QueryRow(selectCategory+" WHERE category_id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting category %s: %w", id, err)
	}
	return cat, nil
}

// Set persists a category. If id is empty, generates a UUID v7 and creates
// the category. If id is provided, the stored category is replaced; a
// missing one is inserted.
func (ct *categoriesTable) Set(id string, data any) (string, error) {
	cat, ok := data.(*types.Category)
	if !ok || cat == nil {
		return "", types.ErrInvalidData
	}
	if strings.TrimSpace(cat.Title) == "" {
		return "", types.ErrInvalidName
	}
	if err := cat.Schema.Validate(); err != nil {
		return "", err
	}

	b := ct.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return "", types.ErrCupboardDetached
	}

	now := time.Now().UTC()
	if id == "" {
		newID, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generating UUID v7: %w", err)
		}
		id = newID.String()
	}
	cat.CategoryID = id
	if cat.CreatedAt.IsZero() {
		cat.CreatedAt = now
	}
	if cat.UpdatedAt.IsZero() {
		cat.UpdatedAt = now
	}
	if cat.Schema == nil {
		cat.Schema = types.Schema{}
	}

	tx, err := b.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertCategory(tx, cat); err != nil {
		return "", fmt.Errorf("persisting category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing category: %w", err)
	}

	if err := b.persistCategoriesJSONL(); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes a category and every entry that references it.
func (ct *categoriesTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := ct.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrCupboardDetached
	}

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM categories WHERE category_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("deleting category: %w", err)
	} else if n == 0 {
		return types.ErrNotFound
	}

	// entry_values rows follow through ON DELETE CASCADE.
	purged, err := tx.Exec("DELETE FROM entries WHERE category_id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entries of category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing category deletion: %w", err)
	}
	n, _ := purged.RowsAffected()
	b.logger.Debug("category deleted", "category_id", id, "entries_purged", n)

	// Categories first: a crash before the second write leaves entries
	// without a category, which a reconcile removes.
	if err := b.persistCategoriesJSONL(); err != nil {
		return err
	}
	return b.persistEntriesJSONL()
}

// Fetch queries categories matching the filter, ordered by created_at ASC
// then category_id. Supported keys: "title", "limit", "offset".
func (ct *categoriesTable) Fetch(filter types.Filter) ([]any, error) {
	query := selectCategory
	var conditions []string
	var args []any

	for key, v := range filter {
		switch key {
		case "title":
			s, ok := v.(string)
			if !ok {
				return nil, types.ErrInvalidFilter
			}
			conditions = append(conditions, "title = ?")
			args = append(args, s)
		case "limit", "offset":
		default:
			return nil, fmt.Errorf("%w: unknown key %q", types.ErrInvalidFilter, key)
		}
	}
	page, err := types.PageBounds(filter)
	if err != nil {
		return nil, err
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, category_id ASC"
	query += limitClause(page)

	b := ct.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrCupboardDetached
	}

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching categories: %w", err)
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		cat, err := hydrateCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating category: %w", err)
		}
		results = append(results, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating categories: %w", err)
	}
	return results, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// hydrateCategory converts a SQLite row into a *types.Category.
func hydrateCategory(row rowScanner) (*types.Category, error) {
	var rec categoryJSON
	var schemaJSON, retiredJSON string
	if err := row.Scan(&rec.CategoryID, &rec.Title, &rec.Description, &schemaJSON, &retiredJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(schemaJSON), &rec.Schema); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	if err := json.Unmarshal([]byte(retiredJSON), &rec.Retired); err != nil {
		return nil, fmt.Errorf("parsing retired column ids: %w", err)
	}
	return rec.category()
}

// upsertCategory writes cat inside tx.
func upsertCategory(tx *sql.Tx, cat *types.Category) error {
	rec := categoryToJSON(cat)
	schemaJSON, err := json.Marshal(rec.Schema)
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}
	retired := rec.Retired
	if retired == nil {
		retired = []string{}
	}
	retiredJSON, err := json.Marshal(retired)
	if err != nil {
		return fmt.Errorf("marshaling retired column ids: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO categories (category_id, title, description, schema, retired, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(category_id) DO UPDATE SET
    title = excluded.title,
    description = excluded.description,
    schema = excluded.schema,
    retired = excluded.retired,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at`,
		rec.CategoryID, rec.Title, rec.Description, string(schemaJSON), string(retiredJSON), rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// persistCategoriesJSONL rewrites categories.jsonl from SQLite.
// The caller must hold b.mu.
func (b *Backend) persistCategoriesJSONL() error {
	rows, err := b.db.Query(selectCategory + " ORDER BY created_at ASC, category_id ASC")
	if err != nil {
		return fmt.Errorf("querying categories for JSONL: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		cat, err := hydrateCategory(rows)
		if err != nil {
			return fmt.Errorf("scanning category for JSONL: %w", err)
		}
		data, err := json.Marshal(categoryToJSON(cat))
		if err != nil {
			return fmt.Errorf("marshaling category for JSONL: %w", err)
		}
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating categories for JSONL: %w", err)
	}
	if err := writeJSONL(b.path(categoriesFile), records); err != nil {
		return fmt.Errorf("persisting %s: %w", categoriesFile, err)
	}
	return nil
}

// limitClause renders a page as LIMIT/OFFSET. SQLite needs a LIMIT before
// an OFFSET; -1 means no limit.
func limitClause(p types.Page) string {
	switch {
	case p.Limit > 0 && p.Offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", p.Limit, p.Offset)
	case p.Limit > 0:
		return fmt.Sprintf(" LIMIT %d", p.Limit)
	case p.Offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", p.Offset)
	}
	return ""
}
