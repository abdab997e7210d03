package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

// queryTimeout bounds every statement issued by a table.
const queryTimeout = 30 * time.Second

func (b *Backend) conn() (*sql.DB, error) {
	if !b.attached {
		return nil, types.ErrCupboardDetached
	}
	return b.db, nil
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating UUID v7: %w", err)
	}
	return id.String(), nil
}

// query collects WHERE conditions with $n placeholders.
type query struct {
	conditions []string
	args       []any
}

func (q *query) where(column string, v any) {
	q.args = append(q.args, v)
	q.conditions = append(q.conditions, fmt.Sprintf("%s = $%d", column, len(q.args)))
}

func (q *query) render(base, order string, p types.Page) string {
	s := base
	if len(q.conditions) > 0 {
		s += " WHERE " + strings.Join(q.conditions, " AND ")
	}
	s += order
	if p.Limit > 0 {
		s += fmt.Sprintf(" LIMIT %d", p.Limit)
	}
	if p.Offset > 0 {
		s += fmt.Sprintf(" OFFSET %d", p.Offset)
	}
	return s
}

// stringFilters reads the allowed string keys of filter. "limit" and
// "offset" are read separately by types.PageBounds.
func stringFilters(filter types.Filter, allowed ...string) (map[string]string, error) {
	out := map[string]string{}
	for key, v := range filter {
		if key == "limit" || key == "offset" {
			continue
		}
		ok := false
		for _, a := range allowed {
			if key == a {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: unknown key %q", types.ErrInvalidFilter, key)
		}
		s, isString := v.(string)
		if !isString {
			return nil, types.ErrInvalidFilter
		}
		out[key] = s
	}
	return out, nil
}

type categoriesTable struct{ backend *Backend }

const selectCategory = `SELECT category_id, title, description, schema, retired, created_at, updated_at FROM logbook_categories`

func (t *categoriesTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()
	db, err := t.backend.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	cat, err := scanCategory(db.QueryRowContext(ctx, selectCategory+` WHERE category_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting category %s: %w", id, err)
	}
	return cat, nil
}

func (t *categoriesTable) Set(id string, data any) (string, error) {
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
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	db, err := t.backend.conn()
	if err != nil {
		return "", err
	}
	if id == "" {
		if id, err = newID(); err != nil {
			return "", err
		}
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
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
	schemaJSON, err := json.Marshal(cat.Schema)
	if err != nil {
		return "", fmt.Errorf("marshaling schema: %w", err)
	}
	retired := cat.RetiredColumnIDs
	if retired == nil {
		retired = []string{}
	}
	retiredJSON, err := json.Marshal(retired)
	if err != nil {
		return "", fmt.Errorf("marshaling retired column ids: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	_, err = db.ExecContext(ctx, `INSERT INTO logbook_categories
		(category_id, title, description, schema, retired, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (category_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			schema = EXCLUDED.schema,
			retired = EXCLUDED.retired,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		id, cat.Title, cat.Description, schemaJSON, retiredJSON, cat.CreatedAt.UTC(), cat.UpdatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("persisting category: %w", err)
	}
	return id, nil
}

// Delete removes the category and its entries in one transaction.
func (t *categoriesTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	db, err := t.backend.conn()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM logbook_categories WHERE category_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("deleting category: %w", err)
	} else if n == 0 {
		return types.ErrNotFound
	}
	purged, err := tx.ExecContext(ctx, `DELETE FROM logbook_entries WHERE category_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting entries of category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	n, _ := purged.RowsAffected()
	t.backend.logger.Debug("category deleted", "category_id", id, "entries_purged", n)
	return nil
}

func (t *categoriesTable) Fetch(filter types.Filter) ([]any, error) {
	keys, err := stringFilters(filter, "title")
	if err != nil {
		return nil, err
	}
	page, err := types.PageBounds(filter)
	if err != nil {
		return nil, err
	}
	var q query
	if title, ok := keys["title"]; ok {
		q.where("title", title)
	}
	stmt := q.render(selectCategory, " ORDER BY created_at ASC, category_id ASC", page)

	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()
	db, err := t.backend.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("fetching categories: %w", err)
	}
	defer func() { _ = rows.Close() }()
	results := []any{}
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		results = append(results, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating categories: %w", err)
	}
	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCategory(row scanner) (*types.Category, error) {
	var cat types.Category
	var schemaJSON, retiredJSON []byte
	if err := row.Scan(&cat.CategoryID, &cat.Title, &cat.Description, &schemaJSON, &retiredJSON, &cat.CreatedAt, &cat.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schemaJSON, &cat.Schema); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	if err := json.Unmarshal(retiredJSON, &cat.RetiredColumnIDs); err != nil {
		return nil, fmt.Errorf("decoding retired column ids: %w", err)
	}
	if len(cat.RetiredColumnIDs) == 0 {
		cat.RetiredColumnIDs = nil
	}
	cat.Schema = cat.Schema.Clone()
	cat.CreatedAt = cat.CreatedAt.UTC()
	cat.UpdatedAt = cat.UpdatedAt.UTC()
	return &cat, nil
}

type entriesTable struct{ backend *Backend }

const selectEntry = `SELECT entry_id, category_id, seq, logged_at, data FROM logbook_entries`

func (t *entriesTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()
	db, err := t.backend.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	e, err := scanEntry(db.QueryRowContext(ctx, selectEntry+` WHERE entry_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting entry %s: %w", id, err)
	}
	return e, nil
}

// Set inserts or replaces an entry. The sequence column is assigned by
// Postgres on insert and left alone on update.
func (t *entriesTable) Set(id string, data any) (string, error) {
	e, ok := data.(*types.Entry)
	if !ok || e == nil {
		return "", types.ErrInvalidData
	}
	if e.CategoryID == "" {
		return "", types.ErrInvalidID
	}
	if e.LoggedAt.IsZero() {
		return "", fmt.Errorf("%w: logged_at is required", types.ErrInvalidData)
	}
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	db, err := t.backend.conn()
	if err != nil {
		return "", err
	}
	if id == "" {
		if id, err = newID(); err != nil {
			return "", err
		}
	}
	if e.Data == nil {
		e.Data = map[string]types.Value{}
	}
	rec := e.Record()
	payload, err := json.Marshal(rec.Data)
	if err != nil {
		return "", fmt.Errorf("marshaling entry data: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM logbook_categories WHERE category_id = $1`, e.CategoryID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("category %s: %w", e.CategoryID, types.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("checking category existence: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `INSERT INTO logbook_entries (entry_id, category_id, logged_at, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entry_id) DO UPDATE SET
			category_id = EXCLUDED.category_id,
			logged_at = EXCLUDED.logged_at,
			data = EXCLUDED.data
		RETURNING seq`,
		id, e.CategoryID, e.LoggedAt.UTC(), payload,
	).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("persisting entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	e.EntryID = id
	e.Seq = seq
	return id, nil
}

func (t *entriesTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	db, err := t.backend.conn()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	res, err := db.ExecContext(ctx, `DELETE FROM logbook_entries WHERE entry_id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (t *entriesTable) Fetch(filter types.Filter) ([]any, error) {
	keys, err := stringFilters(filter, "category_id")
	if err != nil {
		return nil, err
	}
	page, err := types.PageBounds(filter)
	if err != nil {
		return nil, err
	}
	var q query
	if categoryID, ok := keys["category_id"]; ok {
		q.where("category_id", categoryID)
	}
	stmt := q.render(selectEntry, " ORDER BY logged_at DESC, seq ASC", page)

	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()
	db, err := t.backend.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("fetching entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	results := []any{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return results, nil
}

func scanEntry(row scanner) (*types.Entry, error) {
	var rec types.EntryRecord
	var loggedAt time.Time
	var payload []byte
	if err := row.Scan(&rec.EntryID, &rec.CategoryID, &rec.Seq, &loggedAt, &payload); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Data); err != nil {
		return nil, fmt.Errorf("decoding entry data: %w", err)
	}
	rec.LoggedAt = types.FormatTime(loggedAt)
	return rec.Entry()
}
