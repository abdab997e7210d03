package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

var _ types.Table = (*entriesTable)(nil)

// entriesTable implements the Table interface for entries. Each entry is
// one row in entries plus one row per stored cell in entry_values.
type entriesTable struct {
	backend *Backend
}

const selectEntry = "SELECT entry_id, category_id, seq, logged_at FROM entries"

// entryOrder is the listing contract: most recent first, ties in
// insertion order.
const entryOrder = " ORDER BY logged_at DESC, seq ASC"

// Get retrieves an entry by ID with its data.
func (et *entriesTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	b := et.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrCupboardDetached
	}

	e, err := hydrateEntry(b.db.QueryRow(selectEntry+" WHERE entry_id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting entry %s: %w", id, err)
	}
	if err := hydrateValues(b.db, []*types.Entry{e}); err != nil {
		return nil, fmt.Errorf("hydrating data for entry %s: %w", id, err)
	}
	return e, nil
}

// Set persists an entry, replacing any stored data wholesale. If id is
// empty, generates a UUID v7. The referenced category must exist, else
// ErrNotFound. A new entry gets the next insertion sequence; a replaced
// one keeps its sequence.
func (et *entriesTable) Set(id string, data any) (string, error) {
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

	b := et.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return "", types.ErrCupboardDetached
	}

	if id == "" {
		newID, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generating UUID v7: %w", err)
		}
		id = newID.String()
	}

	var one int
	err := b.db.QueryRow("SELECT 1 FROM categories WHERE category_id = ?", e.CategoryID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("category %s: %w", e.CategoryID, types.ErrNotFound)
		}
		return "", fmt.Errorf("checking category existence: %w", err)
	}

	var seq int64
	err = b.db.QueryRow("SELECT seq FROM entries WHERE entry_id = ?", id).Scan(&seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		seq = b.nextSeq
	case err != nil:
		return "", fmt.Errorf("checking entry existence: %w", err)
	}

	e.EntryID = id
	e.Seq = seq
	if e.Data == nil {
		e.Data = map[string]types.Value{}
	}

	tx, err := b.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertEntry(tx, e); err != nil {
		return "", fmt.Errorf("persisting entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing entry: %w", err)
	}
	if seq == b.nextSeq {
		b.nextSeq++
	}

	if err := b.persistEntriesJSONL(); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes an entry and its data.
func (et *entriesTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	b := et.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrCupboardDetached
	}

	res, err := b.db.Exec("DELETE FROM entries WHERE entry_id = ?", id)
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
	return b.persistEntriesJSONL()
}

// Fetch queries entries matching the filter, most recent first with ties
// in insertion order. Supported keys: "category_id", "limit", "offset".
func (et *entriesTable) Fetch(filter types.Filter) ([]any, error) {
	query := selectEntry
	var conditions []string
	var args []any

	for key, v := range filter {
		switch key {
		case "category_id":
			s, ok := v.(string)
			if !ok {
				return nil, types.ErrInvalidFilter
			}
			conditions = append(conditions, "category_id = ?")
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
	query += entryOrder + limitClause(page)

	b := et.backend
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrCupboardDetached
	}

	entries, err := queryEntries(b.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching entries: %w", err)
	}
	results := make([]any, len(entries))
	for i, e := range entries {
		results[i] = e
	}
	return results, nil
}

// queryEntries runs an entry SELECT and hydrates the data of every row.
// Rows are closed before values are read; the pool holds one connection.
func queryEntries(db *sql.DB, query string, args ...any) ([]*types.Entry, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var entries []*types.Entry
	for rows.Next() {
		e, err := hydrateEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("hydrating entry: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	if err := hydrateValues(db, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// hydrateEntry converts a SQLite row into a *types.Entry without data.
func hydrateEntry(row rowScanner) (*types.Entry, error) {
	var e types.Entry
	var loggedAt string
	if err := row.Scan(&e.EntryID, &e.CategoryID, &e.Seq, &loggedAt); err != nil {
		return nil, err
	}
	t, err := types.ParseTime(loggedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing logged_at: %w", err)
	}
	e.LoggedAt = t
	e.Data = map[string]types.Value{}
	return &e, nil
}

// valuesBatch bounds the number of ids bound into one IN clause.
const valuesBatch = 500

// hydrateValues loads entry_values rows into the Data maps of entries.
func hydrateValues(db *sql.DB, entries []*types.Entry) error {
	byID := make(map[string]*types.Entry, len(entries))
	for _, e := range entries {
		byID[e.EntryID] = e
	}
	for start := 0; start < len(entries); start += valuesBatch {
		end := min(start+valuesBatch, len(entries))
		args := make([]any, 0, end-start)
		for _, e := range entries[start:end] {
			args = append(args, e.EntryID)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		rows, err := db.Query(
			"SELECT entry_id, column_id, value_type, value FROM entry_values WHERE entry_id IN ("+placeholders+")",
			args...,
		)
		if err != nil {
			return fmt.Errorf("querying entry_values: %w", err)
		}
		for rows.Next() {
			var entryID, columnID, valueType, raw string
			if err := rows.Scan(&entryID, &columnID, &valueType, &raw); err != nil {
				rows.Close()
				return fmt.Errorf("scanning entry_value: %w", err)
			}
			tv := types.TypedValue{Type: valueType}
			if err := json.Unmarshal([]byte(raw), &tv.Value); err != nil {
				rows.Close()
				return fmt.Errorf("parsing value %s of entry %s: %w", columnID, entryID, err)
			}
			v, err := tv.Decode()
			if err != nil {
				rows.Close()
				return fmt.Errorf("decoding value %s of entry %s: %w", columnID, entryID, err)
			}
			if e, ok := byID[entryID]; ok {
				e.Data[columnID] = v
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating entry_values: %w", err)
		}
	}
	return nil
}

// upsertEntry writes e and replaces its entry_values rows inside tx.
func upsertEntry(tx *sql.Tx, e *types.Entry) error {
	_, err := tx.Exec(`INSERT INTO entries (entry_id, category_id, seq, logged_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(entry_id) DO UPDATE SET
    category_id = excluded.category_id,
    seq = excluded.seq,
    logged_at = excluded.logged_at`,
		e.EntryID, e.CategoryID, e.Seq, types.FormatTime(e.LoggedAt),
	)
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM entry_values WHERE entry_id = ?", e.EntryID); err != nil {
		return fmt.Errorf("clearing entry_values: %w", err)
	}
	for columnID, v := range e.Data {
		tv := v.Typed()
		raw, err := json.Marshal(tv.Value)
		if err != nil {
			return fmt.Errorf("marshaling value %s: %w", columnID, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO entry_values (entry_id, column_id, value_type, value) VALUES (?, ?, ?, ?)",
			e.EntryID, columnID, tv.Type, string(raw),
		); err != nil {
			return fmt.Errorf("inserting value %s: %w", columnID, err)
		}
	}
	return nil
}

// persistEntriesJSONL rewrites entries.jsonl from SQLite in insertion
// order. The caller must hold b.mu.
func (b *Backend) persistEntriesJSONL() error {
	entries, err := queryEntries(b.db, selectEntry+" ORDER BY seq ASC")
	if err != nil {
		return fmt.Errorf("querying entries for JSONL: %w", err)
	}
	records := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e.Record())
		if err != nil {
			return fmt.Errorf("marshaling entry for JSONL: %w", err)
		}
		records = append(records, data)
	}
	if err := writeJSONL(b.path(entriesFile), records); err != nil {
		return fmt.Errorf("persisting %s: %w", entriesFile, err)
	}
	return nil
}
