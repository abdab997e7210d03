// Package memory implements a process-local Cupboard. State lives only as
// long as the Backend; it is meant for tests and throwaway sessions.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

var _ types.Cupboard = (*Backend)(nil)

// Backend keeps categories and entries in maps guarded by one RWMutex.
// Stored values are cloned on the way in and out, so callers never share
// memory with the store.
type Backend struct {
	mu         sync.RWMutex
	attached   bool
	categories map[string]*types.Category
	entries    map[string]*types.Entry
	nextSeq    int64
	tables     map[string]types.Table
}

// NewBackend returns a detached in-memory backend.
func NewBackend() *Backend {
	return &Backend{tables: make(map[string]types.Table)}
}

// GetTable returns the Table for name.
func (b *Backend) GetTable(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrCupboardDetached
	}
	table, ok := b.tables[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return table, nil
}

// Attach starts an empty store. DataDir and DSN are ignored.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Backend != types.BackendMemory {
		return fmt.Errorf("memory backend cannot attach %q: %w", config.Backend, types.ErrBackendUnknown)
	}
	b.categories = make(map[string]*types.Category)
	b.entries = make(map[string]*types.Entry)
	b.nextSeq = 1
	b.tables[types.TableCategories] = &categoriesTable{b}
	b.tables[types.TableEntries] = &entriesTable{b}
	b.attached = true
	return nil
}

// Detach drops all state. Idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = false
	b.categories = nil
	b.entries = nil
	b.tables = make(map[string]types.Table)
	return nil
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating UUID v7: %w", err)
	}
	return id.String(), nil
}

type categoriesTable struct{ b *Backend }

func (t *categoriesTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	t.b.mu.RLock()
	defer t.b.mu.RUnlock()
	if !t.b.attached {
		return nil, types.ErrCupboardDetached
	}
	cat, ok := t.b.categories[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cat.Clone(), nil
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
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	if !t.b.attached {
		return "", types.ErrCupboardDetached
	}
	if id == "" {
		var err error
		if id, err = newID(); err != nil {
			return "", err
		}
	}
	now := time.Now().UTC()
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
	t.b.categories[id] = cat.Clone()
	return id, nil
}

// Delete removes the category and its entries under one lock.
func (t *categoriesTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	if !t.b.attached {
		return types.ErrCupboardDetached
	}
	if _, ok := t.b.categories[id]; !ok {
		return types.ErrNotFound
	}
	delete(t.b.categories, id)
	for entryID, e := range t.b.entries {
		if e.CategoryID == id {
			delete(t.b.entries, entryID)
		}
	}
	return nil
}

func (t *categoriesTable) Fetch(filter types.Filter) ([]any, error) {
	var title *string
	for key, v := range filter {
		switch key {
		case "title":
			s, ok := v.(string)
			if !ok {
				return nil, types.ErrInvalidFilter
			}
			title = &s
		case "limit", "offset":
		default:
			return nil, fmt.Errorf("%w: unknown key %q", types.ErrInvalidFilter, key)
		}
	}
	page, err := types.PageBounds(filter)
	if err != nil {
		return nil, err
	}

	t.b.mu.RLock()
	defer t.b.mu.RUnlock()
	if !t.b.attached {
		return nil, types.ErrCupboardDetached
	}
	var matched []*types.Category
	for _, cat := range t.b.categories {
		if title != nil && cat.Title != *title {
			continue
		}
		matched = append(matched, cat)
	}
	sortCategories(matched)
	start, end := page.Window(len(matched))
	results := make([]any, 0, end-start)
	for _, cat := range matched[start:end] {
		results = append(results, cat.Clone())
	}
	return results, nil
}

type entriesTable struct{ b *Backend }

func (t *entriesTable) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	t.b.mu.RLock()
	defer t.b.mu.RUnlock()
	if !t.b.attached {
		return nil, types.ErrCupboardDetached
	}
	e, ok := t.b.entries[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return e.Clone(), nil
}

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
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	if !t.b.attached {
		return "", types.ErrCupboardDetached
	}
	if _, ok := t.b.categories[e.CategoryID]; !ok {
		return "", fmt.Errorf("category %s: %w", e.CategoryID, types.ErrNotFound)
	}
	if id == "" {
		var err error
		if id, err = newID(); err != nil {
			return "", err
		}
	}
	e.EntryID = id
	if prev, ok := t.b.entries[id]; ok {
		e.Seq = prev.Seq
	} else {
		e.Seq = t.b.nextSeq
		t.b.nextSeq++
	}
	if e.Data == nil {
		e.Data = map[string]types.Value{}
	}
	t.b.entries[id] = e.Clone()
	return id, nil
}

func (t *entriesTable) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	if !t.b.attached {
		return types.ErrCupboardDetached
	}
	if _, ok := t.b.entries[id]; !ok {
		return types.ErrNotFound
	}
	delete(t.b.entries, id)
	return nil
}

func (t *entriesTable) Fetch(filter types.Filter) ([]any, error) {
	var categoryID *string
	for key, v := range filter {
		switch key {
		case "category_id":
			s, ok := v.(string)
			if !ok {
				return nil, types.ErrInvalidFilter
			}
			categoryID = &s
		case "limit", "offset":
		default:
			return nil, fmt.Errorf("%w: unknown key %q", types.ErrInvalidFilter, key)
		}
	}
	page, err := types.PageBounds(filter)
	if err != nil {
		return nil, err
	}

	t.b.mu.RLock()
	defer t.b.mu.RUnlock()
	if !t.b.attached {
		return nil, types.ErrCupboardDetached
	}
	var matched []*types.Entry
	for _, e := range t.b.entries {
		if categoryID != nil && e.CategoryID != *categoryID {
			continue
		}
		matched = append(matched, e)
	}
	types.SortEntries(matched)
	start, end := page.Window(len(matched))
	results := make([]any, 0, end-start)
	for _, e := range matched[start:end] {
		results = append(results, e.Clone())
	}
	return results, nil
}
