package logbook

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/mesh-intelligence/logbook/internal/clock"
	"github.com/mesh-intelligence/logbook/internal/coerce"
	"github.com/mesh-intelligence/logbook/internal/render"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

// Service implements the category and entry operations on top of a
// Cupboard. It holds no state of its own; concurrent calls follow the
// backend's last-writer-wins behavior.
type Service struct {
	cupboard types.Cupboard
	clock    clock.Clock
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for default timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the structured logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService returns a Service over an attached cupboard.
func NewService(cupboard types.Cupboard, opts ...Option) *Service {
	s := &Service{
		cupboard: cupboard,
		clock:    clock.Real(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CategoryPatch carries a partial category update. Nil fields are left
// unchanged.
type CategoryPatch struct {
	Title       *string
	Description *string
}

func (s *Service) table(name string) (types.Table, error) {
	t, err := s.cupboard.GetTable(name)
	if err != nil {
		return nil, fmt.Errorf("opening %s table: %w", name, err)
	}
	return t, nil
}

func (s *Service) now() time.Time {
	return stamp(s.clock.Now())
}

// stamp normalizes a timestamp to UTC at microsecond precision, the
// finest every backend stores.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// notFound wraps ErrNotFound with the kind and id that were missing.
func notFound(kind, id string, err error) error {
	if errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", kind, id, types.ErrNotFound)
	}
	return fmt.Errorf("getting %s %s: %w", kind, id, err)
}

// CreateCategory creates a category with an empty schema. The title is
// trimmed and must not be empty.
func (s *Service) CreateCategory(title, description string) (*types.Category, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("category title is empty: %w", types.ErrInvalidName)
	}
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return nil, err
	}
	now := s.now()
	cat := &types.Category{
		Title:       title,
		Description: description,
		Schema:      types.Schema{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := cats.Set("", cat); err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}
	s.logger.Debug("category created", "category_id", cat.CategoryID, "title", title)
	return cat, nil
}

// GetCategory returns the category with id.
func (s *Service) GetCategory(id string) (*types.Category, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return nil, err
	}
	return getCategory(cats, id)
}

func getCategory(cats types.Table, id string) (*types.Category, error) {
	v, err := cats.Get(id)
	if err != nil {
		return nil, notFound("category", id, err)
	}
	cat, ok := v.(*types.Category)
	if !ok {
		return nil, fmt.Errorf("category %s: unexpected %T: %w", id, v, types.ErrInvalidData)
	}
	return cat, nil
}

// ListCategories returns categories in creation order.
func (s *Service) ListCategories(page types.Page) ([]*types.Category, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return nil, err
	}
	rows, err := cats.Fetch(page.Apply(nil))
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	out := make([]*types.Category, 0, len(rows))
	for _, v := range rows {
		out = append(out, v.(*types.Category))
	}
	return out, nil
}

// UpdateCategory applies a partial update to title and description.
func (s *Service) UpdateCategory(id string, patch CategoryPatch) (*types.Category, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return nil, err
	}
	cat, err := getCategory(cats, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, fmt.Errorf("category title is empty: %w", types.ErrInvalidName)
		}
		cat.Title = title
	}
	if patch.Description != nil {
		cat.Description = *patch.Description
	}
	cat.UpdatedAt = s.now()
	if _, err := cats.Set(id, cat); err != nil {
		return nil, fmt.Errorf("updating category %s: %w", id, err)
	}
	s.logger.Debug("category updated", "category_id", id)
	return cat, nil
}

// UpdateCategorySchema replaces the schema of a category wholesale. A
// column whose id is already in the schema is the same column, possibly
// renamed, retyped or moved; a column with an empty id is new and gets a
// generated id; ids left out are removed and retired. Stored entries are
// not touched.
//
// Returns ErrNotFound for an unknown category, ErrSchemaConflict for
// duplicate or retired ids, and ErrInvalidColumnType for unknown types.
func (s *Service) UpdateCategorySchema(id string, schema types.Schema) (*types.Category, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return nil, err
	}
	cat, err := getCategory(cats, id)
	if err != nil {
		return nil, err
	}
	before := cat.Schema.Clone()
	diff, err := cat.ReplaceSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("updating schema of category %s: %w", id, err)
	}
	if slices.Equal(before, cat.Schema) {
		return cat, nil
	}
	cat.UpdatedAt = s.now()
	if _, err := cats.Set(id, cat); err != nil {
		return nil, fmt.Errorf("updating schema of category %s: %w", id, err)
	}
	s.logger.Debug("category schema updated",
		"category_id", id,
		"added", diff.Added,
		"removed", diff.Removed,
		"columns", len(cat.Schema),
	)
	return cat, nil
}

// DeleteCategory removes a category and all of its entries, returning
// the number of entries purged. Deleting an unknown category returns
// ErrNotFound. Entries the backend left behind are swept before
// returning, so none refer to the category afterwards.
func (s *Service) DeleteCategory(id string) (int, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return 0, err
	}
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return 0, err
	}
	owned, err := entries.Fetch(types.Filter{"category_id": id})
	if err != nil {
		return 0, fmt.Errorf("counting entries of category %s: %w", id, err)
	}
	if err := cats.Delete(id); err != nil {
		return 0, notFound("category", id, err)
	}
	swept, err := purgeEntries(entries, id)
	if err != nil {
		return 0, fmt.Errorf("purging entries of category %s: %w", id, err)
	}
	purged := max(len(owned), swept)
	s.logger.Info("category deleted", "category_id", id, "entries_purged", purged)
	return purged, nil
}

// purgeEntries deletes every entry of categoryID still in the table.
// Entries removed concurrently are not an error.
func purgeEntries(entries types.Table, categoryID string) (int, error) {
	left, err := entries.Fetch(types.Filter{"category_id": categoryID})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range left {
		e := v.(*types.Entry)
		if err := entries.Delete(e.EntryID); err != nil && !errors.Is(err, types.ErrNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}

// Reconcile deletes entries whose category no longer exists and returns
// how many were removed. It repairs stores where a cascade was cut short.
func (s *Service) Reconcile() (int, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return 0, err
	}
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return 0, err
	}
	all, err := entries.Fetch(nil)
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}
	known := map[string]bool{}
	removed := 0
	for _, v := range all {
		e := v.(*types.Entry)
		exists, checked := known[e.CategoryID]
		if !checked {
			_, err := cats.Get(e.CategoryID)
			switch {
			case err == nil:
				exists = true
			case errors.Is(err, types.ErrNotFound):
				exists = false
			default:
				return removed, fmt.Errorf("checking category %s: %w", e.CategoryID, err)
			}
			known[e.CategoryID] = exists
		}
		if exists {
			continue
		}
		if err := entries.Delete(e.EntryID); err != nil && !errors.Is(err, types.ErrNotFound) {
			return removed, fmt.Errorf("deleting entry %s: %w", e.EntryID, err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("reconcile removed dangling entries", "entries", removed)
	}
	return removed, nil
}

// CreateEntry coerces raw against the category's current schema and
// stores the result. A zero loggedAt means now. On coercion failure
// nothing is stored and the error is a *types.ValidationError.
func (s *Service) CreateEntry(categoryID string, raw map[string]any, loggedAt time.Time) (*types.Entry, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return nil, err
	}
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return nil, err
	}
	cat, err := getCategory(cats, categoryID)
	if err != nil {
		return nil, err
	}
	data, err := coerce.Coerce(raw, cat.Schema)
	if err != nil {
		return nil, err
	}
	if loggedAt.IsZero() {
		loggedAt = s.now()
	}
	e := &types.Entry{
		CategoryID: categoryID,
		Data:       data,
		LoggedAt:   stamp(loggedAt),
	}
	if _, err := entries.Set("", e); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("category %s: %w", categoryID, types.ErrNotFound)
		}
		return nil, fmt.Errorf("creating entry: %w", err)
	}
	s.logger.Debug("entry created", "entry_id", e.EntryID, "category_id", categoryID, "columns", len(data))
	return e, nil
}

// GetEntry returns the entry with id, including orphaned values.
func (s *Service) GetEntry(id string) (*types.Entry, error) {
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return nil, err
	}
	return getEntry(entries, id)
}

func getEntry(entries types.Table, id string) (*types.Entry, error) {
	v, err := entries.Get(id)
	if err != nil {
		return nil, notFound("entry", id, err)
	}
	e, ok := v.(*types.Entry)
	if !ok {
		return nil, fmt.Errorf("entry %s: unexpected %T: %w", id, v, types.ErrInvalidData)
	}
	return e, nil
}

// UpdateEntry replaces the data of an entry with raw coerced against the
// current schema of its category. Columns missing from raw are dropped.
// A zero loggedAt keeps the stored timestamp.
func (s *Service) UpdateEntry(id string, raw map[string]any, loggedAt time.Time) (*types.Entry, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return nil, err
	}
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return nil, err
	}
	e, err := getEntry(entries, id)
	if err != nil {
		return nil, err
	}
	cat, err := getCategory(cats, e.CategoryID)
	if err != nil {
		return nil, err
	}
	data, err := coerce.Coerce(raw, cat.Schema)
	if err != nil {
		return nil, err
	}
	e.Data = data
	if !loggedAt.IsZero() {
		e.LoggedAt = stamp(loggedAt)
	}
	if _, err := entries.Set(id, e); err != nil {
		return nil, fmt.Errorf("updating entry %s: %w", id, err)
	}
	s.logger.Debug("entry updated", "entry_id", id, "category_id", e.CategoryID)
	return e, nil
}

// DeleteEntry removes an entry. Returns ErrNotFound when it is absent.
func (s *Service) DeleteEntry(id string) error {
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return err
	}
	if err := entries.Delete(id); err != nil {
		return notFound("entry", id, err)
	}
	s.logger.Debug("entry deleted", "entry_id", id)
	return nil
}

// ListEntriesForCategory returns every entry of a category, most recent
// first; equal timestamps keep insertion order.
func (s *Service) ListEntriesForCategory(categoryID string) ([]*types.Entry, error) {
	return s.ListEntriesPage(categoryID, types.Page{})
}

// ListEntriesPage is ListEntriesForCategory bounded by page.
func (s *Service) ListEntriesPage(categoryID string, page types.Page) ([]*types.Entry, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return nil, err
	}
	if _, err := getCategory(cats, categoryID); err != nil {
		return nil, err
	}
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return nil, err
	}
	return listEntries(entries, categoryID, page)
}

func listEntries(entries types.Table, categoryID string, page types.Page) ([]*types.Entry, error) {
	rows, err := entries.Fetch(page.Apply(types.Filter{"category_id": categoryID}))
	if err != nil {
		return nil, fmt.Errorf("listing entries of category %s: %w", categoryID, err)
	}
	out := make([]*types.Entry, 0, len(rows))
	for _, v := range rows {
		out = append(out, v.(*types.Entry))
	}
	return out, nil
}

// RenderedTable is a category's entries projected through its current
// schema.
type RenderedTable = render.Table

// RenderEntries projects the entries of a category for display. Columns
// come from the current schema; orphaned values are not shown.
func (s *Service) RenderEntries(categoryID string, page types.Page) (*types.Category, RenderedTable, error) {
	cat, err := s.GetCategory(categoryID)
	if err != nil {
		return nil, RenderedTable{}, err
	}
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return nil, RenderedTable{}, err
	}
	list, err := listEntries(entries, categoryID, page)
	if err != nil {
		return nil, RenderedTable{}, err
	}
	return cat, render.Entries(cat.Schema, list), nil
}
