package logbook

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/mesh-intelligence/logbook/internal/codec"
	"github.com/mesh-intelligence/logbook/pkg/types"
)

// SnapshotVersion is the snapshot layout written by Export.
const SnapshotVersion = 1

// Snapshot formats.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// ErrSnapshotFormat reports an unknown snapshot format or version.
var ErrSnapshotFormat = errors.New("unsupported snapshot format")

// Snapshot is a whole-store export. Entries are in insertion order.
type Snapshot struct {
	Version    int                 `json:"version"`
	ExportedAt string              `json:"exported_at"`
	Categories []CategoryRecord    `json:"categories"`
	Entries    []types.EntryRecord `json:"entries"`
}

// CategoryRecord is the snapshot encoding of a category. Timestamps use
// types.TimeLayout.
type CategoryRecord struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Schema           []types.ColumnSpec `json:"schema"`
	RetiredColumnIDs []string           `json:"retired_column_ids,omitempty"`
	CreatedAt        string             `json:"created_at"`
	UpdatedAt        string             `json:"updated_at"`
}

func categoryRecord(c *types.Category) CategoryRecord {
	return CategoryRecord{
		ID:               c.CategoryID,
		Title:            c.Title,
		Description:      c.Description,
		Schema:           c.Schema.Clone(),
		RetiredColumnIDs: c.RetiredColumnIDs,
		CreatedAt:        types.FormatTime(c.CreatedAt),
		UpdatedAt:        types.FormatTime(c.UpdatedAt),
	}
}

func (r CategoryRecord) category() (*types.Category, error) {
	createdAt, err := types.ParseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := types.ParseTime(r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &types.Category{
		CategoryID:       r.ID,
		Title:            r.Title,
		Description:      r.Description,
		Schema:           types.Schema(r.Schema).Clone(),
		RetiredColumnIDs: r.RetiredColumnIDs,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

func bySeq(a, b types.EntryRecord) int { return cmp.Compare(a.Seq, b.Seq) }

// Export reads every category and entry into a Snapshot.
func (s *Service) Export() (*Snapshot, error) {
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return nil, err
	}
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return nil, err
	}
	catRows, err := cats.Fetch(nil)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	entryRows, err := entries.Fetch(nil)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	snap := &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: types.FormatTime(s.now()),
		Categories: make([]CategoryRecord, 0, len(catRows)),
		Entries:    make([]types.EntryRecord, 0, len(entryRows)),
	}
	for _, v := range catRows {
		snap.Categories = append(snap.Categories, categoryRecord(v.(*types.Category)))
	}
	for _, v := range entryRows {
		snap.Entries = append(snap.Entries, v.(*types.Entry).Record())
	}
	slices.SortStableFunc(snap.Entries, bySeq)
	s.logger.Debug("exported snapshot", "categories", len(snap.Categories), "entries", len(snap.Entries))
	return snap, nil
}

// ImportStats reports what Import wrote.
type ImportStats struct {
	Categories int `json:"categories"`
	Entries    int `json:"entries"`
	Skipped    int `json:"skipped"`
}

// Import writes a snapshot into the store. Records replace stored ones
// with the same id. Entry data is stored as exported, without coercion.
// Entries whose category is neither in the snapshot nor in the store, and
// records that fail to decode, are skipped.
func (s *Service) Import(snap *Snapshot) (ImportStats, error) {
	var stats ImportStats
	if snap == nil {
		return stats, nil
	}
	if snap.Version != SnapshotVersion {
		return stats, fmt.Errorf("%w: version %d", ErrSnapshotFormat, snap.Version)
	}
	cats, err := s.table(types.TableCategories)
	if err != nil {
		return stats, err
	}
	entries, err := s.table(types.TableEntries)
	if err != nil {
		return stats, err
	}

	for _, rec := range snap.Categories {
		cat, err := rec.category()
		if err != nil || rec.ID == "" {
			s.logger.Warn("skipping category", "category_id", rec.ID, "error", err)
			stats.Skipped++
			continue
		}
		if _, err := cats.Set(rec.ID, cat); err != nil {
			return stats, fmt.Errorf("importing category %s: %w", rec.ID, err)
		}
		stats.Categories++
	}

	ordered := slices.Clone(snap.Entries)
	slices.SortStableFunc(ordered, bySeq)
	for _, rec := range ordered {
		e, err := rec.Entry()
		if err != nil || rec.EntryID == "" {
			s.logger.Warn("skipping entry", "entry_id", rec.EntryID, "error", err)
			stats.Skipped++
			continue
		}
		if _, err := entries.Set(rec.EntryID, e); err != nil {
			if errors.Is(err, types.ErrNotFound) {
				s.logger.Warn("skipping entry without category", "entry_id", rec.EntryID, "category_id", rec.CategoryID)
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("importing entry %s: %w", rec.EntryID, err)
		}
		stats.Entries++
	}
	s.logger.Info("imported snapshot", "categories", stats.Categories, "entries", stats.Entries, "skipped", stats.Skipped)
	return stats, nil
}

// WriteSnapshot encodes snap to w in format.
func WriteSnapshot(w io.Writer, snap *Snapshot, format string) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatCBOR:
		return codec.NewEncoder(w).Encode(snap)
	}
	return fmt.Errorf("%w: %q", ErrSnapshotFormat, format)
}

// ReadSnapshot decodes a snapshot from r in format.
func ReadSnapshot(r io.Reader, format string) (*Snapshot, error) {
	var snap Snapshot
	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(&snap); err != nil {
			return nil, fmt.Errorf("decoding json snapshot: %w", err)
		}
	case FormatCBOR:
		if err := codec.NewDecoder(r).Decode(&snap); err != nil {
			return nil, fmt.Errorf("decoding cbor snapshot: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrSnapshotFormat, format)
	}
	return &snap, nil
}
