package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

// loadStats reports what loadAllJSONL inserted.
type loadStats struct {
	categories int
	entries    int
	skipped    int
	maxSeq     int64
}

// loadAllJSONL reads categories.jsonl and entries.jsonl from dataDir into
// SQLite in one transaction: all succeed or the database stays empty.
// Malformed lines and records that fail to decode are skipped. Unknown
// JSON fields are ignored.
//
// Entries whose category is missing are loaded as written; removing them
// is left to an explicit reconcile.
func loadAllJSONL(db *sql.DB, dataDir string) (loadStats, error) {
	var stats loadStats

	tx, err := db.Begin()
	if err != nil {
		return stats, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	catRecords, err := readJSONL(filepath.Join(dataDir, categoriesFile))
	if err != nil {
		return stats, err
	}
	for _, raw := range catRecords {
		var rec categoryJSON
		if err := json.Unmarshal(raw, &rec); err != nil || rec.CategoryID == "" {
			stats.skipped++
			continue
		}
		cat, err := rec.category()
		if err != nil {
			stats.skipped++
			continue
		}
		if err := upsertCategory(tx, cat); err != nil {
			return stats, fmt.Errorf("loading category %s: %w", rec.CategoryID, err)
		}
		stats.categories++
	}

	entryRecords, err := readJSONL(filepath.Join(dataDir, entriesFile))
	if err != nil {
		return stats, err
	}
	for _, raw := range entryRecords {
		var rec types.EntryRecord
		if err := json.Unmarshal(raw, &rec); err != nil || rec.EntryID == "" {
			stats.skipped++
			continue
		}
		entry, err := rec.Entry()
		if err != nil {
			stats.skipped++
			continue
		}
		if err := upsertEntry(tx, entry); err != nil {
			return stats, fmt.Errorf("loading entry %s: %w", rec.EntryID, err)
		}
		stats.entries++
		stats.maxSeq = max(stats.maxSeq, entry.Seq)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("committing load transaction: %w", err)
	}
	return stats, nil
}
