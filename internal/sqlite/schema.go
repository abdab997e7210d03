package sqlite

// Schema DDL. The SQLite file is a query cache rebuilt from the JSONL files
// on every Attach.
const (
	createCategories = `CREATE TABLE categories (
    category_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    schema TEXT NOT NULL DEFAULT '[]',
    retired TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createEntries = `CREATE TABLE entries (
    entry_id TEXT PRIMARY KEY,
    category_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    logged_at TEXT NOT NULL
);`

	// entry_values holds one row per stored cell. value_type is the tag of
	// the stored variant, so a cell hydrates without the category schema.
	createEntryValues = `CREATE TABLE entry_values (
    entry_id TEXT NOT NULL,
    column_id TEXT NOT NULL,
    value_type TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (entry_id, column_id),
    FOREIGN KEY (entry_id) REFERENCES entries(entry_id) ON DELETE CASCADE
);`
)

// Index DDL for common queries.
const (
	idxCategoriesCreated = `CREATE INDEX idx_categories_created ON categories(created_at, category_id);`
	idxEntriesCategory   = `CREATE INDEX idx_entries_category ON entries(category_id, logged_at DESC, seq ASC);`
	idxEntryValuesEntry  = `CREATE INDEX idx_entry_values_entry ON entry_values(entry_id);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createCategories,
	createEntries,
	createEntryValues,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxCategoriesCreated,
	idxEntriesCategory,
	idxEntryValuesEntry,
}
