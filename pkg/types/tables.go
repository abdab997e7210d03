package types

// Standard table names for Cupboard.GetTable.
const (
	TableCategories = "categories"
	TableEntries    = "entries"
)

// StandardTableNames lists all standard table names for enumeration.
var StandardTableNames = []string{
	TableCategories,
	TableEntries,
}
