// Package logbook is the public surface of the schema-driven entry engine.
//
// A Category owns an ordered schema of typed columns. Entries are written
// against the category's current schema: raw input is coerced column by
// column and either stored whole or rejected with a *types.ValidationError
// naming every failing column. Later schema edits never touch stored
// entries, so an entry may hold values for removed columns (orphaned data)
// and lack values for columns added after it was written. Rendering is
// driven by the current schema and skips orphaned values.
//
// Service runs the operations over any types.Cupboard; Open builds and
// attaches one from a types.Config.
package logbook
