// Package types defines the Cupboard and Table storage interfaces, the
// logbook entity types (Category, ColumnSpec, Entry, Value), and the
// standard errors shared by the engine and its backends.
package types
