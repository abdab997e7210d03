package types

import (
	"strings"
)

// FieldError reports why one column's input could not be coerced.
type FieldError struct {
	ColumnID string `json:"column_id"`
	Reason   string `json:"reason"`
}

// ValidationError collects per-column coercion failures. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// Add records a failure for columnID.
func (e *ValidationError) Add(columnID, reason string) {
	e.Fields = append(e.Fields, FieldError{ColumnID: columnID, Reason: reason})
}

// ColumnIDs returns the failing column ids in report order.
func (e *ValidationError) ColumnIDs() []string {
	ids := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		ids[i] = f.ColumnID
	}
	return ids
}

// Err returns e as an error, or nil when nothing failed.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	for i, f := range e.Fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.ColumnID)
		b.WriteString(": ")
		b.WriteString(f.Reason)
	}
	return b.String()
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
