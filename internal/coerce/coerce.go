// Package coerce converts untyped entry input into typed values dictated
// by a category schema.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mesh-intelligence/logbook/pkg/types"
)

// dateLayouts are tried in order for date input. They cover RFC 3339, the
// HTML datetime-local and date inputs, and a space-separated timestamp.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// falseMarkers are the checkbox submissions read as unchecked. Any other
// non-empty submission is checked.
var falseMarkers = map[string]bool{
	"":      true,
	"0":     true,
	"false": true,
	"off":   true,
	"no":    true,
	"n":     true,
}

// Coerce builds a typed record from raw against schema. Columns are
// visited in schema order; raw keys that name no column are ignored.
// Coercion failures are collected per column and returned as a
// *types.ValidationError alongside the partial record, so the caller
// decides whether to reject or keep it.
func Coerce(raw map[string]any, schema types.Schema) (map[string]types.Value, error) {
	record := make(map[string]types.Value, len(schema))
	var verr types.ValidationError
	for _, col := range schema {
		in, present := raw[col.ID]
		v, keep, reason := Column(col, in, present)
		if reason != "" {
			verr.Add(col.ID, reason)
			continue
		}
		if keep {
			record[col.ID] = v
		}
	}
	return record, verr.Err()
}

// Column coerces one input for col. keep is false when nothing should be
// stored (absent text). A non-empty reason reports a coercion failure.
func Column(col types.ColumnSpec, in any, present bool) (v types.Value, keep bool, reason string) {
	switch col.Type {
	case types.ColumnText:
		if !present || in == nil {
			return types.Value{}, false, ""
		}
		return types.Text(textOf(in)), true, ""
	case types.ColumnNumber:
		if blank(in, present) {
			return types.Null(), true, ""
		}
		f, err := numberOf(in)
		if err != nil {
			return types.Value{}, false, err.Error()
		}
		return types.Number(f), true, ""
	case types.ColumnDate:
		if blank(in, present) {
			return types.Null(), true, ""
		}
		t, err := dateOf(in)
		if err != nil {
			return types.Value{}, false, err.Error()
		}
		return types.Date(t), true, ""
	case types.ColumnCheckbox:
		return types.Checkbox(present && checked(in)), true, ""
	default:
		return types.Value{}, false, fmt.Sprintf("unknown column type %q", col.Type)
	}
}

// blank reports whether input counts as "no value" for number and date
// columns.
func blank(in any, present bool) bool {
	if !present || in == nil {
		return true
	}
	if s, ok := in.(string); ok && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}

func textOf(in any) string {
	switch x := in.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func numberOf(in any) (float64, error) {
	var f float64
	switch x := in.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", x.String())
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", x)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("cannot use %T as a number", in)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

func dateOf(in any) (time.Time, error) {
	switch x := in.(type) {
	case time.Time:
		return x, nil
	case string:
		return ParseDate(x)
	default:
		return time.Time{}, fmt.Errorf("cannot use %T as a date", in)
	}
}

// ParseDate reads s in any of the accepted date layouts. Layouts without
// a zone are read as UTC.
func ParseDate(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date", s)
}

func checked(in any) bool {
	switch x := in.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return !falseMarkers[strings.ToLower(strings.TrimSpace(x))]
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}
