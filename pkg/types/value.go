package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for stored timestamps, so
// that lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in TimeLayout after converting it to UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp. Any RFC 3339 form is accepted.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ValueKind tags the variant held by a Value.
type ValueKind uint8

// Value kinds. KindNull is the explicit "no value" written for empty
// number and date inputs; it is distinct from a missing key.
const (
	KindNull ValueKind = iota
	KindText
	KindNumber
	KindDate
	KindCheckbox
)

var kindNames = [...]string{
	KindNull:     "null",
	KindText:     "text",
	KindNumber:   "number",
	KindDate:     "date",
	KindCheckbox: "checkbox",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseValueKind maps a stored type tag back to its ValueKind.
func ParseValueKind(s string) (ValueKind, error) {
	for k, name := range kindNames {
		if name == s {
			return ValueKind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown value type %q", ErrInvalidData, s)
}

// Value is one typed cell of entry data.
type Value struct {
	kind    ValueKind
	text    string
	number  float64
	date    time.Time
	checked bool
}

// Null returns the explicit empty value.
func Null() Value { return Value{kind: KindNull} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, number: f} }

// Date returns a date value normalized to UTC.
func Date(t time.Time) Value { return Value{kind: KindDate, date: t.Round(0).UTC()} }

// Checkbox returns a checkbox value.
func Checkbox(b bool) Value { return Value{kind: KindCheckbox, checked: b} }

// Kind reports which variant v holds.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is the explicit empty value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsText returns the text held by v.
func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.number, v.kind == KindNumber }

// AsDate returns the time held by v.
func (v Value) AsDate() (time.Time, bool) { return v.date, v.kind == KindDate }

// AsCheckbox returns the checkbox state held by v.
func (v Value) AsCheckbox() (bool, bool) { return v.checked, v.kind == KindCheckbox }

// Equal reports whether v and o hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindNumber:
		return v.number == o.number || (math.IsNaN(v.number) && math.IsNaN(o.number))
	case KindDate:
		return v.date.Equal(o.date)
	case KindCheckbox:
		return v.checked == o.checked
	default:
		return true
	}
}

// String renders v for diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return strconv.Quote(v.text)
	case KindNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case KindDate:
		return FormatTime(v.date)
	case KindCheckbox:
		return strconv.FormatBool(v.checked)
	default:
		return "null"
	}
}

// scalar returns the plain Go value used in JSON and CBOR encodings.
func (v Value) scalar() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.number
	case KindDate:
		return FormatTime(v.date)
	case KindCheckbox:
		return v.checked
	default:
		return nil
	}
}

// MarshalJSON encodes v as a plain JSON scalar: null, string, number,
// bool, or an RFC 3339 string for dates.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.scalar())
}

// UnmarshalJSON decodes a plain JSON scalar. Strings decode as text since
// the wire shape does not distinguish dates; use TypedValue to round-trip
// dates.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Null()
	case string:
		*v = Text(x)
	case float64:
		*v = Number(x)
	case bool:
		*v = Checkbox(x)
	default:
		return fmt.Errorf("%w: unsupported JSON value %T", ErrInvalidData, raw)
	}
	return nil
}

// TypedValue is the storage encoding of a Value: the kind tag next to the
// scalar payload, so hydration never depends on the current schema.
type TypedValue struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Typed returns the storage encoding of v.
func (v Value) Typed() TypedValue {
	return TypedValue{Type: v.kind.String(), Value: v.scalar()}
}

// Decode converts a stored TypedValue back into a Value.
// Returns ErrInvalidData if the tag is unknown or the payload does not
// match it.
func (tv TypedValue) Decode() (Value, error) {
	kind, err := ParseValueKind(tv.Type)
	if err != nil {
		return Value{}, err
	}
	mismatch := func() (Value, error) {
		return Value{}, fmt.Errorf("%w: %s payload %T", ErrInvalidData, tv.Type, tv.Value)
	}
	switch kind {
	case KindNull:
		return Null(), nil
	case KindText:
		s, ok := tv.Value.(string)
		if !ok {
			return mismatch()
		}
		return Text(s), nil
	case KindNumber:
		switch n := tv.Value.(type) {
		case float64:
			return Number(n), nil
		case float32:
			return Number(float64(n)), nil
		case int64:
			return Number(float64(n)), nil
		case uint64:
			return Number(float64(n)), nil
		case int:
			return Number(float64(n)), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return mismatch()
			}
			return Number(f), nil
		}
		return mismatch()
	case KindDate:
		s, ok := tv.Value.(string)
		if !ok {
			return mismatch()
		}
		t, err := ParseTime(s)
		if err != nil {
			return Value{}, fmt.Errorf("%w: date payload: %v", ErrInvalidData, err)
		}
		return Date(t), nil
	case KindCheckbox:
		b, ok := tv.Value.(bool)
		if !ok {
			return mismatch()
		}
		return Checkbox(b), nil
	}
	return mismatch()
}
