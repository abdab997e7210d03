package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTypedValueRoundTrip(t *testing.T) {
	when := time.Date(2025, 3, 14, 9, 26, 53, 0, time.FixedZone("X", 3600))
	values := []Value{
		Null(),
		Text(""),
		Text("slept badly"),
		Number(72.5),
		Number(0),
		Date(when),
		Checkbox(true),
		Checkbox(false),
	}
	for _, v := range values {
		t.Run(v.Kind().String()+"/"+v.String(), func(t *testing.T) {
			data, err := json.Marshal(v.Typed())
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var tv TypedValue
			if err := json.Unmarshal(data, &tv); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got, err := tv.Decode()
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !got.Equal(v) {
				t.Errorf("round trip = %v, want %v", got, v)
			}
		})
	}
}

func TestTypedValueDecodeMismatch(t *testing.T) {
	tests := []TypedValue{
		{Type: "number", Value: "72.5"},
		{Type: "checkbox", Value: "on"},
		{Type: "date", Value: "yesterday"},
		{Type: "money", Value: 1.0},
	}
	for _, tv := range tests {
		if _, err := tv.Decode(); !errors.Is(err, ErrInvalidData) {
			t.Errorf("Decode(%+v) error = %v, want %v", tv, err, ErrInvalidData)
		}
	}
}

func TestValueMarshalJSON(t *testing.T) {
	when := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), `null`},
		{Text("a"), `"a"`},
		{Number(72.5), `72.5`},
		{Checkbox(false), `false`},
		{Date(when), `"2025-03-14T00:00:00.000000000Z"`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.v)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.v, err)
		}
		if string(got) != tt.want {
			t.Errorf("json.Marshal(%v) = %s, want %s", tt.v, got, tt.want)
		}
	}
}
