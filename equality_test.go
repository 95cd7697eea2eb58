package cimodel

import (
	"encoding/json"
	"math"
	"testing"
)

func TestStrictEquality(t *testing.T) {
	eq := StrictEquality{}
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"nil", nil, nil, true},
		{"nil vs zero", nil, 0, false},
		{"ints", 7, 7, true},
		{"int vs int64", 7, int64(7), true},
		{"int vs float", 7, 7.0, true},
		{"int vs fractional float", 7, 7.5, false},
		{"json number", json.Number("12"), 12, true},
		{"uint vs int", uint64(3), 3, true},
		{"numeric string", 0, "0", false},
		{"strings", "a", "a", true},
		{"bytes vs string", []byte("a"), "a", true},
		{"bool", true, true, true},
		{"bool vs int", true, 1, false},
		{"different strings", "a", "b", false},
		{"slices", []int{1}, []int{1}, true},
		{"large int vs nearest float", int64(1<<53 + 1), float64(1 << 53), false},
		{"large int vs exact float", int64(1 << 53), float64(1 << 53), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eq.Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%#v, %#v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := eq.Equal(tt.b, tt.a); got != tt.want {
				t.Errorf("Equal is not symmetric for %#v, %#v", tt.a, tt.b)
			}
		})
	}
	if !eq.Exact() {
		t.Error("StrictEquality should be exact")
	}
}

func TestLooseEquality(t *testing.T) {
	eq := LooseEquality{}
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"zero vs zero string", 0, "0", true},
		{"number vs numeric string", 42, "42.0", true},
		{"numeric strings", "1e2", "100", true},
		{"non-numeric strings", "abc", "abd", false},
		{"number vs word", 0, "abc", false},
		{"nil vs zero", nil, 0, true},
		{"nil vs empty string", nil, "", true},
		{"nil vs value", nil, "x", false},
		{"true vs one", true, 1, true},
		{"false vs empty", false, "", true},
		{"false vs zero string", false, "0", true},
		{"true vs zero", true, 0, false},
		{"ints", int32(5), int64(5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eq.Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%#v, %#v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
	if eq.Exact() {
		t.Error("LooseEquality should not be exact")
	}
}

func TestCanonicalValue(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{3, int64(3)},
		{uint16(3), int64(3)},
		{3.0, int64(3)},
		{3.5, 3.5},
		{[]byte("x"), "x"},
		{"x", "x"},
		{nil, nil},
		{true, true},
	}
	for _, tt := range tests {
		if got := canonicalValue(tt.in); got != tt.want {
			t.Errorf("canonicalValue(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalValueAgreesWithStrictEquality(t *testing.T) {
	eq := StrictEquality{}
	values := []any{
		int64(1<<53 + 1),
		int64(1 << 53),
		float64(1 << 53),
		uint64(1<<63 + 1),
		float64(1 << 63),
		int64(math.MinInt64),
		float64(math.MinInt64),
		7, 7.0, json.Number("7"), 7.5,
	}
	for _, a := range values {
		for _, b := range values {
			sameKey := compositeKey(Row{"n": a}) == compositeKey(Row{"n": b})
			if equal := eq.Equal(a, b); sameKey != equal {
				t.Errorf("%#v vs %#v: Equal = %v, same key = %v", a, b, equal, sameKey)
			}
		}
	}
}
