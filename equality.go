package cimodel

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Equality decides whether two field values are the same. It drives dirty
// detection in Record.Set and condition matching in Record.MatchesCondition.
type Equality interface {
	Equal(a, b any) bool

	// Exact reports whether Equal(a, b) holds exactly when the canonical
	// encodings of a and b are identical. Collections only use their composite
	// key index for lookups when this is true.
	Exact() bool
}

// StrictEquality compares values of the same kind (nil, bool, number, string).
// Numbers compare by value regardless of their Go type, so int64(7) equals
// float64(7), but the string "7" does not.
type StrictEquality struct{}

func (StrictEquality) Equal(a, b any) bool {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return false
	}
	switch ka {
	case kindNil:
		return true
	case kindBool:
		return a.(bool) == b.(bool)
	case kindNumber:
		return numbersEqual(a, b)
	case kindString:
		return stringOf(a) == stringOf(b)
	default:
		return reflect.DeepEqual(a, b)
	}
}

func (StrictEquality) Exact() bool { return true }

// LooseEquality compares across kinds the way weakly typed SQL drivers hand
// values back: numeric strings equal numbers (0 == "0"), bools compare by
// truthiness, and nil equals the zero value of the other side.
type LooseEquality struct{}

func (LooseEquality) Equal(a, b any) bool {
	ka, kb := kindOf(a), kindOf(b)

	if ka == kindNil && kb == kindNil {
		return true
	}
	if ka == kindBool || kb == kindBool {
		return truthy(a) == truthy(b)
	}
	if ka == kindNil {
		return isZeroValue(b)
	}
	if kb == kindNil {
		return isZeroValue(a)
	}

	switch {
	case ka == kindNumber && kb == kindNumber:
		return numbersEqual(a, b)
	case ka == kindNumber && kb == kindString:
		return numberEqualsString(a, stringOf(b))
	case ka == kindString && kb == kindNumber:
		return numberEqualsString(b, stringOf(a))
	case ka == kindString && kb == kindString:
		sa, sb := stringOf(a), stringOf(b)
		fa, okA := parseNumeric(sa)
		fb, okB := parseNumeric(sb)
		if okA && okB {
			return fa == fb
		}
		return sa == sb
	}
	return reflect.DeepEqual(a, b)
}

func (LooseEquality) Exact() bool { return false }

type valueKind int

const (
	kindNil valueKind = iota
	kindBool
	kindNumber
	kindString
	kindOther
)

func kindOf(v any) valueKind {
	switch v.(type) {
	case nil:
		return kindNil
	case bool:
		return kindBool
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return kindNumber
	case string, []byte:
		return kindString
	default:
		return kindOther
	}
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}

// asInt64 returns v as an int64 when v is an integer that fits.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func numbersEqual(a, b any) bool {
	ia, intA := asInt64(a)
	ib, intB := asInt64(b)
	switch {
	case intA && intB:
		return ia == ib
	case intA:
		return intEqualsFloat(ia, b)
	case intB:
		return intEqualsFloat(ib, a)
	}
	fa, okA := asFloat64(a)
	fb, okB := asFloat64(b)
	return okA && okB && fa == fb
}

// intEqualsFloat compares i with a non-integer number without rounding i, so
// 2^53+1 does not equal 2^53.
func intEqualsFloat(i int64, v any) bool {
	f, ok := asFloat64(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) >= 1<<63 {
		return false
	}
	return int64(f) == i
}

// parseNumeric reports whether s is a plain decimal number ("42", " -1.5", "1e3").
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' && c != 'e' && c != 'E' {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func numberEqualsString(n any, s string) bool {
	if f, ok := parseNumeric(s); ok {
		nf, _ := asFloat64(n)
		return nf == f
	}
	// Non-numeric strings compare against the number's string form.
	nf, _ := asFloat64(n)
	return strconv.FormatFloat(nf, 'f', -1, 64) == s
}

func truthy(v any) bool {
	switch kindOf(v) {
	case kindNil:
		return false
	case kindBool:
		return v.(bool)
	case kindNumber:
		f, _ := asFloat64(v)
		return f != 0
	case kindString:
		s := stringOf(v)
		return s != "" && s != "0"
	}
	return v != nil
}

func isZeroValue(v any) bool {
	switch kindOf(v) {
	case kindNumber:
		f, _ := asFloat64(v)
		return f == 0
	case kindString:
		return stringOf(v) == ""
	case kindNil:
		return true
	}
	return false
}

// canonicalValue normalises v so that values StrictEquality considers equal
// encode to the same JSON.
func canonicalValue(v any) any {
	switch kindOf(v) {
	case kindNumber:
		if i, ok := asInt64(v); ok {
			return i
		}
		f, _ := asFloat64(v)
		if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
			return int64(f)
		}
		return f
	case kindString:
		return stringOf(v)
	}
	return v
}
