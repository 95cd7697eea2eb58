package cimodel

import (
	"sort"
	"strings"
)

// Row is one row of column values as exchanged with a Gateway.
type Row map[string]any

// Condition maps field names to required values. A key may carry a comparison
// operator after a single space, e.g. "status <>". Entries are combined with AND.
type Condition map[string]any

// Operator is a comparison operator embedded in a condition key.
type Operator string

const (
	OpEqual    Operator = "="
	OpNotEqual Operator = "<>"
)

// Term is one parsed condition entry.
type Term struct {
	Field string
	Op    Operator
	Value any
}

// ParseConditionKey splits a condition key into its field name and operator.
// Keys without an operator compare with OpEqual.
func ParseConditionKey(key string) (string, Operator, error) {
	field, op, found := strings.Cut(strings.TrimSpace(key), " ")
	if !found {
		return field, OpEqual, nil
	}
	switch strings.TrimSpace(op) {
	case "", "=":
		return field, OpEqual, nil
	case "<>", "!=":
		return field, OpNotEqual, nil
	}
	return "", "", WithContext(ErrUnsupportedOperator, map[string]interface{}{
		"key":      key,
		"operator": strings.TrimSpace(op),
	})
}

// Terms parses the condition into terms ordered by field name, then operator.
func (c Condition) Terms() ([]Term, error) {
	terms := make([]Term, 0, len(c))
	for key, value := range c {
		field, op, err := ParseConditionKey(key)
		if err != nil {
			return nil, err
		}
		terms = append(terms, Term{Field: field, Op: op, Value: value})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Field != terms[j].Field {
			return terms[i].Field < terms[j].Field
		}
		return terms[i].Op < terms[j].Op
	})
	return terms, nil
}

// Keys returns the raw condition keys in sorted order.
func (c Condition) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Matches evaluates the condition against a row. Absent fields read as nil.
// A condition with an unsupported operator never matches.
func (c Condition) Matches(row Row, eq Equality) bool {
	for key, want := range c {
		field, op, err := ParseConditionKey(key)
		if err != nil {
			return false
		}
		got := row[field]
		switch op {
		case OpNotEqual:
			if eq.Equal(got, want) {
				return false
			}
		default:
			if !eq.Equal(got, want) {
				return false
			}
		}
	}
	return true
}
