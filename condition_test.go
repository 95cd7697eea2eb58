package cimodel

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseConditionKey(t *testing.T) {
	tests := []struct {
		key     string
		field   string
		op      Operator
		wantErr bool
	}{
		{"status", "status", OpEqual, false},
		{"status =", "status", OpEqual, false},
		{"status <>", "status", OpNotEqual, false},
		{"status !=", "status", OpNotEqual, false},
		{" status  <> ", "status", OpNotEqual, false},
		{"age >", "", "", true},
		{"name LIKE", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			field, op, err := ParseConditionKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedOperator) {
					t.Fatalf("expected ErrUnsupportedOperator, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if field != tt.field || op != tt.op {
				t.Errorf("ParseConditionKey(%q) = %q, %q; want %q, %q", tt.key, field, op, tt.field, tt.op)
			}
		})
	}
}

func TestConditionTerms(t *testing.T) {
	cond := Condition{"b <>": 2, "a": 1, "b": 3}
	terms, err := cond.Terms()
	if err != nil {
		t.Fatal(err)
	}
	want := []Term{
		{Field: "a", Op: OpEqual, Value: 1},
		{Field: "b", Op: OpNotEqual, Value: 2},
		{Field: "b", Op: OpEqual, Value: 3},
	}
	if !reflect.DeepEqual(terms, want) {
		t.Errorf("Terms() = %v, want %v", terms, want)
	}

	if _, err := (Condition{"a >=": 1}).Terms(); !errors.Is(err, ErrUnsupportedOperator) {
		t.Errorf("expected ErrUnsupportedOperator, got %v", err)
	}
}

func TestConditionKeys(t *testing.T) {
	keys := Condition{"userId": 1, "tenantId": 2}.Keys()
	if want := []string{"tenantId", "userId"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}
}

func TestConditionMatches(t *testing.T) {
	row := Row{"status": "active", "count": 0, "deleted_at": nil}

	tests := []struct {
		name string
		cond Condition
		eq   Equality
		want bool
	}{
		{"nil condition", nil, StrictEquality{}, true},
		{"equality", Condition{"status": "active"}, StrictEquality{}, true},
		{"inequality", Condition{"status <>": "archived"}, StrictEquality{}, true},
		{"inequality fails", Condition{"status <>": "active"}, StrictEquality{}, false},
		{"strict numeric string", Condition{"count": "0"}, StrictEquality{}, false},
		{"loose numeric string", Condition{"count": "0"}, LooseEquality{}, true},
		{"nil field", Condition{"deleted_at": nil}, StrictEquality{}, true},
		{"unknown operator", Condition{"count >": -1}, LooseEquality{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Matches(row, tt.eq); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryBuilder(t *testing.T) {
	cond := Condition{"id": 1}
	q := Select("id", "name").From("user_account").Where(cond).Limit(10, 20)

	if !reflect.DeepEqual(q.Fields(), []string{"id", "name"}) || q.Table() != "user_account" {
		t.Errorf("unexpected query %+v", q)
	}
	if !reflect.DeepEqual(q.Condition(), cond) {
		t.Error("condition not kept")
	}
	if limit, offset := q.Page(); limit != 10 || offset != 20 {
		t.Errorf("Page() = %d, %d", limit, offset)
	}
}

func TestNewRowsDerivesColumns(t *testing.T) {
	rs := NewRows(nil, []Row{{"b": 1}, {"a": 2, "b": 3}})
	if want := []string{"a", "b"}; !reflect.DeepEqual(rs.Columns(), want) {
		t.Errorf("Columns() = %v, want %v", rs.Columns(), want)
	}
	if rs.RowCount() != 2 || rs.FirstRow()["b"] != 1 || len(rs.AllRows()) != 2 {
		t.Error("unexpected rows")
	}
	if NewRows([]string{"x"}, nil).FirstRow() != nil {
		t.Error("empty result should have no first row")
	}
}
