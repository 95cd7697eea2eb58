package pgstore

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/adrianmcphee/cimodel"
	"github.com/jackc/pgx/v5"
)

var ErrInvalidIdentifier = errors.New("pgstore: invalid identifier")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ident validates and quotes a table or column name
func ident(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

// args accumulates positional parameters
type args []any

// add appends v and returns its placeholder. Numbers and booleans carry an
// explicit cast since the simple protocol sends every argument as text.
func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a)) + castFor(v)
}

func castFor(v any) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return "::bigint"
	case float32, float64:
		return "::double precision"
	case bool:
		return "::boolean"
	}
	return ""
}

// buildWhere renders cond as a WHERE clause. Nil values compare with IS NULL.
func buildWhere(cond cimodel.Condition, a *args) (string, error) {
	if len(cond) == 0 {
		return "", nil
	}
	terms, err := cond.Terms()
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		col, err := ident(t.Field)
		if err != nil {
			return "", err
		}
		switch {
		case t.Value == nil && t.Op == cimodel.OpNotEqual:
			parts = append(parts, col+" IS NOT NULL")
		case t.Value == nil:
			parts = append(parts, col+" IS NULL")
		case t.Op == cimodel.OpNotEqual:
			parts = append(parts, col+" <> "+a.add(t.Value))
		default:
			parts = append(parts, col+" = "+a.add(t.Value))
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func buildSelect(q *cimodel.Query) (string, args, error) {
	table, err := ident(q.Table())
	if err != nil {
		return "", nil, err
	}

	cols := "*"
	if fields := q.Fields(); len(fields) > 0 {
		quoted := make([]string, len(fields))
		for i, f := range fields {
			if quoted[i], err = ident(f); err != nil {
				return "", nil, err
			}
		}
		cols = strings.Join(quoted, ", ")
	}

	var a args
	where, err := buildWhere(q.Condition(), &a)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", cols, table, where)
	limit, offset := q.Page()
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String(), a, nil
}

// buildInsert drops a nil id so the store can assign one
func buildInsert(table, idField string, fields cimodel.Row) (string, args, error) {
	t, err := ident(table)
	if err != nil {
		return "", nil, err
	}
	id, err := ident(idField)
	if err != nil {
		return "", nil, err
	}

	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if k == idField && v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", t, id), nil, nil
	}

	var a args
	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	for i, k := range keys {
		if cols[i], err = ident(k); err != nil {
			return "", nil, err
		}
		placeholders[i] = a.add(fields[k])
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		t, strings.Join(cols, ", "), strings.Join(placeholders, ", "), id)
	return sql, a, nil
}

func buildUpdate(table string, fields cimodel.Row, cond cimodel.Condition) (string, args, error) {
	t, err := ident(table)
	if err != nil {
		return "", nil, err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var a args
	sets := make([]string, len(keys))
	for i, k := range keys {
		col, err := ident(k)
		if err != nil {
			return "", nil, err
		}
		sets[i] = col + " = " + a.add(fields[k])
	}

	where, err := buildWhere(cond, &a)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("UPDATE %s SET %s%s", t, strings.Join(sets, ", "), where), a, nil
}

func buildDelete(table string, cond cimodel.Condition) (string, args, error) {
	t, err := ident(table)
	if err != nil {
		return "", nil, err
	}
	var a args
	where, err := buildWhere(cond, &a)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + t + where, a, nil
}

func buildCount(table string, cond cimodel.Condition) (string, args, error) {
	t, err := ident(table)
	if err != nil {
		return "", nil, err
	}
	var a args
	where, err := buildWhere(cond, &a)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + t + where, a, nil
}
