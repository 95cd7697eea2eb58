package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/adrianmcphee/cimodel/internal/storage"
	"github.com/xwb1989/sqlparser"
)

type selectItem struct {
	column string // source column, "" for count(*) or a constant
	name   string // output name
	count  bool
	expr   sqlparser.Expr
}

func selectItems(exprs sqlparser.SelectExprs) (items []selectItem, star bool, err error) {
	for _, expr := range exprs {
		switch e := expr.(type) {
		case *sqlparser.StarExpr:
			star = true
		case *sqlparser.AliasedExpr:
			item := selectItem{expr: e.Expr}
			switch inner := e.Expr.(type) {
			case *sqlparser.ColName:
				item.column = inner.Name.String()
				item.name = item.column
			case *sqlparser.FuncExpr:
				if !strings.EqualFold(inner.Name.String(), "count") {
					return nil, false, fmt.Errorf("%w: function %s", ErrUnsupported, inner.Name.String())
				}
				item.count = true
				item.name = "count"
			default:
				item.name = "?column?"
			}
			if !e.As.IsEmpty() {
				item.name = e.As.String()
			}
			items = append(items, item)
		default:
			return nil, false, fmt.Errorf("%w: select expression %s", ErrUnsupported, sqlparser.String(expr))
		}
	}
	return items, star, nil
}

// executeSelect handles single-table SELECT with WHERE, ORDER BY and LIMIT
func (s *Session) executeSelect(ctx context.Context, stmt *sqlparser.Select) (*Result, error) {
	if len(stmt.From) != 1 {
		return nil, fmt.Errorf("%w: only single table SELECT supported", ErrUnsupported)
	}
	if len(stmt.GroupBy) > 0 || stmt.Having != nil || stmt.Distinct != "" {
		return nil, fmt.Errorf("%w: GROUP BY, HAVING and DISTINCT", ErrUnsupported)
	}

	tableName, err := getTableName(stmt.From[0])
	if err != nil {
		return nil, err
	}

	items, star, err := selectItems(stmt.SelectExprs)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(tableName, "dual") {
		return selectConstants(items)
	}

	rows, err := s.exec.store.Scan(ctx, tableName)
	if err != nil {
		return nil, err
	}

	if stmt.Where != nil {
		filtered := rows[:0]
		for _, row := range rows {
			ok, err := matchesWhere(row, stmt.Where.Expr)
			if err != nil {
				return nil, err
			}
			if ok {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	for _, item := range items {
		if item.count {
			if len(items) != 1 {
				return nil, fmt.Errorf("%w: count(*) mixed with columns", ErrUnsupported)
			}
			return newRowsResult([]string{item.name}, [][]any{{int64(len(rows))}}, "SELECT 1"), nil
		}
	}

	if err := orderRows(rows, stmt.OrderBy); err != nil {
		return nil, err
	}

	if stmt.Limit != nil {
		offset, err := evalInt(stmt.Limit.Offset)
		if err != nil {
			return nil, err
		}
		if offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[offset:]
		}
		if stmt.Limit.Rowcount != nil {
			limit, err := evalInt(stmt.Limit.Rowcount)
			if err != nil {
				return nil, err
			}
			if limit < len(rows) {
				rows = rows[:limit]
			}
		}
	}

	var names, source []string
	if star {
		names = s.columns(tableName, rows)
		source = names
	}
	for _, item := range items {
		if item.column == "" {
			return nil, fmt.Errorf("%w: expression %s", ErrUnsupported, sqlparser.String(item.expr))
		}
		names = append(names, item.name)
		source = append(source, item.column)
	}

	out := make([][]any, len(rows))
	for i, row := range rows {
		values := make([]any, len(source))
		for j, col := range source {
			values[j] = row[col]
		}
		out[i] = values
	}
	return newRowsResult(names, out, fmt.Sprintf("SELECT %d", len(out))), nil
}

// selectConstants answers SELECT without a table, e.g. SELECT 1
func selectConstants(items []selectItem) (*Result, error) {
	names := make([]string, len(items))
	values := make([]any, len(items))
	for i, item := range items {
		if item.count || item.column != "" {
			return nil, fmt.Errorf("%w: column reference without FROM", ErrUnsupported)
		}
		v, err := evalExpr(nil, item.expr)
		if err != nil {
			return nil, err
		}
		names[i] = item.name
		values[i] = v
	}
	return newRowsResult(names, [][]any{values}, "SELECT 1"), nil
}

// columns uses the catalog order when the table has an entry, otherwise the
// sorted union of the row keys
func (s *Session) columns(table string, rows []storage.Row) []string {
	if t, err := s.exec.store.Schema.GetTable(table); err == nil {
		return t.ColumnNames()
	}
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// orderRows sorts by plain column references; NULLs sort last
func orderRows(rows []storage.Row, orderBy sqlparser.OrderBy) error {
	if len(orderBy) == 0 {
		return nil
	}
	cols := make([]string, len(orderBy))
	for i, o := range orderBy {
		col, ok := o.Expr.(*sqlparser.ColName)
		if !ok {
			return fmt.Errorf("%w: ORDER BY %s", ErrUnsupported, sqlparser.String(o.Expr))
		}
		cols[i] = col.Name.String()
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k, o := range orderBy {
			a, b := rows[i][cols[k]], rows[j][cols[k]]
			if a == nil || b == nil {
				if (a == nil) == (b == nil) {
					continue
				}
				return b == nil
			}
			c, ok := compareValues(a, b)
			if !ok || c == 0 {
				continue
			}
			if o.Direction == sqlparser.DescScr {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

// executeInsert handles INSERT ... VALUES with an optional RETURNING list
func (s *Session) executeInsert(ctx context.Context, stmt *sqlparser.Insert, returning []string) (*Result, error) {
	tableName := stmt.Table.Name.String()

	columns := make([]string, 0, len(stmt.Columns))
	for _, col := range stmt.Columns {
		columns = append(columns, col.String())
	}
	if len(columns) == 0 {
		t, err := s.exec.store.Schema.GetTable(tableName)
		if err != nil {
			return nil, fmt.Errorf("%w: INSERT without a column list needs a cataloged table", ErrUnsupported)
		}
		columns = t.ColumnNames()
	}

	values, ok := stmt.Rows.(sqlparser.Values)
	if !ok {
		return nil, fmt.Errorf("%w: only VALUES clause supported for INSERT", ErrUnsupported)
	}

	idField := s.primaryKey(tableName)
	if idField == "" {
		idField = "id"
		if len(returning) == 1 && returning[0] != "*" {
			idField = returning[0]
		}
	}

	var inserted []storage.Row
	for _, tuple := range values {
		if len(tuple) != len(columns) {
			return nil, sqlError(CodeSyntaxError, "INSERT has %d columns but %d values", len(columns), len(tuple))
		}
		row := make(storage.Row, len(columns))
		for i, val := range tuple {
			v, err := evalExpr(nil, val)
			if err != nil {
				return nil, err
			}
			row[columns[i]] = v
		}
		if err := s.coerceRow(tableName, row); err != nil {
			return nil, err
		}

		id, err := s.exec.store.Insert(ctx, tableName, idField, row)
		if err != nil {
			return nil, err
		}
		row[idField] = id
		inserted = append(inserted, row)
	}

	tag := fmt.Sprintf("INSERT 0 %d", len(inserted))
	if returning == nil {
		return &Result{RowsAffected: int64(len(inserted)), Tag: tag}, nil
	}

	names := returning
	if len(returning) == 1 && returning[0] == "*" {
		names = s.columns(tableName, inserted)
	}
	out := make([][]any, len(inserted))
	for i, row := range inserted {
		vals := make([]any, len(names))
		for j, name := range names {
			vals[j] = row[name]
		}
		out[i] = vals
	}
	res := newRowsResult(names, out, tag)
	return res, nil
}

// wherePredicate adapts a WHERE clause to a storage predicate. The first
// evaluation error is kept in errp and stops further matches.
func wherePredicate(where *sqlparser.Where, errp *error) storage.Predicate {
	if where == nil {
		return nil
	}
	return func(row storage.Row) bool {
		if *errp != nil {
			return false
		}
		ok, err := matchesWhere(row, where.Expr)
		if err != nil {
			*errp = err
			return false
		}
		return ok
	}
}

func (s *Session) executeUpdate(ctx context.Context, stmt *sqlparser.Update) (*Result, error) {
	if len(stmt.TableExprs) != 1 {
		return nil, fmt.Errorf("%w: only single table UPDATE supported", ErrUnsupported)
	}
	tableName, err := getTableName(stmt.TableExprs[0])
	if err != nil {
		return nil, err
	}

	set := make(storage.Row, len(stmt.Exprs))
	for _, expr := range stmt.Exprs {
		v, err := evalExpr(nil, expr.Expr)
		if err != nil {
			return nil, err
		}
		set[expr.Name.Name.String()] = v
	}
	if err := s.coerceRow(tableName, set); err != nil {
		return nil, err
	}

	var whereErr error
	n, err := s.exec.store.Update(ctx, tableName, wherePredicate(stmt.Where, &whereErr), set)
	if whereErr != nil {
		return nil, whereErr
	}
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: n, Tag: fmt.Sprintf("UPDATE %d", n)}, nil
}

func (s *Session) executeDelete(ctx context.Context, stmt *sqlparser.Delete) (*Result, error) {
	if len(stmt.TableExprs) != 1 {
		return nil, fmt.Errorf("%w: only single table DELETE supported", ErrUnsupported)
	}
	tableName, err := getTableName(stmt.TableExprs[0])
	if err != nil {
		return nil, err
	}

	var whereErr error
	n, err := s.exec.store.Delete(ctx, tableName, wherePredicate(stmt.Where, &whereErr))
	if whereErr != nil {
		return nil, whereErr
	}
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: n, Tag: fmt.Sprintf("DELETE %d", n)}, nil
}
