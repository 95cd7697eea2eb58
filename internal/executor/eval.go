package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adrianmcphee/cimodel"
	"github.com/adrianmcphee/cimodel/internal/storage"
	"github.com/xwb1989/sqlparser"
)

var equality = cimodel.StrictEquality{}

// evalExpr evaluates a literal, or a column reference when row is non-nil
func evalExpr(row storage.Row, expr sqlparser.Expr) (any, error) {
	switch e := expr.(type) {
	case *sqlparser.SQLVal:
		switch e.Type {
		case sqlparser.StrVal:
			return string(e.Val), nil
		case sqlparser.IntVal:
			n, err := strconv.ParseInt(string(e.Val), 10, 64)
			if err != nil {
				return strconv.ParseFloat(string(e.Val), 64)
			}
			return n, nil
		case sqlparser.FloatVal:
			return strconv.ParseFloat(string(e.Val), 64)
		}
		return nil, fmt.Errorf("%w: literal %s", ErrUnsupported, sqlparser.String(e))
	case sqlparser.BoolVal:
		return bool(e), nil
	case *sqlparser.NullVal:
		return nil, nil
	case *sqlparser.UnaryExpr:
		v, err := evalExpr(row, e.Expr)
		if err != nil {
			return nil, err
		}
		if e.Operator != sqlparser.UMinusStr {
			return v, nil
		}
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, fmt.Errorf("cannot negate %v", v)
	case *sqlparser.ParenExpr:
		return evalExpr(row, e.Expr)
	case *sqlparser.ColName:
		if row == nil {
			return nil, fmt.Errorf("column %s not allowed here", e.Name.String())
		}
		return row[e.Name.String()], nil
	case *sqlparser.FuncExpr:
		switch strings.ToLower(e.Name.String()) {
		case "gen_random_uuid", "gen_random_uuid7", "uuid_generate_v7":
			return storage.NewID(), nil
		}
		return nil, fmt.Errorf("%w: function %s", ErrUnsupported, e.Name.String())
	}
	return nil, fmt.Errorf("%w: expression %s", ErrUnsupported, sqlparser.String(expr))
}

// matchesWhere evaluates a WHERE expression with SQL NULL semantics collapsed
// to false: a comparison involving NULL never matches
func matchesWhere(row storage.Row, expr sqlparser.Expr) (bool, error) {
	switch e := expr.(type) {
	case *sqlparser.AndExpr:
		left, err := matchesWhere(row, e.Left)
		if err != nil || !left {
			return false, err
		}
		return matchesWhere(row, e.Right)
	case *sqlparser.OrExpr:
		left, err := matchesWhere(row, e.Left)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return matchesWhere(row, e.Right)
	case *sqlparser.NotExpr:
		ok, err := matchesWhere(row, e.Expr)
		return !ok, err
	case *sqlparser.ParenExpr:
		return matchesWhere(row, e.Expr)
	case *sqlparser.IsExpr:
		v, err := evalExpr(row, e.Expr)
		if err != nil {
			return false, err
		}
		switch e.Operator {
		case sqlparser.IsNullStr:
			return v == nil, nil
		case sqlparser.IsNotNullStr:
			return v != nil, nil
		case sqlparser.IsTrueStr:
			return v == true, nil
		case sqlparser.IsFalseStr:
			return v == false, nil
		}
		return false, fmt.Errorf("%w: operator %s", ErrUnsupported, e.Operator)
	case *sqlparser.ComparisonExpr:
		return compareExpr(row, e)
	case sqlparser.BoolVal:
		return bool(e), nil
	}
	return false, fmt.Errorf("%w: WHERE %s", ErrUnsupported, sqlparser.String(expr))
}

func compareExpr(row storage.Row, e *sqlparser.ComparisonExpr) (bool, error) {
	left, err := evalExpr(row, e.Left)
	if err != nil {
		return false, err
	}

	if e.Operator == sqlparser.InStr || e.Operator == sqlparser.NotInStr {
		tuple, ok := e.Right.(sqlparser.ValTuple)
		if !ok {
			return false, fmt.Errorf("%w: IN requires a value list", ErrUnsupported)
		}
		if left == nil {
			return false, nil
		}
		found := false
		for _, item := range tuple {
			v, err := evalExpr(row, item)
			if err != nil {
				return false, err
			}
			if l, r := alignLiterals(e.Left, item, left, v); equality.Equal(l, r) {
				found = true
				break
			}
		}
		return found == (e.Operator == sqlparser.InStr), nil
	}

	right, err := evalExpr(row, e.Right)
	if err != nil {
		return false, err
	}
	if left == nil || right == nil {
		return false, nil
	}
	left, right = alignLiterals(e.Left, e.Right, left, right)

	switch e.Operator {
	case sqlparser.EqualStr:
		return equality.Equal(left, right), nil
	case sqlparser.NotEqualStr:
		return !equality.Equal(left, right), nil
	case sqlparser.LessThanStr, sqlparser.LessEqualStr, sqlparser.GreaterThanStr, sqlparser.GreaterEqualStr:
		c, ok := compareValues(left, right)
		if !ok {
			return false, nil
		}
		switch e.Operator {
		case sqlparser.LessThanStr:
			return c < 0, nil
		case sqlparser.LessEqualStr:
			return c <= 0, nil
		case sqlparser.GreaterThanStr:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}
	return false, fmt.Errorf("%w: operator %s", ErrUnsupported, e.Operator)
}

// compareValues orders two numbers or two strings; other pairs are unordered
func compareValues(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0, true
			case !ba:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// evalInt evaluates a LIMIT or OFFSET operand
func evalInt(expr sqlparser.Expr) (int, error) {
	if expr == nil {
		return 0, nil
	}
	v, err := evalExpr(nil, expr)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok || n < 0 {
		return 0, fmt.Errorf("expected a non-negative integer, got %v", v)
	}
	return int(n), nil
}
