package executor

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/adrianmcphee/cimodel/internal/storage"
	"github.com/xwb1989/sqlparser"
)

// valueKind is the storage kind a declared SQL type maps to
type valueKind int

const (
	kindText valueKind = iota
	kindInt
	kindFloat
	kindBool
)

// kindOf maps a declared column or cast type to the kind its values are
// stored as. Anything unrecognised is text.
func kindOf(declared string) valueKind {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(declared)), "(")
	switch strings.Join(strings.Fields(base), " ") {
	case "int", "integer", "bigint", "smallint", "tinyint", "mediumint", "int2", "int4", "int8":
		return kindInt
	case "double", "double precision", "real", "float", "float4", "float8", "decimal", "numeric":
		return kindFloat
	case "bool", "boolean":
		return kindBool
	}
	return kindText
}

func (k valueKind) String() string {
	switch k {
	case kindInt:
		return "bigint"
	case kindFloat:
		return "double precision"
	case kindBool:
		return "boolean"
	}
	return "text"
}

// parseBool accepts the PostgreSQL boolean input forms
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "y", "yes", "on", "1":
		return true, true
	case "f", "false", "n", "no", "off", "0":
		return false, true
	}
	return false, false
}

// parseAs converts the text form of a value to kind
func parseAs(s string, kind valueKind) (any, bool) {
	s = strings.TrimSpace(s)
	switch kind {
	case kindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	case kindFloat:
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case kindBool:
		return parseBool(s)
	}
	return s, true
}

// coerce converts v for storage in a column of the given kind, the way
// PostgreSQL applies an assignment cast
func coerce(v any, kind valueKind) (any, error) {
	if v == nil || kind == kindText {
		return v, nil
	}
	switch x := v.(type) {
	case string:
		if out, ok := parseAs(x, kind); ok {
			return out, nil
		}
		return nil, sqlError(CodeInvalidTextRepresentation, "invalid input syntax for type %s: %q", kind, x)
	case int64:
		switch kind {
		case kindInt:
			return x, nil
		case kindFloat:
			return float64(x), nil
		}
	case float64:
		switch kind {
		case kindFloat:
			return x, nil
		case kindInt:
			r := math.Round(x)
			if r < math.MinInt64 || r >= math.MaxInt64 {
				return nil, sqlError(CodeNumericOutOfRange, "bigint out of range")
			}
			return int64(r), nil
		}
	case bool:
		if kind == kindBool {
			return x, nil
		}
	default:
		return v, nil
	}
	return nil, sqlError(CodeDatatypeMismatch, "column is of type %s but expression is %v", kind, v)
}

// coerceRow applies the catalog column types of table to row in place.
// Tables without a catalog entry keep their values as given.
func (s *Session) coerceRow(table string, row storage.Row) error {
	t, err := s.exec.store.Schema.GetTable(table)
	if err != nil {
		return nil
	}
	for _, col := range t.Columns {
		v, ok := row[col.Name]
		if !ok {
			continue
		}
		if row[col.Name], err = coerce(v, kindOf(col.Type)); err != nil {
			return err
		}
	}
	return nil
}

// adaptLiteral converts a string literal compared against a stored value to
// the stored value's kind, so '41' matches 41. A literal that does not parse
// is returned unchanged and compares unequal.
func adaptLiteral(stored any, lit string) any {
	var kind valueKind
	switch stored.(type) {
	case int64, int:
		if n, ok := parseAs(lit, kindInt); ok {
			return n
		}
		kind = kindFloat
	case float64:
		kind = kindFloat
	case bool:
		kind = kindBool
	default:
		return lit
	}
	if v, ok := parseAs(lit, kind); ok {
		return v
	}
	return lit
}

func isStringLiteral(expr sqlparser.Expr) bool {
	v, ok := expr.(*sqlparser.SQLVal)
	return ok && v.Type == sqlparser.StrVal
}

// alignLiterals adapts whichever side of a comparison is a string literal to
// the kind of the other side
func alignLiterals(leftExpr, rightExpr sqlparser.Expr, left, right any) (any, any) {
	switch {
	case isStringLiteral(rightExpr) && !isStringLiteral(leftExpr):
		if s, ok := right.(string); ok {
			right = adaptLiteral(left, s)
		}
	case isStringLiteral(leftExpr) && !isStringLiteral(rightExpr):
		if s, ok := left.(string); ok {
			left = adaptLiteral(right, s)
		}
	}
	return left, right
}

var castPattern = regexp.MustCompile(`(?i)^\s*::\s*(double\s+precision|character\s+varying|[a-z_][a-z0-9_]*)`)

// rewriteCasts turns 'literal'::type into a typed literal the parser accepts:
// '41'::bigint becomes 41 and 't'::boolean becomes TRUE. Casts to text types
// are dropped and the literal kept.
func rewriteCasts(sql string) (string, error) {
	if !strings.Contains(sql, "::") {
		return sql, nil
	}

	var b strings.Builder
	b.Grow(len(sql))
	inDouble := false

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case inDouble:
			if ch == '"' {
				inDouble = false
			}
			b.WriteByte(ch)
			continue
		case ch == '"':
			inDouble = true
			b.WriteByte(ch)
			continue
		case ch != '\'':
			b.WriteByte(ch)
			continue
		}

		end := literalEnd(sql, i)
		raw := sql[i:end]
		m := castPattern.FindStringSubmatchIndex(sql[end:])
		if m == nil {
			b.WriteString(raw)
			i = end - 1
			continue
		}

		kind := kindOf(sql[end+m[2] : end+m[3]])
		text := strings.ReplaceAll(raw[1:len(raw)-1], "''", "'")
		switch kind {
		case kindText:
			b.WriteString(raw)
		default:
			v, ok := parseAs(text, kind)
			if !ok {
				return "", sqlError(CodeInvalidTextRepresentation, "invalid input syntax for type %s: %q", kind, text)
			}
			b.WriteString(literalSQL(v))
		}
		i = end + m[1] - 1
	}
	return b.String(), nil
}

// literalEnd returns the index just past the string literal starting at i
func literalEnd(sql string, i int) int {
	for j := i + 1; j < len(sql); j++ {
		if sql[j] != '\'' {
			continue
		}
		if j+1 < len(sql) && sql[j+1] == '\'' {
			j++
			continue
		}
		return j + 1
	}
	return len(sql)
}

func literalSQL(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	}
	return "NULL"
}

var pgColumnTypePattern = regexp.MustCompile("(?i)(\\w+|`[^`]*`)\\s+(boolean|bool|double\\s+precision|timestamptz|jsonb|uuid)\\b")

var parserTypes = map[string]string{
	"BOOLEAN":          "tinyint",
	"BOOL":             "tinyint",
	"DOUBLE PRECISION": "double",
	"TIMESTAMPTZ":      "timestamp",
	"JSONB":            "json",
	"UUID":             "varchar(36)",
}

// declaredTypes replaces PostgreSQL column types the parser lacks with close
// equivalents inside a CREATE TABLE column list. It returns the rewritten
// statement and the declared type of every replaced column.
func declaredTypes(sql string) (string, map[string]string) {
	open := strings.IndexByte(sql, '(')
	if open < 0 {
		return sql, nil
	}
	declared := map[string]string{}
	body := pgColumnTypePattern.ReplaceAllStringFunc(sql[open:], func(m string) string {
		parts := pgColumnTypePattern.FindStringSubmatch(m)
		typ := strings.ToUpper(strings.Join(strings.Fields(parts[2]), " "))
		declared[strings.Trim(parts[1], "`")] = typ
		return parts[1] + " " + parserTypes[typ]
	})
	return sql[:open] + body, declared
}
