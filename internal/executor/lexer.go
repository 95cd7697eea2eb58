package executor

import (
	"regexp"
	"strings"
)

// SplitStatements splits a simple-query string on semicolons outside quotes.
// Empty statements are dropped.
func SplitStatements(sql string) []string {
	var stmts []string
	var cur strings.Builder
	inSingle, inDouble := false, false

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case ch == '\'' && !inDouble:
			inSingle = !inSingle
		case ch == '"' && !inSingle:
			inDouble = !inDouble
		case ch == ';' && !inSingle && !inDouble:
			if s := strings.TrimSpace(cur.String()); s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
			continue
		}
		cur.WriteByte(ch)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

// normalize rewrites PostgreSQL lexical forms into ones the parser accepts:
// "ident" becomes `ident`, and backslashes inside string literals are
// doubled because the parser treats them as escapes.
func normalize(sql string) string {
	var b strings.Builder
	b.Grow(len(sql) + 8)
	inSingle, inDouble := false, false

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case inSingle:
			if ch == '\\' {
				b.WriteByte('\\')
			}
			if ch == '\'' {
				inSingle = false
			}
			b.WriteByte(ch)
		case inDouble:
			if ch == '"' {
				if i+1 < len(sql) && sql[i+1] == '"' {
					b.WriteByte('"')
					i++
					continue
				}
				inDouble = false
				b.WriteByte('`')
				continue
			}
			if ch == '`' {
				b.WriteString("``")
				continue
			}
			b.WriteByte(ch)
		case ch == '\'':
			inSingle = true
			b.WriteByte(ch)
		case ch == '"':
			inDouble = true
			b.WriteByte('`')
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

var returningPattern = regexp.MustCompile("(?is)^(.*\\S)\\s+returning\\s+([\\w\\s,*`]+?)\\s*$")

// splitReturning strips a trailing RETURNING clause and returns its columns
func splitReturning(sql string) (string, []string) {
	m := returningPattern.FindStringSubmatch(sql)
	if m == nil {
		return sql, nil
	}
	var cols []string
	for _, c := range strings.Split(m[2], ",") {
		c = strings.Trim(strings.TrimSpace(c), "`")
		if c != "" {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return sql, nil
	}
	return m[1], cols
}

var ifNotExistsPattern = regexp.MustCompile(`(?i)^\s*create\s+table\s+if\s+not\s+exists\s`)

var createTablePattern = regexp.MustCompile(`(?i)^\s*create\s+table\s`)

// stripComments removes -- and /* */ comments outside string literals and
// quoted identifiers
func stripComments(sql string) string {
	var b strings.Builder
	inSingle, inDouble := false, false

	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case inSingle:
			if ch == '\'' {
				inSingle = false
			}
		case inDouble:
			if ch == '"' {
				inDouble = false
			}
		case ch == '\'':
			inSingle = true
		case ch == '"':
			inDouble = true
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
			continue
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
