// Package export dumps a store as a PostgreSQL script.
//
// Cataloged tables keep their declared columns and constraints. Tables that
// only exist as data get a definition inferred from the stored values, with
// "id" as the primary key when every row carries one.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/adrianmcphee/cimodel/internal/storage"
	"github.com/jackc/pgx/v5"
)

// Export writes the DDL followed by the data of every table
func Export(ctx context.Context, w io.Writer, store *storage.Store) error {
	tables, err := describe(ctx, store)
	if err != nil {
		return err
	}
	fmt.Fprint(w, "-- cimodel export to PostgreSQL\n-- generated schema, no migration history\n\n")
	for _, t := range tables {
		fmt.Fprintln(w, TableToDDL(t.def))
	}
	return writeData(w, tables)
}

// ExportData writes INSERT statements for every stored row
func ExportData(ctx context.Context, w io.Writer, store *storage.Store) error {
	tables, err := describe(ctx, store)
	if err != nil {
		return err
	}
	return writeData(w, tables)
}

func writeData(w io.Writer, tables []tableDump) error {
	for _, t := range tables {
		names := t.def.ColumnNames()
		for _, row := range t.rows {
			if _, err := io.WriteString(w, RowToInsert(t.def.Name, names, row)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExportDDL returns the CREATE TABLE statements alone
func ExportDDL(ctx context.Context, store *storage.Store) (string, error) {
	tables, err := describe(ctx, store)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, t := range tables {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(TableToDDL(t.def))
	}
	return sb.String(), nil
}

type tableDump struct {
	def  *storage.Table
	rows []storage.Row
}

func describe(ctx context.Context, store *storage.Store) ([]tableDump, error) {
	names, err := store.Tables(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]tableDump, 0, len(names))
	for _, name := range names {
		rows, err := store.Scan(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", name, err)
		}
		def, err := store.Schema.GetTable(name)
		if err != nil {
			def = inferTable(name, rows)
		}
		out = append(out, tableDump{def: def, rows: rows})
	}
	return out, nil
}

// inferTable derives a definition from stored rows. Columns are sorted, "id"
// first; a column holding mixed kinds becomes text.
func inferTable(name string, rows []storage.Row) *storage.Table {
	kinds := map[string]string{}
	idEverywhere := len(rows) > 0
	for _, row := range rows {
		if row["id"] == nil {
			idEverywhere = false
		}
		for k, v := range row {
			if v == nil {
				if _, ok := kinds[k]; !ok {
					kinds[k] = ""
				}
				continue
			}
			kind := kindOf(v)
			switch prev, seen := kinds[k]; {
			case !seen || prev == "":
				kinds[k] = kind
			case prev != kind:
				kinds[k] = "text"
			}
		}
	}

	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if (names[i] == "id") != (names[j] == "id") {
			return names[i] == "id"
		}
		return names[i] < names[j]
	})

	t := &storage.Table{Name: name}
	for _, n := range names {
		col := storage.Column{Name: n, Type: kinds[n]}
		if col.Type == "" {
			col.Type = "text"
		}
		if n == "id" && idEverywhere {
			col.PrimaryKey = true
		}
		t.Columns = append(t.Columns, col)
	}
	return t
}

func kindOf(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case int64, int:
		return "bigint"
	case float64:
		return "double"
	case map[string]any, []any:
		return "jsonb"
	}
	return "text"
}

// TableToDDL renders a CREATE TABLE statement with quoted identifiers
func TableToDDL(table *storage.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", pgx.Identifier{table.Name}.Sanitize())
	for i, col := range table.Columns {
		sb.WriteString("  ")
		sb.WriteString(columnToDDL(col))
		if i < len(table.Columns)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(");\n")
	return sb.String()
}

func columnToDDL(col storage.Column) string {
	parts := []string{pgx.Identifier{col.Name}.Sanitize(), mapType(col.Type)}

	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if col.Unique && !col.PrimaryKey {
		parts = append(parts, "UNIQUE")
	}
	if col.NotNull && !col.PrimaryKey {
		parts = append(parts, "NOT NULL")
	}
	if col.Default != "" {
		parts = append(parts, "DEFAULT", col.Default)
	}
	return strings.Join(parts, " ")
}

// mapType maps a declared column type to a PostgreSQL type. Unknown types become TEXT.
func mapType(declared string) string {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(declared)), "(")
	switch base {
	case "uuid":
		return "UUID"
	case "text", "string", "varchar", "char":
		return "TEXT"
	case "int", "integer", "smallint":
		return "INTEGER"
	case "bigint", "int8":
		return "BIGINT"
	case "boolean", "bool":
		return "BOOLEAN"
	case "decimal", "numeric":
		return "NUMERIC"
	case "double", "float", "real", "double precision":
		return "DOUBLE PRECISION"
	case "timestamp", "timestamptz", "datetime":
		return "TIMESTAMPTZ"
	case "date":
		return "DATE"
	case "json", "jsonb":
		return "JSONB"
	}
	return "TEXT"
}

// RowToInsert renders one row as an INSERT. Absent columns are written as NULL.
func RowToInsert(table string, columns []string, row storage.Row) string {
	cols := make([]string, len(columns))
	values := make([]string, len(columns))
	for i, name := range columns {
		cols[i] = pgx.Identifier{name}.Sanitize()
		values[i] = literal(row[name])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);\n",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(values, ", "))
}

func literal(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return "NULL"
		}
		return quote(string(b)) + "::jsonb"
	}
	return quote(fmt.Sprint(v))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Apply loads the export into the PostgreSQL database at connString as a
// single simple query.
func Apply(ctx context.Context, connString string, store *storage.Store) error {
	var sb strings.Builder
	if err := Export(ctx, &sb, store); err != nil {
		return err
	}

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("export: connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, sb.String()); err != nil {
		return fmt.Errorf("export: apply: %w", err)
	}
	return nil
}
