package cimodel

import "sort"

// Query is a single-table select built fluently:
//
//	q := cimodel.Select("id").From("user_account").Where(cond).Limit(10, 0)
//	rs, err := gateway.Get(ctx, q)
type Query struct {
	fields    []string
	table     string
	condition Condition
	limit     int
	offset    int
}

// Select starts a query. No fields selects every column.
func Select(fields ...string) *Query {
	return &Query{fields: append([]string(nil), fields...)}
}

// From sets the table to read
func (q *Query) From(table string) *Query {
	q.table = table
	return q
}

// Where sets the row condition
func (q *Query) Where(cond Condition) *Query {
	q.condition = cond
	return q
}

// Limit caps the result at n rows after skipping offset rows.
// n <= 0 means no limit.
func (q *Query) Limit(n, offset int) *Query {
	q.limit = n
	q.offset = offset
	return q
}

// Fields returns the selected columns, empty for all columns
func (q *Query) Fields() []string { return q.fields }

// Table returns the table being queried
func (q *Query) Table() string { return q.table }

// Condition returns the row condition, possibly nil
func (q *Query) Condition() Condition { return q.condition }

// Page returns the limit and offset
func (q *Query) Page() (limit, offset int) { return q.limit, q.offset }

// ResultSet is what a Gateway returns for a Query.
type ResultSet interface {
	RowCount() int
	FirstRow() Row
	AllRows() []Row
	// Columns lists the column names in the order the store returned them.
	Columns() []string
}

// Rows is a slice-backed ResultSet. Gateways that already hold their rows in
// memory return it directly.
type Rows struct {
	Cols []string
	Data []Row
}

// NewRows builds a ResultSet from rows, deriving the column list from the
// union of row keys when cols is empty.
func NewRows(cols []string, rows []Row) *Rows {
	if len(cols) == 0 {
		seen := make(map[string]struct{})
		for _, row := range rows {
			for k := range row {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					cols = append(cols, k)
				}
			}
		}
		sort.Strings(cols)
	}
	return &Rows{Cols: cols, Data: rows}
}

func (r *Rows) RowCount() int { return len(r.Data) }

func (r *Rows) FirstRow() Row {
	if len(r.Data) == 0 {
		return nil
	}
	return r.Data[0]
}

func (r *Rows) AllRows() []Row { return r.Data }

func (r *Rows) Columns() []string { return r.Cols }
