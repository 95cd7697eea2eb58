package cimodel

import (
	"context"
	"sort"
	"time"
)

// Record is the in-memory image of one persisted row. It tracks whether it
// reflects a stored row (Exists), which fields changed since then
// (IsModified, ModifiedKeys), and delegates all I/O to the factory's Gateway.
//
// A Record is not safe for concurrent use. Distinct records built by the same
// Factory may be used from different goroutines if the Gateway allows it.
type Record struct {
	typeName string
	def      Definition
	factory  *Factory
	gateway  Gateway
	cache    Cache
	logger   Logger
	metrics  Metrics
	equality Equality

	data         Row
	order        []string
	loaded       bool
	modified     bool
	modifiedKeys map[string]struct{}

	// rev counts field changes; indexed collections holding the record
	// compare it to decide when to re-key
	rev      uint64
	watchers []*Collection

	id        any
	tableName string
}

func newRecord(f *Factory, typeName string, def Definition) *Record {
	return &Record{
		typeName:     typeName,
		def:          def,
		factory:      f,
		gateway:      f.gateway,
		cache:        f.cache,
		logger:       f.logger,
		metrics:      f.metrics,
		equality:     f.equality,
		data:         make(Row),
		modifiedKeys: make(map[string]struct{}),
	}
}

// hydrate replaces the field data with a persisted row
func (r *Record) hydrate(row Row, cols []string) {
	r.data = make(Row, len(row))
	r.order = r.order[:0]
	for _, col := range cols {
		if v, ok := row[col]; ok {
			if _, dup := r.data[col]; !dup {
				r.order = append(r.order, col)
			}
			r.data[col] = v
		}
	}
	var rest []string
	for k := range row {
		if _, ok := r.data[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		r.order = append(r.order, k)
		r.data[k] = row[k]
	}
	r.loaded = true
	r.modified = false
	clear(r.modifiedKeys)
	r.touch()
}

// put stores a value without dirty tracking
func (r *Record) put(key string, value any) {
	if _, exists := r.data[key]; !exists {
		r.order = append(r.order, key)
	}
	r.data[key] = value
	r.touch()
}

func (r *Record) touch() {
	r.rev++
	for _, c := range r.watchers {
		c.stale = true
	}
}

// watch registers c to be told when the record's fields change
func (r *Record) watch(c *Collection) {
	for _, w := range r.watchers {
		if w == c {
			return
		}
	}
	r.watchers = append(r.watchers, c)
}

// Get returns the value of a field, or nil when it is not set
func (r *Record) Get(key string) any {
	return r.data[key]
}

// Has reports whether the field is set, even to nil
func (r *Record) Has(key string) bool {
	_, ok := r.data[key]
	return ok
}

// Set assigns a field. The record becomes modified when the field is new or
// its value differs under the factory's Equality. Once the record exists the
// key is also remembered so Save writes only changed fields.
func (r *Record) Set(key string, value any) *Record {
	old, exists := r.data[key]
	if !exists || !r.equality.Equal(old, value) {
		r.modified = true
		if r.loaded {
			r.modifiedKeys[key] = struct{}{}
		}
	}
	r.put(key, value)
	return r
}

// FieldNames returns the set field names in insertion order
func (r *Record) FieldNames() []string {
	return append([]string(nil), r.order...)
}

// Fields returns a copy of the field data
func (r *Record) Fields() Row {
	out := make(Row, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out
}

// Exists reports whether the record reflects a persisted row
func (r *Record) Exists() bool { return r.loaded }

// IsModified reports whether any field changed since the record was last clean
func (r *Record) IsModified() bool { return r.modified }

// ModifiedKeys returns the fields changed since the record was loaded, in field order
func (r *Record) ModifiedKeys() []string {
	keys := make([]string, 0, len(r.modifiedKeys))
	for _, k := range r.order {
		if _, ok := r.modifiedKeys[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// ID returns the value of the id field. The first non-nil value read is
// memoized for the lifetime of the record: later changes to the id field,
// including the identifier assigned by an insert, do not change ID().
// Update conditions are built from this memoized value.
func (r *Record) ID() any {
	if r.id == nil {
		r.id = r.data[r.IDField()]
	}
	return r.id
}

// TypeName returns the qualified type name the record was built from
func (r *Record) TypeName() string { return r.typeName }

// ShortName returns the type name without its namespace
func (r *Record) ShortName() string { return ShortName(r.typeName) }

// IDField returns the name of the primary key field
func (r *Record) IDField() string { return r.def.idField() }

// Table returns the configured table, or one derived from the short type name
func (r *Record) Table() string {
	if r.tableName == "" {
		if r.def.Table != "" {
			r.tableName = r.def.Table
		} else {
			r.tableName = TableNameFromType(r.ShortName())
		}
	}
	return r.tableName
}

// Factory returns the factory that built the record
func (r *Record) Factory() *Factory { return r.factory }

// Cache returns the injected cache handle
func (r *Record) Cache() Cache { return r.cache }

// Logger returns the injected logger
func (r *Record) Logger() Logger { return r.logger }

// MatchesCondition evaluates cond against the record's fields in memory.
// Keys may carry an operator: {"status <>": "archived"}.
func (r *Record) MatchesCondition(cond Condition) bool {
	return cond.Matches(r.data, r.equality)
}

func (r *Record) observe(op string, start time.Time) {
	r.metrics.Timing(MetricGatewayLatency, time.Since(start), "table", r.Table(), "operation", op)
}

// load reads the first row matching cond. A miss leaves the record untouched.
func (r *Record) load(ctx context.Context, cond Condition) error {
	table := r.Table()

	start := time.Now()
	rs, err := r.gateway.Get(ctx, Select().From(table).Where(cond).Limit(1, 0))
	r.observe("select", start)
	if err != nil {
		r.metrics.Increment(MetricLoadError, "table", table)
		return err
	}

	if rs == nil || rs.RowCount() == 0 {
		r.metrics.Increment(MetricLoadMiss, "table", table)
		r.logger.Debug("no row matched", "table", table, "condition", cond)
		return nil
	}

	r.metrics.Increment(MetricLoadHit, "table", table)
	r.hydrate(rs.FirstRow(), rs.Columns())
	return nil
}

// LoadByID loads the row whose id field equals id. When no row matches the
// record stays unloaded with its id field set to id, so a following Save
// inserts with id as a hint.
func (r *Record) LoadByID(ctx context.Context, id any) error {
	if err := r.load(ctx, Condition{r.IDField(): id}); err != nil {
		return err
	}
	if !r.loaded {
		r.Set(r.IDField(), id)
	}
	return nil
}

// Find loads the first row matching cond. Check Exists afterwards.
func (r *Record) Find(ctx context.Context, cond Condition) error {
	return r.load(ctx, cond)
}

// FindAll returns every row matching cond as records of the same type,
// collected under indexFields. limit <= 0 returns all rows. No match yields
// an empty collection.
func (r *Record) FindAll(ctx context.Context, cond Condition, limit, offset int, indexFields ...string) (*Collection, error) {
	table := r.Table()
	collection := r.factory.NewCollection(indexFields...)

	start := time.Now()
	rs, err := r.gateway.Get(ctx, Select().From(table).Where(cond).Limit(limit, offset))
	r.observe("select", start)
	if err != nil {
		return nil, err
	}
	if rs == nil || rs.RowCount() == 0 {
		r.metrics.Histogram(MetricFindAllRows, 0, "table", table)
		return collection, nil
	}

	cols := rs.Columns()
	for _, row := range rs.AllRows() {
		sibling := r.factory.build(r.typeName, r.def)
		sibling.hydrate(row, cols)
		collection.Add(sibling)
	}
	r.metrics.Histogram(MetricFindAllRows, float64(rs.RowCount()), "table", table)
	return collection, nil
}

// FindAllIDs returns the id field value of every row matching cond
func (r *Record) FindAllIDs(ctx context.Context, cond Condition) ([]any, error) {
	idField := r.IDField()

	start := time.Now()
	rs, err := r.gateway.Get(ctx, Select(idField).From(r.Table()).Where(cond))
	r.observe("select", start)
	if err != nil {
		return nil, err
	}

	ids := make([]any, 0)
	if rs == nil {
		return ids, nil
	}
	for _, row := range rs.AllRows() {
		ids = append(ids, row[idField])
	}
	return ids, nil
}

// CountAll counts the rows in the record's table matching cond
func (r *Record) CountAll(ctx context.Context, cond Condition) (int, error) {
	start := time.Now()
	defer r.observe("count", start)
	return r.gateway.Count(ctx, r.Table(), cond)
}

// DeleteAll deletes every row in the record's table matching cond
func (r *Record) DeleteAll(ctx context.Context, cond Condition) (int64, error) {
	start := time.Now()
	defer r.observe("delete", start)
	return r.gateway.Delete(ctx, r.Table(), cond)
}

// UpdateAll writes data to every row in the record's table matching cond.
// Records already in memory are not refreshed.
func (r *Record) UpdateAll(ctx context.Context, data Row, cond Condition) (int64, error) {
	start := time.Now()
	defer r.observe("update", start)
	return r.gateway.Update(ctx, r.Table(), data, cond)
}

// Save inserts the record when it does not exist yet, otherwise updates it
func (r *Record) Save(ctx context.Context) error {
	if r.loaded {
		return r.update(ctx)
	}
	return r.insert(ctx)
}

func (r *Record) insert(ctx context.Context) error {
	table := r.Table()
	idField := r.IDField()
	fields := r.Fields()

	start := time.Now()
	res, err := r.gateway.Insert(ctx, table, idField, fields)
	r.observe("insert", start)

	if err != nil || !res.OK || (isEmptyID(res.ID) && !r.def.AllowInsertWithoutID) {
		r.metrics.Increment(MetricInsertError, "table", table)
		r.logger.Error("insert failed",
			"table", table,
			"statement", res.Statement,
			"fields", len(fields),
			"error", err,
		)
		return &PersistenceError{Table: table, Statement: res.Statement, Err: err}
	}

	if !isEmptyID(res.ID) {
		r.put(idField, res.ID)
	}
	r.loaded = true
	r.modified = false
	clear(r.modifiedKeys)
	r.metrics.Increment(MetricInsertSuccess, "table", table)
	return nil
}

func (r *Record) update(ctx context.Context) error {
	table := r.Table()
	if !r.modified {
		r.metrics.Increment(MetricUpdateSkipped, "table", table)
		return nil
	}

	idField := r.IDField()
	if r.data[idField] == nil {
		r.metrics.Increment(MetricUpdateError, "table", table)
		return WithContext(ErrMissingUpdateCondition, map[string]interface{}{
			"table":    table,
			"id_field": idField,
		})
	}

	payload := make(Row, len(r.modifiedKeys))
	for key := range r.modifiedKeys {
		payload[key] = r.data[key]
	}
	if len(payload) == 0 {
		r.modified = false
		r.metrics.Increment(MetricUpdateSkipped, "table", table)
		return nil
	}

	start := time.Now()
	_, err := r.gateway.Update(ctx, table, payload, Condition{idField: r.ID()})
	r.observe("update", start)
	if err != nil {
		r.metrics.Increment(MetricUpdateError, "table", table)
		return err
	}

	r.modified = false
	clear(r.modifiedKeys)
	r.metrics.Increment(MetricUpdateSuccess, "table", table)
	return nil
}

// Delete removes the record's row. Records that do not exist are a no-op.
// The condition depends on the type's DeleteMode. On success the record no
// longer exists; a later Save inserts it again.
func (r *Record) Delete(ctx context.Context) error {
	if !r.loaded {
		return nil
	}

	table := r.Table()
	var cond Condition
	switch r.def.DeleteMode {
	case DeleteByFullRow:
		cond = Condition(r.Fields())
		r.logger.Warn("deleting by full row", "table", table, "fields", len(cond))
	default:
		idField := r.IDField()
		id := r.data[idField]
		if id == nil {
			r.metrics.Increment(MetricDeleteError, "table", table)
			return WithContext(ErrMissingDeleteCondition, map[string]interface{}{
				"table":    table,
				"id_field": idField,
			})
		}
		cond = Condition{idField: id}
	}

	start := time.Now()
	n, err := r.gateway.Delete(ctx, table, cond)
	r.observe("delete", start)
	if err != nil {
		r.metrics.Increment(MetricDeleteError, "table", table)
		return err
	}
	if n == 0 {
		r.logger.Warn("delete matched no rows", "table", table, "mode", r.def.DeleteMode.String())
	}

	r.loaded = false
	clear(r.modifiedKeys)
	r.metrics.Increment(MetricDeleteSuccess, "table", table)
	return nil
}

// Begin starts a gateway transaction
func (r *Record) Begin(ctx context.Context) error { return r.gateway.Begin(ctx) }

// Commit commits the gateway transaction
func (r *Record) Commit(ctx context.Context) error { return r.gateway.Commit(ctx) }

// Rollback rolls back the gateway transaction and clears its failed state
func (r *Record) Rollback(ctx context.Context) error { return r.gateway.Rollback(ctx) }

// HasError reports whether a statement failed in the current transaction
func (r *Record) HasError() bool { return r.gateway.TransactionFailed() }

// LastError returns the gateway's most recent error
func (r *Record) LastError() error { return r.gateway.LastError() }

// CloseGateway closes the shared gateway. Every record of the factory is affected.
func (r *Record) CloseGateway() error { return r.gateway.Close() }

// isEmptyID reports whether a gateway identifier counts as "none produced"
func isEmptyID(id any) bool {
	switch v := id.(type) {
	case nil:
		return true
	case string:
		return v == "" || v == "0"
	case bool:
		return !v
	}
	if kindOf(id) == kindNumber {
		f, _ := asFloat64(id)
		return f == 0
	}
	return false
}
