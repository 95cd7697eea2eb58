package cimodel

import (
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Collection is an ordered container of records keyed by a composite index.
//
// With no index fields every record gets its own slot in insertion order.
// With index fields the key is a hash of the record's index-field values, so
// adding a record whose values match an existing one replaces it in place.
//
// Records changed after Add, by Update or by Set on the record itself, are
// re-keyed before the next lookup. Records whose values come to coincide
// that way keep separate slots.
//
// Like Record, a Collection is not safe for concurrent mutation.
type Collection struct {
	indexFields []string
	entries     []*entry
	index       map[string][]*entry
	// stale is set by a member record when its fields change
	stale bool

	equality Equality
	metrics  Metrics
}

type entry struct {
	record *Record
	pos    int
	key    string
	rev    uint64
}

// NewCollection creates an empty collection indexed by indexFields, using
// StrictEquality for FindAll. Collections built by a Factory use the
// factory's equality policy and metrics instead.
func NewCollection(indexFields ...string) *Collection {
	return newCollection(StrictEquality{}, &NoOpMetrics{}, indexFields)
}

func newCollection(eq Equality, metrics Metrics, indexFields []string) *Collection {
	fields := append([]string(nil), indexFields...)
	sort.Strings(fields)
	return &Collection{
		indexFields: fields,
		index:       make(map[string][]*entry),
		equality:    eq,
		metrics:     metrics,
	}
}

// IndexFields returns the sorted index fields
func (c *Collection) IndexFields() []string {
	return append([]string(nil), c.indexFields...)
}

// Len returns the number of records
func (c *Collection) Len() int { return len(c.entries) }

// Add stores r under its composite key, replacing any record with the same key.
func (c *Collection) Add(r *Record) {
	if len(c.indexFields) == 0 {
		c.entries = append(c.entries, &entry{record: r, pos: len(c.entries)})
		return
	}

	c.refresh()
	key := c.keyOf(r)
	r.watch(c)
	if slots := c.index[key]; len(slots) > 0 {
		e := slots[0]
		e.record, e.rev = r, r.rev
		return
	}
	e := &entry{record: r, pos: len(c.entries), key: key, rev: r.rev}
	c.entries = append(c.entries, e)
	c.index[key] = append(c.index[key], e)
}

func (c *Collection) keyOf(r *Record) string {
	values := make(Row, len(c.indexFields))
	for _, f := range c.indexFields {
		values[f] = r.Get(f)
	}
	return compositeKey(values)
}

// refresh re-keys the entries whose record changed since it was keyed
func (c *Collection) refresh() {
	if !c.stale {
		return
	}
	c.stale = false
	for _, e := range c.entries {
		if e.rev == e.record.rev {
			continue
		}
		e.rev = e.record.rev
		key := c.keyOf(e.record)
		if key == e.key {
			continue
		}
		c.unlink(e)
		e.key = key
		c.index[key] = append(c.index[key], e)
	}
}

func (c *Collection) unlink(e *entry) {
	slots := c.index[e.key]
	for i, other := range slots {
		if other == e {
			slots = append(slots[:i], slots[i+1:]...)
			break
		}
	}
	if len(slots) == 0 {
		delete(c.index, e.key)
		return
	}
	c.index[e.key] = slots
}

// All iterates the records in insertion order
func (c *Collection) All() iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		for _, e := range c.entries {
			if !yield(e.record) {
				return
			}
		}
	}
}

// Records returns the records in insertion order
func (c *Collection) Records() []*Record {
	out := make([]*Record, 0, len(c.entries))
	for r := range c.All() {
		out = append(out, r)
	}
	return out
}

// IDs returns the id of every record in iteration order
func (c *Collection) IDs() []any {
	ids := make([]any, 0, len(c.entries))
	for r := range c.All() {
		ids = append(ids, r.ID())
	}
	return ids
}

// Update sets every field of data on every record. Nothing is persisted;
// call Save on each record.
func (c *Collection) Update(data Row) {
	for r := range c.All() {
		for k, v := range data {
			r.Set(k, v)
		}
	}
	c.refresh()
}

// FindAll returns the records matching cond, in iteration order, in a new
// collection without index fields. A condition over exactly the index fields
// is answered from the index when the equality policy is exact; everything
// else scans.
func (c *Collection) FindAll(cond Condition) *Collection {
	result := newCollection(c.equality, c.metrics, nil)
	tag := strings.Join(c.indexFields, ",")

	if c.indexable(cond) {
		c.refresh()
		hits := append([]*entry(nil), c.index[compositeKey(Row(cond))]...)
		sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
		for _, e := range hits {
			if cond.Matches(e.record.data, c.equality) {
				result.Add(e.record)
			}
		}
		if result.Len() > 0 {
			c.metrics.Increment(MetricIndexHits, "index", tag)
			return result
		}
		c.metrics.Increment(MetricIndexMisses, "index", tag)
	}

	c.metrics.Increment(MetricCollectionScan, "index", tag)
	for r := range c.All() {
		if cond.Matches(r.data, c.equality) {
			result.Add(r)
		}
	}
	return result
}

// indexable reports whether cond's keys are exactly the index fields
func (c *Collection) indexable(cond Condition) bool {
	if len(c.indexFields) == 0 || len(cond) != len(c.indexFields) || !c.equality.Exact() {
		return false
	}
	for i, key := range cond.Keys() {
		if key != c.indexFields[i] {
			return false
		}
	}
	return true
}

// compositeKey hashes the canonical JSON of a field -> value mapping.
// encoding/json writes map keys sorted.
func compositeKey(values Row) string {
	canonical := make(map[string]any, len(values))
	for k, v := range values {
		canonical[k] = canonicalValue(v)
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", canonical))
	}
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}
