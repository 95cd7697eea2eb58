package cimodel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeGateway is an in-memory Gateway that counts every call
type fakeGateway struct {
	mu     sync.Mutex
	tables map[string][]Row
	nextID int64
	calls  map[string]int

	insertErr  error
	insertNoID bool
	getErr     error

	lastUpdateFields Row
	lastUpdateCond   Condition
	lastDeleteCond   Condition

	txFailed bool
	lastErr  error
	closed   bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		tables: make(map[string][]Row),
		nextID: 100,
		calls:  make(map[string]int),
	}
}

func (g *fakeGateway) seed(table string, rows ...Row) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tables[table] = append(g.tables[table], rows...)
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) Get(ctx context.Context, q *Query) (ResultSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["get"]++
	if g.getErr != nil {
		g.lastErr = g.getErr
		return nil, g.getErr
	}

	limit, offset := q.Page()
	var out []Row
	skipped := 0
	for _, row := range g.tables[q.Table()] {
		if !q.Condition().Matches(row, StrictEquality{}) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		projected := make(Row)
		if len(q.Fields()) == 0 {
			for k, v := range row {
				projected[k] = v
			}
		} else {
			for _, f := range q.Fields() {
				projected[f] = row[f]
			}
		}
		out = append(out, projected)
	}
	return NewRows(q.Fields(), out), nil
}

func (g *fakeGateway) Insert(ctx context.Context, table, idField string, fields Row) (InsertResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["insert"]++

	stmt := fmt.Sprintf("INSERT INTO %s (%d fields)", table, len(fields))
	if g.insertErr != nil {
		g.lastErr = g.insertErr
		g.txFailed = true
		return InsertResult{Statement: stmt}, g.insertErr
	}

	row := make(Row, len(fields)+1)
	for k, v := range fields {
		row[k] = v
	}
	if g.insertNoID {
		g.tables[table] = append(g.tables[table], row)
		return InsertResult{OK: true, Statement: stmt}, nil
	}

	id := row[idField]
	if isEmptyID(id) {
		g.nextID++
		id = g.nextID
		row[idField] = id
	}
	g.tables[table] = append(g.tables[table], row)
	return InsertResult{OK: true, ID: id, Statement: stmt}, nil
}

func (g *fakeGateway) Update(ctx context.Context, table string, fields Row, cond Condition) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["update"]++
	g.lastUpdateFields = fields
	g.lastUpdateCond = cond

	var n int64
	for _, row := range g.tables[table] {
		if cond.Matches(row, StrictEquality{}) {
			for k, v := range fields {
				row[k] = v
			}
			n++
		}
	}
	return n, nil
}

func (g *fakeGateway) Delete(ctx context.Context, table string, cond Condition) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["delete"]++
	g.lastDeleteCond = cond

	var kept []Row
	var n int64
	for _, row := range g.tables[table] {
		if cond.Matches(row, StrictEquality{}) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	g.tables[table] = kept
	return n, nil
}

func (g *fakeGateway) Count(ctx context.Context, table string, cond Condition) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["count"]++

	n := 0
	for _, row := range g.tables[table] {
		if cond.Matches(row, StrictEquality{}) {
			n++
		}
	}
	return n, nil
}

func (g *fakeGateway) Begin(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["begin"]++
	return nil
}

func (g *fakeGateway) Commit(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["commit"]++
	if g.txFailed {
		return errors.New("transaction failed")
	}
	return nil
}

func (g *fakeGateway) Rollback(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["rollback"]++
	g.txFailed = false
	return nil
}

func (g *fakeGateway) TransactionFailed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.txFailed
}

func (g *fakeGateway) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

func (g *fakeGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// newTestFactory registers the record types used across the package tests
func newTestFactory(t *testing.T, gw Gateway, mutate ...func(*Config)) *Factory {
	t.Helper()

	registry := NewRegistry()
	registry.MustRegister("app.UserAccount", Definition{})
	registry.MustRegister("app.AuditLog", Definition{AllowInsertWithoutID: true})
	registry.MustRegister("app.LegacyRow", Definition{Table: "legacy", DeleteMode: DeleteByFullRow})
	registry.MustRegister("app.Member", Definition{Table: "members", IDField: "member_id"})

	cfg := Config{Gateway: gw, Registry: registry, Namespace: "app"}
	for _, m := range mutate {
		m(&cfg)
	}

	f, err := NewFactory(cfg)
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	return f
}

func mustRecord(t *testing.T, f *Factory, typeName string) *Record {
	t.Helper()
	r, err := f.Record(typeName)
	if err != nil {
		t.Fatalf("Record(%q) failed: %v", typeName, err)
	}
	return r
}

func mustRecordWithData(t *testing.T, f *Factory, typeName string, data Row) *Record {
	t.Helper()
	r, err := f.RecordWithData(typeName, data)
	if err != nil {
		t.Fatalf("RecordWithData(%q) failed: %v", typeName, err)
	}
	return r
}
