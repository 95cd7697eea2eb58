package filestore

import (
	"context"
	"errors"
	"testing"

	"github.com/adrianmcphee/cimodel"
	"github.com/adrianmcphee/cimodel/internal/storage"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func newTestFactory(t *testing.T, g *Gateway) *cimodel.Factory {
	t.Helper()
	registry := cimodel.NewRegistry()
	registry.MustRegister("shop.Customer", cimodel.Definition{})
	registry.MustRegister("shop.Visit", cimodel.Definition{Table: "visits", DeleteMode: cimodel.DeleteByFullRow})

	f, err := cimodel.NewFactory(cimodel.Config{Gateway: g, Registry: registry, Namespace: "shop"})
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	return f
}

func TestGateway_RecordLifecycle(t *testing.T) {
	g := newTestGateway(t)
	f := newTestFactory(t, g)
	ctx := context.Background()

	customer, err := f.Record("Customer")
	if err != nil {
		t.Fatal(err)
	}
	customer.Set("name", "Alice").Set("tier", 1)
	if err := customer.Save(ctx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	id, ok := customer.ID().(string)
	if !ok || id == "" {
		t.Fatalf("expected generated string id, got %v", customer.ID())
	}

	customer.Set("tier", 2)
	if err := customer.Save(ctx); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	loaded, err := f.RecordByID(ctx, "Customer", id)
	if err != nil {
		t.Fatalf("RecordByID failed: %v", err)
	}
	if !loaded.Exists() {
		t.Fatal("expected stored customer to load")
	}
	if loaded.Get("tier") != int64(2) || loaded.Get("name") != "Alice" {
		t.Fatalf("unexpected loaded fields %v", loaded.Fields())
	}

	if err := loaded.Delete(ctx); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	n, err := g.Count(ctx, "customer", nil)
	if err != nil || n != 0 {
		t.Fatalf("expected empty table, got %d (%v)", n, err)
	}
}

func TestGateway_FindAllUsesEquality(t *testing.T) {
	g := newTestGateway(t)
	f := newTestFactory(t, g)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		r, _ := f.Record("Customer")
		r.Set("name", name).Set("tier", 1)
		if err := r.Save(ctx); err != nil {
			t.Fatal(err)
		}
	}

	finder, _ := f.Record("Customer")
	coll, err := finder.FindAll(ctx, cimodel.Condition{"tier": 1.0}, 2, 1, "name")
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if coll.Len() != 2 {
		t.Fatalf("expected 2 after offset 1, got %d", coll.Len())
	}
	if got := coll.FindAll(cimodel.Condition{"name": "b"}); got.Len() != 1 {
		t.Fatalf("expected indexed hit for b, got %d", got.Len())
	}

	n, err := finder.CountAll(ctx, cimodel.Condition{"tier": "1"})
	if err != nil || n != 0 {
		t.Fatalf("strict equality must not match string \"1\", got %d (%v)", n, err)
	}
	n, err = finder.CountAll(ctx, cimodel.Condition{"name <>": "a"})
	if err != nil || n != 2 {
		t.Fatalf("expected 2 not named a, got %d (%v)", n, err)
	}
}

func TestGateway_GetProjectsAndOrdersColumns(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	if err := g.Store().Schema.CreateTable(ctx, &storage.Table{Name: "items", Columns: []storage.Column{
		{Name: "sku", Type: "TEXT"}, {Name: "id", Type: "TEXT"}, {Name: "qty", Type: "BIGINT"},
	}}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Insert(ctx, "items", "id", cimodel.Row{"sku": "X1", "qty": 3}); err != nil {
		t.Fatal(err)
	}

	rs, err := g.Get(ctx, cimodel.Select().From("items"))
	if err != nil {
		t.Fatal(err)
	}
	cols := rs.Columns()
	if len(cols) != 3 || cols[0] != "sku" || cols[2] != "qty" {
		t.Fatalf("expected catalog column order, got %v", cols)
	}

	rs, err = g.Get(ctx, cimodel.Select("qty").From("items").Where(cimodel.Condition{"sku": "X1"}))
	if err != nil {
		t.Fatal(err)
	}
	row := rs.FirstRow()
	if len(row) != 1 || row["qty"] != int64(3) {
		t.Fatalf("expected projected qty only, got %v", row)
	}
}

func TestGateway_FullRowDelete(t *testing.T) {
	g := newTestGateway(t)
	f := newTestFactory(t, g)
	ctx := context.Background()

	visit, _ := f.Record("Visit")
	visit.Set("page", "/home").Set("n", 1)
	if err := visit.Save(ctx); err != nil {
		t.Fatal(err)
	}
	if err := visit.Delete(ctx); err != nil {
		t.Fatalf("full-row delete failed: %v", err)
	}
	if visit.Exists() {
		t.Fatal("expected record unloaded after delete")
	}
	if n, _ := g.Count(ctx, "visits", nil); n != 0 {
		t.Fatalf("expected row removed, %d left", n)
	}
}

func TestGateway_UnsupportedOperator(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	_, err := g.Count(ctx, "customer", cimodel.Condition{"age >": 3})
	if !errors.Is(err, cimodel.ErrUnsupportedOperator) {
		t.Fatalf("expected ErrUnsupportedOperator, got %v", err)
	}
	if !errors.Is(g.LastError(), cimodel.ErrUnsupportedOperator) {
		t.Fatalf("expected LastError to record failure, got %v", g.LastError())
	}
}

func TestGateway_TransactionRollback(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	if _, err := g.Insert(ctx, "accounts", "id", cimodel.Row{"id": "a1", "balance": 10}); err != nil {
		t.Fatal(err)
	}

	if err := g.Begin(ctx); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := g.Begin(ctx); !errors.Is(err, ErrTransactionActive) {
		t.Fatalf("expected ErrTransactionActive, got %v", err)
	}
	if _, err := g.Update(ctx, "accounts", cimodel.Row{"balance": 0}, cimodel.Condition{"id": "a1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Insert(ctx, "accounts", "id", cimodel.Row{"id": "a1"}); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
	if !g.TransactionFailed() {
		t.Fatal("expected failed statement to mark the transaction")
	}
	if err := g.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	rs, err := g.Get(ctx, cimodel.Select("balance").From("accounts").Where(cimodel.Condition{"id": "a1"}))
	if err != nil {
		t.Fatal(err)
	}
	if rs.FirstRow()["balance"] != int64(10) {
		t.Fatalf("expected balance restored, got %v", rs.FirstRow())
	}
	if g.TransactionFailed() {
		t.Fatal("expected failure flag cleared after rollback")
	}
}

func TestGateway_TransactionCommit(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	if err := g.Commit(ctx); !errors.Is(err, cimodel.ErrNoTransaction) {
		t.Fatalf("expected ErrNoTransaction, got %v", err)
	}
	if err := g.Rollback(ctx); !errors.Is(err, cimodel.ErrNoTransaction) {
		t.Fatalf("expected ErrNoTransaction, got %v", err)
	}

	if err := g.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Insert(ctx, "accounts", "id", cimodel.Row{"id": "a2"}); err != nil {
		t.Fatal(err)
	}
	if err := g.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := g.Count(ctx, "accounts", nil); n != 1 {
		t.Fatalf("expected committed row, got %d", n)
	}
}
