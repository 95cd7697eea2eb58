// Package filestore is a cimodel.Gateway that keeps each table as a JSONL
// object on the local filesystem, S3 or MinIO.
//
// Conditions are evaluated in process with the same Equality policy records
// use, so a condition that matches a record in memory matches its stored row.
// Transactions snapshot the whole store on Begin and restore it on Rollback;
// they do not isolate concurrent writers.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/adrianmcphee/cimodel"
	"github.com/adrianmcphee/cimodel/internal/storage"
	"go.uber.org/zap"
)

var ErrTransactionActive = errors.New("filestore: transaction already in progress")

// Options configures a Gateway
type Options struct {
	// Equality decides condition matching; defaults to cimodel.StrictEquality
	Equality cimodel.Equality
	Logger   *zap.Logger

	// Compression applies to stores the gateway opens itself
	Compression storage.Compression
}

// Gateway implements cimodel.Gateway over internal/storage
type Gateway struct {
	store    *storage.Store
	equality cimodel.Equality
	logger   *zap.Logger
	owned    bool

	mu       sync.Mutex
	snapshot storage.Snapshot
	inTx     bool
	txFailed bool
	lastErr  error
}

// New wraps an open store. Close does not close it.
func New(store *storage.Store, opts Options) *Gateway {
	eq := opts.Equality
	if eq == nil {
		eq = cimodel.StrictEquality{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{store: store, equality: eq, logger: logger}
}

// Open opens a gateway over a local data directory
func Open(ctx context.Context, dir string, opts ...Options) (*Gateway, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	return OpenBlob(ctx, nil, dir, o)
}

// OpenBlob opens a gateway over blob, or over dir when blob is nil
func OpenBlob(ctx context.Context, blob storage.Blob, dir string, opts Options) (*Gateway, error) {
	sopts := storage.Options{Compression: opts.Compression, Logger: opts.Logger}

	var store *storage.Store
	var err error
	if blob != nil {
		store, err = storage.Open(ctx, blob, sopts)
	} else {
		store, err = storage.OpenDir(ctx, dir, sopts)
	}
	if err != nil {
		return nil, err
	}

	g := New(store, opts)
	g.owned = true
	return g, nil
}

// Store returns the underlying store
func (g *Gateway) Store() *storage.Store { return g.store }

func (g *Gateway) fail(op, table string, err error) error {
	if err == nil {
		return nil
	}
	err = fmt.Errorf("filestore %s %s: %w", op, table, err)

	g.mu.Lock()
	g.lastErr = err
	if g.inTx {
		g.txFailed = true
	}
	g.mu.Unlock()
	return err
}

func (g *Gateway) predicate(cond cimodel.Condition) (storage.Predicate, error) {
	if len(cond) == 0 {
		return nil, nil
	}
	if _, err := cond.Terms(); err != nil {
		return nil, err
	}
	return func(row storage.Row) bool {
		return cond.Matches(cimodel.Row(row), g.equality)
	}, nil
}

// Get scans the table, filters, pages, then projects the selected fields
func (g *Gateway) Get(ctx context.Context, q *cimodel.Query) (cimodel.ResultSet, error) {
	table := q.Table()
	match, err := g.predicate(q.Condition())
	if err != nil {
		return nil, g.fail("select", table, err)
	}

	rows, err := g.store.Scan(ctx, table)
	if err != nil {
		return nil, g.fail("select", table, err)
	}

	limit, offset := q.Page()
	out := make([]cimodel.Row, 0)
	skipped := 0
	for _, row := range rows {
		if match != nil && !match(row) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, cimodel.Row(row))
		if limit > 0 && len(out) == limit {
			break
		}
	}

	cols := q.Fields()
	if len(cols) == 0 {
		cols = g.columns(table, out)
	} else {
		for i, row := range out {
			projected := make(cimodel.Row, len(cols))
			for _, c := range cols {
				projected[c] = row[c]
			}
			out[i] = projected
		}
	}
	return cimodel.NewRows(cols, out), nil
}

// columns uses the catalog order when the table has an entry, otherwise the
// sorted union of the row keys
func (g *Gateway) columns(table string, rows []cimodel.Row) []string {
	if t, err := g.store.Schema.GetTable(table); err == nil {
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

// Insert stores fields, generating a UUIDv7 under idField when it is empty
func (g *Gateway) Insert(ctx context.Context, table, idField string, fields cimodel.Row) (cimodel.InsertResult, error) {
	res := cimodel.InsertResult{Statement: "insert into " + table}
	id, err := g.store.Insert(ctx, table, idField, storage.Row(fields))
	if err != nil {
		return res, g.fail("insert", table, err)
	}
	res.OK = true
	res.ID = id
	return res, nil
}

func (g *Gateway) Update(ctx context.Context, table string, fields cimodel.Row, cond cimodel.Condition) (int64, error) {
	match, err := g.predicate(cond)
	if err != nil {
		return 0, g.fail("update", table, err)
	}
	n, err := g.store.Update(ctx, table, match, storage.Row(fields))
	return n, g.fail("update", table, err)
}

func (g *Gateway) Delete(ctx context.Context, table string, cond cimodel.Condition) (int64, error) {
	match, err := g.predicate(cond)
	if err != nil {
		return 0, g.fail("delete", table, err)
	}
	n, err := g.store.Delete(ctx, table, match)
	return n, g.fail("delete", table, err)
}

func (g *Gateway) Count(ctx context.Context, table string, cond cimodel.Condition) (int, error) {
	match, err := g.predicate(cond)
	if err != nil {
		return 0, g.fail("count", table, err)
	}
	n, err := g.store.Count(ctx, table, match)
	return int(n), g.fail("count", table, err)
}

// Begin snapshots the store
func (g *Gateway) Begin(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inTx {
		return ErrTransactionActive
	}
	snap, err := g.store.Snapshot(ctx)
	if err != nil {
		g.lastErr = err
		return err
	}
	g.snapshot = snap
	g.inTx = true
	g.txFailed = false
	g.logger.Debug("transaction started", zap.Int("objects", len(snap)))
	return nil
}

// Commit drops the snapshot
func (g *Gateway) Commit(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.inTx {
		return cimodel.ErrNoTransaction
	}
	g.snapshot = nil
	g.inTx = false
	g.logger.Debug("transaction committed", zap.Bool("had_error", g.txFailed))
	return nil
}

// Rollback restores the snapshot taken by Begin
func (g *Gateway) Rollback(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.inTx {
		return cimodel.ErrNoTransaction
	}
	snap := g.snapshot
	g.snapshot = nil
	g.inTx = false
	g.txFailed = false

	if err := g.store.Restore(ctx, snap); err != nil {
		g.lastErr = err
		return err
	}
	g.logger.Debug("transaction rolled back")
	return nil
}

// TransactionFailed reports whether a statement failed since Begin
func (g *Gateway) TransactionFailed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.txFailed
}

func (g *Gateway) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// Close closes the store when the gateway opened it
func (g *Gateway) Close() error {
	if !g.owned {
		return nil
	}
	return g.store.Close()
}

var _ cimodel.Gateway = (*Gateway)(nil)
