// Package pgstore is a cimodel.Gateway for PostgreSQL built on pgx.
//
// Conditions become parameterised WHERE clauses joined with AND; a nil value
// compares with IS NULL. Inserts use RETURNING to read back the identifier.
// The gateway also works against the bundled dev server when the connection
// string sets default_query_exec_mode=simple_protocol.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adrianmcphee/cimodel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrTransactionActive = errors.New("pgstore: transaction already in progress")

// DB is satisfied by *pgx.Conn and *pgxpool.Pool
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options configures a Gateway
type Options struct {
	Logger *zap.Logger
}

// Gateway implements cimodel.Gateway over pgx
type Gateway struct {
	db     DB
	logger *zap.Logger
	close  func()

	mu       sync.Mutex
	tx       pgx.Tx
	txFailed bool
	lastErr  error
}

// New wraps an existing connection or pool. Close does not close it.
func New(db DB, opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{db: db, logger: logger}
}

// Connect opens a connection pool for connString
func Connect(ctx context.Context, connString string, opts Options) (*Gateway, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	g := New(pool, opts)
	g.close = pool.Close
	return g, nil
}

// q returns the open transaction, or the DB outside one
func (g *Gateway) q() querier {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tx != nil {
		return g.tx
	}
	return g.db
}

func (g *Gateway) fail(sql string, err error) error {
	if err == nil {
		return nil
	}
	g.logger.Debug("statement failed", zap.String("sql", sql), zap.Error(err))

	g.mu.Lock()
	g.lastErr = err
	if g.tx != nil {
		g.txFailed = true
	}
	g.mu.Unlock()
	return err
}

func (g *Gateway) Get(ctx context.Context, q *cimodel.Query) (cimodel.ResultSet, error) {
	sql, a, err := buildSelect(q)
	if err != nil {
		return nil, g.fail(sql, err)
	}

	rows, err := g.q().Query(ctx, sql, a...)
	if err != nil {
		return nil, g.fail(sql, err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}

	var out []cimodel.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, g.fail(sql, err)
		}
		row := make(cimodel.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, g.fail(sql, err)
	}
	return cimodel.NewRows(cols, out), nil
}

func (g *Gateway) Insert(ctx context.Context, table, idField string, fields cimodel.Row) (cimodel.InsertResult, error) {
	sql, a, err := buildInsert(table, idField, fields)
	res := cimodel.InsertResult{Statement: sql}
	if err != nil {
		return res, g.fail(sql, err)
	}

	var id any
	if err := g.q().QueryRow(ctx, sql, a...).Scan(&id); err != nil {
		return res, g.fail(sql, err)
	}
	res.OK = true
	res.ID = id
	return res, nil
}

func (g *Gateway) Update(ctx context.Context, table string, fields cimodel.Row, cond cimodel.Condition) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	sql, a, err := buildUpdate(table, fields, cond)
	if err != nil {
		return 0, g.fail(sql, err)
	}
	tag, err := g.q().Exec(ctx, sql, a...)
	if err != nil {
		return 0, g.fail(sql, err)
	}
	return tag.RowsAffected(), nil
}

func (g *Gateway) Delete(ctx context.Context, table string, cond cimodel.Condition) (int64, error) {
	sql, a, err := buildDelete(table, cond)
	if err != nil {
		return 0, g.fail(sql, err)
	}
	tag, err := g.q().Exec(ctx, sql, a...)
	if err != nil {
		return 0, g.fail(sql, err)
	}
	return tag.RowsAffected(), nil
}

func (g *Gateway) Count(ctx context.Context, table string, cond cimodel.Condition) (int, error) {
	sql, a, err := buildCount(table, cond)
	if err != nil {
		return 0, g.fail(sql, err)
	}
	var n int64
	if err := g.q().QueryRow(ctx, sql, a...).Scan(&n); err != nil {
		return 0, g.fail(sql, err)
	}
	return int(n), nil
}

// Begin starts a transaction; every call until Commit or Rollback runs in it
func (g *Gateway) Begin(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tx != nil {
		return ErrTransactionActive
	}
	tx, err := g.db.Begin(ctx)
	if err != nil {
		g.lastErr = err
		return err
	}
	g.tx = tx
	g.txFailed = false
	return nil
}

func (g *Gateway) Commit(ctx context.Context) error {
	tx, err := g.endTx()
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		g.setLastErr(err)
		return err
	}
	return nil
}

func (g *Gateway) Rollback(ctx context.Context) error {
	tx, err := g.endTx()
	if err != nil {
		return err
	}
	if err := tx.Rollback(ctx); err != nil {
		g.setLastErr(err)
		return err
	}
	return nil
}

func (g *Gateway) endTx() (pgx.Tx, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tx == nil {
		return nil, cimodel.ErrNoTransaction
	}
	tx := g.tx
	g.tx = nil
	g.txFailed = false
	return tx, nil
}

func (g *Gateway) setLastErr(err error) {
	g.mu.Lock()
	g.lastErr = err
	g.mu.Unlock()
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

// Close rolls back an open transaction and closes the pool Connect opened
func (g *Gateway) Close() error {
	g.mu.Lock()
	tx := g.tx
	g.tx = nil
	g.mu.Unlock()

	var err error
	if tx != nil {
		err = tx.Rollback(context.Background())
	}
	if g.close != nil {
		g.close()
	}
	return err
}

var _ cimodel.Gateway = (*Gateway)(nil)
