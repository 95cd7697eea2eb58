// Package executor parses and executes SQL statements against the storage layer.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adrianmcphee/cimodel/internal/storage"
	"github.com/xwb1989/sqlparser"
	"go.uber.org/zap"
)

// TxStatus is the transaction state reported in ReadyForQuery
type TxStatus byte

const (
	TxIdle   TxStatus = 'I'
	TxActive TxStatus = 'T'
	TxFailed TxStatus = 'E'
)

// Executor executes SQL statements. It is shared by all sessions.
type Executor struct {
	store  *storage.Store
	logger *zap.Logger
}

// NewExecutor creates a new SQL executor
func NewExecutor(store *storage.Store, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{store: store, logger: logger}
}

// Store returns the store statements run against
func (e *Executor) Store() *storage.Store { return e.store }

// Session holds per-connection transaction state. Transactions snapshot the
// whole store; they do not isolate concurrent sessions.
type Session struct {
	exec *Executor

	mu       sync.Mutex
	status   TxStatus
	snapshot storage.Snapshot
}

func (e *Executor) NewSession() *Session {
	return &Session{exec: e, status: TxIdle}
}

// Status returns the session's transaction state
func (s *Session) Status() TxStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close rolls back an open transaction
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == TxIdle {
		return nil
	}
	return s.rollback(ctx)
}

// Execute runs a single statement
func (s *Session) Execute(ctx context.Context, sql string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	sql = strings.TrimSuffix(strings.TrimSpace(stripComments(sql)), ";")
	if sql == "" {
		return &Result{Empty: true}, nil
	}

	if res, ok, err := s.transactionControl(ctx, sql); ok {
		return res, err
	}
	if s.status == TxFailed {
		return nil, ErrTransactionAborted
	}

	res, err := s.execute(ctx, sql)
	if err != nil {
		if s.status == TxActive {
			s.status = TxFailed
		}
		s.exec.logger.Debug("statement failed", zap.String("sql", sql), zap.Error(err))
		return nil, err
	}

	s.exec.logger.Debug("statement executed",
		zap.String("tag", res.Tag),
		zap.Int64("rows", res.RowsAffected),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// transactionControl handles BEGIN, COMMIT and ROLLBACK before parsing
func (s *Session) transactionControl(ctx context.Context, sql string) (*Result, bool, error) {
	words := strings.Fields(strings.ToUpper(sql))
	if len(words) == 0 || len(words) > 3 {
		return nil, false, nil
	}

	switch words[0] {
	case "BEGIN", "START":
		if words[0] == "START" && (len(words) < 2 || words[1] != "TRANSACTION") {
			return nil, false, nil
		}
		if s.status != TxIdle {
			return nil, true, sqlError(CodeActiveTransaction, "there is already a transaction in progress")
		}
		snap, err := s.exec.store.Snapshot(ctx)
		if err != nil {
			return nil, true, err
		}
		s.snapshot = snap
		s.status = TxActive
		return &Result{Tag: "BEGIN"}, true, nil

	case "COMMIT", "END":
		switch s.status {
		case TxIdle:
			return nil, true, sqlError(CodeNoActiveTransaction, "there is no transaction in progress")
		case TxFailed:
			// PostgreSQL turns COMMIT of an aborted transaction into a rollback
			if err := s.rollback(ctx); err != nil {
				return nil, true, err
			}
			return &Result{Tag: "ROLLBACK"}, true, nil
		}
		s.snapshot = nil
		s.status = TxIdle
		return &Result{Tag: "COMMIT"}, true, nil

	case "ROLLBACK", "ABORT":
		if s.status == TxIdle {
			return nil, true, sqlError(CodeNoActiveTransaction, "there is no transaction in progress")
		}
		if err := s.rollback(ctx); err != nil {
			return nil, true, err
		}
		return &Result{Tag: "ROLLBACK"}, true, nil
	}
	return nil, false, nil
}

func (s *Session) rollback(ctx context.Context) error {
	snap := s.snapshot
	s.snapshot = nil
	s.status = TxIdle
	return s.exec.store.Restore(ctx, snap)
}

func (s *Session) execute(ctx context.Context, sql string) (*Result, error) {
	sql, err := rewriteCasts(sql)
	if err != nil {
		return nil, err
	}
	sql, returning := splitReturning(normalize(sql))

	var declared map[string]string
	if createTablePattern.MatchString(sql) {
		sql, declared = declaredTypes(sql)
	}

	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, sqlError(CodeSyntaxError, "parse error: %v", err)
	}

	if returning != nil {
		if _, ok := stmt.(*sqlparser.Insert); !ok {
			return nil, fmt.Errorf("%w: RETURNING is only supported on INSERT", ErrUnsupported)
		}
	}

	switch st := stmt.(type) {
	case *sqlparser.DDL:
		return s.executeDDL(ctx, st, ifNotExistsPattern.MatchString(sql), declared)
	case *sqlparser.Select:
		return s.executeSelect(ctx, st)
	case *sqlparser.Insert:
		return s.executeInsert(ctx, st, returning)
	case *sqlparser.Update:
		return s.executeUpdate(ctx, st)
	case *sqlparser.Delete:
		return s.executeDelete(ctx, st)
	case *sqlparser.Set:
		return &Result{Tag: "SET"}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupported, stmt)
}

// executeDDL handles CREATE TABLE and DROP TABLE against the catalog
func (s *Session) executeDDL(ctx context.Context, stmt *sqlparser.DDL, ifNotExists bool, declared map[string]string) (*Result, error) {
	switch stmt.Action {
	case sqlparser.CreateStr:
		return s.executeCreateTable(ctx, stmt, ifNotExists, declared)
	case sqlparser.DropStr:
		return s.executeDropTable(ctx, stmt)
	}
	return nil, fmt.Errorf("%w: DDL %s", ErrUnsupported, stmt.Action)
}

// executeCreateTable records the table in the catalog. declared holds the
// original type of columns whose PostgreSQL type was rewritten for parsing.
func (s *Session) executeCreateTable(ctx context.Context, stmt *sqlparser.DDL, ifNotExists bool, declared map[string]string) (*Result, error) {
	tableName := stmt.NewName.Name.String()
	if stmt.TableSpec == nil {
		return nil, fmt.Errorf("%w: CREATE TABLE without columns", ErrUnsupported)
	}

	columns := make([]storage.Column, 0, len(stmt.TableSpec.Columns))
	for _, col := range stmt.TableSpec.Columns {
		column := storage.Column{
			Name:       col.Name.String(),
			Type:       strings.ToUpper(col.Type.Type),
			NotNull:    bool(col.Type.NotNull),
			PrimaryKey: col.Type.KeyOpt == 1, // colKeyPrimary
			Unique:     col.Type.KeyOpt == 3 || col.Type.KeyOpt == 4,
		}
		if typ, ok := declared[column.Name]; ok {
			column.Type = typ
		}
		if col.Type.Default != nil {
			column.Default = sqlparser.String(col.Type.Default)
		}
		columns = append(columns, column)
	}

	for _, idx := range stmt.TableSpec.Indexes {
		if !idx.Info.Primary {
			continue
		}
		for i, col := range columns {
			for _, idxCol := range idx.Columns {
				if col.Name == idxCol.Column.String() {
					columns[i].PrimaryKey = true
				}
			}
		}
	}

	err := s.exec.store.Schema.CreateTable(ctx, &storage.Table{Name: tableName, Columns: columns})
	if err != nil && !(ifNotExists && errors.Is(err, storage.ErrTableExists)) {
		return nil, err
	}
	return &Result{Tag: "CREATE TABLE"}, nil
}

func (s *Session) executeDropTable(ctx context.Context, stmt *sqlparser.DDL) (*Result, error) {
	tableName := stmt.Table.Name.String()

	dropped, err := s.exec.store.DropTable(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if !dropped && !stmt.IfExists {
		return nil, fmt.Errorf("%w: %s", storage.ErrNoSuchTable, tableName)
	}
	return &Result{Tag: "DROP TABLE"}, nil
}

func getTableName(expr sqlparser.TableExpr) (string, error) {
	if t, ok := expr.(*sqlparser.AliasedTableExpr); ok {
		if tbl, ok := t.Expr.(sqlparser.TableName); ok {
			return tbl.Name.String(), nil
		}
	}
	return "", fmt.Errorf("%w: could not determine table name", ErrUnsupported)
}

// primaryKey returns the cataloged primary key column, or "" when there is none
func (s *Session) primaryKey(table string) string {
	t, err := s.exec.store.Schema.GetTable(table)
	if err != nil {
		return ""
	}
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}
