package cimodel

import "context"

// Gateway is the storage contract records delegate all persistence to.
// Implementations own connection handling, retries and timeouts; records only
// issue synchronous calls and pass ctx through.
//
// Implementations in this module:
//   - filestore.Gateway: JSONL tables on the local filesystem or S3
//   - pgstore.Gateway: PostgreSQL over pgx
type Gateway interface {
	// Get runs a select and returns the matching rows
	Get(ctx context.Context, q *Query) (ResultSet, error)

	// Insert writes a row and returns the identifier the store assigned.
	// idField names the primary key column; a non-empty value in fields is a
	// hint the store may honour or replace.
	Insert(ctx context.Context, table, idField string, fields Row) (InsertResult, error)

	// Update writes fields to every row matching cond
	Update(ctx context.Context, table string, fields Row, cond Condition) (int64, error)

	// Delete removes every row matching cond
	Delete(ctx context.Context, table string, cond Condition) (int64, error)

	// Count returns the number of rows matching cond
	Count(ctx context.Context, table string, cond Condition) (int, error)

	// Transactions are plain pass-throughs: no nesting, no savepoints
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// TransactionFailed reports whether a statement failed inside the current transaction
	TransactionFailed() bool

	// LastError returns the most recent error the gateway saw, or nil
	LastError() error

	Close() error
}

// InsertResult reports the outcome of Gateway.Insert.
type InsertResult struct {
	OK        bool
	ID        any    // identifier assigned by the store, nil if none
	Statement string // statement text, kept for diagnostics
}
