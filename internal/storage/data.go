package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Row is a single row of data
type Row map[string]any

// Predicate selects rows for Update, Delete and Count. A nil Predicate
// matches every row.
type Predicate func(Row) bool

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

// NewID returns a time-ordered UUIDv7 string
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) tableKey(tableName string) string {
	return tableName + s.codec.ext()
}

// readRows returns no rows for a table that was never written
func (s *Store) readRows(ctx context.Context, tableName string) ([]Row, error) {
	data, err := s.blob.Get(ctx, s.tableKey(tableName))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Row{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", tableName, err)
	}
	return s.codec.decode(data)
}

func (s *Store) writeRows(ctx context.Context, tableName string, rows []Row) error {
	data, err := s.codec.encode(rows)
	if err != nil {
		return err
	}
	if err := s.blob.Put(ctx, s.tableKey(tableName), data); err != nil {
		return fmt.Errorf("write %s: %w", tableName, err)
	}
	return nil
}

// Scan returns every row of tableName in insertion order
func (s *Store) Scan(ctx context.Context, tableName string) ([]Row, error) {
	if err := validateTableName(tableName); err != nil {
		return nil, err
	}
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	unlock := s.locks.RLock(tableName)
	defer unlock()

	return s.readRows(ctx, tableName)
}

// Insert appends row, generating an id under idField when the row has none,
// and returns the id that was stored
func (s *Store) Insert(ctx context.Context, tableName, idField string, row Row) (any, error) {
	if err := validateTableName(tableName); err != nil {
		return nil, err
	}
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	unlock := s.locks.Lock(tableName)
	defer unlock()

	stored := make(Row, len(row)+1)
	for k, v := range row {
		stored[k] = v
	}
	id := stored[idField]
	if isBlank(id) {
		id = NewID()
		stored[idField] = id
	}

	rows, err := s.readRows(ctx, tableName)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprint(id)
	for _, existing := range rows {
		if v, ok := existing[idField]; ok && fmt.Sprint(v) == key {
			return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateID, key, tableName)
		}
	}

	if err := s.writeRows(ctx, tableName, append(rows, stored)); err != nil {
		return nil, err
	}
	s.logger.Debug("row inserted", zap.String("table", tableName), zap.Any("id", id))
	return id, nil
}

// Update applies set to every row match selects and returns how many changed
func (s *Store) Update(ctx context.Context, tableName string, match Predicate, set Row) (int64, error) {
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	unlock := s.locks.Lock(tableName)
	defer unlock()

	rows, err := s.readRows(ctx, tableName)
	if err != nil {
		return 0, err
	}

	var n int64
	for _, row := range rows {
		if match != nil && !match(row) {
			continue
		}
		for k, v := range set {
			row[k] = v
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}

	if err := s.writeRows(ctx, tableName, rows); err != nil {
		return 0, err
	}
	s.logger.Debug("rows updated", zap.String("table", tableName), zap.Int64("count", n))
	return n, nil
}

// Delete removes every row match selects and returns how many were removed
func (s *Store) Delete(ctx context.Context, tableName string, match Predicate) (int64, error) {
	if err := validateTableName(tableName); err != nil {
		return 0, err
	}
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	unlock := s.locks.Lock(tableName)
	defer unlock()

	rows, err := s.readRows(ctx, tableName)
	if err != nil {
		return 0, err
	}

	kept := rows[:0]
	for _, row := range rows {
		if match == nil || match(row) {
			continue
		}
		kept = append(kept, row)
	}
	n := int64(len(rows) - len(kept))
	if n == 0 {
		return 0, nil
	}

	if err := s.writeRows(ctx, tableName, kept); err != nil {
		return 0, err
	}
	s.logger.Debug("rows deleted", zap.String("table", tableName), zap.Int64("count", n))
	return n, nil
}

// Count returns how many rows match selects
func (s *Store) Count(ctx context.Context, tableName string, match Predicate) (int64, error) {
	rows, err := s.Scan(ctx, tableName)
	if err != nil {
		return 0, err
	}
	if match == nil {
		return int64(len(rows)), nil
	}
	var n int64
	for _, row := range rows {
		if match(row) {
			n++
		}
	}
	return n, nil
}

// Tables lists every table that holds rows or has a catalog entry, sorted
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	keys, err := s.blob.List(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	ext := s.codec.ext()
	for _, key := range keys {
		if strings.HasPrefix(key, schemaPrefix) || strings.Contains(key, "/") {
			continue
		}
		name, ok := strings.CutSuffix(key, ext)
		if !ok || validateTableName(name) != nil {
			continue
		}
		seen[name] = struct{}{}
	}
	for _, name := range s.Schema.ListTables() {
		seen[name] = struct{}{}
	}

	tables := make([]string, 0, len(seen))
	for name := range seen {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}

// DropTable removes a table's rows and catalog entry. It reports whether
// anything existed.
func (s *Store) DropTable(ctx context.Context, tableName string) (bool, error) {
	if err := validateTableName(tableName); err != nil {
		return false, err
	}
	s.txMu.RLock()
	defer s.txMu.RUnlock()
	unlock := s.locks.Lock(tableName)
	defer unlock()

	_, getErr := s.blob.Get(ctx, s.tableKey(tableName))
	hadRows := getErr == nil
	if err := s.blob.Delete(ctx, s.tableKey(tableName)); err != nil {
		return false, fmt.Errorf("remove %s: %w", tableName, err)
	}
	hadSchema, err := s.Schema.dropTable(ctx, tableName)
	if err != nil {
		return false, err
	}
	if hadRows || hadSchema {
		s.logger.Info("table dropped", zap.String("table", tableName))
	}
	return hadRows || hadSchema, nil
}

// isBlank reports whether v cannot serve as a row id
func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}
