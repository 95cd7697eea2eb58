package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const schemaPrefix = "_schema/"

// Column describes one column of a cataloged table
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Unique     bool   `json:"unique,omitempty"`
	NotNull    bool   `json:"not_null,omitempty"`
	Default    string `json:"default,omitempty"`
}

// Table is a catalog entry. Tables work without one; an entry only fixes the
// column order of SELECT * and what DDL export emits.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// ColumnNames returns the column names in declaration order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// SchemaStore is the table catalog, one JSON object per table under _schema/
type SchemaStore struct {
	blob  Blob
	mu    sync.RWMutex
	cache map[string]*Table
}

// NewSchemaStore loads every catalog entry found on blob
func NewSchemaStore(ctx context.Context, blob Blob) (*SchemaStore, error) {
	s := &SchemaStore{blob: blob, cache: make(map[string]*Table)}
	if err := s.Reload(ctx); err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	return s, nil
}

func schemaKey(tableName string) string {
	return schemaPrefix + tableName + ".json"
}

// Reload replaces the in-memory catalog with what is on the blob
func (s *SchemaStore) Reload(ctx context.Context) error {
	keys, err := s.blob.List(ctx, schemaPrefix)
	if err != nil {
		return err
	}

	cache := make(map[string]*Table, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		data, err := s.blob.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
		var table Table
		if err := json.Unmarshal(data, &table); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		cache[table.Name] = &table
	}

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	return nil
}

// CreateTable adds a catalog entry; ErrTableExists if one is already there
func (s *SchemaStore) CreateTable(ctx context.Context, table *Table) error {
	if err := validateTableName(table.Name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cache[table.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTableExists, table.Name)
	}

	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := s.blob.Put(ctx, schemaKey(table.Name), data); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}

	s.cache[table.Name] = table
	return nil
}

// GetTable returns the catalog entry for tableName
func (s *SchemaStore) GetTable(tableName string) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, exists := s.cache[tableName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, tableName)
	}
	return table, nil
}

func (s *SchemaStore) TableExists(tableName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.cache[tableName]
	return exists
}

// ListTables returns the cataloged table names, sorted
func (s *SchemaStore) ListTables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make([]string, 0, len(s.cache))
	for name := range s.cache {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// dropTable removes the catalog entry only; Store.DropTable also removes rows
func (s *SchemaStore) dropTable(ctx context.Context, tableName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cache[tableName]; !exists {
		return false, nil
	}
	if err := s.blob.Delete(ctx, schemaKey(tableName)); err != nil && !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("remove schema: %w", err)
	}
	delete(s.cache, tableName)
	return true, nil
}
