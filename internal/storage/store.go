package storage

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Options configures Open
type Options struct {
	Compression Compression
	Logger      *zap.Logger
	// LockStripes is the number of per-table write locks; 0 means 32
	LockStripes int
}

// Store keeps schemaless tables as one JSONL object per table, plus an
// optional catalog. Writers to the same table are serialised; whole-store
// snapshots exclude all writers.
type Store struct {
	blob   Blob
	codec  *codec
	locks  *StripedLocks
	txMu   sync.RWMutex
	logger *zap.Logger

	Schema *SchemaStore
}

// Open loads the catalog from blob and returns a ready store
func Open(ctx context.Context, blob Blob, opts Options) (*Store, error) {
	cd, err := newCodec(opts.Compression)
	if err != nil {
		return nil, err
	}
	schema, err := NewSchemaStore(ctx, blob)
	if err != nil {
		cd.close()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("store opened", zap.Stringer("compression", opts.Compression), zap.Int("tables", len(schema.ListTables())))

	return &Store{
		blob:   blob,
		codec:  cd,
		locks:  NewStripedLocks(opts.LockStripes),
		logger: logger,
		Schema: schema,
	}, nil
}

// OpenDir opens a store backed by a local directory
func OpenDir(ctx context.Context, dir string, opts Options) (*Store, error) {
	blob, err := NewFilesystemBlob(dir)
	if err != nil {
		return nil, err
	}
	return Open(ctx, blob, opts)
}

// Blob returns the underlying object store
func (s *Store) Blob() Blob { return s.blob }

// Ping checks the underlying object store
func (s *Store) Ping(ctx context.Context) error {
	return s.blob.Ping(ctx)
}

// Snapshot is the raw content of every object in a store
type Snapshot map[string][]byte

// Snapshot copies every object so Restore can return to this state
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	keys, err := s.blob.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	snap := make(Snapshot, len(keys))
	for _, key := range keys {
		data, err := s.blob.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", key, err)
		}
		snap[key] = data
	}
	return snap, nil
}

// Restore rewrites the store to match snap, removing objects created since
func (s *Store) Restore(ctx context.Context, snap Snapshot) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	keys, err := s.blob.List(ctx, "")
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	for _, key := range keys {
		if _, keep := snap[key]; keep {
			continue
		}
		if err := s.blob.Delete(ctx, key); err != nil {
			return fmt.Errorf("restore delete %s: %w", key, err)
		}
	}
	for key, data := range snap {
		if err := s.blob.Put(ctx, key, data); err != nil {
			return fmt.Errorf("restore %s: %w", key, err)
		}
	}

	s.logger.Debug("store restored", zap.Int("objects", len(snap)))
	return s.Schema.Reload(ctx)
}

// Close releases the codec and the blob
func (s *Store) Close() error {
	s.codec.close()
	return s.blob.Close()
}
