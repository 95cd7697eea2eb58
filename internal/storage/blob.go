// Package storage keeps tables as JSONL objects on a Blob store: the local
// filesystem for development, S3 or MinIO for shared deployments.
package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("storage: object not found")
	ErrNoSuchTable  = errors.New("storage: table does not exist")
	ErrTableExists  = errors.New("storage: table already exists")
	ErrDuplicateID  = errors.New("storage: duplicate id")
	ErrInvalidTable = errors.New("storage: invalid table name")
)

// Blob is the object store tables are persisted to. Keys use forward slashes.
type Blob interface {
	// Get returns ErrNotFound when key does not exist
	Get(ctx context.Context, key string) ([]byte, error)
	// Put replaces the object at key. Readers never observe a partial write.
	Put(ctx context.Context, key string, data []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key starting with prefix
	List(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
