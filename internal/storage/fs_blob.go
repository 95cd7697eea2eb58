package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	dirPermissions  = 0755
	filePermissions = 0644
	tempPrefix      = ".tmp-"
	healthCheckFile = ".health_check"
)

// FilesystemBlob stores objects as files below a base directory
type FilesystemBlob struct {
	basePath string
}

// NewFilesystemBlob creates the base directory if needed
func NewFilesystemBlob(basePath string) (*FilesystemBlob, error) {
	if err := os.MkdirAll(basePath, dirPermissions); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FilesystemBlob{basePath: basePath}, nil
}

func (b *FilesystemBlob) path(key string) string {
	return filepath.Join(b.basePath, filepath.FromSlash(key))
}

func (b *FilesystemBlob) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Put writes to a temp file in the target directory and renames it into place
func (b *FilesystemBlob) Put(ctx context.Context, key string, data []byte) error {
	path := b.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return err
	}

	file, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tempPath, filePermissions); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (b *FilesystemBlob) Delete(ctx context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *FilesystemBlob) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, tempPrefix) || name == healthCheckFile {
			return nil
		}
		rel, err := filepath.Rel(b.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

// Ping checks that the base directory exists and is writable
func (b *FilesystemBlob) Ping(ctx context.Context) error {
	info, err := os.Stat(b.basePath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("base path is not a directory: %s", b.basePath)
	}

	testFile := filepath.Join(b.basePath, healthCheckFile)
	if err := os.WriteFile(testFile, []byte("ok"), filePermissions); err != nil {
		return fmt.Errorf("cannot write to base path: %w", err)
	}
	os.Remove(testFile)
	return nil
}

func (b *FilesystemBlob) Close() error {
	return nil
}
