package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// runBlobCompliance exercises the Blob contract against any implementation
func runBlobCompliance(t *testing.T, blob Blob) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := blob.Get(ctx, "missing.jsonl"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		if err := blob.Put(ctx, "users.jsonl", []byte("one\n")); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		if err := blob.Put(ctx, "users.jsonl", []byte("two\n")); err != nil {
			t.Fatalf("overwrite failed: %v", err)
		}
		data, err := blob.Get(ctx, "users.jsonl")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if string(data) != "two\n" {
			t.Fatalf("expected overwritten content, got %q", data)
		}
	})

	t.Run("ListPrefix", func(t *testing.T) {
		for _, key := range []string{"_schema/a.json", "_schema/b.json", "orders.jsonl"} {
			if err := blob.Put(ctx, key, []byte("{}")); err != nil {
				t.Fatalf("put %s: %v", key, err)
			}
		}
		keys, err := blob.List(ctx, "_schema/")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		want := []string{"_schema/a.json", "_schema/b.json"}
		if !reflect.DeepEqual(keys, want) {
			t.Fatalf("expected %v, got %v", want, keys)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		if err := blob.Delete(ctx, "orders.jsonl"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if err := blob.Delete(ctx, "orders.jsonl"); err != nil {
			t.Fatalf("second delete failed: %v", err)
		}
		if _, err := blob.Get(ctx, "orders.jsonl"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := blob.Ping(ctx); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
	})
}

func TestFilesystemBlob(t *testing.T) {
	blob, err := NewFilesystemBlob(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemBlob failed: %v", err)
	}
	runBlobCompliance(t, blob)
}

func TestFilesystemBlob_ListSkipsTempAndHealthFiles(t *testing.T) {
	dir := t.TempDir()
	blob, err := NewFilesystemBlob(dir)
	if err != nil {
		t.Fatalf("NewFilesystemBlob failed: %v", err)
	}
	ctx := context.Background()

	if err := blob.Put(ctx, "users.jsonl", []byte("{}\n")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	for _, name := range []string{".tmp-123", healthCheckFile} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := blob.List(ctx, "")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"users.jsonl"}) {
		t.Fatalf("expected only users.jsonl, got %v", keys)
	}
}

func TestFilesystemBlob_PingFailsOnFile(t *testing.T) {
	dir := t.TempDir()
	blob, err := NewFilesystemBlob(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("not a dir"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := blob.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail when base path is a file")
	}
}
