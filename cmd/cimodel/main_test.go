package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrianmcphee/cimodel"
	"github.com/adrianmcphee/cimodel/internal/storage"
	"go.uber.org/zap"
)

func TestStoreConfig_OpenFilesystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	sc := storeConfig{dataDir: dir, compression: "zstd"}

	store, err := sc.open(context.Background(), zap.NewNop())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	if _, err := store.Insert(context.Background(), "t", "id", storage.Row{"id": "1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Blob().Get(context.Background(), "t.jsonl.zst"); err != nil {
		t.Fatalf("expected compressed table object, got %v", err)
	}
}

func TestStoreConfig_BadCompression(t *testing.T) {
	sc := storeConfig{dataDir: t.TempDir(), compression: "lz77"}
	if _, err := sc.open(context.Background(), zap.NewNop()); err == nil {
		t.Fatal("expected unknown compression to fail")
	}
}

func TestRunServe_RejectsBadLogLevel(t *testing.T) {
	err := runServe([]string{"--data", t.TempDir(), "--addr", "127.0.0.1:0", "--log-level", "loud"})
	if !errors.Is(err, cimodel.ErrInvalidConfig) {
		t.Fatalf("expected invalid log level to stop serve, got %v", err)
	}
}

func TestHTTPServer_MetricsAndHealth(t *testing.T) {
	store, err := storage.OpenDir(context.Background(), t.TempDir(), storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	metrics := cimodel.NewPrometheusMetrics(nil)
	metrics.Increment("cimodel.server.statements", "command", "SELECT")

	ts := httptest.NewServer(newHTTPServer("", metrics, store).Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy store, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "cimodel_server_statements") {
		t.Fatalf("expected statement counter in exposition, got:\n%s", body)
	}
}
