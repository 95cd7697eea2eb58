package storage

import (
	"context"
	"os"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

// TestIntegration_S3Blob_MinIO runs the blob contract and a store round trip
// against MinIO. It uses TEST_MINIO_ENDPOINT when set, otherwise starts a
// container; it skips without Docker.
func TestIntegration_S3Blob_MinIO(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping MinIO integration test in short mode")
	}

	ctx := context.Background()
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = startMinIO(t, ctx)
	}

	blob := NewMinIOBlob(MinIOConfig{
		Endpoint:        endpoint,
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		Bucket:          "cimodel-test",
		Prefix:          t.Name(),
	})
	if err := blob.EnsureBucket(ctx); err != nil {
		t.Fatalf("EnsureBucket failed: %v", err)
	}

	runBlobCompliance(t, blob)

	store, err := Open(ctx, blob, Options{Compression: CompressionZstd})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	if _, err := store.Insert(ctx, "orders", "id", Row{"total": 10}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	n, err := store.Count(ctx, "orders", nil)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 order, got %d (%v)", n, err)
	}
}

func startMinIO(t *testing.T, ctx context.Context) (endpoint string) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("Docker daemon not available: %v", r)
		}
	}()

	container, err := minio.Run(ctx,
		"minio/minio:latest",
		testcontainers.WithEnv(map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		}),
	)
	if err != nil {
		t.Skipf("Failed to start MinIO container (Docker not available?): %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate MinIO container: %v", err)
		}
	})

	endpoint, err = container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get MinIO endpoint: %v", err)
	}
	return endpoint
}
