// cimodel serves a directory or bucket of JSONL tables over the PostgreSQL
// wire protocol and exports it as a PostgreSQL script.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrianmcphee/cimodel"
	"github.com/adrianmcphee/cimodel/internal/executor"
	"github.com/adrianmcphee/cimodel/internal/export"
	"github.com/adrianmcphee/cimodel/internal/protocol"
	"github.com/adrianmcphee/cimodel/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "export":
		err = runExport(args)
	case "help":
		printHelp()
	default:
		printHelp()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintln(os.Stderr, "cimodel:", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`cimodel - PostgreSQL compatible JSONL table store

Usage:
  cimodel [serve] [flags]     Start the server
  cimodel export [flags]      Export schema and data as PostgreSQL

Storage flags (both commands):
  --data string          Data directory (env CIMODEL_DATA, default "./data")
  --compression string   none or zstd (env CIMODEL_COMPRESSION)
  --s3-bucket string     Store tables in an S3 bucket instead of --data
  --s3-prefix string     Key prefix inside the bucket
  --s3-region string     AWS region (default from the environment)
  --minio-endpoint host  Use a MinIO endpoint for the bucket (env MINIO_ENDPOINT)

Server flags:
  --addr string          Listen address (env CIMODEL_ADDR, default "127.0.0.1:5433")
  --metrics-addr string  Prometheus /metrics address, empty disables
  --log-level string     debug, info, warn or error
  --dev                  Human readable logs

Export flags:
  --ddl-only             Export only schema
  --data-only            Export only data
  --apply url            Load the export into a PostgreSQL database`)
}

// storeConfig selects and opens the blob store
type storeConfig struct {
	dataDir       string
	compression   string
	s3Bucket      string
	s3Prefix      string
	s3Region      string
	minioEndpoint string
	minioSSL      bool
}

func (c *storeConfig) register(fs *flag.FlagSet) {
	fs.StringVar(&c.dataDir, "data", envOr("CIMODEL_DATA", "./data"), "data directory")
	fs.StringVar(&c.compression, "compression", os.Getenv("CIMODEL_COMPRESSION"), "none or zstd")
	fs.StringVar(&c.s3Bucket, "s3-bucket", os.Getenv("CIMODEL_S3_BUCKET"), "S3 bucket")
	fs.StringVar(&c.s3Prefix, "s3-prefix", "", "S3 key prefix")
	fs.StringVar(&c.s3Region, "s3-region", "", "AWS region")
	fs.StringVar(&c.minioEndpoint, "minio-endpoint", os.Getenv("MINIO_ENDPOINT"), "MinIO endpoint")
	fs.BoolVar(&c.minioSSL, "minio-ssl", false, "use TLS for MinIO")
}

func (c *storeConfig) open(ctx context.Context, logger *zap.Logger) (*storage.Store, error) {
	compression, err := storage.ParseCompression(c.compression)
	if err != nil {
		return nil, err
	}
	opts := storage.Options{Compression: compression, Logger: logger}

	switch {
	case c.s3Bucket != "" && c.minioEndpoint != "":
		blob := storage.NewMinIOBlob(storage.MinIOConfig{
			Endpoint:        c.minioEndpoint,
			AccessKeyID:     os.Getenv("MINIO_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:          c.minioSSL,
			Bucket:          c.s3Bucket,
			Prefix:          c.s3Prefix,
		})
		if err := blob.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		logger.Info("using MinIO storage", zap.String("endpoint", c.minioEndpoint), zap.String("bucket", c.s3Bucket))
		return storage.Open(ctx, blob, opts)

	case c.s3Bucket != "":
		blob, err := storage.NewS3BlobFromEnv(ctx, c.s3Bucket, c.s3Prefix, c.s3Region)
		if err != nil {
			return nil, err
		}
		logger.Info("using S3 storage", zap.String("bucket", c.s3Bucket), zap.String("prefix", c.s3Prefix))
		return storage.Open(ctx, blob, opts)
	}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	logger.Info("using filesystem storage", zap.String("dir", c.dataDir), zap.Stringer("compression", compression))
	return storage.OpenDir(ctx, c.dataDir, opts)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var sc storeConfig
	sc.register(fs)
	addr := fs.String("addr", envOr("CIMODEL_ADDR", "127.0.0.1:5433"), "listen address")
	metricsAddr := fs.String("metrics-addr", os.Getenv("CIMODEL_METRICS_ADDR"), "metrics listen address")
	level := fs.String("log-level", envOr("CIMODEL_LOG_LEVEL", "info"), "log level")
	dev := fs.Bool("dev", false, "development logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := cimodel.BuildZap(*level, *dev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sc.open(ctx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := cimodel.NewPrometheusMetrics(prometheus.NewRegistry())
	srv := protocol.NewServer(executor.NewExecutor(store, logger.Named("executor")), protocol.Options{
		Logger:  logger.Named("protocol"),
		Metrics: metrics,
	})
	if err := srv.Listen(*addr); err != nil {
		return err
	}

	if *metricsAddr != "" {
		httpSrv := newHTTPServer(*metricsAddr, metrics, store)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", zap.String("addr", *metricsAddr))
	}

	err = srv.Serve(ctx)
	logger.Info("server stopped")
	return err
}

// newHTTPServer exposes /metrics and a /healthz that pings the blob store
func newHTTPServer(addr string, metrics *cimodel.PrometheusMetrics, store *storage.Store) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	var sc storeConfig
	sc.register(fs)
	ddlOnly := fs.Bool("ddl-only", false, "export only schema")
	dataOnly := fs.Bool("data-only", false, "export only data")
	apply := fs.String("apply", "", "PostgreSQL connection string to load the export into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ddlOnly && *dataOnly {
		return errors.New("--ddl-only and --data-only are exclusive")
	}

	logger, err := cimodel.BuildZap("warn", false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := sc.open(ctx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case *apply != "":
		return export.Apply(ctx, *apply, store)
	case *ddlOnly:
		ddl, err := export.ExportDDL(ctx, store)
		if err != nil {
			return err
		}
		_, err = fmt.Print(ddl)
		return err
	case *dataOnly:
		return export.ExportData(ctx, os.Stdout, store)
	}
	return export.Export(ctx, os.Stdout, store)
}
