package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Blob stores objects in an S3 bucket (or any S3-compatible service)
// under an optional key prefix
type S3Blob struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Blob wraps an existing client
func NewS3Blob(client *s3.Client, bucket, prefix string) *S3Blob {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Blob{client: client, bucket: bucket, prefix: prefix}
}

// NewS3BlobFromEnv loads AWS credentials and region the standard way
// (environment, shared config, instance role)
func NewS3BlobFromEnv(ctx context.Context, bucket, prefix, region string) (*S3Blob, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Blob(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// MinIOConfig contains MinIO-specific configuration
type MinIOConfig struct {
	Endpoint        string // e.g. "localhost:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Prefix          string
}

// NewMinIOBlob creates an S3Blob configured for MinIO: static credentials
// and path-style addressing
func NewMinIOBlob(cfg MinIOConfig) *S3Blob {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)),
		Region:       "us-east-1", // MinIO ignores regions, the SDK requires one
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true,
	})
	return NewS3Blob(client, cfg.Bucket, cfg.Prefix)
}

func (b *S3Blob) key(k string) string {
	return b.prefix + k
}

func (b *S3Blob) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer func() { _ = result.Body.Close() }() //nolint:errcheck // Deferred close

	return io.ReadAll(result.Body)
}

// Put uploads the whole object; S3 replaces objects atomically
func (b *S3Blob) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (b *S3Blob) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	return err
}

func (b *S3Blob) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.key(prefix)),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range output.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), b.prefix))
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Ping checks that the bucket is reachable
func (b *S3Blob) Ping(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	return err
}

// EnsureBucket creates the bucket when HeadBucket cannot see it
func (b *S3Blob) EnsureBucket(ctx context.Context) error {
	if err := b.Ping(ctx); err == nil {
		return nil
	}
	_, err := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", b.bucket, err)
	}
	return nil
}

func (b *S3Blob) Close() error {
	return nil
}
