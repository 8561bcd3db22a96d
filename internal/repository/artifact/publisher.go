// Package artifact publishes pipeline outputs to an S3-compatible bucket.
package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// objectStore is the consumer interface over *minio.Client (ISP).
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// Config holds the bucket settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

// Publisher uploads local files under a key prefix.
type Publisher struct {
	store  objectStore
	bucket string
	prefix string
	region string
	logger *zap.Logger
}

// NewMinIO connects to an S3-compatible endpoint.
func NewMinIO(cfg Config, logger *zap.Logger) (*Publisher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return New(client, cfg.Bucket, cfg.Prefix, cfg.Region, logger), nil
}

// New wraps an object store.
func New(s objectStore, bucket, prefix, region string, logger *zap.Logger) *Publisher {
	return &Publisher{
		store:  s,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: region,
		logger: logger,
	}
}

// EnsureBucket creates the bucket when it does not exist.
func (p *Publisher) EnsureBucket(ctx context.Context) error {
	exists, err := p.store.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if exists {
		return nil
	}
	p.logger.Info("Creating bucket", zap.String("bucket", p.bucket))
	if err := p.store.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", p.bucket, err)
	}
	return nil
}

// HealthCheck verifies the object store answers and the bucket exists.
func (p *Publisher) HealthCheck(ctx context.Context) error {
	exists, err := p.store.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", p.bucket)
	}
	return nil
}

// Key is the object key of a file relative to the published root.
func (p *Publisher) Key(rel string) string {
	rel = filepath.ToSlash(rel)
	if p.prefix == "" {
		return rel
	}
	return path.Join(p.prefix, rel)
}

// PublishDir uploads every regular file under root (symlinks followed for
// files, not descended into as directories) and returns the keys in
// lexical order of their paths.
func (p *Publisher) PublishDir(ctx context.Context, root string) ([]string, error) {
	if err := p.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	var files []string
	err := filepath.WalkDir(root, func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		files = append(files, fpath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)

	keys := make([]string, 0, len(files))
	var total int64
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(root, f)
		if err != nil {
			return nil, fmt.Errorf("relative path %s: %w", f, err)
		}
		key := p.Key(rel)
		info, err := p.store.FPutObject(ctx, p.bucket, key, f, minio.PutObjectOptions{
			ContentType: contentType(f),
		})
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", key, err)
		}
		total += info.Size
		keys = append(keys, key)
		p.logger.Debug("Uploaded", zap.String("key", key), zap.Int64("bytes", info.Size))
	}

	p.logger.Info("Published artifacts",
		zap.String("bucket", p.bucket),
		zap.String("prefix", p.prefix),
		zap.Int("objects", len(keys)),
		zap.Int64("bytes", total),
	)
	return keys, nil
}

// Presign returns a time-limited download URL for key.
func (p *Publisher) Presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := p.store.PresignedGetObject(ctx, p.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	case ".yaml":
		return "application/yaml"
	case ".npy":
		return "application/octet-stream"
	default:
		return "text/plain"
	}
}
