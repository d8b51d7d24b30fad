// Package storage uploads run artefacts to an S3-compatible object store.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/offlinefirst/mousedynamics/pkg/config"
)

// ObjectStore is the subset of *minio.Client the uploader needs.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies files of a run under <prefix>/<run id>/ in one bucket.
type Uploader struct {
	client ObjectStore
	bucket string
	prefix string
}

// New dials the configured endpoint.
func New(cfg config.StorageConfig) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client ObjectStore, bucket, prefix string) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// ObjectName returns the key a local file of runID is stored under.
func (u *Uploader) ObjectName(runID, file string) string {
	return path.Join(u.prefix, runID, filepath.Base(file))
}

// UploadRun creates the bucket if needed and uploads files in order. It
// returns the object keys written before any error.
func (u *Uploader) UploadRun(ctx context.Context, runID string, files []string) ([]string, error) {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			if code := minio.ToErrorResponse(err).Code; code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return nil, fmt.Errorf("create bucket %s: %w", u.bucket, err)
			}
		}
	}

	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := u.ObjectName(runID, file)
		if _, err := u.client.FPutObject(ctx, u.bucket, key, file, minio.PutObjectOptions{
			ContentType: contentType(file),
		}); err != nil {
			return keys, fmt.Errorf("upload %s to %s: %w", file, key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
