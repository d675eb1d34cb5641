// Package storage keeps generated declaration exports on the local
// filesystem or in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/btwdesk/api/internal/config"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage abstracts file storage operations. Implementations handle the
// local filesystem or S3-compatible object storage (CEPH, MinIO, AWS).
type Storage interface {
	// Put uploads content and returns the object's location.
	// key is the object path (e.g. "exports/{client}/2024-Q1.csv").
	Put(ctx context.Context, key string, body io.Reader, contentType string) (url string, err error)

	// Get opens the object at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error

	// PresignGet returns a time-limited download URL.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// New builds the storage backend selected by cfg.ExportStorage.
// urlPrefix is the HTTP path under which local exports are served.
func New(ctx context.Context, cfg *config.Config, urlPrefix string) (Storage, error) {
	switch cfg.ExportStorage {
	case "local", "":
		return NewLocal(cfg.ExportPath, urlPrefix), nil
	case "s3":
		return NewS3(ctx, S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Bucket:         cfg.S3.Bucket,
		})
	}
	return nil, fmt.Errorf("unknown export storage %q", cfg.ExportStorage)
}
