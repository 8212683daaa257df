// Package storage keeps raw provider payloads (webhook bodies) in an
// object store for later inspection or replay.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Storage is a flat key/value object store.
type Storage interface {
	// Put stores content under key, replacing any existing object.
	Put(ctx context.Context, key string, content io.Reader, contentType string) error

	// Get returns the object at key. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) (bool, error)
}

// Config selects and configures a backend.
type Config struct {
	// Provider is "local", "s3" or empty (no archive).
	Provider string

	// LocalPath is the root directory for the local provider.
	LocalPath string

	// S3 settings. Endpoint is set for S3-compatible stores such as R2 or MinIO.
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// New creates the configured backend. It returns nil, nil when Provider is
// empty so callers can treat archiving as optional.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "local":
		return NewLocalStorage(cfg.LocalPath)
	case "s3":
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}
