// Package storage holds document content as immutable objects, one per content version.
// Backends stream through io.Reader and never touch local disk.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPresignUnsupported = errors.New("presigned urls are not supported by this backend")
)

// PutObjectOptions describes an upload. Size is -1 when unknown.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo is what a backend reports about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is an object store keyed by path. Implementations are safe for concurrent use.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get returns ErrObjectNotFound (wrapped) when the key does not exist. The caller
	// closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete is idempotent.
	Delete(ctx context.Context, key string) error
	// PresignGet returns ErrPresignUnsupported when the backend cannot sign URLs.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	// Ping reports whether the bucket is reachable.
	Ping(ctx context.Context) error
}

const bootstrapTimeout = 10 * time.Second
