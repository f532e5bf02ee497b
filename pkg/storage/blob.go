package storage

import (
	"context"
	"io"
	"time"
)

// BlobRef describes a stored blob returned from Put.
type BlobRef struct {
	URL      string
	Key      string
	MimeType string
	Size     int64
}

// BlobStore is the contract for uploading, retrieving and deleting opaque
// file bytes against the configured storage provider. Provider quirks
// (resource types, direct vs. signed URLs) stay behind this interface.
type BlobStore interface {
	Put(ctx context.Context, folder, name string, r io.Reader) (BlobRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
