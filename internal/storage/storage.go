package storage

import (
	"context"
	"io"
)

// Locator identifies where uploaded bytes live in the object store.
type Locator struct {
	// Key is the full object key (container/key) and doubles as the
	// internal id used for deletion.
	Key          string
	URL          string
	ThumbnailURL string
}

// BlobStore is the capability wrapper over the external object store.
// Implementations must treat Delete as idempotent.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, key string, container string) (*Locator, error)
	Delete(ctx context.Context, blobKey string) error
	Open(ctx context.Context, blobKey string) (io.ReadCloser, error)
}
