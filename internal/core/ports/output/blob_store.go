package ports

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	UserMetadata map[string]string
}

// PutOptions controls a single object write.
type PutOptions struct {
	ContentType  string
	UserMetadata map[string]string
	// IfMatch makes the write conditional on the current ETag.
	// Empty means unconditional.
	IfMatch string
	// IfNoneMatch set to "*" makes the write fail when the key already
	// exists. It is ignored when IfMatch is set.
	IfNoneMatch string
}

// BlobStore defines the contract for the object store holding adapters and
// training data. Implementations must be safe for concurrent use.
//
// Missing keys surface as domain.ErrObjectNotFound, a failed IfMatch or
// IfNoneMatch as domain.ErrPreconditionFailed and every other provider
// failure wraps domain.ErrTransport.
type BlobStore interface {
	// Put writes body under key, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (*ObjectInfo, error)

	// PutFile uploads a local file under key.
	PutFile(ctx context.Context, key, path string, opts PutOptions) (*ObjectInfo, error)

	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// GetFile downloads the object into a local file, creating or truncating it.
	GetFile(ctx context.Context, key, path string) error

	// Stat probes the object without downloading it.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns every object whose key starts with prefix, recursively.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes a single object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMany removes keys in one batch and returns how many were removed.
	DeleteMany(ctx context.Context, keys []string) (int, error)

	// PresignGet returns a time-limited download URL.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Ping checks that the bucket is reachable.
	Ping(ctx context.Context) error

	// Bucket names the bucket this store writes to.
	Bucket() string
}
