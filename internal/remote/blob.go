package remote

import "context"

// BlobStore holds attachment binaries. Paths are opaque storage keys.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte) error

	// Remove deletes the given keys; absent keys are not an error.
	Remove(ctx context.Context, paths []string) error

	List(ctx context.Context, prefix string) ([]string, error)
}
