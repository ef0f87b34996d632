package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("cart blob not found")

// BlobStore persists one opaque string per key. Set replaces the whole value.
// Implementations must make Set atomic for readers in the same process.
type BlobStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, blob string) error
	Delete(ctx context.Context, key string) error
}
