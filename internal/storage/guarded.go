package storage

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/fjod/storefront-cart/pkg/circuitbreaker"
)

// Guarded runs every call of a remote BlobStore through one circuit breaker, so a dead
// backend fails fast instead of stalling each request for its full timeout.
type Guarded struct {
	next BlobStore
	cb   *gobreaker.CircuitBreaker[string]
}

func NewGuarded(name string, next BlobStore, logger *zap.Logger) *Guarded {
	return &Guarded{
		next: next,
		cb: circuitbreaker.New[string](circuitbreaker.Options{
			Name:         name,
			IsSuccessful: isBackendHealthy,
			Logger:       logger,
		}),
	}
}

func (g *Guarded) Get(ctx context.Context, key string) (string, error) {
	return g.cb.Execute(func() (string, error) {
		return g.next.Get(ctx, key)
	})
}

func (g *Guarded) Set(ctx context.Context, key string, blob string) error {
	_, err := g.cb.Execute(func() (string, error) {
		return "", g.next.Set(ctx, key, blob)
	})
	return err
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	_, err := g.cb.Execute(func() (string, error) {
		return "", g.next.Delete(ctx, key)
	})
	return err
}

// Absent carts and callers giving up say nothing about backend health.
func isBackendHealthy(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.Canceled)
}
