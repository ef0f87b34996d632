package stock

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = errors.New("stock quantity cannot be negative")
)

// Source reports how many units of a product can still be added to a cart.
// ErrProductNotFound means the product is not tracked and its stock is unknown.
type Source interface {
	Available(ctx context.Context, productID string) (int, error)
}
