package domain

import (
	"math"
	"strings"
)

// MaxQuantity is the largest quantity one line may hold. It keeps merged quantities and
// cart totals far from int overflow.
const MaxQuantity = math.MaxInt32

// NewCartLine is the only way lines enter a cart from untrusted input. It trims
// identifiers and rejects lines that would break the cart invariants.
func NewCartLine(l CartLine) (CartLine, error) {
	l.ProductID = strings.TrimSpace(l.ProductID)
	l.Size = strings.TrimSpace(l.Size)
	l.Color = strings.TrimSpace(l.Color)

	if l.ProductID == "" {
		return CartLine{}, ErrProductIDRequired
	}
	if l.UnitPrice < 0 || math.IsNaN(l.UnitPrice) || math.IsInf(l.UnitPrice, 0) {
		return CartLine{}, ErrInvalidPrice
	}
	if l.Quantity < 1 {
		return CartLine{}, ErrInvalidQuantity
	}
	if l.Quantity > MaxQuantity {
		return CartLine{}, ErrQuantityTooLarge
	}
	return l, nil
}
