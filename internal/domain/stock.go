package domain

// UnknownStock marks a product whose available stock could not be determined.
const UnknownStock = -1

// ClampQuantity fits a requested add quantity to the available stock.
// Zero stock rejects the add instead of clamping to 1.
func ClampQuantity(requested, available int) (int, error) {
	if available == 0 {
		return 0, ErrOutOfStock
	}
	qty := requested
	if available > 0 && qty > available {
		qty = available
	}
	if qty < 1 {
		qty = 1
	}
	return qty, nil
}
