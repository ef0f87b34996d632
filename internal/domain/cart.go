package domain

import "strings"

// LineKey is the identity of a cart line. Two lines with equal keys are the same line.
type LineKey struct {
	ProductID string
	Size      string
	Color     string
}

// MergeKey builds the identity used to decide whether an add merges into an existing line.
// An absent variant and an empty one are the same value.
func MergeKey(productID, size, color string) LineKey {
	return LineKey{
		ProductID: productID,
		Size:      strings.TrimSpace(size),
		Color:     strings.TrimSpace(color),
	}
}

type CartLine struct {
	ProductID string
	Name      string
	UnitPrice float64
	ImageRef  string
	Slug      string
	Size      string
	Color     string
	Quantity  int
}

func (l CartLine) Key() LineKey {
	return MergeKey(l.ProductID, l.Size, l.Color)
}

// Cart is an ordered sequence of lines; insertion order is display order.
type Cart struct {
	Lines []CartLine
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Clone returns a copy that shares no backing array with c. Empty carts clone to Cart{}.
func (c Cart) Clone() Cart {
	if len(c.Lines) == 0 {
		return Cart{}
	}
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}

func (c Cart) indexOf(key LineKey) int {
	for i := range c.Lines {
		if c.Lines[i].Key() == key {
			return i
		}
	}
	return -1
}

// Find returns the line with the given identity.
func (c Cart) Find(key LineKey) (CartLine, bool) {
	if i := c.indexOf(key); i >= 0 {
		return c.Lines[i], true
	}
	return CartLine{}, false
}

// Add merges line into the cart. A matching line gets its quantity increased and keeps
// its original name, price, image and slug; otherwise line is appended. A merge that would
// take the quantity past MaxQuantity fails with ErrQuantityTooLarge and changes nothing.
func (c *Cart) Add(line CartLine) error {
	if line.Quantity > MaxQuantity {
		return ErrQuantityTooLarge
	}
	if i := c.indexOf(line.Key()); i >= 0 {
		if c.Lines[i].Quantity > MaxQuantity-line.Quantity {
			return ErrQuantityTooLarge
		}
		c.Lines[i].Quantity += line.Quantity
		return nil
	}
	c.Lines = append(c.Lines, line)
	return nil
}

// SetQuantity overwrites the quantity of the matching line. Quantities outside
// 1..MaxQuantity and unknown lines leave the cart untouched; the return value reports
// whether anything changed.
func (c *Cart) SetQuantity(key LineKey, quantity int) bool {
	if quantity < 1 || quantity > MaxQuantity {
		return false
	}
	i := c.indexOf(key)
	if i < 0 {
		return false
	}
	c.Lines[i].Quantity = quantity
	return true
}

// Remove deletes the matching line and reports whether it was present.
func (c *Cart) Remove(key LineKey) bool {
	i := c.indexOf(key)
	if i < 0 {
		return false
	}
	c.Lines = append(c.Lines[:i:i], c.Lines[i+1:]...)
	return true
}
