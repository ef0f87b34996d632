package domain

type Totals struct {
	ItemCount int     `json:"itemCount"`
	Subtotal  float64 `json:"subtotal"`
}

// CalculateTotals derives item count and subtotal from the lines. Nothing is cached.
func CalculateTotals(c Cart) Totals {
	var t Totals
	for _, line := range c.Lines {
		t.ItemCount += line.Quantity
		t.Subtotal += line.UnitPrice * float64(line.Quantity)
	}
	return t
}

func (c Cart) Totals() Totals {
	return CalculateTotals(c)
}
