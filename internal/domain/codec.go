package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// lineRecord is the persisted shape of a line, shared with the storefront pages.
// Pointer fields distinguish "absent" from zero values while decoding.
type lineRecord struct {
	ID       json.RawMessage `json:"id"`
	Name     string          `json:"name,omitempty"`
	Price    *float64        `json:"price"`
	Image    string          `json:"image,omitempty"`
	Slug     string          `json:"slug,omitempty"`
	Size     *string         `json:"size,omitempty"`
	Variant  *string         `json:"variant,omitempty"`
	Color    *string         `json:"color,omitempty"`
	Qty      *int            `json:"qty,omitempty"`
	Quantity *int            `json:"quantity,omitempty"`
}

// EncodeCart renders the cart as the persisted JSON array.
func EncodeCart(c Cart) (string, error) {
	records := make([]lineRecord, 0, len(c.Lines))
	for _, line := range c.Lines {
		id, err := json.Marshal(line.ProductID)
		if err != nil {
			return "", fmt.Errorf("marshal product id failed: %w", err)
		}
		price := line.UnitPrice
		qty := line.Quantity
		records = append(records, lineRecord{
			ID:    id,
			Name:  line.Name,
			Price: &price,
			Image: line.ImageRef,
			Slug:  line.Slug,
			Size:  optional(line.Size),
			Color: optional(line.Color),
			Qty:   &qty,
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal cart failed: %w", err)
	}
	return string(data), nil
}

// DecodeCart parses a persisted cart. Blank input is an empty cart. Anything that is not a
// JSON array yields an empty cart and an error wrapping ErrPersistenceRead. Individual
// records that fail validation are dropped, and duplicate identities are merged; a
// duplicate whose merge would exceed MaxQuantity is dropped.
func DecodeCart(data string) (Cart, error) {
	if strings.TrimSpace(data) == "" {
		return Cart{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return Cart{}, fmt.Errorf("%w: unmarshal cart failed: %v", ErrPersistenceRead, err)
	}

	var cart Cart
	for _, item := range raw {
		line, ok := decodeLine(item)
		if !ok {
			continue
		}
		_ = cart.Add(line)
	}
	return cart, nil
}

func decodeLine(item json.RawMessage) (CartLine, bool) {
	var rec lineRecord
	if err := json.Unmarshal(item, &rec); err != nil {
		return CartLine{}, false
	}

	productID, ok := decodeID(rec.ID)
	if !ok {
		return CartLine{}, false
	}

	line := CartLine{
		ProductID: productID,
		Name:      rec.Name,
		ImageRef:  rec.Image,
		Slug:      rec.Slug,
		Quantity:  1,
	}
	if rec.Price != nil {
		line.UnitPrice = *rec.Price
	}
	switch {
	case rec.Size != nil:
		line.Size = *rec.Size
	case rec.Variant != nil:
		line.Size = *rec.Variant
	}
	if rec.Color != nil {
		line.Color = *rec.Color
	}
	// Pages that merge into "quantity" leave a stale "qty" behind, so "quantity" wins.
	switch {
	case rec.Quantity != nil:
		line.Quantity = *rec.Quantity
	case rec.Qty != nil:
		line.Quantity = *rec.Qty
	}

	line, err := NewCartLine(line)
	if err != nil {
		return CartLine{}, false
	}
	return line, true
}

// decodeID accepts string and numeric product identifiers.
func decodeID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
