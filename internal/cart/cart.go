// internal/cart/cart.go
package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrIndexOutOfRange = errors.New("cart line index out of range")

// Line is one cart entry. There is at most one line per product id;
// quantity is always positive. ManualPrice marks lines whose unit price came
// from a manual total-price entry, which changes how merges recompute price.
type Line struct {
	ProductID   int64           `json:"product_id"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    decimal.Decimal `json:"quantity"`
	ManualPrice bool            `json:"manual_price"`
}

// LineTotal is the line's contribution to the subtotal.
func (l Line) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(l.Quantity)
}

// Totals is the derived cart arithmetic. Recomputed on every call,
// never cached.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Cart holds the session's line items in insertion order.
type Cart struct {
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// AddOrMerge adds quantity of a product to the cart. An existing line for
// the same product id absorbs the quantity; a new product appends a line at
// the end. When either side of a merge carries a manually entered price the
// unit price becomes the weighted average, so the summed line total stays
// exact:
//
//	(existingQty*existingPrice + newQty*newPrice) / (existingQty + newQty)
func (c *Cart) AddOrMerge(productID int64, name string, unitPrice, quantity decimal.Decimal, manualPrice bool) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", quantity)
	}

	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}

		line := &c.lines[i]
		mergedQty := line.Quantity.Add(quantity)

		if line.ManualPrice || manualPrice {
			existing := line.UnitPrice.Mul(line.Quantity)
			incoming := unitPrice.Mul(quantity)
			line.UnitPrice = existing.Add(incoming).Div(mergedQty)
			line.ManualPrice = true
		}

		line.Quantity = mergedQty
		return nil
	}

	c.lines = append(c.lines, Line{
		ProductID:   productID,
		Name:        name,
		UnitPrice:   unitPrice,
		Quantity:    quantity,
		ManualPrice: manualPrice,
	})
	return nil
}

// Remove deletes the line at index.
func (c *Cart) Remove(index int) error {
	if index < 0 || index >= len(c.lines) {
		return ErrIndexOutOfRange
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
	return nil
}

// AdjustQuantity changes a line's quantity by delta, never below 1. The +/-
// controls cannot delete a line; Remove is the only way out of the cart.
// Stock availability for increases is the caller's concern.
func (c *Cart) AdjustQuantity(index int, delta decimal.Decimal) (Line, error) {
	if index < 0 || index >= len(c.lines) {
		return Line{}, ErrIndexOutOfRange
	}

	one := decimal.NewFromInt(1)
	next := c.lines[index].Quantity.Add(delta)
	if next.LessThan(one) {
		next = one
	}

	c.lines[index].Quantity = next
	return c.lines[index], nil
}

// Clear empties the cart. Called after a sale commits.
func (c *Cart) Clear() {
	c.lines = nil
}

// Lines returns a copy of the cart in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Line returns the line at index.
func (c *Cart) Line(index int) (Line, error) {
	if index < 0 || index >= len(c.lines) {
		return Line{}, ErrIndexOutOfRange
	}
	return c.lines[index], nil
}

// QuantityOf returns the quantity already in the cart for a product,
// zero when absent.
func (c *Cart) QuantityOf(productID int64) decimal.Decimal {
	for _, l := range c.lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return decimal.Zero
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Totals derives subtotal, tax and total. The tax rate is kept as an
// explicit multiplier (currently configured to 0) so a future rate change
// touches no call sites.
func (c *Cart) Totals(taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range c.lines {
		subtotal = subtotal.Add(l.LineTotal())
	}

	tax := subtotal.Mul(taxRate)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}
