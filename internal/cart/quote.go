package cart

import "github.com/shopspring/decimal"

var (
	FreeShippingOver = decimal.NewFromInt(50)
	FlatShipping     = decimal.RequireFromString("9.99")
	TaxRate          = decimal.RequireFromString("0.08")
)

// Quote is the checkout pricing sent with a new order
type Quote struct {
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// Quote prices the cart: shipping is free above FreeShippingOver, tax is TaxRate rounded to cents
func (c *Cart) Quote() Quote {
	c.mu.Lock()
	sub := subtotal(c.items)
	c.mu.Unlock()

	shipping := FlatShipping
	if sub.GreaterThan(FreeShippingOver) || sub.IsZero() {
		shipping = decimal.Zero
	}
	tax := sub.Mul(TaxRate).Round(2)
	return Quote{
		Subtotal: sub.InexactFloat64(),
		Shipping: shipping.InexactFloat64(),
		Tax:      tax.InexactFloat64(),
		Total:    sub.Add(shipping).Add(tax).InexactFloat64(),
	}
}
