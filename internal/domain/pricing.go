package domain

import "github.com/shopspring/decimal"

type Pricing struct {
	Shipping decimal.Decimal
	TaxRate  decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		Shipping: decimal.RequireFromString("5.00"),
		TaxRate:  decimal.RequireFromString("0.02"),
	}
}

type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Totals rounds tax half away from zero to cents; the total is the exact sum
// of the three rounded parts.
func (p Pricing) Totals(subtotal decimal.Decimal) Totals {
	sub := subtotal.Round(2)
	ship := p.Shipping.Round(2)
	tax := sub.Mul(p.TaxRate).Round(2)
	return Totals{
		Subtotal: sub,
		Shipping: ship,
		Tax:      tax,
		Total:    sub.Add(ship).Add(tax),
	}
}
