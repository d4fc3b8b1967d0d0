package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

// PricedLine is a cart item joined with its current catalog price.
type PricedLine struct {
	Item        domain.CartItem        `json:"item"`
	Product     *domain.Product        `json:"product"`
	Variant     *domain.ProductVariant `json:"variant,omitempty"`
	VariantInfo string                 `json:"variantInfo,omitempty"`
	UnitPrice   decimal.Decimal        `json:"unitPrice"`
	Subtotal    decimal.Decimal        `json:"subtotal"`
}

func priceCart(ctx context.Context, catalog Catalog, c *domain.Cart) ([]PricedLine, decimal.Decimal, error) {
	lines := make([]PricedLine, 0, len(c.Items))
	total := decimal.Zero
	for _, it := range c.Items {
		p, err := catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("price item %s: %w", it.ID, notFound(err, "product"))
		}
		var v *domain.ProductVariant
		if it.VariantID != "" {
			v, err = catalog.GetVariant(ctx, it.VariantID)
			if err != nil {
				return nil, decimal.Zero, fmt.Errorf("price item %s: %w", it.ID, notFound(err, "variant"))
			}
		}
		unit := domain.UnitPrice(p, v)
		sub := unit.Mul(decimal.NewFromInt(int64(it.Quantity)))
		lines = append(lines, PricedLine{
			Item:        it,
			Product:     p,
			Variant:     v,
			VariantInfo: v.Describe(),
			UnitPrice:   unit,
			Subtotal:    sub,
		})
		total = total.Add(sub)
	}
	return lines, total, nil
}
