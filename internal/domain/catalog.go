package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Store struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	OwnerID    string    `json:"ownerId"`
	OwnerName  string    `json:"ownerName,omitempty"`
	OwnerPhone string    `json:"-"`
	OwnerEmail string    `json:"-"`
	Currency   string    `json:"currency,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Product struct {
	ID         string          `json:"id"`
	StoreID    string          `json:"storeId"`
	CategoryID string          `json:"categoryId,omitempty"`
	Name       string          `json:"name"`
	Slug       string          `json:"slug"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Available  bool            `json:"available"`
}

type ProductVariant struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"productId"`
	Color           string          `json:"color,omitempty"`
	Size            string          `json:"size,omitempty"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
	Stock           int             `json:"stock"`
}

// Describe renders "color / size", skipping empty attributes.
func (v *ProductVariant) Describe() string {
	if v == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if v.Color != "" {
		parts = append(parts, v.Color)
	}
	if v.Size != "" {
		parts = append(parts, v.Size)
	}
	return strings.Join(parts, " / ")
}

func UnitPrice(p *Product, v *ProductVariant) decimal.Decimal {
	price := p.Price
	if v != nil {
		price = price.Add(v.PriceAdjustment)
	}
	return price
}
